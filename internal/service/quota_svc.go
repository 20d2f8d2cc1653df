package service

import (
	"time"

	"github.com/totemic/totemic-go/internal/model"
)

// QuotaService manages the per-user daily refresh allowance. Rollover is
// calendar-day based in the service's reference timezone, not a rolling 24h
// window. The check-then-decrement runs inside the engine's atomic commit,
// so a refresh is never charged without its like mutation or vice versa.
type QuotaService struct {
	standardAllotment int
	premiumAllotment  int
	loc               *time.Location
}

func NewQuotaService(standard, premium int, loc *time.Location) *QuotaService {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaService{
		standardAllotment: standard,
		premiumAllotment:  premium,
		loc:               loc,
	}
}

// Allotment returns the daily refresh allowance for a tier.
func (s *QuotaService) Allotment(tier string) int {
	if tier == model.TierPremium {
		return s.premiumAllotment
	}
	return s.standardAllotment
}

// NewQuota builds a fresh quota record for a user seen for the first time.
func (s *QuotaService) NewQuota(userID string, now int64) *model.RefreshQuota {
	return &model.RefreshQuota{
		UserID:             userID,
		Tier:               model.TierStandard,
		RefreshesRemaining: s.standardAllotment,
		RefreshResetAt:     now,
	}
}

// Rollover resets the allowance when the current calendar day differs from
// the day of the last reset. Reports whether a reset happened.
func (s *QuotaService) Rollover(q *model.RefreshQuota, now int64) bool {
	if s.sameDay(q.RefreshResetAt, now) {
		return false
	}
	q.RefreshesRemaining = s.Allotment(q.Tier)
	q.RefreshResetAt = now
	return true
}

// Consume applies day rollover, then spends one refresh. Returns
// ErrQuotaExhausted, leaving the record untouched beyond the rollover, when
// nothing is left.
func (s *QuotaService) Consume(q *model.RefreshQuota, now int64) error {
	s.Rollover(q, now)
	if q.RefreshesRemaining <= 0 {
		return ErrQuotaExhausted
	}
	q.RefreshesRemaining--
	return nil
}

// Project returns the user-visible view of a quota record with rollover
// applied, without persisting anything.
func (s *QuotaService) Project(q *model.RefreshQuota, now int64) *model.QuotaResponse {
	view := *q
	s.Rollover(&view, now)
	return &model.QuotaResponse{
		UserID:             view.UserID,
		Tier:               view.Tier,
		RefreshesRemaining: view.RefreshesRemaining,
		RefreshResetAt:     view.RefreshResetAt,
	}
}

func (s *QuotaService) sameDay(a, b int64) bool {
	ta := time.UnixMilli(a).In(s.loc)
	tb := time.UnixMilli(b).In(s.loc)
	ya, ma, da := ta.Date()
	yb, mb, db := tb.Date()
	return ya == yb && ma == mb && da == db
}
