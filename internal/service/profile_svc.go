package service

import (
	"context"
	"errors"
	"time"

	"github.com/totemic/totemic-go/internal/model"
	"github.com/totemic/totemic-go/internal/repository"
)

// ProfileService serves user-facing views of quota records and the global
// stats counters.
type ProfileService struct {
	store repository.Store
	stats repository.StatsSource
	quota *QuotaService
}

func NewProfileService(store repository.Store, stats repository.StatsSource, quota *QuotaService) *ProfileService {
	return &ProfileService{store: store, stats: stats, quota: quota}
}

// Quota returns the user's refresh allowance projected through day rollover.
// A user the store has never seen reads as a fresh standard-tier allowance;
// the record is only persisted once they actually spend a refresh.
func (s *ProfileService) Quota(ctx context.Context, userID string) (*model.QuotaResponse, error) {
	now := time.Now().UnixMilli()

	q, err := s.store.GetQuota(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		q = s.quota.NewQuota(userID, now)
	} else if err != nil {
		return nil, err
	}

	return s.quota.Project(q, now), nil
}

// Stats returns aggregate platform statistics.
func (s *ProfileService) Stats(ctx context.Context) (*model.StatsResponse, error) {
	return s.stats.Stats(ctx)
}
