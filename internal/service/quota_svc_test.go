package service

import (
	"errors"
	"testing"
	"time"

	"github.com/totemic/totemic-go/internal/model"
)

func quotaAt(t *testing.T, layout string) int64 {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, layout)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", layout, err)
	}
	return ts.UnixMilli()
}

func TestAllotment(t *testing.T) {
	svc := NewQuotaService(5, 20, time.UTC)

	if got := svc.Allotment(model.TierStandard); got != 5 {
		t.Errorf("standard allotment = %d, want 5", got)
	}
	if got := svc.Allotment(model.TierPremium); got != 20 {
		t.Errorf("premium allotment = %d, want 20", got)
	}
	if got := svc.Allotment("unknown"); got != 5 {
		t.Errorf("unknown tier allotment = %d, want 5 (standard fallback)", got)
	}
}

func TestRollover_CalendarDayNotRolling24h(t *testing.T) {
	svc := NewQuotaService(5, 20, time.UTC)

	tests := []struct {
		name      string
		resetAt   string
		now       string
		wantReset bool
	}{
		{"same moment", "2026-03-10T08:00:00Z", "2026-03-10T08:00:00Z", false},
		{"later same day", "2026-03-10T08:00:00Z", "2026-03-10T23:59:59Z", false},
		{"one minute past midnight", "2026-03-10T23:59:00Z", "2026-03-11T00:01:00Z", true},
		{"23h apart across midnight", "2026-03-10T23:00:00Z", "2026-03-11T22:00:00Z", true},
		{"25h apart same reset", "2026-03-10T08:00:00Z", "2026-03-11T09:00:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &model.RefreshQuota{
				UserID:             "u1",
				Tier:               model.TierStandard,
				RefreshesRemaining: 1,
				RefreshResetAt:     quotaAt(t, tt.resetAt),
			}
			now := quotaAt(t, tt.now)

			got := svc.Rollover(q, now)
			if got != tt.wantReset {
				t.Fatalf("Rollover = %v, want %v", got, tt.wantReset)
			}
			if tt.wantReset {
				if q.RefreshesRemaining != 5 {
					t.Errorf("remaining after reset = %d, want 5", q.RefreshesRemaining)
				}
				if q.RefreshResetAt != now {
					t.Errorf("resetAt after reset = %d, want %d", q.RefreshResetAt, now)
				}
			} else if q.RefreshesRemaining != 1 {
				t.Errorf("remaining without reset = %d, want 1", q.RefreshesRemaining)
			}
		})
	}
}

func TestRollover_UsesReferenceTimezone(t *testing.T) {
	// 23:30 and 00:30 UTC straddle midnight in UTC but are the same
	// calendar day in UTC-2.
	loc := time.FixedZone("UTC-2", -2*60*60)
	svc := NewQuotaService(5, 20, loc)

	q := &model.RefreshQuota{
		UserID:             "u1",
		Tier:               model.TierStandard,
		RefreshesRemaining: 2,
		RefreshResetAt:     quotaAt(t, "2026-03-10T23:30:00Z"),
	}

	if svc.Rollover(q, quotaAt(t, "2026-03-11T00:30:00Z")) {
		t.Error("rollover fired across UTC midnight despite same local day")
	}
	if !svc.Rollover(q, quotaAt(t, "2026-03-11T03:00:00Z")) {
		t.Error("rollover missed a genuine local day change")
	}
}

func TestConsume(t *testing.T) {
	svc := NewQuotaService(2, 20, time.UTC)
	now := quotaAt(t, "2026-03-10T12:00:00Z")

	q := svc.NewQuota("u1", now)
	if q.RefreshesRemaining != 2 {
		t.Fatalf("fresh quota remaining = %d, want 2", q.RefreshesRemaining)
	}

	// Exactly one unit per success.
	for want := 1; want >= 0; want-- {
		if err := svc.Consume(q, now); err != nil {
			t.Fatalf("Consume failed with %d remaining: %v", want+1, err)
		}
		if q.RefreshesRemaining != want {
			t.Fatalf("remaining = %d, want %d", q.RefreshesRemaining, want)
		}
	}

	// Exhausted: error out, charge nothing.
	if err := svc.Consume(q, now); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("Consume on empty quota = %v, want ErrQuotaExhausted", err)
	}
	if q.RefreshesRemaining != 0 {
		t.Errorf("remaining after failed consume = %d, want 0", q.RefreshesRemaining)
	}

	// Next day the allowance is back regardless of prior value.
	nextDay := quotaAt(t, "2026-03-11T00:05:00Z")
	if err := svc.Consume(q, nextDay); err != nil {
		t.Fatalf("Consume after rollover: %v", err)
	}
	if q.RefreshesRemaining != 1 {
		t.Errorf("remaining after rollover consume = %d, want 1", q.RefreshesRemaining)
	}
}

func TestProject_DoesNotMutate(t *testing.T) {
	svc := NewQuotaService(5, 20, time.UTC)

	q := &model.RefreshQuota{
		UserID:             "u1",
		Tier:               model.TierPremium,
		RefreshesRemaining: 0,
		RefreshResetAt:     quotaAt(t, "2026-03-10T12:00:00Z"),
	}
	nextDay := quotaAt(t, "2026-03-11T12:00:00Z")

	view := svc.Project(q, nextDay)
	if view.RefreshesRemaining != 20 {
		t.Errorf("projected remaining = %d, want 20", view.RefreshesRemaining)
	}
	if q.RefreshesRemaining != 0 || q.RefreshResetAt != quotaAt(t, "2026-03-10T12:00:00Z") {
		t.Error("Project mutated the underlying record")
	}
}
