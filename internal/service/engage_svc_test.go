package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/totemic/totemic-go/internal/model"
	"github.com/totemic/totemic-go/internal/repository"
)

func newTestEngine(store repository.Store) *EngagementService {
	return NewEngagementService(
		store,
		NewDecayService(),
		NewQuotaService(5, 20, time.UTC),
		nil, // no cache
		5,
		time.Millisecond,
	)
}

func seedLabelPost(store *repository.MemStore, events ...model.LikeEvent) {
	store.SeedPost(&model.Post{
		PostID: "p1",
		Answers: []model.Answer{
			{
				AnswerID: "a1",
				Labels: []model.Label{
					{Name: "insightful", LikeHistory: events},
				},
			},
		},
	})
}

func storedEvent(t *testing.T, store *repository.MemStore, userID string) *model.LikeEvent {
	t.Helper()
	post, _, err := store.GetPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("re-read post: %v", err)
	}
	_, label := post.FindLabel("a1", "insightful")
	if label == nil {
		t.Fatal("label missing after commit")
	}
	return label.FindEvent(userID)
}

func TestToggleLike_Lifecycle(t *testing.T) {
	store := repository.NewMemStore()
	seedLabelPost(store)
	svc := newTestEngine(store)
	ctx := context.Background()

	// First toggle: like lands at full strength.
	resp, err := svc.ToggleLike(ctx, "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !resp.IsActive || resp.Crispness != 100.0 || resp.LikeCount != 1 {
		t.Errorf("first toggle = {active:%v crispness:%.2f count:%d}, want {true 100.00 1}",
			resp.IsActive, resp.Crispness, resp.LikeCount)
	}

	// Second toggle: withdraw.
	resp, err = svc.ToggleLike(ctx, "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if resp.IsActive || resp.Crispness != 0.0 || resp.LikeCount != 0 {
		t.Errorf("second toggle = {active:%v crispness:%.2f count:%d}, want {false 0.00 0}",
			resp.IsActive, resp.Crispness, resp.LikeCount)
	}

	// Third toggle: a withdrawn like needs an explicit restore-or-refresh
	// decision; nothing commits.
	_, err = svc.ToggleLike(ctx, "p1", "a1", "insightful", "u1")
	if !errors.Is(err, ErrChoiceRequired) {
		t.Fatalf("third toggle = %v, want ErrChoiceRequired", err)
	}
	if ev := storedEvent(t, store, "u1"); ev == nil || ev.IsActive {
		t.Error("third toggle mutated the committed ledger")
	}
}

func TestToggleLike_UnlikeKeepsTimestamp(t *testing.T) {
	store := repository.NewMemStore()
	liked := time.Now().UnixMilli() - 3*dayMillis
	seedLabelPost(store, model.LikeEvent{
		UserID:            "u1",
		OriginalTimestamp: liked,
		LastUpdatedAt:     liked,
		IsActive:          true,
		Value:             1,
	})
	svc := newTestEngine(store)

	resp, err := svc.ToggleLike(context.Background(), "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if resp.IsActive {
		t.Error("toggle on active like should withdraw it")
	}

	ev := storedEvent(t, store, "u1")
	if ev == nil {
		t.Fatal("event deleted by unlike")
	}
	if ev.LastUpdatedAt != liked {
		t.Errorf("unlike moved LastUpdatedAt from %d to %d", liked, ev.LastUpdatedAt)
	}
}

func TestRestoreLike_KeepsStaleDecay(t *testing.T) {
	store := repository.NewMemStore()
	liked := time.Now().UnixMilli() - 10*dayMillis
	seedLabelPost(store, model.LikeEvent{
		UserID:            "u1",
		OriginalTimestamp: liked,
		LastUpdatedAt:     liked,
		IsActive:          false,
		Value:             1,
	})
	svc := newTestEngine(store)
	ctx := context.Background()

	resp, err := svc.RestoreLike(ctx, "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !resp.IsActive {
		t.Error("restore did not reactivate the like")
	}
	// 10 days is past the decay window: the only active like weighs 0, so
	// the score is the degenerate ratio.
	if resp.Crispness != 0.0 {
		t.Errorf("restored crispness = %.2f, want 0.00 (decay preserved)", resp.Crispness)
	}
	if resp.LikeCount != 1 {
		t.Errorf("like count = %d, want 1", resp.LikeCount)
	}

	if ev := storedEvent(t, store, "u1"); ev.LastUpdatedAt != liked {
		t.Errorf("restore moved LastUpdatedAt from %d to %d", liked, ev.LastUpdatedAt)
	}

	// Restore is free: no quota record should exist.
	if _, err := store.GetQuota(ctx, "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("restore created a quota record: %v", err)
	}
}

func TestRestoreLike_Validation(t *testing.T) {
	store := repository.NewMemStore()
	now := time.Now().UnixMilli()
	seedLabelPost(store, model.LikeEvent{
		UserID: "u1", OriginalTimestamp: now, LastUpdatedAt: now, IsActive: true, Value: 1,
	})
	svc := newTestEngine(store)
	ctx := context.Background()

	if _, err := svc.RestoreLike(ctx, "p1", "a1", "insightful", "u2"); !errors.Is(err, ErrValidation) {
		t.Errorf("restore with no prior like = %v, want ErrValidation", err)
	}
	if _, err := svc.RestoreLike(ctx, "p1", "a1", "insightful", "u1"); !errors.Is(err, ErrValidation) {
		t.Errorf("restore on active like = %v, want ErrValidation", err)
	}
}

func TestRefreshLike_ResetsDecayAndChargesQuota(t *testing.T) {
	store := repository.NewMemStore()
	liked := time.Now().UnixMilli() - 10*dayMillis
	seedLabelPost(store, model.LikeEvent{
		UserID:            "u1",
		OriginalTimestamp: liked,
		LastUpdatedAt:     liked,
		IsActive:          false,
		Value:             1,
	})
	svc := newTestEngine(store)
	ctx := context.Background()

	resp, err := svc.RefreshLike(ctx, "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !resp.IsActive || resp.Crispness != 100.0 {
		t.Errorf("refresh = {active:%v crispness:%.2f}, want {true 100.00}", resp.IsActive, resp.Crispness)
	}

	ev := storedEvent(t, store, "u1")
	if ev.LastUpdatedAt == liked {
		t.Error("refresh did not reset LastUpdatedAt")
	}
	if ev.OriginalTimestamp != liked {
		t.Error("refresh moved OriginalTimestamp")
	}

	// The quota record was auto-created and charged in the same commit.
	q, err := store.GetQuota(ctx, "u1")
	if err != nil {
		t.Fatalf("quota after refresh: %v", err)
	}
	if q.RefreshesRemaining != 4 {
		t.Errorf("remaining after refresh = %d, want 4", q.RefreshesRemaining)
	}
}

func TestRefreshLike_QuotaExhausted(t *testing.T) {
	store := repository.NewMemStore()
	now := time.Now().UnixMilli()
	liked := now - 10*dayMillis
	seedLabelPost(store, model.LikeEvent{
		UserID: "u1", OriginalTimestamp: liked, LastUpdatedAt: liked, IsActive: false, Value: 1,
	})
	store.SeedQuota(model.RefreshQuota{
		UserID:             "u1",
		Tier:               model.TierStandard,
		RefreshesRemaining: 0,
		RefreshResetAt:     now,
	})
	svc := newTestEngine(store)
	ctx := context.Background()

	_, err := svc.RefreshLike(ctx, "p1", "a1", "insightful", "u1")
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("refresh on empty quota = %v, want ErrQuotaExhausted", err)
	}

	// Failure charges nothing and activates nothing.
	if ev := storedEvent(t, store, "u1"); ev.IsActive {
		t.Error("failed refresh activated the like")
	}
	q, err := store.GetQuota(ctx, "u1")
	if err != nil {
		t.Fatalf("quota re-read: %v", err)
	}
	if q.RefreshesRemaining != 0 {
		t.Errorf("remaining after failed refresh = %d, want 0", q.RefreshesRemaining)
	}
}

func TestRefreshLike_NoPriorLike(t *testing.T) {
	store := repository.NewMemStore()
	seedLabelPost(store)
	svc := newTestEngine(store)

	_, err := svc.RefreshLike(context.Background(), "p1", "a1", "insightful", "u1")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("refresh with no prior like = %v, want ErrValidation", err)
	}
}

func TestRefreshLike_ActiveLikeAllowed(t *testing.T) {
	// Refreshing an active-but-fading like is legal: it just resets the
	// clock and spends quota.
	store := repository.NewMemStore()
	liked := time.Now().UnixMilli() - 6*dayMillis
	seedLabelPost(store, model.LikeEvent{
		UserID: "u1", OriginalTimestamp: liked, LastUpdatedAt: liked, IsActive: true, Value: 1,
	})
	svc := newTestEngine(store)

	resp, err := svc.RefreshLike(context.Background(), "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if resp.Crispness != 100.0 {
		t.Errorf("refreshed crispness = %.2f, want 100.00", resp.Crispness)
	}
}

func TestMutate_RetriesThroughConflicts(t *testing.T) {
	store := repository.NewMemStore()
	seedLabelPost(store)
	store.FailNextCommits(2)
	svc := newTestEngine(store)

	resp, err := svc.ToggleLike(context.Background(), "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("toggle through conflicts: %v", err)
	}
	if resp.Attempts != 3 {
		t.Errorf("attempts = %d, want 3 (two conflicts then success)", resp.Attempts)
	}
	if ev := storedEvent(t, store, "u1"); ev == nil || !ev.IsActive {
		t.Error("retried toggle never landed")
	}
}

func TestMutate_GivesUpAfterCap(t *testing.T) {
	store := repository.NewMemStore()
	seedLabelPost(store)
	store.FailNextCommits(10)
	svc := newTestEngine(store)

	_, err := svc.ToggleLike(context.Background(), "p1", "a1", "insightful", "u1")
	if !errors.Is(err, ErrContention) {
		t.Fatalf("toggle under sustained conflicts = %v, want ErrContention", err)
	}
	if ev := storedEvent(t, store, "u1"); ev != nil {
		t.Error("exhausted retries still committed an event")
	}
}

func TestMutate_MissingTargets(t *testing.T) {
	store := repository.NewMemStore()
	seedLabelPost(store)
	svc := newTestEngine(store)
	ctx := context.Background()

	if _, err := svc.ToggleLike(ctx, "nope", "a1", "insightful", "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown post = %v, want ErrNotFound", err)
	}
	if _, err := svc.ToggleLike(ctx, "p1", "nope", "insightful", "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown answer = %v, want ErrNotFound", err)
	}
	if _, err := svc.ToggleLike(ctx, "p1", "a1", "nope", "u1"); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown label = %v, want ErrValidation", err)
	}
}

func TestMutate_EmptyAnswerIDScansInOrder(t *testing.T) {
	store := repository.NewMemStore()
	store.SeedPost(&model.Post{
		PostID: "p1",
		Answers: []model.Answer{
			{AnswerID: "a1", Labels: []model.Label{{Name: "other"}}},
			{AnswerID: "a2", Labels: []model.Label{{Name: "insightful"}}},
		},
	})
	svc := newTestEngine(store)

	resp, err := svc.ToggleLike(context.Background(), "p1", "", "insightful", "u1")
	if err != nil {
		t.Fatalf("toggle with empty answer id: %v", err)
	}
	if !resp.IsActive {
		t.Error("scanned toggle did not land")
	}

	post, _, err := store.GetPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if got := post.FindAnswer("a2").FindLabel("insightful").LikeCount(); got != 1 {
		t.Errorf("like landed on wrong answer, a2 count = %d, want 1", got)
	}
}

// flakyStore injects storage faults ahead of an otherwise healthy MemStore.
type flakyStore struct {
	*repository.MemStore
	failGets    int
	failCommits int
	err         error
}

func (s *flakyStore) GetPost(ctx context.Context, postID string) (*model.Post, uint64, error) {
	if s.failGets > 0 {
		s.failGets--
		return nil, 0, s.err
	}
	return s.MemStore.GetPost(ctx, postID)
}

func (s *flakyStore) Commit(ctx context.Context, post *model.Post, version uint64, quota *model.RefreshQuota) error {
	if s.failCommits > 0 {
		s.failCommits--
		return s.err
	}
	return s.MemStore.Commit(ctx, post, version, quota)
}

func TestMutate_RetriesTransientCommitFault(t *testing.T) {
	mem := repository.NewMemStore()
	seedLabelPost(mem)
	store := &flakyStore{
		MemStore:    mem,
		failCommits: 1,
		err:         fmt.Errorf("%w: connection timed out", repository.ErrTransient),
	}
	svc := newTestEngine(store)

	resp, err := svc.ToggleLike(context.Background(), "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("toggle through a one-off storage fault: %v", err)
	}
	if resp.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one fault then success)", resp.Attempts)
	}
	if ev := storedEvent(t, mem, "u1"); ev == nil || !ev.IsActive {
		t.Error("retried toggle never landed")
	}
}

func TestMutate_RetriesTransientReadFault(t *testing.T) {
	mem := repository.NewMemStore()
	seedLabelPost(mem)
	store := &flakyStore{
		MemStore: mem,
		failGets: 1,
		err:      context.DeadlineExceeded,
	}
	svc := newTestEngine(store)

	resp, err := svc.ToggleLike(context.Background(), "p1", "a1", "insightful", "u1")
	if err != nil {
		t.Fatalf("toggle through a one-off read fault: %v", err)
	}
	if resp.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", resp.Attempts)
	}
}

func TestMutate_SustainedTransientFaultsBecomeContention(t *testing.T) {
	mem := repository.NewMemStore()
	seedLabelPost(mem)
	store := &flakyStore{
		MemStore:    mem,
		failCommits: 100,
		err:         fmt.Errorf("%w: connection timed out", repository.ErrTransient),
	}
	svc := newTestEngine(store)

	_, err := svc.ToggleLike(context.Background(), "p1", "a1", "insightful", "u1")
	if !errors.Is(err, ErrContention) {
		t.Fatalf("toggle under sustained storage faults = %v, want ErrContention", err)
	}
	if ev := storedEvent(t, mem, "u1"); ev != nil {
		t.Error("exhausted retries still committed an event")
	}
}

func TestMutate_FinalErrorsAreNotRetried(t *testing.T) {
	mem := repository.NewMemStore()
	seedLabelPost(mem)
	store := &flakyStore{
		MemStore:    mem,
		failCommits: 1,
		err:         errors.New("relation posts does not exist"),
	}
	svc := newTestEngine(store)

	_, err := svc.ToggleLike(context.Background(), "p1", "a1", "insightful", "u1")
	if err == nil || errors.Is(err, ErrContention) {
		t.Fatalf("non-transient fault = %v, want the raw error surfaced once", err)
	}
	if store.failCommits != 0 {
		t.Error("engine never reached the failing commit")
	}
	if ev := storedEvent(t, mem, "u1"); ev != nil {
		t.Error("failed commit left a committed event")
	}
}

func TestGetCrispness_ComputedAtReadTime(t *testing.T) {
	// The stored crispness is a stale cache; reads must recompute from the
	// history.
	store := repository.NewMemStore()
	liked := time.Now().UnixMilli() - 10*dayMillis
	store.SeedPost(&model.Post{
		PostID: "p1",
		Answers: []model.Answer{
			{
				AnswerID: "a1",
				Labels: []model.Label{
					{
						Name:      "insightful",
						Crispness: 100.0, // stale stored value
						LikeHistory: []model.LikeEvent{
							{UserID: "u1", OriginalTimestamp: liked, LastUpdatedAt: liked, IsActive: true, Value: 1},
						},
					},
				},
			},
		},
	})
	svc := newTestEngine(store)

	resp, _, err := svc.GetCrispness(context.Background(), "p1", "a1", "insightful")
	if err != nil {
		t.Fatalf("get crispness: %v", err)
	}
	if resp.Crispness != 0.0 {
		t.Errorf("read-time crispness = %.2f, want 0.00 (stored cache ignored)", resp.Crispness)
	}
}
