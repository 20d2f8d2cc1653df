package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"time"

	"github.com/totemic/totemic-go/internal/model"
	"github.com/totemic/totemic-go/internal/repository"
)

// EngagementService orchestrates every like mutation: toggle, restore and
// refresh. Each call is a single atomic read-modify-write of the owning post
// (plus the quota record a refresh spends), committed through the store's
// compare-and-swap and retried with backoff on conflict. No locks are held;
// readers are never blocked by writers.
type EngagementService struct {
	store repository.Store
	decay *DecayService
	quota *QuotaService
	cache *CacheService

	maxAttempts int
	backoffBase time.Duration
}

func NewEngagementService(store repository.Store, decay *DecayService, quota *QuotaService, cache *CacheService, maxAttempts int, backoffBase time.Duration) *EngagementService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoffBase <= 0 {
		backoffBase = 25 * time.Millisecond
	}
	return &EngagementService{
		store:       store,
		decay:       decay,
		quota:       quota,
		cache:       cache,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}
}

// ledgerOp applies one like-ledger mutation to the located label at the
// resolved now. It returns the quota record to commit in the same atomic
// scope, or nil when the operation is quota-free. Returning an error aborts
// the call before anything is committed.
type ledgerOp func(label *model.Label, now int64) (*model.RefreshQuota, error)

// ToggleLike moves a (label, user) pair through NoHistory → Active ⇄ Inactive.
// A toggle landing on a withdrawn like is not applied: the engine surfaces
// the restore-or-refresh choice via ErrChoiceRequired instead of silently
// reactivating with stale decay.
func (s *EngagementService) ToggleLike(ctx context.Context, postID, answerID, labelName, userID string) (*model.EngageResponse, error) {
	return s.mutate(ctx, postID, answerID, labelName, userID, func(label *model.Label, now int64) (*model.RefreshQuota, error) {
		ev := label.FindEvent(userID)
		switch {
		case ev == nil:
			label.AppendEvent(userID, now)
		case ev.IsActive:
			// Unlike. The timestamp stays: an inactive event stops scoring
			// no matter how fresh it is, and a later restore wants the
			// original decay clock.
			ev.IsActive = false
		default:
			return nil, fmt.Errorf("%w: label %q has a withdrawn like for this user", ErrChoiceRequired, label.Name)
		}
		return nil, nil
	})
}

// RestoreLike reactivates a withdrawn like keeping its stale LastUpdatedAt,
// so whatever decay accrued while it was inactive still applies. No quota
// cost.
func (s *EngagementService) RestoreLike(ctx context.Context, postID, answerID, labelName, userID string) (*model.EngageResponse, error) {
	return s.mutate(ctx, postID, answerID, labelName, userID, func(label *model.Label, now int64) (*model.RefreshQuota, error) {
		ev := label.FindEvent(userID)
		if ev == nil {
			return nil, fmt.Errorf("%w: no prior like on label %q to restore", ErrValidation, label.Name)
		}
		if ev.IsActive {
			return nil, fmt.Errorf("%w: like on label %q is already active", ErrValidation, label.Name)
		}
		ev.IsActive = true
		return nil, nil
	})
}

// RefreshLike reactivates an existing like with the decay clock reset to
// now, at the cost of one unit of the user's daily refresh quota. The quota
// decrement commits in the same atomic scope as the ledger write: a refresh
// is never charged for a like mutation that did not land.
func (s *EngagementService) RefreshLike(ctx context.Context, postID, answerID, labelName, userID string) (*model.EngageResponse, error) {
	return s.mutate(ctx, postID, answerID, labelName, userID, func(label *model.Label, now int64) (*model.RefreshQuota, error) {
		ev := label.FindEvent(userID)
		if ev == nil {
			return nil, fmt.Errorf("%w: no prior like on label %q to refresh", ErrValidation, label.Name)
		}

		q, err := s.loadQuota(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if err := s.quota.Consume(q, now); err != nil {
			return nil, err
		}

		ev.IsActive = true
		ev.LastUpdatedAt = now
		return q, nil
	})
}

func (s *EngagementService) loadQuota(ctx context.Context, userID string, now int64) (*model.RefreshQuota, error) {
	q, err := s.store.GetQuota(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.quota.NewQuota(userID, now), nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// mutate is the engine's transactional core: read the committed post, apply
// the ledger op, recompute the stored crispness, commit via compare-and-swap.
// On a conflict or a transient storage fault the whole cycle restarts from a
// fresh read, with exponential backoff and jitter between attempts, up to
// the configured cap.
func (s *EngagementService) mutate(ctx context.Context, postID, answerID, labelName, userID string, op ledgerOp) (*model.EngageResponse, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		// The server clock at mutation time; client timestamps are never
		// trusted.
		now := time.Now().UnixMilli()

		post, version, err := s.store.GetPost(ctx, postID)
		if err != nil {
			if retryable(err) {
				if attempt == s.maxAttempts {
					break
				}
				if err := s.backoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		answer, label := post.FindLabel(answerID, labelName)
		if answer == nil {
			return nil, fmt.Errorf("%w: answer %q on post %q", repository.ErrNotFound, answerID, postID)
		}
		if label == nil {
			return nil, fmt.Errorf("%w: label %q not attached to answer %q", ErrValidation, labelName, answer.AnswerID)
		}

		quota, err := op(label, now)
		if err != nil {
			return nil, err
		}

		label.Crispness = s.decay.LabelCrispness(label, now)

		if err := s.store.Commit(ctx, post, version, quota); err != nil {
			if retryable(err) {
				if attempt == s.maxAttempts {
					break
				}
				if err := s.backoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		s.cache.InvalidatePost(ctx, postID)

		ev := label.FindEvent(userID)
		return &model.EngageResponse{
			Success:   true,
			IsActive:  ev != nil && ev.IsActive,
			Crispness: label.Crispness,
			LikeCount: label.LikeCount(),
			Attempts:  attempt,
		}, nil
	}

	log.Printf("engage: giving up on post %s after %d attempts", postID, s.maxAttempts)
	return nil, ErrContention
}

// retryable reports whether a storage failure is worth another attempt:
// version conflicts and transient faults such as timeouts or dropped
// connections. Addressing errors and validation refusals are final.
func retryable(err error) bool {
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *EngagementService) backoff(ctx context.Context, attempt int) error {
	d := s.backoffBase << (attempt - 1)
	d += rand.N(d) // jitter to spread colliding writers apart

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetPost returns the full read-time view of a post. Every crispness value
// is recomputed from the live history at the response's ComputedAt; the
// stored values are only a cache and are ignored. The bool reports whether
// the document came from cache.
func (s *EngagementService) GetPost(ctx context.Context, postID string) (*model.PostResponse, bool, error) {
	post, cached, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UnixMilli()
	resp := &model.PostResponse{PostID: post.PostID, ComputedAt: now}
	for i := range post.Answers {
		a := &post.Answers[i]
		view := model.AnswerView{AnswerID: a.AnswerID}
		for j := range a.Labels {
			l := &a.Labels[j]
			view.Labels = append(view.Labels, model.LabelView{
				Name:      l.Name,
				Crispness: s.decay.LabelCrispness(l, now),
				LikeCount: l.LikeCount(),
			})
		}
		resp.Answers = append(resp.Answers, view)
	}
	return resp, cached, nil
}

// GetCrispness returns a single label's score and active like count at the
// read-time now.
func (s *EngagementService) GetCrispness(ctx context.Context, postID, answerID, labelName string) (*model.CrispnessResponse, bool, error) {
	post, cached, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, false, err
	}

	answer, label, err := locate(post, answerID, labelName)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UnixMilli()
	return &model.CrispnessResponse{
		PostID:     postID,
		AnswerID:   answer.AnswerID,
		Label:      label.Name,
		Crispness:  s.decay.LabelCrispness(label, now),
		LikeCount:  label.LikeCount(),
		ComputedAt: now,
	}, cached, nil
}

// LabelHistory returns the audit view of a label's ledger in insertion order.
func (s *EngagementService) LabelHistory(ctx context.Context, postID, answerID, labelName string) (*model.HistoryResponse, bool, error) {
	post, cached, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, false, err
	}

	answer, label, err := locate(post, answerID, labelName)
	if err != nil {
		return nil, false, err
	}

	return &model.HistoryResponse{
		PostID:   postID,
		AnswerID: answer.AnswerID,
		Label:    label.Name,
		History:  label.LikeHistory,
	}, cached, nil
}

func locate(post *model.Post, answerID, labelName string) (*model.Answer, *model.Label, error) {
	answer, label := post.FindLabel(answerID, labelName)
	if answer == nil {
		return nil, nil, fmt.Errorf("%w: answer %q on post %q", repository.ErrNotFound, answerID, post.PostID)
	}
	if label == nil {
		return nil, nil, fmt.Errorf("%w: label %q not attached to answer %q", ErrValidation, labelName, answer.AnswerID)
	}
	return answer, label, nil
}

// loadPost reads through the cache-aside layer.
func (s *EngagementService) loadPost(ctx context.Context, postID string) (*model.Post, bool, error) {
	if doc, err := s.cache.GetPost(ctx, postID); err == nil && doc != nil {
		post, err := repository.DecodePostDoc(postID, doc)
		if err == nil {
			return post, true, nil
		}
		// Poisoned cache entry; fall through to the store.
		s.cache.InvalidatePost(ctx, postID)
	}

	post, _, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, false, err
	}

	if doc, err := repository.EncodePostDoc(post); err == nil {
		if err := s.cache.SetPost(ctx, postID, doc); err != nil {
			log.Printf("engage: cache set error for %s: %v", postID, err)
		}
	}
	return post, false, nil
}
