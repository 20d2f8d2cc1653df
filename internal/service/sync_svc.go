package service

import (
	"context"
	"time"

	"github.com/totemic/totemic-go/internal/model"
	"github.com/totemic/totemic-go/internal/repository"
)

// Listing caps. Clients page by advancing `since` to the last SyncTimestamp.
const (
	deltaSyncLimit = 500
	fullSyncLimit  = 5000
)

// SyncService builds crispness snapshots for clients that mirror scores
// locally and re-decay them between fetches.
type SyncService struct {
	store *repository.PgStore
	decay *DecayService
}

func NewSyncService(store *repository.PgStore, decay *DecayService) *SyncService {
	return &SyncService{store: store, decay: decay}
}

// DeltaSync returns every post whose like state changed after the given
// time, with label crispness computed at response time.
func (s *SyncService) DeltaSync(ctx context.Context, since time.Time) (*model.SyncDeltaResponse, error) {
	rows, err := s.store.ChangedSince(ctx, since, deltaSyncLimit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entries := make([]model.SyncPostEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, s.entry(row, now))
	}

	return &model.SyncDeltaResponse{
		Posts:         entries,
		SyncTimestamp: now.UTC().Format(time.RFC3339),
	}, nil
}

// FullSync returns the complete snapshot for cache priming.
func (s *SyncService) FullSync(ctx context.Context) (*model.SyncFullResponse, error) {
	rows, err := s.store.AllPosts(ctx, fullSyncLimit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entries := make([]model.SyncPostEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, s.entry(row, now))
	}

	return &model.SyncFullResponse{
		Posts:       entries,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}, nil
}

func (s *SyncService) entry(row repository.PostRow, now time.Time) model.SyncPostEntry {
	nowMs := now.UnixMilli()
	labels := make(map[string]float64)
	for i := range row.Post.Answers {
		a := &row.Post.Answers[i]
		for j := range a.Labels {
			l := &a.Labels[j]
			labels[a.AnswerID+"/"+l.Name] = s.decay.LabelCrispness(l, nowMs)
		}
	}
	return model.SyncPostEntry{
		PostID:    row.Post.PostID,
		Labels:    labels,
		UpdatedAt: row.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
