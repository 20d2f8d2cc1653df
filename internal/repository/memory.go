package repository

import (
	"context"
	"sync"
	"time"

	"github.com/totemic/totemic-go/internal/model"
)

// MemStore is an in-memory Store with the same compare-and-swap semantics as
// PgStore. It backs the engine's unit tests, including contention tests via
// injected commit conflicts.
type MemStore struct {
	mu      sync.Mutex
	posts   map[string]*memPost
	quotas  map[string]model.RefreshQuota
	updated map[string]time.Time

	// failCommits forces the next n Commit calls to report ErrConflict
	// without writing, simulating a faster concurrent writer.
	failCommits int
}

type memPost struct {
	doc     []byte
	version uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		posts:   make(map[string]*memPost),
		quotas:  make(map[string]model.RefreshQuota),
		updated: make(map[string]time.Time),
	}
}

// SeedPost installs a post at version 1, bypassing CAS. Test setup only.
func (s *MemStore) SeedPost(p *model.Post) {
	doc, err := EncodePostDoc(p)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.PostID] = &memPost{doc: doc, version: 1}
	s.updated[p.PostID] = time.Now()
}

// SeedQuota installs a quota record at version 1. Test setup only.
func (s *MemStore) SeedQuota(q model.RefreshQuota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.Version = 1
	s.quotas[q.UserID] = q
}

// FailNextCommits makes the next n commits conflict.
func (s *MemStore) FailNextCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

func (s *MemStore) GetPost(ctx context.Context, postID string) (*model.Post, uint64, error) {
	s.mu.Lock()
	rec, ok := s.posts[postID]
	s.mu.Unlock()
	if !ok {
		return nil, 0, ErrNotFound
	}

	// Decode a fresh copy so callers never share mutable state. This also
	// exercises the same normalization boundary as the Postgres store.
	post, err := DecodePostDoc(postID, rec.doc)
	if err != nil {
		return nil, 0, err
	}
	return post, rec.version, nil
}

func (s *MemStore) GetQuota(ctx context.Context, userID string) (*model.RefreshQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (s *MemStore) Commit(ctx context.Context, post *model.Post, version uint64, quota *model.RefreshQuota) error {
	doc, err := EncodePostDoc(post)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommits > 0 {
		s.failCommits--
		return ErrConflict
	}

	rec, ok := s.posts[post.PostID]
	switch {
	case version == 0:
		if ok {
			return ErrConflict
		}
	case !ok || rec.version != version:
		return ErrConflict
	}

	if quota != nil {
		existing, ok := s.quotas[quota.UserID]
		switch {
		case quota.Version == 0:
			if ok {
				return ErrConflict
			}
		case !ok || existing.Version != quota.Version:
			return ErrConflict
		}
	}

	// Both checks passed; apply the writes together.
	if version == 0 {
		s.posts[post.PostID] = &memPost{doc: doc, version: 1}
	} else {
		rec.doc = doc
		rec.version = version + 1
	}
	s.updated[post.PostID] = time.Now()

	if quota != nil {
		q := *quota
		q.Version = quota.Version + 1
		s.quotas[quota.UserID] = q
	}
	return nil
}

// Rewrite applies a stored-score recomputation under the same CAS guard as
// Commit but, mirroring PgStore, leaves the change timestamp alone: a score
// rewrite is not a ledger change.
func (s *MemStore) Rewrite(ctx context.Context, post *model.Post, version uint64) error {
	doc, err := EncodePostDoc(post)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.posts[post.PostID]
	if !ok || rec.version != version {
		return ErrConflict
	}
	rec.doc = doc
	rec.version = version + 1
	return nil
}

// RecentPostIDs lists posts whose ledger changed after the given time.
func (s *MemStore) RecentPostIDs(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, at := range s.updated {
		if at.After(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// UpdatedAt reports a post's last ledger-change time. Test inspection only.
func (s *MemStore) UpdatedAt(postID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated[postID]
}

// Stats implements StatsSource over the in-memory records.
func (s *MemStore) Stats(ctx context.Context) (*model.StatsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated24h := 0
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, at := range s.updated {
		if at.After(cutoff) {
			updated24h++
		}
	}
	return &model.StatsResponse{
		TotalPosts:      len(s.posts),
		TotalUsers:      len(s.quotas),
		PostsUpdated24h: updated24h,
	}, nil
}
