package repository

import (
	"context"
	"errors"

	"github.com/totemic/totemic-go/internal/model"
)

var (
	// ErrNotFound means the requested record does not exist. Never retried.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means another writer committed between read and commit.
	// The engagement engine retries the whole read-modify-write cycle.
	ErrConflict = errors.New("version conflict")
	// ErrTransient marks a storage failure worth retrying: a timeout or a
	// dropped connection rather than a logical refusal. The engine puts
	// these through the same bounded-retry budget as conflicts.
	ErrTransient = errors.New("transient storage failure")
)

// Store is the record-store boundary the engagement engine runs against.
// It provides point reads and an atomic compare-and-swap commit; conflict
// handling is the caller's job. Version zero marks a record that has never
// been persisted — committing it inserts rather than updates.
type Store interface {
	// GetPost returns the post document and its committed version.
	GetPost(ctx context.Context, postID string) (*model.Post, uint64, error)

	// GetQuota returns the user's refresh-quota record, ErrNotFound if the
	// user has no profile yet.
	GetQuota(ctx context.Context, userID string) (*model.RefreshQuota, error)

	// Commit atomically persists the post when its committed version still
	// equals version and, when quota is non-nil, the quota record under the
	// same all-or-nothing scope. Returns ErrConflict when either check fails;
	// in that case nothing was written.
	Commit(ctx context.Context, post *model.Post, version uint64, quota *model.RefreshQuota) error
}

// StatsSource exposes aggregate platform counters.
type StatsSource interface {
	Stats(ctx context.Context) (*model.StatsResponse, error)
}
