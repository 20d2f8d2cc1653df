package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/totemic/totemic-go/internal/model"
	"github.com/totemic/totemic-go/internal/repository"
)

// RewriteStore is the slice of the repository the worker needs: post loads,
// the quiet score-rewrite commit, and the sweep listing.
type RewriteStore interface {
	GetPost(ctx context.Context, postID string) (*model.Post, uint64, error)
	Rewrite(ctx context.Context, post *model.Post, version uint64) error
	RecentPostIDs(ctx context.Context, since time.Time) ([]string, error)
}

// CrispWorker keeps the *stored* crispness values from going stale. It
// listens for PostgreSQL NOTIFY on the 'like_changes' channel and batches
// rewrites, and it runs a periodic re-decay sweep over recently touched
// posts, since stored scores drift downward with time even without writes.
//
// Read paths recompute crispness from the ledger and stay correct without
// this worker; everything here is an optimization for consumers of the raw
// stored documents.
type CrispWorker struct {
	pool  *pgxpool.Pool
	store RewriteStore
	decay *DecayService
	cache *CacheService

	batchWindow   time.Duration
	sweepInterval time.Duration

	// recalcSeconds observes per-post rewrite durations. Optional.
	recalcSeconds prometheus.Observer

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewCrispWorker(pool *pgxpool.Pool, store RewriteStore, decay *DecayService, cache *CacheService, batchWindow, sweepInterval time.Duration) *CrispWorker {
	return &CrispWorker{
		pool:          pool,
		store:         store,
		decay:         decay,
		cache:         cache,
		batchWindow:   batchWindow,
		sweepInterval: sweepInterval,
		pending:       make(map[string]struct{}),
	}
}

// SetRecalcObserver wires the rewrite-duration histogram.
func (w *CrispWorker) SetRecalcObserver(o prometheus.Observer) {
	w.recalcSeconds = o
}

// Start runs the listen loop until the context is cancelled, reconnecting
// on errors.
func (w *CrispWorker) Start(ctx context.Context) {
	log.Printf("crisp-worker: starting (batch window=%s, sweep interval=%s)", w.batchWindow, w.sweepInterval)

	go w.sweepLoop(ctx)

	for {
		if err := w.listenLoop(ctx); err != nil {
			if ctx.Err() != nil {
				log.Println("crisp-worker: stopping (context cancelled)")
				return
			}
			log.Printf("crisp-worker: listen error, reconnecting in 5s: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				log.Println("crisp-worker: stopping (context cancelled)")
				return
			}
		}
	}
}

// listenLoop acquires a dedicated connection, LISTENs on like_changes, and
// collects notified post IDs for the batched flush.
func (w *CrispWorker) listenLoop(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN like_changes"); err != nil {
		return err
	}
	log.Println("crisp-worker: listening on like_changes")

	flushCtx, flushCancel := context.WithCancel(ctx)
	defer flushCancel()
	go w.flushLoop(flushCtx)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		postID := notification.Payload
		if postID == "" {
			continue
		}

		w.mu.Lock()
		w.pending[postID] = struct{}{}
		w.mu.Unlock()
	}
}

// flushLoop periodically drains the pending set.
func (w *CrispWorker) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(w.batchWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush(ctx)
		case <-ctx.Done():
			// Final flush before exit
			w.flush(context.Background())
			return
		}
	}
}

func (w *CrispWorker) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	rewritten := 0
	for postID := range batch {
		if w.rewritePost(ctx, postID) {
			rewritten++
		}
	}

	if rewritten > 0 {
		log.Printf("crisp-worker: batch complete, %d of %d posts rewritten", rewritten, len(batch))
	}
}

// sweepLoop re-decays stored scores for posts touched in the last week.
func (w *CrispWorker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *CrispWorker) sweep(ctx context.Context) {
	since := time.Now().Add(-time.Duration(WeekMillis) * time.Millisecond)
	ids, err := w.store.RecentPostIDs(ctx, since)
	if err != nil {
		log.Printf("crisp-worker: sweep query error: %v", err)
		return
	}

	rewritten := 0
	for _, id := range ids {
		if w.rewritePost(ctx, id) {
			rewritten++
		}
	}
	log.Printf("crisp-worker: sweep complete, %d of %d posts rewritten", rewritten, len(ids))
}

// rewritePost recomputes every stored crispness in a post and commits once
// through the quiet rewrite path: no change notification, no updated_at
// bump, since the ledger did not change and a worker that notified itself
// would chase its own writes forever. A conflicting commit is skipped, not
// retried: whoever beat us to it wrote fresher state than we were about to.
func (w *CrispWorker) rewritePost(ctx context.Context, postID string) bool {
	start := time.Now()

	post, version, err := w.store.GetPost(ctx, postID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("crisp-worker: load error for %s: %v", postID, err)
		}
		return false
	}

	now := time.Now().UnixMilli()
	changed := false
	for i := range post.Answers {
		a := &post.Answers[i]
		for j := range a.Labels {
			l := &a.Labels[j]
			fresh := w.decay.LabelCrispness(l, now)
			if fresh != l.Crispness {
				l.Crispness = fresh
				changed = true
			}
		}
	}
	if !changed {
		return false
	}

	if err := w.store.Rewrite(ctx, post, version); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			log.Printf("crisp-worker: commit error for %s: %v", postID, err)
		}
		return false
	}

	w.cache.InvalidatePost(ctx, postID)

	if w.recalcSeconds != nil {
		w.recalcSeconds.Observe(time.Since(start).Seconds())
	}
	return true
}
