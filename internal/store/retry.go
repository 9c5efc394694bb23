package store

import (
	"context"
	"errors"
	"time"
)

// RetryReads wraps a Store so that read operations retry a bounded number
// of times on ErrUnavailable with exponential backoff. Writes are passed
// through untouched: retrying a non-idempotent write risks duplicate side
// effects, so those surface the failure immediately.
type RetryReads struct {
	Store
	Attempts int
	Backoff  time.Duration
}

func WithReadRetries(s Store, attempts int, backoff time.Duration) *RetryReads {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &RetryReads{Store: s, Attempts: attempts, Backoff: backoff}
}

func (r *RetryReads) retry(ctx context.Context, op func() error) error {
	var err error
	delay := r.Backoff
	for i := 0; i < r.Attempts; i++ {
		err = op()
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (r *RetryReads) Get(ctx context.Context, rtype, id string) (Record, error) {
	var rec Record
	err := r.retry(ctx, func() error {
		var e error
		rec, e = r.Store.Get(ctx, rtype, id)
		return e
	})
	return rec, err
}

func (r *RetryReads) QueryByOwner(ctx context.Context, rtype, ownerID string) ([]Record, error) {
	var recs []Record
	err := r.retry(ctx, func() error {
		var e error
		recs, e = r.Store.QueryByOwner(ctx, rtype, ownerID)
		return e
	})
	return recs, err
}

func (r *RetryReads) QueryAll(ctx context.Context, rtype string, limit int) ([]Record, error) {
	var recs []Record
	err := r.retry(ctx, func() error {
		var e error
		recs, e = r.Store.QueryAll(ctx, rtype, limit)
		return e
	})
	return recs, err
}
