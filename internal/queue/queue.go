// Package queue holds messages awaiting a scheduled delivery re-attempt.
package queue

import (
	"context"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// RetryQueue is keyed by message id. Put replaces any existing entry.
type RetryQueue interface {
	Put(ctx context.Context, e model.RetryEntry) error
	Get(ctx context.Context, messageID string) (model.RetryEntry, bool, error)
	Remove(ctx context.Context, messageID string) error
	// Due returns up to limit entries with NextRetryAt <= now, earliest first.
	Due(ctx context.Context, now time.Time, limit int) ([]model.RetryEntry, error)
	Len(ctx context.Context) (int, error)
}
