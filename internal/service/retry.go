package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
	"github.com/LeventeLantos/delivery-tracker/internal/repo"
)

const (
	reasonInterrupted = "delivery interrupted before an outcome was recorded"
	reasonStale       = "no delivery confirmation received"
)

// SweepReport counts what one sweep did. Interrupted retries were cut short
// by shutdown and put back without using up a retry.
type SweepReport struct {
	Due         int `json:"due"`
	Retried     int `json:"retried"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Abandoned   int `json:"abandoned"`
	Skipped     int `json:"skipped"`
	Interrupted int `json:"interrupted"`
	Dispatched  int `json:"dispatched"`
	Expired     int `json:"expired"`
	Errors      int `json:"errors"`
}

func (r SweepReport) idle() bool {
	return r.Due == 0 && r.Dispatched == 0 && r.Expired == 0 && r.Errors == 0 && r.Interrupted == 0
}

type retryResult int

const (
	resultSkipped retryResult = iota
	resultSucceeded
	resultFailed
	resultAbandoned
	resultInterrupted
	resultClaimed
)

// Sweep is the scheduler tick body.
func (t *Tracker) Sweep(ctx context.Context) {
	report, err := t.RunSweep(ctx)
	if err != nil {
		slog.Error("retry sweep failed", "err", err)
		return
	}
	if report.idle() {
		return
	}
	slog.Info("retry sweep completed",
		"due", report.Due,
		"retried", report.Retried,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"abandoned", report.Abandoned,
		"skipped", report.Skipped,
		"interrupted", report.Interrupted,
		"dispatched", report.Dispatched,
		"expired", report.Expired,
		"errors", report.Errors,
	)
}

// RunSweep retries every due queue entry, dispatches scheduled messages
// whose time has come and expires records stuck in sending.
func (t *Tracker) RunSweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := t.now()

	entries, err := t.queue.Due(ctx, now, t.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("load due entries: %w", err)
	}
	report.Due = len(entries)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(t.opts.Concurrency)
	for _, e := range entries {
		g.Go(func() error {
			res, err := t.retry(ctx, e.MessageID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				slog.Error("retry failed", "message_id", e.MessageID, "err", err)
				return nil
			}
			switch res {
			case resultSkipped:
				report.Skipped++
			case resultSucceeded:
				report.Retried++
				report.Succeeded++
			case resultFailed:
				report.Retried++
				report.Failed++
			case resultAbandoned:
				report.Abandoned++
			case resultInterrupted:
				report.Interrupted++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	dispatched, err := t.dispatchScheduled(ctx, now)
	report.Dispatched = dispatched
	if err != nil {
		return report, err
	}

	expired, err := t.expireStale(ctx, now)
	report.Expired = expired
	if err != nil {
		return report, err
	}
	return report, nil
}

func (t *Tracker) retry(ctx context.Context, messageID string) (retryResult, error) {
	if !t.claim(messageID) {
		return resultSkipped, nil
	}
	defer t.release(messageID)

	prev, res, err := t.claimRetry(ctx, messageID)
	if err != nil || res != resultClaimed {
		return res, err
	}

	out, ok := t.attempt(ctx, prev.Message)
	if !ok {
		if _, err := t.restore(ctx, messageID, prev.FailureCount); err != nil {
			return resultSkipped, err
		}
		return resultInterrupted, nil
	}

	rec, err := t.settle(ctx, prev.Message, out)
	if err != nil {
		return resultSkipped, err
	}
	switch {
	case rec.Status == model.StatusAbandoned:
		return resultAbandoned, nil
	case rec.Status == model.StatusFailed:
		return resultFailed, nil
	default:
		return resultSucceeded, nil
	}
}

// claimRetry bumps the failure count, pushes nextRetryAt out by the backoff
// and moves the record to sending. On resultClaimed the caller goes on to
// attempt delivery with the entry as it was before the claim.
func (t *Tracker) claimRetry(ctx context.Context, messageID string) (model.RetryEntry, retryResult, error) {
	unlock := t.locks.Lock(messageID)
	defer unlock()

	now := t.now()
	e, ok, err := t.queue.Get(ctx, messageID)
	if err != nil {
		return model.RetryEntry{}, resultSkipped, fmt.Errorf("load retry entry: %w", err)
	}
	if !ok || e.NextRetryAt.After(now) {
		return model.RetryEntry{}, resultSkipped, nil
	}

	rec, err := t.records.Get(ctx, messageID)
	if errors.Is(err, model.ErrRecordNotFound) {
		return model.RetryEntry{}, resultSkipped, t.queue.Remove(ctx, messageID)
	}
	if err != nil {
		return model.RetryEntry{}, resultSkipped, err
	}
	if rec.Status != model.StatusFailed {
		slog.Warn("dropping retry entry for record that is no longer failed", "message_id", messageID, "status", rec.Status)
		return model.RetryEntry{}, resultSkipped, t.queue.Remove(ctx, messageID)
	}

	if e.FailureCount >= rec.MaxRetries {
		rec, err = t.records.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
			return r.Transition(model.StatusAbandoned, "", now)
		})
		if err != nil {
			return model.RetryEntry{}, resultSkipped, err
		}
		if err := t.queue.Remove(ctx, messageID); err != nil {
			return model.RetryEntry{}, resultSkipped, fmt.Errorf("remove retry entry: %w", err)
		}
		slog.Warn("delivery abandoned", "message_id", messageID, "retry_count", rec.RetryCount, "error", rec.LastError)
		return model.RetryEntry{}, resultAbandoned, nil
	}

	prev := e
	e.FailureCount++
	e.NextRetryAt = now.Add(t.opts.Backoff.Delay(e.FailureCount))

	if _, err := t.records.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		if err := r.Transition(model.StatusSending, "", now); err != nil {
			return err
		}
		r.RetryCount = e.FailureCount
		return nil
	}); err != nil {
		return model.RetryEntry{}, resultSkipped, err
	}
	if err := t.queue.Put(ctx, e); err != nil {
		return model.RetryEntry{}, resultSkipped, fmt.Errorf("queue retry: %w", err)
	}

	slog.Info("retrying delivery", "message_id", messageID, "retry_count", e.FailureCount)
	return prev, resultClaimed, nil
}

func (t *Tracker) dispatchScheduled(ctx context.Context, now time.Time) (int, error) {
	recs, err := t.records.List(ctx, repo.RecordFilter{Statuses: []model.Status{model.StatusQueued}})
	if err != nil {
		return 0, fmt.Errorf("list queued records: %w", err)
	}

	n := 0
	for _, rec := range recs {
		if n >= t.opts.BatchSize || ctx.Err() != nil {
			break
		}
		m, err := t.messages.Get(ctx, rec.MessageID)
		if err != nil {
			slog.Error("scheduled message missing", "message_id", rec.MessageID, "err", err)
			continue
		}
		if !m.Due(now) {
			continue
		}
		if _, err := t.dispatch(ctx, m); err != nil {
			slog.Error("scheduled dispatch failed", "message_id", m.ID, "err", err)
			continue
		}
		n++
	}
	return n, nil
}

func (t *Tracker) expireStale(ctx context.Context, now time.Time) (int, error) {
	if t.opts.StaleAfter <= 0 {
		return 0, nil
	}
	recs, err := t.records.List(ctx, repo.RecordFilter{Statuses: []model.Status{model.StatusSending}})
	if err != nil {
		return 0, fmt.Errorf("list sending records: %w", err)
	}

	n := 0
	for _, rec := range recs {
		if now.Sub(rec.UpdatedAt) < t.opts.StaleAfter {
			continue
		}
		ok, err := t.failSending(ctx, rec.MessageID, reasonStale, func(r model.DeliveryRecord) bool {
			return now.Sub(r.UpdatedAt) >= t.opts.StaleAfter
		})
		if err != nil {
			slog.Error("expiring stale delivery failed", "message_id", rec.MessageID, "err", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// failSending fails a sending record that no goroutine is attempting, if
// cond still holds under the key lock.
func (t *Tracker) failSending(ctx context.Context, messageID, reason string, cond func(model.DeliveryRecord) bool) (bool, error) {
	if !t.claim(messageID) {
		return false, nil
	}
	defer t.release(messageID)

	unlock := t.locks.Lock(messageID)
	defer unlock()

	cur, err := t.records.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if cur.Status != model.StatusSending || !cond(cur) {
		return false, nil
	}
	if _, err := t.failLocked(ctx, messageID, reason, true); err != nil {
		return false, err
	}
	return true, nil
}

// Recover re-derives retry entries from delivery records. It is run once on
// boot, before the scheduler starts, so a restart loses no pending retries.
func (t *Tracker) Recover(ctx context.Context) (int, error) {
	recs, err := t.records.List(ctx, repo.RecordFilter{Statuses: []model.Status{model.StatusSending, model.StatusFailed}})
	if err != nil {
		return 0, fmt.Errorf("list unfinished records: %w", err)
	}

	n := 0
	for _, rec := range recs {
		var (
			ok  bool
			err error
		)
		switch rec.Status {
		case model.StatusSending:
			ok, err = t.resume(ctx, rec.MessageID)
		case model.StatusFailed:
			ok, err = t.requeue(ctx, rec.MessageID)
		}
		if err != nil {
			return n, fmt.Errorf("recover %s: %w", rec.MessageID, err)
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		slog.Info("recovered pending deliveries", "count", n)
	}
	return n, nil
}

// resume requeues a record left in sending by a crash. A sending record with
// retries counted was claimed by the sweep, so that claim is undone and the
// lost retry runs again.
func (t *Tracker) resume(ctx context.Context, messageID string) (bool, error) {
	if !t.claim(messageID) {
		return false, nil
	}
	defer t.release(messageID)

	unlock := t.locks.Lock(messageID)
	defer unlock()

	cur, err := t.records.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	prev := cur.RetryCount
	if prev > 0 {
		prev--
	}
	_, ok, err := t.restoreLocked(ctx, messageID, prev)
	return ok, err
}

func (t *Tracker) requeue(ctx context.Context, messageID string) (bool, error) {
	unlock := t.locks.Lock(messageID)
	defer unlock()

	if _, ok, err := t.queue.Get(ctx, messageID); err != nil || ok {
		return false, err
	}
	cur, err := t.records.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if cur.Status != model.StatusFailed {
		return false, nil
	}
	if _, err := t.failLocked(ctx, messageID, "", true); err != nil {
		return false, err
	}
	return true, nil
}
