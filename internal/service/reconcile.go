package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LeventeLantos/delivery-tracker/internal/channel"
	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// Apply merges a provider-reported status into local state. A success report
// removes any pending retry, even one that is already due. A failure report
// queues a retry unless the reason is terminal or retries are used up.
func (t *Tracker) Apply(ctx context.Context, messageID, reportedStatus, reason string) (model.DeliveryRecord, error) {
	status, err := model.ParseStatus(reportedStatus)
	if err != nil {
		return model.DeliveryRecord{}, err
	}

	unlock := t.locks.Lock(messageID)
	defer unlock()

	cur, err := t.records.Get(ctx, messageID)
	if err != nil {
		return cur, err
	}
	if cur.Status == status && status != model.StatusFailed {
		return cur, nil
	}

	if status == model.StatusFailed {
		rec, err := t.failLocked(ctx, messageID, reason, !channel.IsTerminal(reason))
		if err != nil {
			return rec, t.logRejected(rec, status, err)
		}
		slog.Info("webhook applied", "message_id", messageID, "status", rec.Status, "retry_count", rec.RetryCount, "error", reason)
		return rec, nil
	}

	now := t.now()
	rec, err := t.records.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		return r.Advance(status, reason, now)
	})
	if err != nil {
		return rec, t.logRejected(rec, status, err)
	}
	// Only failed records hold a queue entry.
	if err := t.queue.Remove(ctx, messageID); err != nil {
		return rec, fmt.Errorf("remove retry entry: %w", err)
	}

	slog.Info("webhook applied", "message_id", messageID, "status", rec.Status, "retry_count", rec.RetryCount)
	return rec, nil
}

func (t *Tracker) logRejected(rec model.DeliveryRecord, reported model.Status, err error) error {
	slog.Error("webhook status rejected",
		"message_id", rec.MessageID,
		"status", rec.Status,
		"reported", reported,
		"err", err,
	)
	return err
}
