// Package service tracks outbound message delivery: the first attempt made
// by Send, the retry sweep, and provider webhook reconciliation.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-tracker/internal/channel"
	"github.com/LeventeLantos/delivery-tracker/internal/model"
	"github.com/LeventeLantos/delivery-tracker/internal/queue"
	"github.com/LeventeLantos/delivery-tracker/internal/repo"
)

type Options struct {
	// MaxRetries is the number of re-attempts after the first failure.
	// Zero abandons a message on its first failure.
	MaxRetries     int
	Backoff        Backoff
	AttemptTimeout time.Duration
	BatchSize      int
	Concurrency    int
	// StaleAfter bounds how long a record may sit in sending without a
	// confirmation before the sweep presumes the attempt lost. Zero disables it.
	StaleAfter time.Duration
	ContentMax int
	Now        func() time.Time
	NewID      func() string
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:     3,
		Backoff:        DefaultBackoff(),
		AttemptTimeout: 10 * time.Second,
		BatchSize:      100,
		Concurrency:    4,
		StaleAfter:     10 * time.Minute,
		ContentMax:     model.MaxTextLength,
	}
}

type Tracker struct {
	messages repo.MessageRepository
	records  repo.RecordStore
	queue    queue.RetryQueue
	adapter  channel.Adapter
	opts     Options

	// locks serialises record and queue changes for one message id.
	locks *repo.KeyLock
	// inflight holds ids with an adapter call in progress.
	inflight sync.Map
}

func New(messages repo.MessageRepository, records repo.RecordStore, q queue.RetryQueue, adapter channel.Adapter, opts Options) *Tracker {
	def := DefaultOptions()
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff.Initial = def.Backoff.Initial
	}
	if opts.Backoff.Multiplier <= 0 {
		opts.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = def.AttemptTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ContentMax <= 0 {
		opts.ContentMax = def.ContentMax
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Tracker{
		messages: messages,
		records:  records,
		queue:    q,
		adapter:  adapter,
		opts:     opts,
		locks:    repo.NewKeyLock(0),
	}
}

type SendInput struct {
	Text         string             `json:"text"`
	Channel      string             `json:"channel"`
	Type         string             `json:"type"`
	SenderName   string             `json:"senderName"`
	Recipient    string             `json:"recipient"`
	Attachments  []model.Attachment `json:"attachments,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
	ScheduledFor *time.Time         `json:"scheduledFor,omitempty"`
}

type SendResult struct {
	Message  model.Message  `json:"message"`
	Delivery model.Delivery `json:"delivery"`
}

// Send stores a message with its delivery record and makes the first
// attempt. Delivery failures are reported in the result, not as errors.
func (t *Tracker) Send(ctx context.Context, conversationID string, in SendInput) (SendResult, error) {
	m, err := t.buildMessage(conversationID, in)
	if err != nil {
		return SendResult{}, err
	}

	if err := t.messages.Save(ctx, m); err != nil {
		return SendResult{}, fmt.Errorf("save message: %w", err)
	}
	rec, err := t.records.Create(ctx, m, t.opts.MaxRetries)
	if err != nil {
		return SendResult{}, fmt.Errorf("create delivery record: %w", err)
	}

	if !m.Due(t.now()) {
		slog.Info("message scheduled", "message_id", m.ID, "scheduled_for", m.ScheduledFor)
		return SendResult{Message: m, Delivery: rec.Summary()}, nil
	}

	rec, err = t.dispatch(ctx, m)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Message: m, Delivery: rec.Summary()}, nil
}

func (t *Tracker) buildMessage(conversationID string, in SendInput) (model.Message, error) {
	rawChannel := in.Channel
	if strings.TrimSpace(rawChannel) == "" {
		rawChannel = string(model.ChannelSMS)
	}
	ch, err := model.ParseChannel(rawChannel)
	if err != nil {
		return model.Message{}, err
	}

	rawType := in.Type
	if strings.TrimSpace(rawType) == "" {
		rawType = string(model.TypeManual)
	}
	typ, err := model.ParseMessageType(rawType)
	if err != nil {
		return model.Message{}, err
	}

	now := t.now()
	m := model.Message{
		ID:             t.opts.NewID(),
		ConversationID: strings.TrimSpace(conversationID),
		SenderRole:     model.RoleFor(typ),
		SenderName:     strings.TrimSpace(in.SenderName),
		Recipient:      strings.TrimSpace(in.Recipient),
		Text:           in.Text,
		Channel:        ch,
		Type:           typ,
		Attachments:    in.Attachments,
		Metadata:       in.Metadata,
		CreatedAt:      now,
	}
	if in.ScheduledFor != nil {
		at := in.ScheduledFor.UTC()
		m.ScheduledFor = &at
	}
	if err := m.Validate(t.opts.ContentMax); err != nil {
		return model.Message{}, err
	}
	return m.Clone(), nil
}

func (t *Tracker) Get(ctx context.Context, messageID string) (model.DeliveryRecord, error) {
	return t.records.Get(ctx, messageID)
}

// dispatch makes the first attempt for a queued record.
func (t *Tracker) dispatch(ctx context.Context, m model.Message) (model.DeliveryRecord, error) {
	if !t.claim(m.ID) {
		return t.records.Get(ctx, m.ID)
	}
	defer t.release(m.ID)

	rec, started, err := t.start(ctx, m.ID)
	if err != nil || !started {
		return rec, err
	}
	out, ok := t.attempt(ctx, m)
	if !ok {
		return t.restore(ctx, m.ID, rec.RetryCount)
	}
	return t.settle(ctx, m, out)
}

func (t *Tracker) start(ctx context.Context, messageID string) (model.DeliveryRecord, bool, error) {
	unlock := t.locks.Lock(messageID)
	defer unlock()

	now := t.now()
	started := false
	rec, err := t.records.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		if r.Status != model.StatusQueued {
			return nil
		}
		started = true
		return r.Transition(model.StatusSending, "", now)
	})
	return rec, started, err
}

// attempt calls the adapter with a deadline. A timeout or panic becomes a
// retryable failure. ok is false when ctx itself was cancelled: the attempt
// was cut short and tells nothing about the message.
func (t *Tracker) attempt(ctx context.Context, m model.Message) (channel.Outcome, bool) {
	actx, cancel := context.WithTimeout(ctx, t.opts.AttemptTimeout)
	defer cancel()

	done := make(chan channel.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("channel adapter panic recovered", "message_id", m.ID, "panic", r)
				done <- channel.RetryableFailure(fmt.Sprintf("adapter panic: %v", r))
			}
		}()
		done <- t.adapter.Attempt(actx, m)
	}()

	select {
	case out := <-done:
		out = channel.Normalize(out)
		if out.Failed() && ctx.Err() != nil {
			return out, false
		}
		return out, true
	case <-actx.Done():
		if ctx.Err() != nil {
			return channel.Outcome{}, false
		}
		return channel.RetryableFailure("delivery attempt timed out"), true
	}
}

// settle records the outcome of an attempt. If the record left sending while
// the adapter was busy (a webhook got there first) the outcome is dropped.
func (t *Tracker) settle(ctx context.Context, m model.Message, out channel.Outcome) (model.DeliveryRecord, error) {
	ctx = context.WithoutCancel(ctx)

	unlock := t.locks.Lock(m.ID)
	defer unlock()

	cur, err := t.records.Get(ctx, m.ID)
	if err != nil {
		return cur, err
	}
	if cur.Status != model.StatusSending {
		slog.Info("attempt outcome dropped", "message_id", m.ID, "status", cur.Status, "outcome", out.Status)
		return cur, nil
	}

	if out.Failed() {
		slog.Info("delivery attempt failed",
			"message_id", m.ID,
			"retry_count", cur.RetryCount,
			"retryable", out.Retryable,
			"error", out.Error,
		)
		return t.failLocked(ctx, m.ID, out.Error, out.Retryable)
	}

	now := t.now()
	rec, err := t.records.Update(ctx, m.ID, func(r *model.DeliveryRecord) error {
		if out.ProviderRef != "" {
			r.ProviderRef = out.ProviderRef
		}
		if out.Status == model.StatusQueued {
			r.UpdatedAt = now
			return nil
		}
		return r.Advance(out.Status, "", now)
	})
	if err != nil {
		return rec, err
	}
	if err := t.queue.Remove(ctx, m.ID); err != nil {
		return rec, fmt.Errorf("remove retry entry: %w", err)
	}

	slog.Info("delivery attempt succeeded", "message_id", m.ID, "status", rec.Status, "retry_count", rec.RetryCount)
	return rec, nil
}

// failLocked moves the record to failed, then queues a retry or abandons it
// when the failure is terminal or retries are used up. The caller holds the
// key lock for messageID.
func (t *Tracker) failLocked(ctx context.Context, messageID, reason string, retryable bool) (model.DeliveryRecord, error) {
	now := t.now()
	abandon := false
	rec, err := t.records.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		if r.Status == model.StatusFailed {
			if reason != "" {
				r.LastError = reason
			}
			r.UpdatedAt = now
		} else if err := r.Advance(model.StatusFailed, reason, now); err != nil {
			return err
		}
		abandon = !retryable || r.RetryCount >= r.MaxRetries
		if abandon {
			return r.Transition(model.StatusAbandoned, "", now)
		}
		return nil
	})
	if err != nil {
		return rec, err
	}

	if abandon {
		if err := t.queue.Remove(ctx, messageID); err != nil {
			return rec, fmt.Errorf("remove retry entry: %w", err)
		}
		slog.Warn("delivery abandoned",
			"message_id", messageID,
			"retry_count", rec.RetryCount,
			"error", rec.LastError,
		)
		return rec, nil
	}
	return rec, t.schedule(ctx, rec, now)
}

// restore puts back a record whose attempt was interrupted by shutdown. The
// record returns to failed with retryCount and its entry is due at once, so
// the interruption costs no retry.
func (t *Tracker) restore(ctx context.Context, messageID string, retryCount int) (model.DeliveryRecord, error) {
	ctx = context.WithoutCancel(ctx)

	unlock := t.locks.Lock(messageID)
	defer unlock()

	rec, _, err := t.restoreLocked(ctx, messageID, retryCount)
	return rec, err
}

func (t *Tracker) restoreLocked(ctx context.Context, messageID string, retryCount int) (model.DeliveryRecord, bool, error) {
	now := t.now()
	restored := false
	rec, err := t.records.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		if r.Status != model.StatusSending {
			return nil
		}
		if err := r.Transition(model.StatusFailed, reasonInterrupted, now); err != nil {
			return err
		}
		r.RetryCount = retryCount
		restored = true
		return nil
	})
	if err != nil || !restored {
		return rec, false, err
	}

	e, ok, err := t.queue.Get(ctx, messageID)
	if err != nil {
		return rec, false, fmt.Errorf("load retry entry: %w", err)
	}
	if ok {
		e.FailureCount = retryCount
		e.NextRetryAt = now
	} else {
		m, err := t.messages.Get(ctx, messageID)
		if err != nil {
			return rec, false, fmt.Errorf("load message for retry: %w", err)
		}
		e = model.NewRetryEntry(m, retryCount, rec.LastError, now)
	}
	if err := t.queue.Put(ctx, e); err != nil {
		return rec, false, fmt.Errorf("queue retry: %w", err)
	}

	slog.Warn("interrupted delivery requeued", "message_id", messageID, "retry_count", retryCount)
	return rec, true, nil
}

// schedule upserts the retry entry for a failed record.
func (t *Tracker) schedule(ctx context.Context, rec model.DeliveryRecord, now time.Time) error {
	next := now.Add(t.opts.Backoff.Delay(rec.RetryCount))

	e, ok, err := t.queue.Get(ctx, rec.MessageID)
	if err != nil {
		return fmt.Errorf("load retry entry: %w", err)
	}
	if ok {
		e.FailureCount = rec.RetryCount
		e.NextRetryAt = next
		if rec.LastError != "" {
			e.LastError = rec.LastError
		}
	} else {
		m, err := t.messages.Get(ctx, rec.MessageID)
		if err != nil {
			return fmt.Errorf("load message for retry: %w", err)
		}
		e = model.NewRetryEntry(m, rec.RetryCount, rec.LastError, next)
	}
	// A failure reported before the send time must not send early.
	if at := e.Message.ScheduledFor; at != nil && at.After(e.NextRetryAt) {
		e.NextRetryAt = *at
	}

	if err := t.queue.Put(ctx, e); err != nil {
		return fmt.Errorf("queue retry: %w", err)
	}
	slog.Info("retry scheduled",
		"message_id", rec.MessageID,
		"retry_count", rec.RetryCount,
		"next_retry_at", e.NextRetryAt,
	)
	return nil
}

func (t *Tracker) claim(messageID string) bool {
	_, loaded := t.inflight.LoadOrStore(messageID, struct{}{})
	return !loaded
}

func (t *Tracker) release(messageID string) {
	t.inflight.Delete(messageID)
}

func (t *Tracker) now() time.Time {
	return t.opts.Now()
}
