package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/channel"
	"github.com/LeventeLantos/delivery-tracker/internal/model"
	"github.com/LeventeLantos/delivery-tracker/internal/queue"
	"github.com/LeventeLantos/delivery-tracker/internal/repo"
	"github.com/LeventeLantos/delivery-tracker/internal/service"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	tracker  *service.Tracker
	clock    *fakeClock
	messages *repo.MemoryMessageRepo
	records  *repo.MemoryRecordStore
	queue    *queue.MemoryQueue
}

func newHarness(t *testing.T, adapter channel.Adapter, opts ...func(*service.Options)) *harness {
	t.Helper()

	clock := &fakeClock{now: t0}
	h := &harness{
		clock:    clock,
		messages: repo.NewMemoryMessageRepo(),
		records:  repo.NewMemoryRecordStore().WithClock(clock.Now),
		queue:    queue.NewMemoryQueue(),
	}

	var seq atomic.Int64
	o := service.DefaultOptions()
	o.Now = clock.Now
	o.NewID = func() string { return fmt.Sprintf("msg-%d", seq.Add(1)) }
	for _, fn := range opts {
		fn(&o)
	}

	h.tracker = service.New(h.messages, h.records, h.queue, adapter, o)
	return h
}

func (h *harness) send(t *testing.T, in service.SendInput) service.SendResult {
	t.Helper()

	if in.Text == "" {
		in.Text = "Appointment confirmed"
	}
	res, err := h.tracker.Send(context.Background(), "conv-1", in)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	return res
}

func (h *harness) sweep(t *testing.T) service.SweepReport {
	t.Helper()

	rep, err := h.tracker.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error: %v", err)
	}
	return rep
}

func (h *harness) record(t *testing.T, id string) model.DeliveryRecord {
	t.Helper()

	rec, err := h.tracker.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error: %v", id, err)
	}
	return rec
}

func (h *harness) entry(t *testing.T, id string) (model.RetryEntry, bool) {
	t.Helper()

	e, ok, err := h.queue.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("queue Get(%s) error: %v", id, err)
	}
	return e, ok
}

func TestSend_DeliveredImmediately(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.Delivered())
	h := newHarness(t, fake)

	res := h.send(t, service.SendInput{SenderName: "Dr. Reyes"})

	if res.Message.Channel != model.ChannelSMS || res.Message.Type != model.TypeManual {
		t.Fatalf("expected sms/manual defaults, got %s/%s", res.Message.Channel, res.Message.Type)
	}
	if res.Message.SenderRole != model.SenderStaff {
		t.Fatalf("expected staff sender role, got %s", res.Message.SenderRole)
	}
	if res.Delivery.Status != model.StatusDelivered {
		t.Fatalf("expected delivered, got %+v", res.Delivery)
	}
	if res.Delivery.MaxRetries != 3 || res.Delivery.RetryCount != 0 {
		t.Fatalf("unexpected retry counters: %+v", res.Delivery)
	}

	rec := h.record(t, res.Message.ID)
	want := []model.Status{model.StatusQueued, model.StatusSending, model.StatusSent, model.StatusDelivered}
	if len(rec.History) != len(want) {
		t.Fatalf("expected %d history entries, got %+v", len(want), rec.History)
	}
	for i, s := range want {
		if rec.History[i].Status != s {
			t.Fatalf("history[%d]: expected %s, got %s", i, s, rec.History[i].Status)
		}
	}
	if rec.DeliveredAt == nil {
		t.Fatalf("expected DeliveredAt to be set")
	}
	if fake.TotalCalls() != 1 {
		t.Fatalf("expected 1 adapter call, got %d", fake.TotalCalls())
	}
}

func TestSend_ValidationRejectsBeforeRecordExists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   service.SendInput
	}{
		{"empty text", service.SendInput{Text: ""}},
		{"too long", service.SendInput{Text: strings.Repeat("a", 1601)}},
		{"unknown channel", service.SendInput{Text: "hi", Channel: "fax"}},
		{"unknown type", service.SendInput{Text: "hi", Type: "promo"}},
		{"attachment without url", service.SendInput{Text: "hi", Attachments: []model.Attachment{{Name: "x.pdf"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := channel.NewFake(channel.Delivered())
			h := newHarness(t, fake)

			_, err := h.tracker.Send(context.Background(), "conv-1", tt.in)
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}

			recs, err := h.records.List(context.Background(), repo.RecordFilter{})
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if len(recs) != 0 {
				t.Fatalf("expected no records, got %d", len(recs))
			}
			if fake.TotalCalls() != 0 {
				t.Fatalf("expected no adapter calls, got %d", fake.TotalCalls())
			}
		})
	}
}

func TestSend_CountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, channel.NewFake(channel.Delivered()))

	res := h.send(t, service.SendInput{Text: strings.Repeat("é", 1600)})
	if res.Delivery.Status != model.StatusDelivered {
		t.Fatalf("expected delivered, got %+v", res.Delivery)
	}
}

func TestRetry_BackoffDelaysThenAbandon(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.RetryableFailure("timeout"))
	h := newHarness(t, fake)

	res := h.send(t, service.SendInput{})
	id := res.Message.ID

	if res.Delivery.Status != model.StatusFailed {
		t.Fatalf("expected failed, got %+v", res.Delivery)
	}

	var delays []time.Duration
	e, ok := h.entry(t, id)
	if !ok {
		t.Fatalf("expected retry entry after first failure")
	}
	delays = append(delays, e.NextRetryAt.Sub(h.clock.Now()))

	// Not yet due.
	h.clock.Advance(4 * time.Second)
	if rep := h.sweep(t); rep.Due != 0 {
		t.Fatalf("expected nothing due, got %+v", rep)
	}
	if fake.Calls(id) != 1 {
		t.Fatalf("expected 1 call before first retry, got %d", fake.Calls(id))
	}

	for retry := 1; retry <= 2; retry++ {
		e, _ = h.entry(t, id)
		h.clock.Advance(e.NextRetryAt.Sub(h.clock.Now()))

		rep := h.sweep(t)
		if rep.Retried != 1 || rep.Failed != 1 {
			t.Fatalf("retry %d: unexpected report %+v", retry, rep)
		}

		rec := h.record(t, id)
		if rec.Status != model.StatusFailed || rec.RetryCount != retry {
			t.Fatalf("retry %d: unexpected record %+v", retry, rec)
		}
		e, ok = h.entry(t, id)
		if !ok || e.FailureCount != retry {
			t.Fatalf("retry %d: unexpected entry ok=%v %+v", retry, ok, e)
		}
		delays = append(delays, e.NextRetryAt.Sub(h.clock.Now()))
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %s, got %s (all=%v)", i, want[i], delays[i], delays)
		}
	}

	// Third retry fails and exhausts the budget.
	h.clock.Advance(20 * time.Second)
	rep := h.sweep(t)
	if rep.Abandoned != 1 {
		t.Fatalf("expected abandonment, got %+v", rep)
	}

	rec := h.record(t, id)
	if rec.Status != model.StatusAbandoned || rec.RetryCount != 3 {
		t.Fatalf("expected abandoned with 3 retries, got %+v", rec)
	}
	if rec.LastError != "timeout" {
		t.Fatalf("expected last error to survive abandonment, got %q", rec.LastError)
	}
	if _, ok := h.entry(t, id); ok {
		t.Fatalf("expected retry entry to be removed")
	}

	h.clock.Advance(time.Hour)
	h.sweep(t)
	if fake.Calls(id) != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", fake.Calls(id))
	}
}

func TestRetry_ThreeFailuresThenDelivered(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.Delivered())
	fake.Push(
		channel.RetryableFailure("timeout"),
		channel.RetryableFailure("timeout"),
		channel.RetryableFailure("timeout"),
	)
	h := newHarness(t, fake)

	res := h.send(t, service.SendInput{Text: "Appointment confirmed", Channel: "sms"})
	id := res.Message.ID

	for _, d := range []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second} {
		h.clock.Advance(d)
		h.sweep(t)
	}

	rec := h.record(t, id)
	if rec.Status != model.StatusDelivered {
		t.Fatalf("expected delivered, got %+v", rec)
	}
	if rec.RetryCount != 3 {
		t.Fatalf("expected retryCount 3, got %d", rec.RetryCount)
	}
	if rec.LastError != "" {
		t.Fatalf("expected error cleared on delivery, got %q", rec.LastError)
	}
	if _, ok := h.entry(t, id); ok {
		t.Fatalf("expected no retry entry")
	}
	if fake.Calls(id) != 4 {
		t.Fatalf("expected 4 attempts, got %d", fake.Calls(id))
	}
}

func TestRetry_EntryAtMaxIsAbandonedWithoutAttempt(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.Delivered())
	fake.Push(channel.RetryableFailure("timeout"))
	h := newHarness(t, fake)
	ctx := context.Background()

	id := h.send(t, service.SendInput{}).Message.ID

	e, _ := h.entry(t, id)
	e.FailureCount = 3
	if err := h.queue.Put(ctx, e); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	h.clock.Advance(5 * time.Second)
	if rep := h.sweep(t); rep.Abandoned != 1 {
		t.Fatalf("expected abandonment, got %+v", rep)
	}
	if rec := h.record(t, id); rec.Status != model.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", rec.Status)
	}
	if fake.Calls(id) != 1 {
		t.Fatalf("expected no retry attempt, got %d calls", fake.Calls(id))
	}
}

func TestSend_TerminalFailureIsNotRequeued(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.TerminalFailure("21610: recipient opted out"))
	h := newHarness(t, fake)

	res := h.send(t, service.SendInput{})
	if res.Delivery.Status != model.StatusAbandoned {
		t.Fatalf("expected abandoned, got %+v", res.Delivery)
	}
	if res.Delivery.Error != "21610: recipient opted out" {
		t.Fatalf("expected error to be reported, got %q", res.Delivery.Error)
	}
	if n, _ := h.queue.Len(context.Background()); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}

	h.clock.Advance(time.Hour)
	h.sweep(t)
	if fake.TotalCalls() != 1 {
		t.Fatalf("expected a single attempt, got %d", fake.TotalCalls())
	}
}

func TestSend_AttemptTimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	adapter := channel.AdapterFunc(func(context.Context, model.Message) channel.Outcome {
		<-block
		return channel.Delivered()
	})
	h := newHarness(t, adapter, func(o *service.Options) {
		o.AttemptTimeout = 20 * time.Millisecond
	})

	res := h.send(t, service.SendInput{})
	if res.Delivery.Status != model.StatusFailed {
		t.Fatalf("expected failed, got %+v", res.Delivery)
	}
	if res.Delivery.Error != "delivery attempt timed out" {
		t.Fatalf("unexpected error %q", res.Delivery.Error)
	}
	if _, ok := h.entry(t, res.Message.ID); !ok {
		t.Fatalf("expected retry entry after timeout")
	}
}

func TestSend_AdapterPanicIsRetryable(t *testing.T) {
	t.Parallel()

	adapter := channel.AdapterFunc(func(context.Context, model.Message) channel.Outcome {
		panic("carrier sdk blew up")
	})
	h := newHarness(t, adapter)

	res := h.send(t, service.SendInput{})
	if res.Delivery.Status != model.StatusFailed {
		t.Fatalf("expected failed, got %+v", res.Delivery)
	}
	if !strings.Contains(res.Delivery.Error, "adapter panic") {
		t.Fatalf("unexpected error %q", res.Delivery.Error)
	}
	if _, ok := h.entry(t, res.Message.ID); !ok {
		t.Fatalf("expected retry entry after panic")
	}
}

func TestSend_ScheduledMessageWaitsForSweep(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.Delivered())
	h := newHarness(t, fake)

	at := t0.Add(time.Hour)
	res := h.send(t, service.SendInput{ScheduledFor: &at})
	if res.Delivery.Status != model.StatusQueued {
		t.Fatalf("expected queued, got %+v", res.Delivery)
	}

	if rep := h.sweep(t); rep.Dispatched != 0 {
		t.Fatalf("expected no dispatch before schedule, got %+v", rep)
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("expected no attempts yet, got %d", fake.TotalCalls())
	}

	h.clock.Advance(time.Hour)
	if rep := h.sweep(t); rep.Dispatched != 1 {
		t.Fatalf("expected one dispatch, got %+v", rep)
	}
	if rec := h.record(t, res.Message.ID); rec.Status != model.StatusDelivered {
		t.Fatalf("expected delivered, got %s", rec.Status)
	}
}

func TestSweep_ExpiresStaleSending(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.Delivered())
	fake.Push(channel.Queued())
	h := newHarness(t, fake, func(o *service.Options) {
		o.StaleAfter = 10 * time.Minute
	})

	res := h.send(t, service.SendInput{})
	id := res.Message.ID
	if res.Delivery.Status != model.StatusSending {
		t.Fatalf("expected sending while carrier holds the message, got %+v", res.Delivery)
	}

	h.clock.Advance(5 * time.Minute)
	if rep := h.sweep(t); rep.Expired != 0 {
		t.Fatalf("expected nothing expired yet, got %+v", rep)
	}

	h.clock.Advance(5 * time.Minute)
	if rep := h.sweep(t); rep.Expired != 1 {
		t.Fatalf("expected one expiry, got %+v", rep)
	}
	rec := h.record(t, id)
	if rec.Status != model.StatusFailed || rec.LastError == "" {
		t.Fatalf("expected failed with reason, got %+v", rec)
	}

	h.clock.Advance(5 * time.Second)
	h.sweep(t)
	if rec := h.record(t, id); rec.Status != model.StatusDelivered || rec.RetryCount != 1 {
		t.Fatalf("expected delivered on first retry, got %+v", rec)
	}
}

func TestSweep_ConcurrentSweepsDoNotDoubleProcess(t *testing.T) {
	t.Parallel()

	const n = 10

	fake := channel.NewFake(channel.Delivered()).WithDelay(10 * time.Millisecond)
	for i := 0; i < n; i++ {
		fake.Push(channel.RetryableFailure("timeout"))
	}
	h := newHarness(t, fake)

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, h.send(t, service.SendInput{}).Message.ID)
	}

	h.clock.Advance(5 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.tracker.RunSweep(context.Background()); err != nil {
				t.Errorf("RunSweep() error: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		if c := fake.Calls(id); c != 2 {
			t.Fatalf("%s: expected 2 attempts, got %d", id, c)
		}
		if rec := h.record(t, id); rec.Status != model.StatusDelivered {
			t.Fatalf("%s: expected delivered, got %s", id, rec.Status)
		}
	}
}

func TestRecover_RederivesRetryEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, channel.NewFake(channel.Delivered()))
	ctx := context.Background()

	seed := func(id string, steps ...model.Status) {
		t.Helper()
		m := model.Message{
			ID:             id,
			ConversationID: "conv-1",
			Text:           "Appointment confirmed",
			Channel:        model.ChannelSMS,
			Type:           model.TypeManual,
			CreatedAt:      t0,
		}
		if err := h.messages.Save(ctx, m); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
		if _, err := h.records.Create(ctx, m, 3); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		for _, s := range steps {
			if _, err := h.records.Transition(ctx, id, s, ""); err != nil {
				t.Fatalf("Transition(%s) error: %v", s, err)
			}
		}
	}

	seed("interrupted", model.StatusSending)
	seed("failed", model.StatusSending, model.StatusFailed)
	seed("exhausted", model.StatusSending, model.StatusFailed)
	seed("delivered", model.StatusSending, model.StatusSent, model.StatusDelivered)
	seed("retrying", model.StatusSending, model.StatusFailed, model.StatusSending)

	if _, err := h.records.Update(ctx, "exhausted", func(r *model.DeliveryRecord) error {
		r.RetryCount = 3
		return nil
	}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	// A crash during the last retry: the sweep had already counted it.
	if _, err := h.records.Update(ctx, "retrying", func(r *model.DeliveryRecord) error {
		r.RetryCount = 3
		return nil
	}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	m, err := h.messages.Get(ctx, "retrying")
	if err != nil {
		t.Fatalf("messages Get() error: %v", err)
	}
	if err := h.queue.Put(ctx, model.NewRetryEntry(m, 3, "timeout", t0.Add(20*time.Second))); err != nil {
		t.Fatalf("queue Put() error: %v", err)
	}

	n, err := h.tracker.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 recovered records, got %d", n)
	}

	rec := h.record(t, "retrying")
	if rec.Status != model.StatusFailed || rec.RetryCount != 2 {
		t.Fatalf("expected interrupted retry to be given back, got %+v", rec)
	}
	if e, ok := h.entry(t, "retrying"); !ok || e.FailureCount != 2 || e.NextRetryAt.After(h.clock.Now()) {
		t.Fatalf("expected entry due now with 2 failures, ok=%v %+v", ok, e)
	}

	if rec := h.record(t, "interrupted"); rec.Status != model.StatusFailed {
		t.Fatalf("expected interrupted record to be failed, got %s", rec.Status)
	}
	for _, id := range []string{"interrupted", "failed"} {
		if _, ok := h.entry(t, id); !ok {
			t.Fatalf("expected retry entry for %s", id)
		}
	}
	if rec := h.record(t, "exhausted"); rec.Status != model.StatusAbandoned {
		t.Fatalf("expected exhausted record to be abandoned, got %s", rec.Status)
	}
	if _, ok := h.entry(t, "exhausted"); ok {
		t.Fatalf("expected no entry for exhausted record")
	}

	// A second pass finds nothing left to do.
	if n, err := h.tracker.Recover(ctx); err != nil || n != 0 {
		t.Fatalf("expected idempotent recovery, n=%d err=%v", n, err)
	}
}

func TestRetry_ShutdownMidAttemptKeepsRetry(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.RetryableFailure("timeout"))
	h := newHarness(t, fake)
	id := h.send(t, service.SendInput{}).Message.ID

	for i := 0; i < 2; i++ {
		e, _ := h.entry(t, id)
		h.clock.Advance(e.NextRetryAt.Sub(h.clock.Now()))
		h.sweep(t)
	}
	if rec := h.record(t, id); rec.Status != model.StatusFailed || rec.RetryCount != 2 {
		t.Fatalf("expected failed after 2 retries, got %+v", rec)
	}

	// The last retry hangs until the sweep is stopped.
	fake.WithDelay(time.Hour)
	e, _ := h.entry(t, id)
	h.clock.Advance(e.NextRetryAt.Sub(h.clock.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	rep, err := h.tracker.RunSweep(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep.Interrupted != 1 || rep.Abandoned != 0 || rep.Failed != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}

	rec := h.record(t, id)
	if rec.Status != model.StatusFailed || rec.RetryCount != 2 {
		t.Fatalf("expected retry to be given back, got %+v", rec)
	}
	e, ok := h.entry(t, id)
	if !ok || e.FailureCount != 2 || e.NextRetryAt.After(h.clock.Now()) {
		t.Fatalf("expected entry due now with 2 failures, ok=%v %+v", ok, e)
	}

	// The cut-short retry runs again on the next sweep.
	fake.WithDelay(0)
	fake.Push(channel.Delivered())
	if rep := h.sweep(t); rep.Succeeded != 1 {
		t.Fatalf("expected the retry to succeed, got %+v", rep)
	}
	rec = h.record(t, id)
	if rec.Status != model.StatusDelivered || rec.RetryCount != 3 {
		t.Fatalf("expected delivered on the third retry, got %+v", rec)
	}
	if _, ok := h.entry(t, id); ok {
		t.Fatalf("expected entry to be removed")
	}
}

func TestSend_InterruptedFirstAttemptIsRequeued(t *testing.T) {
	t.Parallel()

	fake := channel.NewFake(channel.Delivered()).WithDelay(time.Hour)
	h := newHarness(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := h.tracker.Send(ctx, "conv-1", service.SendInput{Text: "Appointment confirmed"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if res.Delivery.Status != model.StatusFailed || res.Delivery.RetryCount != 0 {
		t.Fatalf("expected failed with no retries used, got %+v", res.Delivery)
	}
	e, ok := h.entry(t, res.Message.ID)
	if !ok || e.FailureCount != 0 || e.NextRetryAt.After(h.clock.Now()) {
		t.Fatalf("expected entry due now, ok=%v %+v", ok, e)
	}
}

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()

	b := service.DefaultBackoff()
	for n, want := range []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second} {
		if got := b.Delay(n); got != want {
			t.Fatalf("Delay(%d) = %s, want %s", n, got, want)
		}
	}

	b.Max = 15 * time.Second
	if got := b.Delay(2); got != 15*time.Second {
		t.Fatalf("expected cap at 15s, got %s", got)
	}
	if got := b.Delay(-1); got != 5*time.Second {
		t.Fatalf("expected negative count to use the initial delay, got %s", got)
	}
}
