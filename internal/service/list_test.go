package service_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/channel"
	"github.com/LeventeLantos/delivery-tracker/internal/model"
	"github.com/LeventeLantos/delivery-tracker/internal/service"
)

func seedConversation(t *testing.T) *harness {
	t.Helper()

	fake := channel.NewFake(channel.Delivered())
	fake.Script("msg-3", channel.TerminalFailure("recipient opted out"))
	h := newHarness(t, fake)

	h.send(t, service.SendInput{Text: "Your appointment is confirmed"})
	h.clock.Advance(time.Second)
	h.send(t, service.SendInput{Text: "Reminder: appointment tomorrow", Type: "automated"})
	h.clock.Advance(time.Second)
	h.send(t, service.SendInput{Text: "Spring promo", Type: "campaign"})
	return h
}

func TestList_PaginationAndFilters(t *testing.T) {
	t.Parallel()

	h := seedConversation(t)
	ctx := context.Background()

	res, err := h.tracker.List(ctx, "conv-1", service.ListQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if res.Total != 3 || len(res.Messages) != 2 || !res.HasMore {
		t.Fatalf("unexpected first page: total=%d len=%d hasMore=%v", res.Total, len(res.Messages), res.HasMore)
	}
	if res.Messages[0].ID != "msg-1" || res.Messages[1].ID != "msg-2" {
		t.Fatalf("expected oldest first, got %s, %s", res.Messages[0].ID, res.Messages[1].ID)
	}
	if res.Messages[0].Delivery == nil || res.Messages[0].Delivery.Status != model.StatusDelivered {
		t.Fatalf("expected delivery summary on message, got %+v", res.Messages[0].Delivery)
	}

	res, err = h.tracker.List(ctx, "conv-1", service.ListQuery{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(res.Messages) != 1 || res.HasMore || res.Messages[0].ID != "msg-3" {
		t.Fatalf("unexpected second page: %+v", res)
	}

	res, err = h.tracker.List(ctx, "conv-1", service.ListQuery{Status: "abandoned"})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if res.Total != 1 || res.Messages[0].ID != "msg-3" {
		t.Fatalf("expected only the abandoned message, got %+v", res)
	}
	if res.Limit != 50 || res.Page != 1 {
		t.Fatalf("expected default paging, got page=%d limit=%d", res.Page, res.Limit)
	}

	res, err = h.tracker.List(ctx, "conv-1", service.ListQuery{Type: "automated"})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if res.Total != 1 || res.Messages[0].ID != "msg-2" {
		t.Fatalf("expected only the automated message, got %+v", res)
	}
	if res.Messages[0].SenderRole != model.SenderSystem {
		t.Fatalf("expected system sender for automated message, got %s", res.Messages[0].SenderRole)
	}

	res, err = h.tracker.List(ctx, "other", service.ListQuery{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if res.Total != 0 || len(res.Messages) != 0 {
		t.Fatalf("expected empty conversation, got %+v", res)
	}
}

func TestList_RejectsBadQuery(t *testing.T) {
	t.Parallel()

	h := seedConversation(t)

	for _, q := range []service.ListQuery{
		{Status: "bogus"},
		{Type: "bogus"},
		{Limit: 101},
		{Limit: -1},
		{Page: -1},
	} {
		if _, err := h.tracker.List(context.Background(), "conv-1", q); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("%+v: expected ErrValidation, got %v", q, err)
		}
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	h := seedConversation(t)

	st, err := h.tracker.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if st.Total != 3 {
		t.Fatalf("expected 3 records, got %d", st.Total)
	}
	if st.ByStatus[model.StatusDelivered] != 2 || st.ByStatus[model.StatusAbandoned] != 1 {
		t.Fatalf("unexpected counts: %+v", st.ByStatus)
	}
	if _, ok := st.ByStatus[model.StatusRead]; !ok {
		t.Fatalf("expected every status to be present in counts")
	}
	if math.Abs(st.DeliveryRate-2.0/3.0) > 1e-9 || math.Abs(st.FailureRate-1.0/3.0) > 1e-9 {
		t.Fatalf("unexpected rates: delivery=%f failure=%f", st.DeliveryRate, st.FailureRate)
	}
	if st.PendingRetries != 0 {
		t.Fatalf("expected no pending retries, got %d", st.PendingRetries)
	}
}
