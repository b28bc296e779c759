package service

import (
	"context"
	"fmt"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
	"github.com/LeventeLantos/delivery-tracker/internal/repo"
)

type Stats struct {
	Total              int                  `json:"total"`
	ByStatus           map[model.Status]int `json:"byStatus"`
	DeliveryRate       float64              `json:"deliveryRate"`
	FailureRate        float64              `json:"failureRate"`
	AvgDeliverySeconds float64              `json:"avgDeliverySeconds"`
	PendingRetries     int                  `json:"pendingRetries"`
}

func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	recs, err := t.records.List(ctx, repo.RecordFilter{})
	if err != nil {
		return Stats{}, fmt.Errorf("list records: %w", err)
	}
	pending, err := t.queue.Len(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count retry entries: %w", err)
	}

	st := Stats{
		Total:          len(recs),
		ByStatus:       make(map[model.Status]int, len(model.Statuses())),
		PendingRetries: pending,
	}
	for _, s := range model.Statuses() {
		st.ByStatus[s] = 0
	}

	var (
		succeeded, failed int
		deliveredSum      float64
		deliveredN        int
	)
	for _, r := range recs {
		st.ByStatus[r.Status]++
		switch {
		case r.Status.Succeeded():
			succeeded++
		case r.Status == model.StatusFailed || r.Status == model.StatusAbandoned:
			failed++
		}
		if r.DeliveredAt != nil {
			deliveredSum += r.DeliveredAt.Sub(r.CreatedAt).Seconds()
			deliveredN++
		}
	}

	if st.Total > 0 {
		st.DeliveryRate = float64(succeeded) / float64(st.Total)
		st.FailureRate = float64(failed) / float64(st.Total)
	}
	if deliveredN > 0 {
		st.AvgDeliverySeconds = deliveredSum / float64(deliveredN)
	}
	return st, nil
}
