// Package channel abstracts handing a message to a carrier. Carrier wire
// protocols live behind Adapter; the tracker only sees Outcome values.
package channel

import (
	"context"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// Adapter attempts one delivery. Implementations must tolerate being called
// more than once for the same message and should honour ctx cancellation.
type Adapter interface {
	Attempt(ctx context.Context, m model.Message) Outcome
}

type AdapterFunc func(ctx context.Context, m model.Message) Outcome

func (f AdapterFunc) Attempt(ctx context.Context, m model.Message) Outcome { return f(ctx, m) }

// Outcome is the result of one attempt. Status is one of queued, sent,
// delivered or failed. Retryable only matters for failed outcomes.
type Outcome struct {
	Status      model.Status
	Retryable   bool
	Error       string
	ProviderRef string
}

func (o Outcome) Failed() bool { return o.Status == model.StatusFailed }

func Delivered() Outcome { return Outcome{Status: model.StatusDelivered} }

func Sent() Outcome { return Outcome{Status: model.StatusSent} }

// Queued means the carrier accepted the message but has not sent it yet.
func Queued() Outcome { return Outcome{Status: model.StatusQueued} }

func RetryableFailure(reason string) Outcome {
	return Outcome{Status: model.StatusFailed, Retryable: true, Error: reason}
}

func TerminalFailure(reason string) Outcome {
	return Outcome{Status: model.StatusFailed, Retryable: false, Error: reason}
}

// Normalize coerces unknown statuses into a retryable failure so a
// misbehaving adapter cannot push a record into an unreachable state.
func Normalize(o Outcome) Outcome {
	switch o.Status {
	case model.StatusQueued, model.StatusSent, model.StatusDelivered:
		return o
	case model.StatusFailed:
		if o.Error == "" {
			o.Error = "delivery failed"
		}
		return o
	default:
		return RetryableFailure("adapter returned unexpected status " + string(o.Status))
	}
}
