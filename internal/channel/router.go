package channel

import (
	"context"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// Router dispatches attempts to the adapter registered for a message's channel.
type Router struct {
	adapters map[model.Channel]Adapter
}

func NewRouter() *Router {
	return &Router{adapters: make(map[model.Channel]Adapter)}
}

func (r *Router) Handle(c model.Channel, a Adapter) *Router {
	r.adapters[c] = a
	return r
}

func (r *Router) Attempt(ctx context.Context, m model.Message) Outcome {
	a, ok := r.adapters[m.Channel]
	if !ok {
		return TerminalFailure("no adapter for channel " + string(m.Channel))
	}
	return a.Attempt(ctx, m)
}

// InApp delivers web chat messages, which reach the patient portal as soon
// as they are stored.
type InApp struct{}

func (InApp) Attempt(ctx context.Context, _ model.Message) Outcome {
	if err := ctx.Err(); err != nil {
		return RetryableFailure(err.Error())
	}
	return Delivered()
}
