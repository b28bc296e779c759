package channel

import (
	"context"
	"sync"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// Fake is a deterministic Adapter. Outcomes scripted for a message id win,
// then the shared script, then the fallback.
type Fake struct {
	mu       sync.Mutex
	perID    map[string][]Outcome
	shared   []Outcome
	fallback Outcome
	delay    time.Duration
	calls    map[string]int
	total    int
}

func NewFake(fallback Outcome) *Fake {
	return &Fake{
		perID:    make(map[string][]Outcome),
		fallback: fallback,
		calls:    make(map[string]int),
	}
}

// Push appends outcomes consumed by attempts for any message.
func (f *Fake) Push(outcomes ...Outcome) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared = append(f.shared, outcomes...)
	return f
}

// Script appends outcomes consumed only by attempts for messageID.
func (f *Fake) Script(messageID string, outcomes ...Outcome) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perID[messageID] = append(f.perID[messageID], outcomes...)
	return f
}

// WithDelay makes each attempt wait d or until ctx is done.
func (f *Fake) WithDelay(d time.Duration) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

func (f *Fake) Attempt(ctx context.Context, m model.Message) Outcome {
	f.mu.Lock()
	f.calls[m.ID]++
	f.total++
	delay := f.delay
	var out Outcome
	switch {
	case len(f.perID[m.ID]) > 0:
		out = f.perID[m.ID][0]
		f.perID[m.ID] = f.perID[m.ID][1:]
	case len(f.shared) > 0:
		out = f.shared[0]
		f.shared = f.shared[1:]
	default:
		out = f.fallback
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return RetryableFailure("context cancelled")
		}
	}
	return out
}

func (f *Fake) Calls(messageID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[messageID]
}

func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}
