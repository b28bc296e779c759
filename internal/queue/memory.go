package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

type item struct {
	entry model.RetryEntry
	index int
}

type dueHeap []*item

func (h dueHeap) Len() int { return len(h) }

func (h dueHeap) Less(i, j int) bool { return h[i].entry.NextRetryAt.Before(h[j].entry.NextRetryAt) }

func (h dueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *dueHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// MemoryQueue is a min-heap on NextRetryAt with an id index.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string]*item
	heap  dueHeap
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string]*item)}
}

func (q *MemoryQueue) Put(_ context.Context, e model.RetryEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e.Message = e.Message.Clone()
	if it, ok := q.items[e.MessageID]; ok {
		it.entry = e
		heap.Fix(&q.heap, it.index)
		return nil
	}
	it := &item{entry: e}
	heap.Push(&q.heap, it)
	q.items[e.MessageID] = it
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, messageID string) (model.RetryEntry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[messageID]
	if !ok {
		return model.RetryEntry{}, false, nil
	}
	e := it.entry
	e.Message = e.Message.Clone()
	return e, true, nil
}

func (q *MemoryQueue) Remove(_ context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[messageID]
	if !ok {
		return nil
	}
	heap.Remove(&q.heap, it.index)
	delete(q.items, messageID)
	return nil
}

func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]model.RetryEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []model.RetryEntry
	// A node that is not due has no due descendants.
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if i >= len(q.heap) || q.heap[i].entry.NextRetryAt.After(now) {
			continue
		}
		e := q.heap[i].entry
		e.Message = e.Message.Clone()
		out = append(out, e)
		stack = append(stack, 2*i+1, 2*i+2)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
