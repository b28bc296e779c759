package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

type MemoryMessageRepo struct {
	mu     sync.RWMutex
	byID   map[string]model.Message
	byConv map[string][]string
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{
		byID:   make(map[string]model.Message),
		byConv: make(map[string][]string),
	}
}

func (r *MemoryMessageRepo) Save(_ context.Context, m model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return nil
	}
	r.byID[m.ID] = m.Clone()
	r.byConv[m.ConversationID] = append(r.byConv[m.ConversationID], m.ID)
	return nil
}

func (r *MemoryMessageRepo) Get(_ context.Context, id string) (model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return model.Message{}, model.ErrMessageNotFound
	}
	return m.Clone(), nil
}

func (r *MemoryMessageRepo) ListByConversation(_ context.Context, conversationID string, msgType model.MessageType) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byConv[conversationID]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		m := r.byID[id]
		if msgType != "" && m.Type != msgType {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type MemoryRecordStore struct {
	locks *KeyLock
	now   func() time.Time

	mu      sync.RWMutex
	records map[string]model.DeliveryRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		locks:   NewKeyLock(0),
		now:     func() time.Time { return time.Now().UTC() },
		records: make(map[string]model.DeliveryRecord),
	}
}

// WithClock replaces the time source used to stamp transitions.
func (s *MemoryRecordStore) WithClock(now func() time.Time) *MemoryRecordStore {
	s.now = now
	return s
}

func (s *MemoryRecordStore) Create(_ context.Context, m model.Message, maxRetries int) (model.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[m.ID]; ok {
		return model.DeliveryRecord{}, model.ErrDuplicateRecord
	}
	rec := model.NewDeliveryRecord(m, maxRetries, s.now())
	s.records[m.ID] = rec
	return rec.Clone(), nil
}

func (s *MemoryRecordStore) Get(_ context.Context, messageID string) (model.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[messageID]
	if !ok {
		return model.DeliveryRecord{}, model.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryRecordStore) Update(_ context.Context, messageID string, fn func(*model.DeliveryRecord) error) (model.DeliveryRecord, error) {
	unlock := s.locks.Lock(messageID)
	defer unlock()

	s.mu.RLock()
	cur, ok := s.records[messageID]
	s.mu.RUnlock()
	if !ok {
		return model.DeliveryRecord{}, model.ErrRecordNotFound
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur.Clone(), err
	}

	s.mu.Lock()
	s.records[messageID] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryRecordStore) Transition(ctx context.Context, messageID string, to model.Status, reason string) (model.DeliveryRecord, error) {
	return s.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		return r.Transition(to, reason, s.now())
	})
}

func (s *MemoryRecordStore) Advance(ctx context.Context, messageID string, to model.Status, reason string) (model.DeliveryRecord, error) {
	return s.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		return r.Advance(to, reason, s.now())
	})
}

func (s *MemoryRecordStore) List(_ context.Context, filter RecordFilter) ([]model.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.DeliveryRecord, 0)
	for _, rec := range s.records {
		if filter.match(rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
