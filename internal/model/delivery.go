package model

import "time"

type StatusChange struct {
	Status Status    `json:"status"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// DeliveryRecord is the mutable delivery state of exactly one Message. It is
// created with the first attempt and only ever updated in place.
type DeliveryRecord struct {
	MessageID      string         `json:"messageId"`
	ConversationID string         `json:"conversationId"`
	Channel        Channel        `json:"channel"`
	Status         Status         `json:"status"`
	LastError      string         `json:"lastError,omitempty"`
	ProviderRef    string         `json:"providerRef,omitempty"`
	RetryCount     int            `json:"retryCount"`
	MaxRetries     int            `json:"maxRetries"`
	DeliveredAt    *time.Time     `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time     `json:"readAt,omitempty"`
	FailedAt       *time.Time     `json:"failedAt,omitempty"`
	AbandonedAt    *time.Time     `json:"abandonedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	History        []StatusChange `json:"history,omitempty"`
}

func NewDeliveryRecord(m Message, maxRetries int, at time.Time) DeliveryRecord {
	return DeliveryRecord{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Channel:        m.Channel,
		Status:         StatusQueued,
		MaxRetries:     maxRetries,
		CreatedAt:      at,
		UpdatedAt:      at,
		History:        []StatusChange{{Status: StatusQueued, At: at}},
	}
}

// Transition applies a single legal move. On error r is left untouched.
func (r *DeliveryRecord) Transition(to Status, reason string, at time.Time) error {
	if !CanTransition(r.Status, to) {
		return &TransitionError{MessageID: r.MessageID, From: r.Status, To: to}
	}
	r.Status = to
	r.UpdatedAt = at
	switch to {
	case StatusDelivered:
		r.DeliveredAt = &at
		r.LastError = ""
	case StatusRead:
		r.ReadAt = &at
	case StatusFailed:
		r.FailedAt = &at
	case StatusAbandoned:
		r.AbandonedAt = &at
	}
	if reason != "" {
		r.LastError = reason
	}
	r.History = append(r.History, StatusChange{Status: to, Error: reason, At: at})
	return nil
}

// Advance walks the shortest legal path to the target status. The reason is
// attached to the final step only.
func (r *DeliveryRecord) Advance(to Status, reason string, at time.Time) error {
	path, ok := PathTo(r.Status, to)
	if !ok {
		return &TransitionError{MessageID: r.MessageID, From: r.Status, To: to}
	}
	next := r.Clone()
	for i, s := range path {
		why := ""
		if i == len(path)-1 {
			why = reason
		}
		if err := next.Transition(s, why, at); err != nil {
			return err
		}
	}
	*r = next
	return nil
}

// Retryable reports whether the record may still earn a queue entry.
func (r DeliveryRecord) Retryable() bool {
	return r.Status == StatusFailed && r.RetryCount < r.MaxRetries
}

func (r DeliveryRecord) Clone() DeliveryRecord {
	out := r
	out.DeliveredAt = cloneTime(r.DeliveredAt)
	out.ReadAt = cloneTime(r.ReadAt)
	out.FailedAt = cloneTime(r.FailedAt)
	out.AbandonedAt = cloneTime(r.AbandonedAt)
	if r.History != nil {
		out.History = append([]StatusChange(nil), r.History...)
	}
	return out
}

// Delivery is the summary returned to callers of Send.
type Delivery struct {
	MessageID  string `json:"messageId"`
	Status     Status `json:"status"`
	RetryCount int    `json:"retryCount"`
	MaxRetries int    `json:"maxRetries"`
	Error      string `json:"error,omitempty"`
}

func (r DeliveryRecord) Summary() Delivery {
	return Delivery{
		MessageID:  r.MessageID,
		Status:     r.Status,
		RetryCount: r.RetryCount,
		MaxRetries: r.MaxRetries,
		Error:      r.LastError,
	}
}

// RetryEntry exists only while its record is failed and below max retries.
type RetryEntry struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Message        Message   `json:"message"`
	FailureCount   int       `json:"failureCount"`
	LastError      string    `json:"lastError,omitempty"`
	NextRetryAt    time.Time `json:"nextRetryAt"`
}

func NewRetryEntry(m Message, failureCount int, lastError string, next time.Time) RetryEntry {
	return RetryEntry{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Message:        m.Clone(),
		FailureCount:   failureCount,
		LastError:      lastError,
		NextRetryAt:    next,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
