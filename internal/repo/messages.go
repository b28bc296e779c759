package repo

import (
	"context"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

type MessageRepository interface {
	Save(ctx context.Context, m model.Message) error
	Get(ctx context.Context, id string) (model.Message, error)
	// ListByConversation returns messages oldest first. An empty msgType
	// matches every type.
	ListByConversation(ctx context.Context, conversationID string, msgType model.MessageType) ([]model.Message, error)
}

// RecordStore owns every DeliveryRecord. Writes for one message id are
// serialised; writes for different ids proceed independently.
type RecordStore interface {
	Create(ctx context.Context, m model.Message, maxRetries int) (model.DeliveryRecord, error)
	Get(ctx context.Context, messageID string) (model.DeliveryRecord, error)
	// Transition applies one legal state-machine move.
	Transition(ctx context.Context, messageID string, to model.Status, reason string) (model.DeliveryRecord, error)
	// Advance walks the shortest legal path to the target status.
	Advance(ctx context.Context, messageID string, to model.Status, reason string) (model.DeliveryRecord, error)
	// Update runs fn against the current record and persists the result
	// atomically. If fn fails nothing is written.
	Update(ctx context.Context, messageID string, fn func(*model.DeliveryRecord) error) (model.DeliveryRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]model.DeliveryRecord, error)
}

type RecordFilter struct {
	Statuses []model.Status
}

func (f RecordFilter) match(s model.Status) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, want := range f.Statuses {
		if want == s {
			return true
		}
	}
	return false
}
