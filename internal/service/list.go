package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ListQuery selects one page of a conversation. A zero Page or Limit takes
// the default.
type ListQuery struct {
	Page   int
	Limit  int
	Status string
	Type   string
}

type MessageView struct {
	model.Message
	Delivery *model.Delivery `json:"delivery,omitempty"`
}

type ListResult struct {
	Messages []MessageView `json:"messages"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	Total    int           `json:"total"`
	HasMore  bool          `json:"hasMore"`
}

// List pages through a conversation's messages, oldest first. Filters apply
// before pagination.
func (t *Tracker) List(ctx context.Context, conversationID string, q ListQuery) (ListResult, error) {
	if strings.TrimSpace(conversationID) == "" {
		return ListResult{}, &model.ValidationError{Field: "conversationId", Reason: "is required"}
	}

	page := q.Page
	if page == 0 {
		page = 1
	}
	if page < 0 {
		return ListResult{}, &model.ValidationError{Field: "page", Reason: "must be >= 1"}
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < 0 || limit > maxPageSize {
		return ListResult{}, &model.ValidationError{Field: "limit", Reason: "must be between 1 and " + strconv.Itoa(maxPageSize)}
	}

	var status model.Status
	if q.Status != "" {
		s, err := model.ParseStatus(q.Status)
		if err != nil {
			return ListResult{}, &model.ValidationError{Field: "status", Reason: "unknown value " + strconv.Quote(q.Status)}
		}
		status = s
	}
	var typ model.MessageType
	if q.Type != "" {
		mt, err := model.ParseMessageType(q.Type)
		if err != nil {
			return ListResult{}, err
		}
		typ = mt
	}

	msgs, err := t.messages.ListByConversation(ctx, conversationID, typ)
	if err != nil {
		return ListResult{}, fmt.Errorf("list messages: %w", err)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: m}
		rec, err := t.records.Get(ctx, m.ID)
		switch {
		case err == nil:
			d := rec.Summary()
			v.Delivery = &d
		case errors.Is(err, model.ErrRecordNotFound):
		default:
			return ListResult{}, fmt.Errorf("load delivery record: %w", err)
		}
		if status != "" && (v.Delivery == nil || v.Delivery.Status != status) {
			continue
		}
		views = append(views, v)
	}

	total := len(views)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return ListResult{
		Messages: views[start:end],
		Page:     page,
		Limit:    limit,
		Total:    total,
		HasMore:  end < total,
	}, nil
}
