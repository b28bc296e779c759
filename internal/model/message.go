package model

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTextLength is the longest message body a carrier segment chain accepts.
const MaxTextLength = 1600

type Channel string

const (
	ChannelSMS     Channel = "sms"
	ChannelEmail   Channel = "email"
	ChannelWebChat Channel = "web_chat"
	ChannelPhone   Channel = "phone"
)

var channels = []Channel{ChannelSMS, ChannelEmail, ChannelWebChat, ChannelPhone}

func ParseChannel(raw string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range channels {
		if c == known {
			return c, nil
		}
	}
	return "", &ValidationError{Field: "channel", Reason: "unknown channel " + strconv.Quote(raw)}
}

type MessageType string

const (
	TypeManual    MessageType = "manual"
	TypeAutomated MessageType = "automated"
	TypeSystem    MessageType = "system"
	TypeCampaign  MessageType = "campaign"
)

var messageTypes = []MessageType{TypeManual, TypeAutomated, TypeSystem, TypeCampaign}

func ParseMessageType(raw string) (MessageType, error) {
	t := MessageType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range messageTypes {
		if t == known {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "type", Reason: "unknown message type " + strconv.Quote(raw)}
}

type SenderRole string

const (
	SenderStaff  SenderRole = "staff"
	SenderSystem SenderRole = "system"
)

// RoleFor reports who authored a message of the given type.
func RoleFor(t MessageType) SenderRole {
	if t == TypeManual {
		return SenderStaff
	}
	return SenderSystem
}

type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Message is immutable once created. Delivery state lives on DeliveryRecord.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	SenderRole     SenderRole        `json:"senderRole"`
	SenderName     string            `json:"senderName,omitempty"`
	Recipient      string            `json:"recipient,omitempty"`
	Text           string            `json:"text"`
	Channel        Channel           `json:"channel"`
	Type           MessageType       `json:"type"`
	Attachments    []Attachment      `json:"attachments,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ScheduledFor   *time.Time        `json:"scheduledFor,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ValidateText checks the body length in characters, not bytes.
func ValidateText(text string, limit int) error {
	if limit <= 0 || limit > MaxTextLength {
		limit = MaxTextLength
	}
	if text == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(text); n > limit {
		return &ValidationError{Field: "text", Reason: "exceeds " + strconv.Itoa(limit) + " characters"}
	}
	return nil
}

func (m Message) Validate(limit int) error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return &ValidationError{Field: "conversationId", Reason: "is required"}
	}
	if err := ValidateText(m.Text, limit); err != nil {
		return err
	}
	if _, err := ParseChannel(string(m.Channel)); err != nil {
		return err
	}
	if _, err := ParseMessageType(string(m.Type)); err != nil {
		return err
	}
	for _, a := range m.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return &ValidationError{Field: "attachments", Reason: "attachment url is required"}
		}
	}
	return nil
}

// Due reports whether a scheduled message may be dispatched at now.
func (m Message) Due(now time.Time) bool {
	return m.ScheduledFor == nil || !m.ScheduledFor.After(now)
}

func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.ScheduledFor != nil {
		t := *m.ScheduledFor
		out.ScheduledFor = &t
	}
	return out
}
