package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) Save(ctx context.Context, m model.Message) error {
	attachments, err := json.Marshal(nonNilAttachments(m.Attachments))
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(nonNilMetadata(m.Metadata))
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_role, sender_name, recipient,
		                      text, channel, type, attachments, metadata, scheduled_for, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.ConversationID, string(m.SenderRole), m.SenderName, m.Recipient,
		m.Text, string(m.Channel), string(m.Type), string(attachments), string(metadata),
		nullTime(m.ScheduledFor), m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

const messageColumns = `id, conversation_id, sender_role, sender_name, recipient,
	text, channel, type, attachments, metadata, scheduled_for, created_at`

func (r *PostgresMessageRepo) Get(ctx context.Context, id string) (model.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, model.ErrMessageNotFound
	}
	return m, err
}

func (r *PostgresMessageRepo) ListByConversation(ctx context.Context, conversationID string, msgType model.MessageType) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND ($2 = '' OR type = $2)
		ORDER BY created_at ASC
	`, conversationID, string(msgType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (model.Message, error) {
	var (
		m           model.Message
		role        string
		channel     string
		msgType     string
		attachments []byte
		metadata    []byte
		scheduled   sql.NullTime
	)
	if err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&role,
		&m.SenderName,
		&m.Recipient,
		&m.Text,
		&channel,
		&msgType,
		&attachments,
		&metadata,
		&scheduled,
		&m.CreatedAt,
	); err != nil {
		return model.Message{}, err
	}

	m.SenderRole = model.SenderRole(role)
	m.Channel = model.Channel(channel)
	m.Type = model.MessageType(msgType)
	m.ScheduledFor = timePtr(scheduled)
	m.CreatedAt = m.CreatedAt.UTC()

	if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
		return model.Message{}, fmt.Errorf("decode attachments of %s: %w", m.ID, err)
	}
	if len(m.Attachments) == 0 {
		m.Attachments = nil
	}
	if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
		return model.Message{}, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
	}
	if len(m.Metadata) == 0 {
		m.Metadata = nil
	}
	return m, nil
}

func nonNilAttachments(a []model.Attachment) []model.Attachment {
	if a == nil {
		return []model.Attachment{}
	}
	return a
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
