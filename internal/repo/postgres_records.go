package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// PostgresRecordStore serialises writes per message with row locks, so
// several tracker processes may share one database.
type PostgresRecordStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const recordColumns = `message_id, conversation_id, channel, status, last_error, provider_ref,
	retry_count, max_retries, delivered_at, read_at, failed_at, abandoned_at,
	created_at, updated_at, history`

func (s *PostgresRecordStore) Create(ctx context.Context, m model.Message, maxRetries int) (model.DeliveryRecord, error) {
	rec := model.NewDeliveryRecord(m, maxRetries, s.now())
	history, err := json.Marshal(rec.History)
	if err != nil {
		return model.DeliveryRecord{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_records (message_id, conversation_id, channel, status,
		                              retry_count, max_retries, created_at, updated_at, history)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6, $7::jsonb)
		ON CONFLICT (message_id) DO NOTHING
	`, rec.MessageID, rec.ConversationID, string(rec.Channel), string(rec.Status),
		rec.MaxRetries, rec.CreatedAt, string(history))
	if err != nil {
		return model.DeliveryRecord{}, fmt.Errorf("insert delivery record %s: %w", rec.MessageID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.DeliveryRecord{}, model.ErrDuplicateRecord
	}
	return rec, nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, messageID string) (model.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM delivery_records WHERE message_id = $1`, messageID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeliveryRecord{}, model.ErrRecordNotFound
	}
	return rec, err
}

func (s *PostgresRecordStore) Update(ctx context.Context, messageID string, fn func(*model.DeliveryRecord) error) (model.DeliveryRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return model.DeliveryRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM delivery_records
		WHERE message_id = $1
		FOR UPDATE
	`, messageID)
	cur, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeliveryRecord{}, model.ErrRecordNotFound
	}
	if err != nil {
		return model.DeliveryRecord{}, err
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur, err
	}

	history, err := json.Marshal(next.History)
	if err != nil {
		return cur, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = $2,
		    last_error = $3,
		    provider_ref = $4,
		    retry_count = $5,
		    max_retries = $6,
		    delivered_at = $7,
		    read_at = $8,
		    failed_at = $9,
		    abandoned_at = $10,
		    updated_at = $11,
		    history = $12::jsonb
		WHERE message_id = $1
	`, next.MessageID, string(next.Status), next.LastError, next.ProviderRef,
		next.RetryCount, next.MaxRetries,
		nullTime(next.DeliveredAt), nullTime(next.ReadAt), nullTime(next.FailedAt), nullTime(next.AbandonedAt),
		next.UpdatedAt.UTC(), string(history)); err != nil {
		return cur, fmt.Errorf("update delivery record %s: %w", messageID, err)
	}

	if err := tx.Commit(); err != nil {
		return cur, err
	}
	return next, nil
}

func (s *PostgresRecordStore) Transition(ctx context.Context, messageID string, to model.Status, reason string) (model.DeliveryRecord, error) {
	return s.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		return r.Transition(to, reason, s.now())
	})
}

func (s *PostgresRecordStore) Advance(ctx context.Context, messageID string, to model.Status, reason string) (model.DeliveryRecord, error) {
	return s.Update(ctx, messageID, func(r *model.DeliveryRecord) error {
		return r.Advance(to, reason, s.now())
	})
}

func (s *PostgresRecordStore) List(ctx context.Context, filter RecordFilter) ([]model.DeliveryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records`
	args := make([]any, 0, len(filter.Statuses))
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "$" + strconv.Itoa(i+1)
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeliveryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row rowScanner) (model.DeliveryRecord, error) {
	var (
		rec       model.DeliveryRecord
		channel   string
		status    string
		delivered sql.NullTime
		read      sql.NullTime
		failed    sql.NullTime
		abandoned sql.NullTime
		history   []byte
	)
	if err := row.Scan(
		&rec.MessageID,
		&rec.ConversationID,
		&channel,
		&status,
		&rec.LastError,
		&rec.ProviderRef,
		&rec.RetryCount,
		&rec.MaxRetries,
		&delivered,
		&read,
		&failed,
		&abandoned,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&history,
	); err != nil {
		return model.DeliveryRecord{}, err
	}

	rec.Channel = model.Channel(channel)
	rec.Status = model.Status(status)
	rec.DeliveredAt = timePtr(delivered)
	rec.ReadAt = timePtr(read)
	rec.FailedAt = timePtr(failed)
	rec.AbandonedAt = timePtr(abandoned)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	if err := json.Unmarshal(history, &rec.History); err != nil {
		return model.DeliveryRecord{}, fmt.Errorf("decode history of %s: %w", rec.MessageID, err)
	}
	return rec, nil
}
