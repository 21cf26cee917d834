package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

// AuditRepository appends USSD turns and SMS callbacks to ClickHouse and
// serves the reporting queries.
type AuditRepository interface {
	InsertSessionTurn(ctx context.Context, t model.SessionTurn) error
	InsertDeliveryReport(ctx context.Context, r model.DeliveryReport) error
	InsertIncomingSMS(ctx context.Context, m model.IncomingSMS) error
	ListMessages(ctx context.Context, schoolID int64, phone string, status model.MessageStatus, limit, offset int) ([]model.Message, error)
}

type chAuditRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewAuditRepository(ch *sqlx.DB) AuditRepository {
	return &chAuditRepository{ch: ch}
}

// insert goes through a prepared statement inside a tx, which is how the
// clickhouse std driver sends a (single-row) batch.
func (r *chAuditRepository) insert(ctx context.Context, query string, args ...any) error {
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *chAuditRepository) InsertSessionTurn(ctx context.Context, t model.SessionTurn) error {
	err := r.insert(ctx, `
		INSERT INTO tuitora.ussd_session_turns
		    (session_id, phone_number, service_code, text, depth, status, response, lookup_error, latency_ms, created_at)
	`, t.SessionID, t.PhoneNumber, t.ServiceCode, t.Text, int32(t.Depth), t.Status, t.Response, t.LookupError, t.LatencyMs, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session turn: %w", err)
	}
	return nil
}

func (r *chAuditRepository) InsertDeliveryReport(ctx context.Context, d model.DeliveryReport) error {
	err := r.insert(ctx, `
		INSERT INTO tuitora.delivery_reports
		    (id, status, phone_number, network_code, failure_reason, retry_count, received_at)
	`, d.ID, d.Status, d.PhoneNumber, d.NetworkCode, d.FailureReason, int32(d.RetryCount), d.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert delivery report: %w", err)
	}
	return nil
}

func (r *chAuditRepository) InsertIncomingSMS(ctx context.Context, m model.IncomingSMS) error {
	raw := "{}"
	if len(m.Raw) > 0 {
		b, err := json.Marshal(m.Raw)
		if err != nil {
			return err
		}
		raw = string(b)
	}
	err := r.insert(ctx, `
		INSERT INTO tuitora.incoming_sms
		    (id, from_number, to_number, text, link_id, date, raw, received_at)
	`, m.ID, m.From, m.To, m.Text, m.LinkID, m.Date, raw, m.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert incoming sms: %w", err)
	}
	return nil
}

// ListMessages reads the deduplicated broadcast messages view fed by CDC.
func (r *chAuditRepository) ListMessages(ctx context.Context, schoolID int64, phone string, status model.MessageStatus, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, school_id, phone, text, segments, status, provider_message_id, created_at, updated_at
		FROM tuitora.messages_latest
		WHERE school_id = ?
	`
	args := []any{schoolID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	if phone != "" {
		q += " AND phone = ?"
		args = append(args, phone)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Message
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
