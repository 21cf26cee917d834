package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

// MessagesRepository persists broadcast messages.
type MessagesRepository interface {
	InsertQueued(ctx context.Context, tx *sqlx.Tx, m model.Message) error
	BatchUpdateStatus(ctx context.Context, tx *sqlx.Tx, ids []string, status model.MessageStatus) error
	SetProviderMessageIDs(ctx context.Context, tx *sqlx.Tx, ids map[string]string) error
	SetProviderMessageID(ctx context.Context, id, providerMessageID string) error
	UpdateStatusByProviderID(ctx context.Context, providerMessageID string, status model.MessageStatus) (bool, error)
	ApplySendResults(ctx context.Context, sent map[string]string, failed []string) error
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

var _ MessagesRepository = (*MessagesRepositoryImpl)(nil)

func withTx(ctx context.Context, db *sqlx.DB, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// InsertQueued inserts a new message row with status=queued.
func (r *MessagesRepositoryImpl) InsertQueued(ctx context.Context, tx *sqlx.Tx, m model.Message) error {
	const q = `
		INSERT INTO messages
		    (id, school_id, phone, text, segments, status,   created_at, updated_at)
		VALUES
		    (?,  ?,         ?,     ?,    ?,        'queued', NOW(),      NOW())
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, m.ID, m.SchoolID, m.Phone, m.Text, m.Segments)
		return err
	})
}

// BatchUpdateStatus updates status for many messages using a single statement.
// "sent" only moves queued rows and nothing overwrites "delivered", so a late
// flush cannot undo a delivery report that arrived first.
func (r *MessagesRepositoryImpl) BatchUpdateStatus(ctx context.Context, tx *sqlx.Tx, ids []string, status model.MessageStatus) error {
	if len(ids) == 0 {
		return nil
	}
	base := `UPDATE messages SET status = ?, updated_at = NOW() WHERE id IN (?) AND status <> 'delivered'`
	if status == model.StatusSent {
		base = `UPDATE messages SET status = ?, updated_at = NOW() WHERE id IN (?) AND status = 'queued'`
	}
	query, args, err := sqlx.In(base, status, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

// SetProviderMessageIDs records the provider's id for each message (keyed by
// our message id) so delivery reports can be matched later.
func (r *MessagesRepositoryImpl) SetProviderMessageIDs(ctx context.Context, tx *sqlx.Tx, ids map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `UPDATE messages SET provider_message_id = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for id, providerID := range ids {
			if _, err := stmt.ExecContext(ctx, providerID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetProviderMessageID is written as soon as a send succeeds so a fast
// delivery report can find the row before the worker's batch flush.
func (r *MessagesRepositoryImpl) SetProviderMessageID(ctx context.Context, id, providerMessageID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET provider_message_id = ? WHERE id = ?`,
		providerMessageID, id,
	)
	return err
}

// UpdateStatusByProviderID applies a delivery report. It reports false when no
// message carries that provider id (e.g. the SMS was sent synchronously).
func (r *MessagesRepositoryImpl) UpdateStatusByProviderID(ctx context.Context, providerMessageID string, status model.MessageStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, updated_at = NOW() WHERE provider_message_id = ?`,
		status, providerMessageID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApplySendResults records a worker flush in one transaction: sent rows get
// their provider ids, failed rows are marked failed.
func (r *MessagesRepositoryImpl) ApplySendResults(ctx context.Context, sent map[string]string, failed []string) error {
	if len(sent) == 0 && len(failed) == 0 {
		return nil
	}
	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if len(sent) > 0 {
			ids := make([]string, 0, len(sent))
			for id := range sent {
				ids = append(ids, id)
			}
			if err := r.BatchUpdateStatus(ctx, tx, ids, model.StatusSent); err != nil {
				return err
			}
			if err := r.SetProviderMessageIDs(ctx, tx, sent); err != nil {
				return err
			}
		}
		return r.BatchUpdateStatus(ctx, tx, failed, model.StatusFailed)
	})
}
