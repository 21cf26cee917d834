package repository

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

const aggregateMessage = "message"

// OutboxRepository writes broadcast envelopes to the outbox table. A CDC
// connector (Debezium outbox SMT) relays rows to Kafka using the topic column.
type OutboxRepository interface {
	InsertEnvelope(ctx context.Context, tx *sqlx.Tx, topic string, env model.Envelope) error
}

type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

func (r *OutboxRepositoryImpl) InsertEnvelope(ctx context.Context, tx *sqlx.Tx, topic string, env model.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, aggregateMessage, env.ID, topic, payload)
		return err
	})
}
