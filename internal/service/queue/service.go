package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tuitora/tuitora-gateway/internal/metrics"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/repository"
	"github.com/tuitora/tuitora-gateway/internal/sms"
	"github.com/tuitora/tuitora-gateway/internal/util"
)

const DefaultBroadcastTopic = "sms.broadcast"

var ErrNothingToSend = errors.New("no valid recipients")

// Queued is one message accepted for asynchronous delivery.
type Queued struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

// Broadcast is the outcome of an enqueue: accepted messages plus recipients
// rejected before anything was persisted.
type Broadcast struct {
	Queued   []Queued          `json:"queued"`
	Rejected []model.SMSResult `json:"rejected,omitempty"`
}

// Service persists broadcast messages and their outbox events in a single
// transaction. The CDC relay publishes the outbox rows to Kafka, where the
// broadcast worker picks them up.
type Service struct {
	db     *sqlx.DB
	msgs   repository.MessagesRepository
	outbox repository.OutboxRepository
	topic  string
	from   string
}

func New(
	db *sqlx.DB,
	messagesRepo repository.MessagesRepository,
	outboxRepo repository.OutboxRepository,
	topic string,
	senderID string,
) *Service {
	if topic == "" {
		topic = DefaultBroadcastTopic
	}
	return &Service{
		db:     db,
		msgs:   messagesRepo,
		outbox: outboxRepo,
		topic:  topic,
		from:   senderID,
	}
}

// Enqueue personalizes message for each recipient, drops invalid numbers and
// writes `messages` + `outbox` rows for the rest in one transaction.
func (s *Service) Enqueue(ctx context.Context, schoolID int64, recipients []model.Recipient, message string) (Broadcast, error) {
	rows, out := plan(schoolID, recipients, message)
	if len(rows) == 0 {
		return out, ErrNothingToSend
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Broadcast{}, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range rows {
		if err := s.msgs.InsertQueued(ctx, tx, m); err != nil {
			return Broadcast{}, fmt.Errorf("insert message queued: %w", err)
		}

		env := model.Envelope{
			ID:       m.ID,
			SchoolID: schoolID,
			SMS:      model.SMS{Phone: m.Phone, Text: m.Text, From: s.from},
		}
		if err := s.outbox.InsertEnvelope(ctx, tx, s.topic, env); err != nil {
			return Broadcast{}, fmt.Errorf("insert outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Broadcast{}, err
	}

	metrics.BroadcastTotal.WithLabelValues("queued").Add(float64(len(rows)))
	return out, nil
}

// plan builds the rows to insert. Duplicate phone numbers are queued once.
func plan(schoolID int64, recipients []model.Recipient, message string) ([]model.Message, Broadcast) {
	var (
		rows []model.Message
		out  Broadcast
		seen = make(map[string]bool, len(recipients))
	)

	for _, r := range recipients {
		phone, err := util.ParsePhone(r.Phone)
		if err != nil {
			out.Rejected = append(out.Rejected, model.SMSResult{
				Recipient: strings.TrimSpace(r.Phone),
				Error:     err.Error(),
			})
			continue
		}
		if seen[phone] {
			continue
		}
		seen[phone] = true

		text := sms.Personalize(message, r.Name)
		m := model.Message{
			ID:       util.NewID(),
			SchoolID: schoolID,
			Phone:    phone,
			Text:     text,
			Segments: sms.Segments(text),
			Status:   model.StatusQueued,
		}
		rows = append(rows, m)
		out.Queued = append(out.Queued, Queued{ID: m.ID, Phone: phone})
	}

	return rows, out
}
