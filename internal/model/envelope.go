package model

import (
	"encoding/json"
	"errors"
)

// Envelope is the payload published to Kafka (via Debezium outbox SMT).
type Envelope struct {
	ID       string `json:"id"`        // message ULID
	SchoolID int64  `json:"school_id"` // tenant id
	SMS      SMS    `json:"sms"`
}

var ErrEmptyEnvelope = errors.New("envelope has no message id")

// DecodeEnvelope accepts the outbox payload either as a JSON object or, when
// the event router does not expand JSON columns, as a JSON string holding it.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		b = []byte(s)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, err
	}
	if env.ID == "" {
		return Envelope{}, ErrEmptyEnvelope
	}
	return env, nil
}
