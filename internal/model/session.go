package model

import "time"

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionContinue  SessionStatus = "continue"
	SessionCompleted SessionStatus = "completed"
)

func (s SessionStatus) String() string { return string(s) }

// USSDSession is the best-effort record of one dial-in. It is never read back
// to decide where the caller is in the menu; Text carries that on every callback.
type USSDSession struct {
	SessionID    string        `json:"sessionId"`
	PhoneNumber  string        `json:"phoneNumber"`
	ServiceCode  string        `json:"serviceCode,omitempty"`
	NetworkCode  string        `json:"networkCode,omitempty"`
	Text         string        `json:"text"`
	LastResponse string        `json:"lastResponse,omitempty"`
	Status       SessionStatus `json:"status"`
	Turns        int           `json:"turns"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// USSDResponse is what the menu decided for one callback, before wire formatting.
type USSDResponse struct {
	Text   string        `json:"text"`
	Status SessionStatus `json:"status"`
}

func Continue(text string) USSDResponse {
	return USSDResponse{Text: text, Status: SessionContinue}
}

func End(text string) USSDResponse {
	return USSDResponse{Text: text, Status: SessionCompleted}
}

func (r USSDResponse) Terminal() bool { return r.Status == SessionCompleted }

// SessionTurn is one audited callback, stored in ClickHouse.
type SessionTurn struct {
	SessionID   string    `db:"session_id"   json:"session_id"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	ServiceCode string    `db:"service_code" json:"service_code"`
	Text        string    `db:"text"         json:"text"`
	Depth       int       `db:"depth"        json:"depth"`
	Status      string    `db:"status"       json:"status"`
	Response    string    `db:"response"     json:"response"`
	LookupError string    `db:"lookup_error" json:"lookup_error,omitempty"`
	LatencyMs   int64     `db:"latency_ms"   json:"latency_ms"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
