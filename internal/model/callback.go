package model

import "time"

// DeliveryReport is the provider's final status for a previously sent SMS.
type DeliveryReport struct {
	ID            string    `db:"id"             json:"id"             form:"id"`
	Status        string    `db:"status"         json:"status"         form:"status"`
	PhoneNumber   string    `db:"phone_number"   json:"phoneNumber"    form:"phoneNumber"`
	NetworkCode   string    `db:"network_code"   json:"networkCode"    form:"networkCode"`
	FailureReason string    `db:"failure_reason" json:"failureReason"  form:"failureReason"`
	RetryCount    int       `db:"retry_count"    json:"retryCount"     form:"retryCount"`
	ReceivedAt    time.Time `db:"received_at"    json:"receivedAt"`
}

// Delivered reports whether the provider status means the handset got it.
func (r DeliveryReport) Delivered() bool {
	switch r.Status {
	case "Success", "success", "Delivered", "delivered", "DELIVRD":
		return true
	}
	return false
}

// IncomingSMS is a mobile-originated message. Field names differ between
// providers, so everything the parser did not map is kept in Raw.
type IncomingSMS struct {
	ID         string            `db:"id"          json:"id"`
	From       string            `db:"from_number" json:"from"`
	To         string            `db:"to_number"   json:"to"`
	Text       string            `db:"text"        json:"text"`
	LinkID     string            `db:"link_id"     json:"linkId,omitempty"`
	Date       string            `db:"date"        json:"date,omitempty"`
	Raw        map[string]string `db:"-"           json:"raw,omitempty"`
	ReceivedAt time.Time         `db:"received_at" json:"receivedAt"`
}

// Failed reports whether the provider gave up on the message.
func (r DeliveryReport) Failed() bool {
	switch r.Status {
	case "Failed", "failed", "Rejected", "rejected", "UNDELIV", "EXPIRED", "REJECTD":
		return true
	}
	return false
}
