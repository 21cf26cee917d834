package model

type SMS struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
	From  string `json:"from,omitempty"`
}

type Recipient struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// SMSResult is the per-recipient outcome of a send; a batch never fails as a whole.
type SMSResult struct {
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Segments  int    `json:"segments"`
}

// ProviderResult is what an upstream provider acknowledged for one SMS.
type ProviderResult struct {
	Provider  string `json:"provider"`
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Cost      string `json:"cost,omitempty"`
}
