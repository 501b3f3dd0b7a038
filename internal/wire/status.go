package wire

import "time"

// SentStatus is the best-effort delivery report published on the
// status topic after an outbound command is handled.
type SentStatus struct {
	ChatID                int64     `json:"chat_id"`
	MessageID             int       `json:"message_id"`
	Status                string    `json:"status"`
	Timestamp             time.Time `json:"timestamp"`
	OriginalMessageType   string    `json:"original_message_type"`
	OriginalCorrelationID *string   `json:"original_correlation_id"`
}

// Status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)
