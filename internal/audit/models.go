// Package audit records user-visible actions on the dashboards: disclaimer
// acknowledgements, dataset downloads and contact form submissions.
package audit

import "time"

// Action names an audited action.
type Action string

const (
	ActionDisclaimerAcknowledged Action = "disclaimer_acknowledged"
	ActionDatasetExported        Action = "dataset_exported"
	ActionContactSubmitted       Action = "contact_submitted"
)

// Event is emitted from handlers and services. It stays transport-agnostic so
// the same event can go to Kafka, the log or a test sink.
type Event struct {
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	// Subject is what the action was about: a dashboard, an indicator code
	// or a dataset name.
	Subject string `json:"subject,omitempty"`
	Format  string `json:"format,omitempty"`
	Rows    int    `json:"rows,omitempty"`
	// EmailHash is the keyed hash of a contact email, never the address.
	EmailHash string `json:"email_hash,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
}
