// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Routing keys equal queue names on the default exchange.
const (
	RegistrationCreatedQueue = "registration.created"
	PaymentDiagnosticsQueue  = "payment.diagnostics"
)

// RegistrationCreatedEvent is published once per primary application or
// ticket after all of its records are written.  It carries what a
// downstream notifier needs to tell organizers without reading the
// primary database.
type RegistrationCreatedEvent struct {
	MessageID  string `json:"message_id"`
	Collection string `json:"collection"`  // applications | tickets
	PublicID   string `json:"public_id"`   // the only externally addressable handle
	TargetName string `json:"target_name"` // event or store name
	OptionName string `json:"option_name"` // space type or ticket type name
	Method     string `json:"payment_method"`
	Amount     int64  `json:"amount"`
	CreatedAt  string `json:"created_at"`
}

// PaymentDiagnosticEvent reports a gateway event the reconciler
// acknowledged without applying.  It carries enough context to act on
// without replaying the event.
type PaymentDiagnosticEvent struct {
	MessageID string  `json:"message_id"`
	Env       string  `json:"env"`
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	IntentID  string  `json:"payment_intent_id,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	PaymentID *uint64 `json:"payment_id,omitempty"`
	Reason    string  `json:"reason"`
	At        string  `json:"at"`
}
