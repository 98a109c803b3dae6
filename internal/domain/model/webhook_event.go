package model

import "time"

type WebhookOutcome string

const (
	WebhookOutcomeApplied   WebhookOutcome = "applied"
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
	WebhookOutcomeUnmatched WebhookOutcome = "unmatched"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
)

// WebhookEvent is the audit record of one gateway callback delivery.
type WebhookEvent struct {
	ID              string // ULID, sortable by arrival
	Event           string
	GatewayObjectID string
	Payload         []byte
	Outcome         WebhookOutcome
	Error           string
	ReceivedAt      time.Time
}
