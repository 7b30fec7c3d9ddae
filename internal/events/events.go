// Package events publishes billing domain events to the message broker so
// downstream consumers (payouts, analytics, notifications) do not have to
// poll the primary database. Publishing is best effort: callers log failures
// and carry on, since the database row is the source of truth.
package events

import (
	"context"
	"time"
)

const (
	QueueLedgerTransaction  = "ledger.transaction"
	QueueSubscriptionChange = "subscription.changed"
)

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// TransactionEvent is emitted when a ledger row is opened or changes status.
type TransactionEvent struct {
	TransactionID          int        `json:"transaction_id"`
	Type                   string     `json:"type"`
	Status                 string     `json:"status"`
	PreviousStatus         string     `json:"previous_status,omitempty"`
	AmountCents            int64      `json:"amount_cents"`
	CommissionCents        int64      `json:"commission_cents"`
	OrganizerEarningsCents int64      `json:"organizer_earnings_cents"`
	OrganizerID            int        `json:"organizer_id"`
	ParticipantID          *int       `json:"participant_id,omitempty"`
	PaymentDate            *time.Time `json:"payment_date,omitempty"`
	OccurredAt             time.Time  `json:"occurred_at"`
}

// SubscriptionEvent is emitted after any subscription lifecycle write.
type SubscriptionEvent struct {
	OrganizerID int       `json:"organizer_id"`
	Status      string    `json:"status"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Source      string    `json:"source"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Noop discards events; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
