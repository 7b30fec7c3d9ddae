package subscription

import (
	"time"

	"coursehub/internal/apperr"
	"coursehub/internal/money"
)

// Status of a stored subscription. An organizer without a row has none.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"

	statusNone = "none"
)

type Subscription struct {
	ID                      int         `db:"id" json:"id"`
	OrganizerID             int         `db:"organizer_id" json:"organizer_id"`
	Status                  Status      `db:"status" json:"status"`
	StartDate               time.Time   `db:"start_date" json:"start_date"`
	EndDate                 time.Time   `db:"end_date" json:"end_date"`
	MonthlyPrice            money.Cents `db:"monthly_price_cents" json:"monthly_price_cents"`
	ProcessorCustomerID     *string     `db:"processor_customer_id" json:"processor_customer_id,omitempty"`
	ProcessorSubscriptionID *string     `db:"processor_subscription_id" json:"processor_subscription_id,omitempty"`
	CreatedAt               time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at" json:"updated_at"`
}

// Policy holds the lifecycle knobs read from configuration.
type Policy struct {
	PeriodDays int
	// CancelledGrantsUntilEnd keeps a cancelled subscription entitled until
	// its end date, matching cancel-at-period-end billing.
	CancelledGrantsUntilEnd bool
	DefaultMonthlyPrice     money.Cents
}

func DefaultPolicy() Policy {
	return Policy{PeriodDays: 30, CancelledGrantsUntilEnd: true, DefaultMonthlyPrice: 4900}
}

// Entitled reports whether sub authorizes course creation at now.
func (p Policy) Entitled(sub *Subscription, now time.Time) bool {
	if sub == nil || sub.EndDate.Before(now) {
		return false
	}
	switch sub.Status {
	case StatusActive:
		return true
	case StatusCancelled:
		return p.CancelledGrantsUntilEnd
	}
	return false
}

// nextPeriod computes the period after a renewal at now. An active
// subscription that has not lapsed stacks onto its current end date;
// anything else starts a fresh period.
func (p Policy) nextPeriod(cur *Subscription, now time.Time) (start, end time.Time) {
	if cur != nil && cur.Status == StatusActive && cur.EndDate.After(now) {
		return cur.StartDate, cur.EndDate.AddDate(0, 0, p.PeriodDays)
	}
	return now, now.AddDate(0, 0, p.PeriodDays)
}

type EntitlementState string

const (
	EntitlementNone    EntitlementState = "none"
	EntitlementActive  EntitlementState = "active"
	EntitlementExpired EntitlementState = "expired"
)

type Entitlement struct {
	State        EntitlementState `json:"state"`
	Subscription *Subscription    `json:"subscription,omitempty"`
}

// View is the shape returned by the subscription query endpoint.
type View struct {
	HasSubscription bool         `json:"hasSubscription"`
	Status          string       `json:"status"`
	IsActive        bool         `json:"isActive"`
	StartDate       *time.Time   `json:"startDate"`
	EndDate         *time.Time   `json:"endDate"`
	MonthlyPrice    *money.Cents `json:"monthlyPrice"`
}

// Checkout carries what a completed processor checkout tells us.
type Checkout struct {
	OrganizerID             int
	ProcessorCustomerID     string
	ProcessorSubscriptionID string
	PeriodStart             time.Time
	PeriodEnd               time.Time
	MonthlyPrice            money.Cents
}

// ProcessorUpdate is applied to the row matching a processor subscription
// id. Nil fields are left unchanged.
type ProcessorUpdate struct {
	Status      *Status
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

var (
	ErrNotFound        = apperr.NotFound("subscription_not_found", "subscription not found")
	ErrInvalidPrice    = apperr.Validation("invalid_monthly_price", "monthly price must not be negative")
	ErrInvalidCheckout = apperr.Validation("invalid_checkout", "checkout is missing organizer or period")
)
