package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"coursehub/internal/apperr"
	"coursehub/internal/money"
)

var ErrInvalidPayload = apperr.Validation("invalid_event_payload", "event payload is malformed")

// Event is one verified processor notification. The set of implementations
// is closed; anything the service does not understand decodes to Unknown.
type Event interface {
	EventID() string
	Kind() string
	isEvent()
}

type base struct {
	ID string
}

func (b base) EventID() string { return b.ID }
func (base) isEvent()          {}

// CheckoutCompleted carries the processor's period when the object has one.
// Otherwise the period starts at the event's creation time, so replays of
// the same event always describe the same period.
type CheckoutCompleted struct {
	base
	OrganizerID    int
	CustomerID     string
	SubscriptionID string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	AmountTotal    money.Cents
}

type SubscriptionUpdated struct {
	base
	SubscriptionID string
	Status         string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

type SubscriptionDeleted struct {
	base
	SubscriptionID string
}

type InvoicePaid struct {
	base
	SubscriptionID string
	PeriodEnd      time.Time
}

type InvoicePaymentFailed struct {
	base
	SubscriptionID string
}

// Unknown is acknowledged and ignored.
type Unknown struct {
	base
	Type string
}

func (CheckoutCompleted) Kind() string    { return "checkout_completed" }
func (SubscriptionUpdated) Kind() string  { return "subscription_updated" }
func (SubscriptionDeleted) Kind() string  { return "subscription_deleted" }
func (InvoicePaid) Kind() string          { return "invoice_paid" }
func (InvoicePaymentFailed) Kind() string { return "invoice_payment_failed" }
func (Unknown) Kind() string              { return "unknown" }

// Wire type names sent by the processor.
const (
	typeCheckoutCompleted       = "checkout.session.completed"
	typeSubscriptionUpdated     = "customer.subscription.updated"
	typeSubscriptionDeleted     = "customer.subscription.deleted"
	typeInvoicePaid             = "invoice.paid"
	typeInvoicePaymentSucceeded = "invoice.payment_succeeded"
	typeInvoicePaymentFailed    = "invoice.payment_failed"
)

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutObject struct {
	Customer           string            `json:"customer"`
	Subscription       string            `json:"subscription"`
	AmountTotal        int64             `json:"amount_total"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
}

type subscriptionObject struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

type invoiceObject struct {
	Subscription string `json:"subscription"`
	PeriodEnd    int64  `json:"period_end"`
	Lines        struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// ParseEvent decodes a verified payload into its Event variant.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrInvalidPayload.Wrap(err)
	}
	if env.Type == "" {
		return nil, ErrInvalidPayload.Wrap(fmt.Errorf("event type is missing"))
	}
	b := base{ID: env.ID}

	switch env.Type {
	case typeCheckoutCompleted:
		var o checkoutObject
		if err := decodeObject(env, &o); err != nil {
			return nil, err
		}
		ev := CheckoutCompleted{
			base:           b,
			CustomerID:     o.Customer,
			SubscriptionID: o.Subscription,
			PeriodStart:    unixOrZero(o.CurrentPeriodStart),
			PeriodEnd:      unixOrZero(o.CurrentPeriodEnd),
			AmountTotal:    money.Cents(o.AmountTotal),
		}
		if ev.PeriodStart.IsZero() {
			ev.PeriodStart = unixOrZero(env.Created)
		}
		if v := o.Metadata["organizer_id"]; v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				return nil, ErrInvalidPayload.Wrap(fmt.Errorf("organizer_id metadata %q: %w", v, err))
			}
			ev.OrganizerID = id
		}
		return ev, nil

	case typeSubscriptionUpdated, typeSubscriptionDeleted:
		var o subscriptionObject
		if err := decodeObject(env, &o); err != nil {
			return nil, err
		}
		if env.Type == typeSubscriptionDeleted {
			return SubscriptionDeleted{base: b, SubscriptionID: o.ID}, nil
		}
		return SubscriptionUpdated{
			base:           b,
			SubscriptionID: o.ID,
			Status:         o.Status,
			PeriodStart:    unixOrZero(o.CurrentPeriodStart),
			PeriodEnd:      unixOrZero(o.CurrentPeriodEnd),
		}, nil

	case typeInvoicePaid, typeInvoicePaymentSucceeded, typeInvoicePaymentFailed:
		var o invoiceObject
		if err := decodeObject(env, &o); err != nil {
			return nil, err
		}
		if env.Type == typeInvoicePaymentFailed {
			return InvoicePaymentFailed{base: b, SubscriptionID: o.Subscription}, nil
		}
		end := o.PeriodEnd
		if len(o.Lines.Data) > 0 && o.Lines.Data[0].Period.End > 0 {
			end = o.Lines.Data[0].Period.End
		}
		return InvoicePaid{base: b, SubscriptionID: o.Subscription, PeriodEnd: unixOrZero(end)}, nil
	}

	return Unknown{base: b, Type: env.Type}, nil
}

func decodeObject(env envelope, dst any) error {
	if len(env.Data.Object) == 0 {
		return ErrInvalidPayload.Wrap(fmt.Errorf("%s: data.object is missing", env.Type))
	}
	if err := json.Unmarshal(env.Data.Object, dst); err != nil {
		return ErrInvalidPayload.Wrap(fmt.Errorf("%s: %w", env.Type, err))
	}
	return nil
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
