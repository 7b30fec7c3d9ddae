// Package billing verifies and applies payment processor events. Every write
// it makes is keyed by the processor's own identifiers, so duplicated or
// replayed deliveries converge on the same subscription state.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"

	"coursehub/internal/db"
	"coursehub/internal/logger"
	"coursehub/internal/metrics"
	"coursehub/internal/subscription"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	// OutcomeMissing means the event names a subscription that does not
	// exist locally yet. It is acknowledged, not retried.
	OutcomeMissing Outcome = "missing"
	// OutcomeMalformed is a signed payload that cannot be decoded. Redelivery
	// would not change it, so it is logged and acknowledged.
	OutcomeMalformed Outcome = "malformed"
)

type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

type Reconciler struct {
	subs  subscription.Service
	retry RetryConfig
}

func NewReconciler(subs subscription.Service, rc RetryConfig) *Reconciler {
	if rc.Attempts == 0 {
		rc.Attempts = 1
	}
	return &Reconciler{subs: subs, retry: rc}
}

// Handle applies ev. Transient storage failures are retried; an error
// returned from here means the processor should redeliver.
func (r *Reconciler) Handle(ctx context.Context, ev Event) (Outcome, error) {
	var outcome Outcome
	err := retry.Do(
		func() error {
			var err error
			outcome, err = r.apply(ctx, ev)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.retry.Attempts),
		retry.Delay(r.retry.Delay),
		retry.MaxDelay(r.retry.MaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(db.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("retrying payment event", "event_id", ev.EventID(), "kind", ev.Kind(), "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		metrics.RecordWebhookEvent(ev.Kind(), "failed")
		return "", err
	}
	metrics.RecordWebhookEvent(ev.Kind(), string(outcome))
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, ev Event) (Outcome, error) {
	var err error

	switch e := ev.(type) {
	case CheckoutCompleted:
		if e.OrganizerID <= 0 {
			logger.Warn("checkout without organizer metadata ignored", "event_id", e.EventID(), "subscription_ref", e.SubscriptionID)
			return OutcomeIgnored, nil
		}
		_, err = r.subs.ActivateFromCheckout(ctx, subscription.Checkout{
			OrganizerID:             e.OrganizerID,
			ProcessorCustomerID:     e.CustomerID,
			ProcessorSubscriptionID: e.SubscriptionID,
			PeriodStart:             e.PeriodStart,
			PeriodEnd:               e.PeriodEnd,
			MonthlyPrice:            e.AmountTotal,
		})

	case SubscriptionUpdated:
		_, err = r.subs.ApplyProcessorState(ctx, e.SubscriptionID, subscription.ProcessorUpdate{
			Status:      mapProcessorStatus(e.Status),
			PeriodStart: timePtr(e.PeriodStart),
			PeriodEnd:   timePtr(e.PeriodEnd),
		})

	case SubscriptionDeleted:
		_, err = r.subs.MarkCancelledByRef(ctx, e.SubscriptionID)

	case InvoicePaid:
		_, err = r.subs.RefreshPeriodByRef(ctx, e.SubscriptionID, timePtr(e.PeriodEnd))

	case InvoicePaymentFailed:
		_, err = r.subs.MarkExpiredByRef(ctx, e.SubscriptionID)

	case Unknown:
		logger.Debug("ignoring unknown payment event", "event_id", e.EventID(), "type", e.Type)
		return OutcomeIgnored, nil

	default:
		logger.Warn("unhandled payment event variant", "event_id", ev.EventID(), "kind", ev.Kind())
		return OutcomeIgnored, nil
	}

	if errors.Is(err, subscription.ErrNotFound) {
		// No ordering guard: an update that outruns its checkout is dropped
		// and the later checkout establishes the row.
		logger.Warn("payment event for unknown subscription",
			"event_id", ev.EventID(),
			"kind", ev.Kind(),
		)
		return OutcomeMissing, nil
	}
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// mapProcessorStatus translates the processor's subscription status. Nil
// leaves the local status unchanged.
func mapProcessorStatus(s string) *subscription.Status {
	var st subscription.Status
	switch s {
	case "active", "trialing":
		st = subscription.StatusActive
	case "canceled", "cancelled", "incomplete_expired":
		st = subscription.StatusCancelled
	case "past_due", "unpaid", "incomplete":
		st = subscription.StatusExpired
	default:
		return nil
	}
	return &st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
