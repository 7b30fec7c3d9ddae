package subscription

import "context"

// RenewFunc computes the row to store from the current one (nil when the
// organizer has none). It runs while the organizer's row is locked.
type RenewFunc func(cur *Subscription) Subscription

type Repository interface {
	GetByOrganizer(ctx context.Context, organizerID int) (*Subscription, error)
	Renew(ctx context.Context, organizerID int, next RenewFunc) (*Subscription, error)
	Cancel(ctx context.Context, organizerID int) (*Subscription, error)
	UpsertFromCheckout(ctx context.Context, c Checkout) (*Subscription, error)
	UpdateByProcessorID(ctx context.Context, processorSubscriptionID string, u ProcessorUpdate) (*Subscription, error)
}
