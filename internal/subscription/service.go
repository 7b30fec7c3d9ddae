package subscription

import (
	"context"
	"errors"
	"time"

	"coursehub/internal/events"
	"coursehub/internal/logger"
	"coursehub/internal/metrics"
	"coursehub/internal/money"
)

// CacheInvalidator drops any cached entitlement for an organizer.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, organizerID int) error
}

// Notifier is told about lifecycle changes the organizer should hear about.
type Notifier interface {
	SubscriptionPaymentFailed(ctx context.Context, organizerID int, endDate time.Time) error
}

type Service interface {
	Get(ctx context.Context, organizerID int) (*View, error)
	Renew(ctx context.Context, organizerID int, monthlyPrice money.Cents) (*Subscription, error)
	Cancel(ctx context.Context, organizerID int) (*Subscription, error)
	IsActive(ctx context.Context, organizerID int) (bool, error)
	Entitlement(ctx context.Context, organizerID int) (Entitlement, error)

	ActivateFromCheckout(ctx context.Context, c Checkout) (*Subscription, error)
	ApplyProcessorState(ctx context.Context, processorSubscriptionID string, u ProcessorUpdate) (*Subscription, error)
	MarkCancelledByRef(ctx context.Context, processorSubscriptionID string) (*Subscription, error)
	MarkExpiredByRef(ctx context.Context, processorSubscriptionID string) (*Subscription, error)
	RefreshPeriodByRef(ctx context.Context, processorSubscriptionID string, periodEnd *time.Time) (*Subscription, error)
}

type service struct {
	repo      Repository
	policy    Policy
	cache     CacheInvalidator
	publisher events.Publisher
	notifier  Notifier
	now       func() time.Time
}

func NewService(repo Repository, policy Policy, cache CacheInvalidator, publisher events.Publisher, notifier Notifier) Service {
	if policy.PeriodDays <= 0 {
		policy.PeriodDays = DefaultPolicy().PeriodDays
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &service{
		repo:      repo,
		policy:    policy,
		cache:     cache,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
	}
}

func (s *service) Get(ctx context.Context, organizerID int) (*View, error) {
	sub, err := s.repo.GetByOrganizer(ctx, organizerID)
	if errors.Is(err, ErrNotFound) {
		return &View{Status: statusNone}, nil
	}
	if err != nil {
		return nil, err
	}

	start, end, price := sub.StartDate, sub.EndDate, sub.MonthlyPrice
	return &View{
		HasSubscription: true,
		Status:          string(sub.Status),
		IsActive:        s.policy.Entitled(sub, s.now()),
		StartDate:       &start,
		EndDate:         &end,
		MonthlyPrice:    &price,
	}, nil
}

// Renew starts or extends the organizer's subscription. A zero price keeps
// the stored price, or the configured default for a first subscription.
func (s *service) Renew(ctx context.Context, organizerID int, monthlyPrice money.Cents) (*Subscription, error) {
	if monthlyPrice.IsNegative() {
		return nil, ErrInvalidPrice
	}

	now := s.now()
	sub, err := s.repo.Renew(ctx, organizerID, func(cur *Subscription) Subscription {
		start, end := s.policy.nextPeriod(cur, now)
		price := monthlyPrice
		if price == 0 {
			price = s.policy.DefaultMonthlyPrice
			if cur != nil {
				price = cur.MonthlyPrice
			}
		}
		return Subscription{Status: StatusActive, StartDate: start, EndDate: end, MonthlyPrice: price}
	})
	if err != nil {
		return nil, err
	}

	logger.Info("subscription renewed", "organizer_id", organizerID, "end_date", sub.EndDate)
	s.changed(ctx, "renew", sub)
	return sub, nil
}

func (s *service) Cancel(ctx context.Context, organizerID int) (*Subscription, error) {
	sub, err := s.repo.Cancel(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	logger.Info("subscription cancelled", "organizer_id", organizerID, "end_date", sub.EndDate)
	s.changed(ctx, "cancel", sub)
	return sub, nil
}

func (s *service) IsActive(ctx context.Context, organizerID int) (bool, error) {
	e, err := s.Entitlement(ctx, organizerID)
	if err != nil {
		return false, err
	}
	return e.State == EntitlementActive, nil
}

func (s *service) Entitlement(ctx context.Context, organizerID int) (Entitlement, error) {
	sub, err := s.repo.GetByOrganizer(ctx, organizerID)
	if errors.Is(err, ErrNotFound) {
		return Entitlement{State: EntitlementNone}, nil
	}
	if err != nil {
		return Entitlement{}, err
	}
	if s.policy.Entitled(sub, s.now()) {
		return Entitlement{State: EntitlementActive, Subscription: sub}, nil
	}
	return Entitlement{State: EntitlementExpired, Subscription: sub}, nil
}

func (s *service) ActivateFromCheckout(ctx context.Context, c Checkout) (*Subscription, error) {
	if c.OrganizerID <= 0 {
		return nil, ErrInvalidCheckout
	}
	now := s.now()
	if c.PeriodStart.IsZero() {
		c.PeriodStart = now
	}
	if c.PeriodEnd.IsZero() {
		c.PeriodEnd = c.PeriodStart.AddDate(0, 0, s.policy.PeriodDays)
	}
	if c.MonthlyPrice <= 0 {
		c.MonthlyPrice = s.policy.DefaultMonthlyPrice
	}

	sub, err := s.repo.UpsertFromCheckout(ctx, c)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, "checkout", sub)
	return sub, nil
}

func (s *service) ApplyProcessorState(ctx context.Context, ref string, u ProcessorUpdate) (*Subscription, error) {
	sub, err := s.repo.UpdateByProcessorID(ctx, ref, u)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, "processor_update", sub)
	return sub, nil
}

func (s *service) MarkCancelledByRef(ctx context.Context, ref string) (*Subscription, error) {
	st := StatusCancelled
	sub, err := s.repo.UpdateByProcessorID(ctx, ref, ProcessorUpdate{Status: &st})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, "processor_cancel", sub)
	return sub, nil
}

func (s *service) MarkExpiredByRef(ctx context.Context, ref string) (*Subscription, error) {
	st := StatusExpired
	sub, err := s.repo.UpdateByProcessorID(ctx, ref, ProcessorUpdate{Status: &st})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, "payment_failed", sub)

	if s.notifier != nil {
		if err := s.notifier.SubscriptionPaymentFailed(ctx, sub.OrganizerID, sub.EndDate); err != nil {
			logger.Warn("failed to queue payment failure notice", "organizer_id", sub.OrganizerID, "error", err)
		}
	}
	return sub, nil
}

// RefreshPeriodByRef re-confirms the subscription after a paid invoice.
func (s *service) RefreshPeriodByRef(ctx context.Context, ref string, periodEnd *time.Time) (*Subscription, error) {
	st := StatusActive
	sub, err := s.repo.UpdateByProcessorID(ctx, ref, ProcessorUpdate{Status: &st, PeriodEnd: periodEnd})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, "invoice_paid", sub)
	return sub, nil
}

func (s *service) changed(ctx context.Context, op string, sub *Subscription) {
	metrics.RecordSubscription(op, string(sub.Status))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, sub.OrganizerID); err != nil {
			logger.Warn("failed to invalidate entitlement cache", "organizer_id", sub.OrganizerID, "error", err)
		}
	}

	ev := events.SubscriptionEvent{
		OrganizerID: sub.OrganizerID,
		Status:      string(sub.Status),
		StartDate:   sub.StartDate,
		EndDate:     sub.EndDate,
		Source:      op,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, events.QueueSubscriptionChange, ev); err != nil {
		logger.Warn("failed to publish subscription event", "organizer_id", sub.OrganizerID, "error", err)
	}
}
