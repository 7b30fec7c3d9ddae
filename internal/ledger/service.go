package ledger

import (
	"context"
	"errors"
	"time"

	"coursehub/internal/events"
	"coursehub/internal/logger"
	"coursehub/internal/metrics"
	"coursehub/internal/money"
	"coursehub/internal/pricing"
)

type Service interface {
	Open(ctx context.Context, p OpenParams) (*Transaction, error)
	Opened(ctx context.Context, t *Transaction)
	Transition(ctx context.Context, id int, to Status) (*Transaction, error)
	TransitionByRef(ctx context.Context, ref Ref, to Status) (*Transaction, error)
	Get(ctx context.Context, id int) (*Transaction, error)
	Aggregate(ctx context.Context, f Filter) (*Summary, error)
	Daily(ctx context.Context, f Filter) ([]DayTotals, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]Transaction, error)
	RecordCompanyPackage(ctx context.Context, req CompanyPackageRequest) (*Transaction, error)
}

// CompanyPackageRequest records a package sold directly to a company on an
// organizer's behalf. Packages are paid up front, so the row opens completed.
type CompanyPackageRequest struct {
	OrganizerID    int
	Amount         money.Cents
	CommissionRate *money.Percent
	Description    string
}

type service struct {
	repo      Repository
	policy    *pricing.Policy
	publisher events.Publisher
	now       func() time.Time
}

func NewService(repo Repository, policy *pricing.Policy, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &service{
		repo:      repo,
		policy:    policy,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *service) Open(ctx context.Context, p OpenParams) (*Transaction, error) {
	t, err := NewTransaction(p, s.now())
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Insert(ctx, t)
	if err != nil {
		return nil, err
	}
	s.Opened(ctx, created)
	return created, nil
}

// Opened records metrics and emits the event for a row inserted elsewhere,
// e.g. inside a booking's database transaction.
func (s *service) Opened(ctx context.Context, t *Transaction) {
	metrics.RecordTransactionOpened(string(t.Type), string(t.Status), int64(t.Amount))
	s.publish(ctx, t, "")
}

// Transition applies PENDING→COMPLETED or PENDING→CANCELLED. A transaction
// that is already terminal is returned unchanged, so retried confirmations
// succeed.
func (s *service) Transition(ctx context.Context, id int, to Status) (*Transaction, error) {
	if to != StatusCompleted && to != StatusCancelled {
		return nil, ErrInvalidTransition
	}

	t, err := s.repo.TransitionPending(ctx, id, to)
	if err == nil {
		metrics.RecordTransition(string(to), true)
		s.publish(ctx, t, StatusPending)
		return t, nil
	}
	if !errors.Is(err, errNotPending) {
		return nil, err
	}

	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != to {
		logger.Warn("ledger transition ignored, transaction already terminal",
			"transaction_id", id,
			"status", cur.Status,
			"requested", to,
		)
	}
	metrics.RecordTransition(string(to), false)
	return cur, nil
}

func (s *service) TransitionByRef(ctx context.Context, ref Ref, to Status) (*Transaction, error) {
	t, err := s.repo.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, t.ID, to)
}

func (s *service) Get(ctx context.Context, id int) (*Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) Aggregate(ctx context.Context, f Filter) (*Summary, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	rows, err := s.repo.Aggregate(ctx, f)
	if err != nil {
		return nil, err
	}

	sum := &Summary{ByType: rows}
	if sum.ByType == nil {
		sum.ByType = []TypeTotals{}
	}
	for _, r := range rows {
		sum.Totals.Count += r.Count
		sum.Totals.Revenue += r.Revenue
		sum.Totals.Commission += r.Commission
		sum.Totals.Earnings += r.Earnings
	}
	return sum, nil
}

func (s *service) Daily(ctx context.Context, f Filter) ([]DayTotals, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return s.repo.Daily(ctx, f)
}

func (s *service) List(ctx context.Context, f Filter, limit, offset int) ([]Transaction, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *service) RecordCompanyPackage(ctx context.Context, req CompanyPackageRequest) (*Transaction, error) {
	rate := req.CommissionRate
	if rate != nil {
		clamped := money.ClampPercent(*rate)
		rate = &clamped
	}
	split, err := s.policy.CompanyPackage(pricing.CompanyPackageInput{
		Amount:         req.Amount,
		CommissionRate: rate,
	})
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, OpenParams{
		Type:        TypeCompanyPackage,
		Split:       split,
		Status:      StatusCompleted,
		OrganizerID: req.OrganizerID,
		Description: req.Description,
	})
}

func (s *service) publish(ctx context.Context, t *Transaction, previous Status) {
	ev := events.TransactionEvent{
		TransactionID:          t.ID,
		Type:                   string(t.Type),
		Status:                 string(t.Status),
		PreviousStatus:         string(previous),
		AmountCents:            int64(t.Amount),
		CommissionCents:        int64(t.Commission),
		OrganizerEarningsCents: int64(t.OrganizerEarnings),
		OrganizerID:            t.OrganizerID,
		ParticipantID:          t.ParticipantID,
		PaymentDate:            t.PaymentDate,
		OccurredAt:             s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, events.QueueLedgerTransaction, ev); err != nil {
		logger.Warn("failed to publish ledger event", "transaction_id", t.ID, "error", err)
	}
}
