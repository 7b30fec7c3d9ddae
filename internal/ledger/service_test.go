package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coursehub/internal/events"
	"coursehub/internal/money"
	"coursehub/internal/pricing"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Insert(ctx context.Context, t *Transaction) (*Transaction, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *MockRepo) GetByID(ctx context.Context, id int) (*Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *MockRepo) FindByRef(ctx context.Context, ref Ref) (*Transaction, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *MockRepo) TransitionPending(ctx context.Context, id int, to Status) (*Transaction, error) {
	args := m.Called(ctx, id, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *MockRepo) Aggregate(ctx context.Context, f Filter) ([]TypeTotals, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TypeTotals), args.Error(1)
}

func (m *MockRepo) Daily(ctx context.Context, f Filter) ([]DayTotals, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]DayTotals), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context, f Filter, limit, offset int) ([]Transaction, error) {
	args := m.Called(ctx, f, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Transaction), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, queue string, payload any) error {
	return m.Called(ctx, queue, payload).Error(0)
}

func newTestService(t *testing.T, repo Repository, pub events.Publisher) *service {
	policy, err := pricing.NewPolicy(pricing.StandardDefaults())
	require.NoError(t, err)
	s := NewService(repo, policy, pub).(*service)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestOpen(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	s := newTestService(t, repo, pub)
	ctx := context.Background()

	repo.On("Insert", ctx, mock.MatchedBy(func(tx *Transaction) bool {
		return tx.Type == TypeConsultation && tx.Status == StatusCompleted && tx.PaymentDate != nil
	})).Return(&Transaction{ID: 11, Type: TypeConsultation, Status: StatusCompleted, Amount: 30000, Commission: 4500, OrganizerEarnings: 25500, OrganizerID: 4}, nil)
	pub.On("Publish", ctx, events.QueueLedgerTransaction, mock.MatchedBy(func(ev events.TransactionEvent) bool {
		return ev.TransactionID == 11 && ev.PreviousStatus == "" && ev.OrganizerEarningsCents == 25500
	})).Return(nil)

	tx, err := s.Open(ctx, OpenParams{
		Type:        TypeConsultation,
		Split:       money.NewSplit(30000, 4500),
		Status:      StatusCompleted,
		OrganizerID: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, tx.ID)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestOpenRejectsInvalidParams(t *testing.T) {
	repo := new(MockRepo)
	s := newTestService(t, repo, nil)

	_, err := s.Open(context.Background(), OpenParams{Type: "gift", Status: StatusPending, OrganizerID: 1})
	assert.ErrorIs(t, err, ErrInvalidType)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to completed", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		s := newTestService(t, repo, pub)

		paid := time.Now()
		repo.On("TransitionPending", ctx, 1, StatusCompleted).
			Return(&Transaction{ID: 1, Status: StatusCompleted, PaymentDate: &paid}, nil)
		pub.On("Publish", ctx, events.QueueLedgerTransaction, mock.MatchedBy(func(ev events.TransactionEvent) bool {
			return ev.PreviousStatus == "pending" && ev.Status == "completed"
		})).Return(nil)

		tx, err := s.Transition(ctx, 1, StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, tx.Status)
		pub.AssertExpectations(t)
	})

	t.Run("terminal is a no-op success", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		s := newTestService(t, repo, pub)

		repo.On("TransitionPending", ctx, 1, StatusCompleted).Return(nil, errNotPending)
		repo.On("GetByID", ctx, 1).Return(&Transaction{ID: 1, Status: StatusCompleted}, nil)

		for i := 0; i < 2; i++ {
			tx, err := s.Transition(ctx, 1, StatusCompleted)
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, tx.Status)
		}
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cancel after completion leaves it completed", func(t *testing.T) {
		repo := new(MockRepo)
		s := newTestService(t, repo, nil)

		repo.On("TransitionPending", ctx, 2, StatusCancelled).Return(nil, errNotPending)
		repo.On("GetByID", ctx, 2).Return(&Transaction{ID: 2, Status: StatusCompleted}, nil)

		tx, err := s.Transition(ctx, 2, StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, tx.Status)
	})

	t.Run("missing transaction", func(t *testing.T) {
		repo := new(MockRepo)
		s := newTestService(t, repo, nil)

		repo.On("TransitionPending", ctx, 3, StatusCompleted).Return(nil, errNotPending)
		repo.On("GetByID", ctx, 3).Return(nil, ErrNotFound)

		_, err := s.Transition(ctx, 3, StatusCompleted)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("back to pending is invalid", func(t *testing.T) {
		s := newTestService(t, new(MockRepo), nil)
		_, err := s.Transition(ctx, 1, StatusPending)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestTransitionByRef(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	s := newTestService(t, repo, nil)

	repo.On("FindByRef", ctx, EnrollmentRef(8)).Return(&Transaction{ID: 21, Status: StatusPending}, nil)
	repo.On("TransitionPending", ctx, 21, StatusCancelled).Return(&Transaction{ID: 21, Status: StatusCancelled}, nil)

	tx, err := s.TransitionByRef(ctx, EnrollmentRef(8), StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, tx.Status)
}

func TestAggregateTotals(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	s := newTestService(t, repo, nil)

	repo.On("Aggregate", ctx, Filter{}).Return([]TypeTotals{
		{Type: TypeCourseLive, Totals: Totals{Count: 2, Revenue: 40000, Commission: 4000, Earnings: 36000}},
		{Type: TypeCourseOnline, Totals: Totals{Count: 1, Revenue: 50000, Commission: 5000, Earnings: 45000}},
	}, nil)

	sum, err := s.Aggregate(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Totals.Count)
	assert.Equal(t, money.Cents(90000), sum.Totals.Revenue)
	assert.Equal(t, sum.Totals.Revenue, sum.Totals.Commission+sum.Totals.Earnings)
}

func TestAggregateEmpty(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	s := newTestService(t, repo, nil)

	repo.On("Aggregate", ctx, Filter{}).Return(nil, nil)

	sum, err := s.Aggregate(ctx, Filter{})
	require.NoError(t, err)
	assert.NotNil(t, sum.ByType)
	assert.Zero(t, sum.Totals.Count)
}

func TestQueriesRejectInvertedRange(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	s := newTestService(t, repo, nil)

	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	for name, to := range map[string]time.Time{
		"before": from.Add(-24 * time.Hour),
		"equal":  from,
	} {
		t.Run(name, func(t *testing.T) {
			f := Filter{From: &from, To: &to}

			_, err := s.Aggregate(ctx, f)
			assert.ErrorIs(t, err, ErrInvalidRange)
			_, err = s.Daily(ctx, f)
			assert.ErrorIs(t, err, ErrInvalidRange)
			_, err = s.List(ctx, f, 50, 0)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
	repo.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Daily", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordCompanyPackage(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	s := newTestService(t, repo, nil)

	rate := money.Pct(150)
	repo.On("Insert", ctx, mock.MatchedBy(func(tx *Transaction) bool {
		// rate clamps to 100%
		return tx.Type == TypeCompanyPackage && tx.Commission == 120000 && tx.OrganizerEarnings == 0
	})).Return(&Transaction{ID: 5, Type: TypeCompanyPackage, Status: StatusCompleted}, nil)

	tx, err := s.RecordCompanyPackage(ctx, CompanyPackageRequest{OrganizerID: 2, Amount: 120000, CommissionRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, 5, tx.ID)
	repo.AssertExpectations(t)
}
