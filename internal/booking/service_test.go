package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/auth"
	"coursehub/internal/course"
	"coursehub/internal/ledger"
	"coursehub/internal/money"
	"coursehub/internal/pricing"
)

// memRepo mimics the database constraints the booking flows rely on: one
// active enrollment per (course, participant), one purchase per pair and a
// compare-and-swap on consultation status.
type memRepo struct {
	mu            sync.Mutex
	nextID        int
	enrollments   map[int]*Enrollment
	purchases     map[int]*Purchase
	consultations map[int]*Consultation
	courses       map[int]*course.Course
}

func newMemRepo(courses ...*course.Course) *memRepo {
	r := &memRepo{
		enrollments:   map[int]*Enrollment{},
		purchases:     map[int]*Purchase{},
		consultations: map[int]*Consultation{},
		courses:       map[int]*course.Course{},
	}
	for _, c := range courses {
		r.courses[c.ID] = c
	}
	return r
}

func (r *memRepo) GetByID(_ context.Context, id int) (*course.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok {
		return nil, course.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) CreateEnrollment(ctx context.Context, e Enrollment, w LedgerWriter) (*Enrollment, *ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.enrollments {
		if cur.CourseID == e.CourseID && cur.ParticipantID == e.ParticipantID && cur.Status != EnrollmentCancelled {
			return nil, nil, ErrAlreadyEnrolled
		}
	}
	r.nextID++
	e.ID = r.nextID
	e.Status = EnrollmentPending
	tx, err := w(ctx, nil, ledger.EnrollmentRef(e.ID))
	if err != nil {
		return nil, nil, err
	}
	r.enrollments[e.ID] = &e
	cp := e
	return &cp, tx, nil
}

func (r *memRepo) GetEnrollment(_ context.Context, id int) (*Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return nil, ErrEnrollmentNotFound
	}
	cp := *e
	c := r.courses[e.CourseID]
	cp.OrganizerID, cp.CourseTitle = c.OrganizerID, c.Title
	return &cp, nil
}

func (r *memRepo) UpdateEnrollmentStatus(_ context.Context, id int, to EnrollmentStatus, from ...EnrollmentStatus) (*Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return nil, errStatusUnchanged
	}
	for _, s := range from {
		if e.Status == s {
			e.Status = to
			cp := *e
			return &cp, nil
		}
	}
	return nil, errStatusUnchanged
}

func (r *memRepo) CreatePurchase(ctx context.Context, p Purchase, w LedgerWriter) (*Purchase, *ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.purchases {
		if cur.CourseID == p.CourseID && cur.ParticipantID == p.ParticipantID {
			return nil, nil, ErrAlreadyPurchased
		}
	}
	r.nextID++
	p.ID = r.nextID
	tx, err := w(ctx, nil, ledger.PurchaseRef(p.ID))
	if err != nil {
		return nil, nil, err
	}
	r.purchases[p.ID] = &p
	cp := p
	return &cp, tx, nil
}

func (r *memRepo) CreateConsultationOffer(_ context.Context, c Consultation) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.consultations {
		if cur.TrainerID == c.TrainerID && cur.Status != ConsultationCancelled &&
			cur.ScheduledAt.Before(c.EndsAt()) && cur.EndsAt().After(c.ScheduledAt) {
			return nil, ErrScheduleOverlap
		}
	}
	r.nextID++
	c.ID = r.nextID
	c.Status = ConsultationPending
	r.consultations[c.ID] = &c
	cp := c
	return &cp, nil
}

func (r *memRepo) GetConsultation(_ context.Context, id int) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) BookConsultation(ctx context.Context, id, participantID int, w LedgerWriter) (*Consultation, *ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consultations[id]
	if !ok || c.Status != ConsultationPending || c.TrainerID == participantID {
		return nil, nil, ErrSlotTaken
	}
	tx, err := w(ctx, nil, ledger.ConsultationRef(id))
	if err != nil {
		return nil, nil, err
	}
	c.Status = ConsultationConfirmed
	c.ParticipantID = &participantID
	cp := *c
	return &cp, tx, nil
}

func (r *memRepo) CancelConsultation(_ context.Context, id int) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consultations[id]
	if !ok || c.Status == ConsultationCancelled {
		return nil, errStatusUnchanged
	}
	c.Status = ConsultationCancelled
	cp := *c
	return &cp, nil
}

func (r *memRepo) ListOpenConsultations(_ context.Context, trainerID int) ([]Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Consultation{}
	for _, c := range r.consultations {
		if c.TrainerID == trainerID && c.Status == ConsultationPending {
			out = append(out, *c)
		}
	}
	return out, nil
}

// fakeLedger keeps transactions in memory and applies the same one-way
// transition rule as the real ledger.
type fakeLedger struct {
	ledger.Service

	mu     sync.Mutex
	nextID int
	byRef  map[ledger.Ref]*ledger.Transaction
	opened int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byRef: map[ledger.Ref]*ledger.Transaction{}}
}

func (f *fakeLedger) insert(_ context.Context, _ sqlx.QueryerContext, t *ledger.Transaction) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	var ref ledger.Ref
	switch {
	case t.EnrollmentID != nil:
		ref = ledger.EnrollmentRef(*t.EnrollmentID)
	case t.PurchaseID != nil:
		ref = ledger.PurchaseRef(*t.PurchaseID)
	case t.ConsultationID != nil:
		ref = ledger.ConsultationRef(*t.ConsultationID)
	}
	if _, dup := f.byRef[ref]; dup {
		return nil, ledger.ErrDuplicate
	}
	f.byRef[ref] = t
	cp := *t
	return &cp, nil
}

func (f *fakeLedger) Opened(context.Context, *ledger.Transaction) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
}

func (f *fakeLedger) TransitionByRef(_ context.Context, ref ledger.Ref, to ledger.Status) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byRef[ref]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if t.Status == ledger.StatusPending {
		t.Status = to
	}
	cp := *t
	return &cp, nil
}

func (f *fakeLedger) status(ref ledger.Ref) ledger.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.byRef[ref]; ok {
		return t.Status
	}
	return ""
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	booked    []int
}

func (n *recordingNotifier) EnrollmentConfirmed(_ context.Context, _ int, title string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, title)
	return nil
}

func (n *recordingNotifier) ConsultationBooked(_ context.Context, _, participantID int, _ time.Time, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.booked = append(n.booked, participantID)
	return nil
}

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func pctPtr(v int64) *money.Percent { p := money.Pct(v); return &p }

func fundedCourse() *course.Course {
	return &course.Course{
		ID: 5, OrganizerID: 3, Title: "Forklift operator", Kind: course.KindStationary,
		BasePrice: 100000, FundingPercentage: pctPtr(80),
	}
}

func onlineCourse() *course.Course {
	return &course.Course{ID: 6, OrganizerID: 3, Title: "Excel basics", Kind: course.KindOnline, BasePrice: 10000}
}

func newTestService(t *testing.T, repo *memRepo) (*service, *fakeLedger, *recordingNotifier) {
	t.Helper()
	policy, err := pricing.NewPolicy(pricing.StandardDefaults())
	require.NoError(t, err)

	fl := newFakeLedger()
	n := &recordingNotifier{}
	s := NewService(repo, repo, policy, fl, n).(*service)
	s.insert = fl.insert
	s.now = func() time.Time { return testNow }
	s.guard.now = s.now
	return s, fl, n
}

var organizer = Actor{UserID: 3, Role: auth.RoleOrganizer}

func TestEnrollFundedCourse(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo(fundedCourse()))

	res, err := s.Enroll(context.Background(), 12, 5)
	require.NoError(t, err)

	assert.Equal(t, EnrollmentPending, res.Enrollment.Status)
	assert.Equal(t, money.Cents(20000), res.Enrollment.Price)
	assert.Equal(t, money.Cents(2000), res.Enrollment.Commission)
	assert.Equal(t, money.Cents(18000), res.Enrollment.OrganizerEarnings)

	tx := res.Transaction
	require.NotNil(t, tx)
	assert.Equal(t, ledger.TypeCourseLive, tx.Type)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.Nil(t, tx.PaymentDate)
	assert.Equal(t, 3, tx.OrganizerID)
	require.NotNil(t, tx.EnrollmentID)
	assert.Equal(t, res.Enrollment.ID, *tx.EnrollmentID)
	assert.Equal(t, 1, fl.opened)
}

func TestEnrollRejections(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo(fundedCourse(), onlineCourse()))
	ctx := context.Background()

	_, err := s.Enroll(ctx, 3, 5)
	assert.ErrorIs(t, err, ErrOwnCourse)

	_, err = s.Enroll(ctx, 12, 6)
	assert.ErrorIs(t, err, ErrWrongCourseKind)

	_, err = s.Enroll(ctx, 12, 404)
	assert.ErrorIs(t, err, course.ErrNotFound)

	assert.Equal(t, 0, fl.opened)
}

func TestConcurrentEnrollmentsKeepOneActive(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo(fundedCourse()))

	const n = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Enroll(context.Background(), 12, 5)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrAlreadyEnrolled):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, n-1, conflicts.Load())
	assert.Equal(t, 1, fl.opened)
}

func TestConfirmEnrollmentCompletesLedger(t *testing.T) {
	s, fl, n := newTestService(t, newMemRepo(fundedCourse()))
	ctx := context.Background()

	res, err := s.Enroll(ctx, 12, 5)
	require.NoError(t, err)
	id := res.Enrollment.ID

	_, err = s.ConfirmEnrollment(ctx, Actor{UserID: 12, Role: auth.RoleParticipant}, id)
	assert.ErrorIs(t, err, ErrNotCourseOrganizer)

	out, err := s.ConfirmEnrollment(ctx, organizer, id)
	require.NoError(t, err)
	assert.Equal(t, EnrollmentConfirmed, out.Enrollment.Status)
	assert.Equal(t, ledger.StatusCompleted, out.Transaction.Status)
	assert.Equal(t, []string{"Forklift operator"}, n.confirmed)

	again, err := s.ConfirmEnrollment(ctx, organizer, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, again.Transaction.Status)
	assert.Len(t, n.confirmed, 1, "second confirm must not notify again")
	assert.Equal(t, ledger.StatusCompleted, fl.status(ledger.EnrollmentRef(id)))
}

func TestCancelPendingEnrollmentCancelsLedger(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo(fundedCourse()))
	ctx := context.Background()

	res, err := s.Enroll(ctx, 12, 5)
	require.NoError(t, err)
	id := res.Enrollment.ID

	out, err := s.CancelEnrollment(ctx, organizer, id)
	require.NoError(t, err)
	assert.Equal(t, EnrollmentCancelled, out.Enrollment.Status)
	assert.Equal(t, ledger.StatusCancelled, fl.status(ledger.EnrollmentRef(id)))

	_, err = s.ConfirmEnrollment(ctx, organizer, id)
	assert.ErrorIs(t, err, ErrEnrollmentClosed)

	// The participant may enroll again once the previous enrollment is cancelled.
	_, err = s.Enroll(ctx, 12, 5)
	assert.NoError(t, err)
}

func TestCancelConfirmedEnrollmentKeepsRevenue(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo(fundedCourse()))
	ctx := context.Background()

	res, err := s.Enroll(ctx, 12, 5)
	require.NoError(t, err)
	id := res.Enrollment.ID
	_, err = s.ConfirmEnrollment(ctx, organizer, id)
	require.NoError(t, err)

	out, err := s.CancelEnrollment(ctx, Actor{UserID: 1, Role: auth.RoleAdmin}, id)
	require.NoError(t, err)
	assert.Equal(t, EnrollmentCancelled, out.Enrollment.Status)
	assert.Equal(t, ledger.StatusCompleted, fl.status(ledger.EnrollmentRef(id)))
}

func TestPurchaseOnlineCourse(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo(onlineCourse()))
	ctx := context.Background()

	res, err := s.Purchase(ctx, 12, 6)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(5000), res.Purchase.Price)
	assert.Equal(t, money.Cents(500), res.Purchase.Commission)
	assert.Equal(t, ledger.StatusCompleted, res.Transaction.Status)
	require.NotNil(t, res.Transaction.PaymentDate)
	assert.Equal(t, testNow, *res.Transaction.PaymentDate)
	assert.Equal(t, 1, fl.opened)

	_, err = s.Purchase(ctx, 12, 6)
	assert.ErrorIs(t, err, ErrAlreadyPurchased)
}

func offerSlot(t *testing.T, s *service, trainerID int) *Consultation {
	t.Helper()
	c, err := s.OfferConsultation(context.Background(), trainerID, OfferConsultationRequest{
		ScheduledAt:     testNow.Add(24 * time.Hour),
		DurationMinutes: 90,
		PricePerHour:    20000,
		CommissionRate:  pctPtr(15),
	})
	require.NoError(t, err)
	return c
}

func TestOfferConsultation(t *testing.T) {
	s, _, _ := newTestService(t, newMemRepo())
	ctx := context.Background()

	c := offerSlot(t, s, 3)
	assert.Equal(t, ConsultationPending, c.Status)
	assert.Nil(t, c.ParticipantID)

	_, err := s.OfferConsultation(ctx, 3, OfferConsultationRequest{
		ScheduledAt: testNow.Add(24*time.Hour + 30*time.Minute), DurationMinutes: 30, PricePerHour: 20000,
	})
	assert.ErrorIs(t, err, ErrScheduleOverlap)

	_, err = s.OfferConsultation(ctx, 3, OfferConsultationRequest{
		ScheduledAt: testNow.Add(-time.Hour), DurationMinutes: 30, PricePerHour: 20000,
	})
	assert.ErrorIs(t, err, ErrSlotInPast)

	clamped, err := s.OfferConsultation(ctx, 3, OfferConsultationRequest{
		ScheduledAt: testNow.Add(48 * time.Hour), DurationMinutes: 30, PricePerHour: 20000, CommissionRate: pctPtr(150),
	})
	require.NoError(t, err)
	assert.Equal(t, money.HundredPercent, *clamped.CommissionRate)
}

func TestBookConsultation(t *testing.T) {
	s, fl, n := newTestService(t, newMemRepo())
	c := offerSlot(t, s, 3)

	res, err := s.BookConsultation(context.Background(), 12, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ConsultationConfirmed, res.Consultation.Status)
	require.NotNil(t, res.Consultation.ParticipantID)
	assert.Equal(t, 12, *res.Consultation.ParticipantID)

	// 200.00/h for 90 minutes at 15%.
	tx := res.Transaction
	assert.Equal(t, ledger.TypeConsultation, tx.Type)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	assert.Equal(t, money.Cents(30000), tx.Amount)
	assert.Equal(t, money.Cents(4500), tx.Commission)
	assert.Equal(t, money.Cents(25500), tx.OrganizerEarnings)
	assert.Equal(t, 3, tx.OrganizerID)
	assert.Equal(t, 1, fl.opened)
	assert.Equal(t, []int{12}, n.booked)

	_, err = s.BookConsultation(context.Background(), 3, c.ID)
	assert.ErrorIs(t, err, ErrOwnConsultation)
}

func TestConcurrentBookingsExactlyOneWins(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo())
	c := offerSlot(t, s, 3)

	const n = 10
	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		wins   atomic.Int32
		taken  atomic.Int32
		winner atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(participant int) {
			defer wg.Done()
			<-start
			_, err := s.BookConsultation(context.Background(), participant, c.ID)
			switch {
			case err == nil:
				wins.Add(1)
				winner.Store(int32(participant))
			case errors.Is(err, ErrSlotTaken):
				taken.Add(1)
			}
		}(100 + i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, n-1, taken.Load())
	assert.Equal(t, 1, fl.opened)

	got, err := s.repo.GetConsultation(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParticipantID)
	assert.EqualValues(t, winner.Load(), *got.ParticipantID)
}

func TestCancelConsultation(t *testing.T) {
	s, fl, _ := newTestService(t, newMemRepo())
	ctx := context.Background()

	open := offerSlot(t, s, 3)
	res, err := s.CancelConsultation(ctx, organizer, open.ID)
	require.NoError(t, err)
	assert.Equal(t, ConsultationCancelled, res.Consultation.Status)
	assert.Nil(t, res.Transaction)

	booked, err := s.OfferConsultation(ctx, 3, OfferConsultationRequest{
		ScheduledAt: testNow.Add(72 * time.Hour), DurationMinutes: 60, PricePerHour: 10000,
	})
	require.NoError(t, err)
	_, err = s.BookConsultation(ctx, 12, booked.ID)
	require.NoError(t, err)

	_, err = s.CancelConsultation(ctx, Actor{UserID: 13, Role: auth.RoleParticipant}, booked.ID)
	assert.ErrorIs(t, err, ErrNotConsultationParty)

	res, err = s.CancelConsultation(ctx, Actor{UserID: 12, Role: auth.RoleParticipant}, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, ConsultationCancelled, res.Consultation.Status)
	assert.Equal(t, ledger.StatusCompleted, fl.status(ledger.ConsultationRef(booked.ID)))

	again, err := s.CancelConsultation(ctx, organizer, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, ConsultationCancelled, again.Consultation.Status)
}
