package booking

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/apperr"
	"coursehub/internal/course"
	"coursehub/internal/ledger"
	"coursehub/internal/logger"
	"coursehub/internal/metrics"
	"coursehub/internal/money"
	"coursehub/internal/pricing"
)

// Notifier is told about bookings the other party should hear about.
// Failures are logged, never returned to the caller.
type Notifier interface {
	EnrollmentConfirmed(ctx context.Context, participantID int, courseTitle string) error
	ConsultationBooked(ctx context.Context, trainerID, participantID int, scheduledAt time.Time, durationMinutes int) error
}

type CourseReader interface {
	GetByID(ctx context.Context, id int) (*course.Course, error)
}

type Service interface {
	Enroll(ctx context.Context, participantID, courseID int) (*EnrollmentResult, error)
	ConfirmEnrollment(ctx context.Context, actor Actor, enrollmentID int) (*EnrollmentResult, error)
	CancelEnrollment(ctx context.Context, actor Actor, enrollmentID int) (*EnrollmentResult, error)

	Purchase(ctx context.Context, participantID, courseID int) (*PurchaseResult, error)

	OfferConsultation(ctx context.Context, trainerID int, req OfferConsultationRequest) (*Consultation, error)
	BookConsultation(ctx context.Context, participantID, consultationID int) (*ConsultationResult, error)
	CancelConsultation(ctx context.Context, actor Actor, consultationID int) (*ConsultationResult, error)
	ListOpenConsultations(ctx context.Context, trainerID int) ([]Consultation, error)
}

type service struct {
	repo     Repository
	courses  CourseReader
	policy   *pricing.Policy
	ledger   ledger.Service
	notifier Notifier
	guard    Guard
	insert   func(ctx context.Context, q sqlx.QueryerContext, t *ledger.Transaction) (*ledger.Transaction, error)
	now      func() time.Time
}

func NewService(repo Repository, courses CourseReader, policy *pricing.Policy, ledgerSvc ledger.Service, notifier Notifier) Service {
	return &service{
		repo:     repo,
		courses:  courses,
		policy:   policy,
		ledger:   ledgerSvc,
		notifier: notifier,
		guard:    NewGuard(),
		insert:   ledger.Insert,
		now:      time.Now,
	}
}

func (s *service) Enroll(ctx context.Context, participantID, courseID int) (*EnrollmentResult, error) {
	c, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckEnrollment(c, participantID); err != nil {
		metrics.RecordBooking("enrollment", "rejected")
		return nil, err
	}

	split, err := s.policy.Stationary(c.StationaryInput())
	if err != nil {
		return nil, err
	}

	e, tx, err := s.repo.CreateEnrollment(ctx, Enrollment{
		CourseID:          courseID,
		ParticipantID:     participantID,
		Price:             split.Amount,
		Commission:        split.Commission,
		OrganizerEarnings: split.OrganizerEarnings,
	}, s.ledgerWriter(ledger.OpenParams{
		Type:          ledger.TypeCourseLive,
		Split:         split,
		Status:        ledger.StatusPending,
		OrganizerID:   c.OrganizerID,
		ParticipantID: &participantID,
		Description:   c.Title,
	}))
	if err != nil {
		s.recordFailure("enrollment", err)
		return nil, err
	}

	s.ledger.Opened(ctx, tx)
	metrics.RecordBooking("enrollment", "created")
	logger.Info("enrollment created", "enrollment_id", e.ID, "course_id", courseID, "participant_id", participantID)
	return &EnrollmentResult{Enrollment: e, Transaction: tx}, nil
}

// ConfirmEnrollment completes the enrollment's ledger row. Confirming twice
// is harmless; a failed ledger step is repaired by repeating the call.
func (s *service) ConfirmEnrollment(ctx context.Context, actor Actor, enrollmentID int) (*EnrollmentResult, error) {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanManageEnrollment(actor, e); err != nil {
		return nil, err
	}

	if e.Status != EnrollmentConfirmed {
		updated, err := s.repo.UpdateEnrollmentStatus(ctx, enrollmentID, EnrollmentConfirmed, EnrollmentPending)
		switch {
		case errors.Is(err, errStatusUnchanged):
			if e, err = s.repo.GetEnrollment(ctx, enrollmentID); err != nil {
				return nil, err
			}
			if e.Status != EnrollmentConfirmed {
				return nil, ErrEnrollmentClosed
			}
		case err != nil:
			return nil, err
		default:
			updated.OrganizerID, updated.CourseTitle = e.OrganizerID, e.CourseTitle
			e = updated
			s.notifyEnrollmentConfirmed(ctx, e)
		}
	}

	tx, err := s.ledger.TransitionByRef(ctx, ledger.EnrollmentRef(enrollmentID), ledger.StatusCompleted)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResult{Enrollment: e, Transaction: tx}, nil
}

// CancelEnrollment cancels a pending or confirmed enrollment. The ledger row
// is cancelled only while still pending; completed revenue is not reversed.
func (s *service) CancelEnrollment(ctx context.Context, actor Actor, enrollmentID int) (*EnrollmentResult, error) {
	e, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanManageEnrollment(actor, e); err != nil {
		return nil, err
	}

	if e.Status != EnrollmentCancelled {
		updated, err := s.repo.UpdateEnrollmentStatus(ctx, enrollmentID, EnrollmentCancelled, EnrollmentPending, EnrollmentConfirmed)
		if err != nil && !errors.Is(err, errStatusUnchanged) {
			return nil, err
		}
		if updated != nil {
			updated.OrganizerID, updated.CourseTitle = e.OrganizerID, e.CourseTitle
			e = updated
		} else {
			e.Status = EnrollmentCancelled
		}
	}

	tx, err := s.ledger.TransitionByRef(ctx, ledger.EnrollmentRef(enrollmentID), ledger.StatusCancelled)
	if errors.Is(err, ledger.ErrNotFound) {
		logger.Warn("cancelled enrollment has no ledger transaction", "enrollment_id", enrollmentID)
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return &EnrollmentResult{Enrollment: e, Transaction: tx}, nil
}

// Purchase is final at once: the ledger row opens completed and there is
// no cancellation path.
func (s *service) Purchase(ctx context.Context, participantID, courseID int) (*PurchaseResult, error) {
	c, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckPurchase(c, participantID); err != nil {
		metrics.RecordBooking("purchase", "rejected")
		return nil, err
	}

	split, err := s.policy.Online(c.OnlineInput())
	if err != nil {
		return nil, err
	}

	p, tx, err := s.repo.CreatePurchase(ctx, Purchase{
		CourseID:          courseID,
		ParticipantID:     participantID,
		Price:             split.Amount,
		Commission:        split.Commission,
		OrganizerEarnings: split.OrganizerEarnings,
	}, s.ledgerWriter(ledger.OpenParams{
		Type:          ledger.TypeCourseOnline,
		Split:         split,
		Status:        ledger.StatusCompleted,
		OrganizerID:   c.OrganizerID,
		ParticipantID: &participantID,
		Description:   c.Title,
	}))
	if err != nil {
		s.recordFailure("purchase", err)
		return nil, err
	}

	s.ledger.Opened(ctx, tx)
	metrics.RecordBooking("purchase", "created")
	logger.Info("course purchased", "purchase_id", p.ID, "course_id", courseID, "participant_id", participantID)
	return &PurchaseResult{Purchase: p, Transaction: tx}, nil
}

func (s *service) OfferConsultation(ctx context.Context, trainerID int, req OfferConsultationRequest) (*Consultation, error) {
	if err := s.guard.CheckOffer(req); err != nil {
		return nil, err
	}
	if req.CommissionRate != nil {
		clamped := money.ClampPercent(*req.CommissionRate)
		req.CommissionRate = &clamped
	}

	c := Consultation{
		TrainerID:       trainerID,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		PricePerHour:    req.PricePerHour,
		CommissionRate:  req.CommissionRate,
	}
	if _, err := s.consultationSplit(&c); err != nil {
		return nil, err
	}

	out, err := s.repo.CreateConsultationOffer(ctx, c)
	if err != nil {
		s.recordFailure("consultation_offer", err)
		return nil, err
	}
	metrics.RecordBooking("consultation_offer", "created")
	return out, nil
}

// BookConsultation binds the participant to a pending slot and records the
// payment as completed in the same transaction.
func (s *service) BookConsultation(ctx context.Context, participantID, consultationID int) (*ConsultationResult, error) {
	c, err := s.repo.GetConsultation(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckBooking(c, participantID); err != nil {
		s.recordFailure("consultation", err)
		return nil, err
	}

	split, err := s.consultationSplit(c)
	if err != nil {
		return nil, err
	}

	booked, tx, err := s.repo.BookConsultation(ctx, consultationID, participantID, s.ledgerWriter(ledger.OpenParams{
		Type:          ledger.TypeConsultation,
		Split:         split,
		Status:        ledger.StatusCompleted,
		OrganizerID:   c.TrainerID,
		ParticipantID: &participantID,
	}))
	if err != nil {
		s.recordFailure("consultation", err)
		return nil, err
	}

	s.ledger.Opened(ctx, tx)
	metrics.RecordBooking("consultation", "created")
	if s.notifier != nil {
		if err := s.notifier.ConsultationBooked(ctx, booked.TrainerID, participantID, booked.ScheduledAt, booked.DurationMinutes); err != nil {
			logger.Warn("failed to queue consultation notice", "consultation_id", booked.ID, "error", err)
		}
	}
	return &ConsultationResult{Consultation: booked, Transaction: tx}, nil
}

// CancelConsultation withdraws an offered or booked slot. A booked slot's
// ledger row is already completed and stays so.
func (s *service) CancelConsultation(ctx context.Context, actor Actor, consultationID int) (*ConsultationResult, error) {
	c, err := s.repo.GetConsultation(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanCancelConsultation(actor, c); err != nil {
		return nil, err
	}
	if c.Status == ConsultationCancelled {
		return &ConsultationResult{Consultation: c}, nil
	}

	cancelled, err := s.repo.CancelConsultation(ctx, consultationID)
	if errors.Is(err, errStatusUnchanged) {
		c.Status = ConsultationCancelled
		return &ConsultationResult{Consultation: c}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &ConsultationResult{Consultation: cancelled}
	if c.Status == ConsultationConfirmed {
		tx, err := s.ledger.TransitionByRef(ctx, ledger.ConsultationRef(consultationID), ledger.StatusCancelled)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return nil, err
		}
		res.Transaction = tx
	}
	return res, nil
}

func (s *service) ListOpenConsultations(ctx context.Context, trainerID int) ([]Consultation, error) {
	return s.repo.ListOpenConsultations(ctx, trainerID)
}

func (s *service) consultationSplit(c *Consultation) (money.Split, error) {
	return s.policy.Consultation(pricing.ConsultationInput{
		PricePerHour:    c.PricePerHour,
		DurationMinutes: c.DurationMinutes,
		CommissionRate:  c.CommissionRate,
	})
}

func (s *service) ledgerWriter(p ledger.OpenParams) LedgerWriter {
	return func(ctx context.Context, q sqlx.QueryerContext, ref ledger.Ref) (*ledger.Transaction, error) {
		p.Ref = &ref
		t, err := ledger.NewTransaction(p, s.now())
		if err != nil {
			return nil, err
		}
		return s.insert(ctx, q, t)
	}
}

func (s *service) notifyEnrollmentConfirmed(ctx context.Context, e *Enrollment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EnrollmentConfirmed(ctx, e.ParticipantID, e.CourseTitle); err != nil {
		logger.Warn("failed to queue enrollment notice", "enrollment_id", e.ID, "error", err)
	}
}

func (s *service) recordFailure(channel string, err error) {
	outcome := "error"
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		outcome = "conflict"
	case apperr.KindValidation, apperr.KindPermission:
		outcome = "rejected"
	}
	metrics.RecordBooking(channel, outcome)
}
