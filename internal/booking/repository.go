package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"coursehub/internal/apperr"
	"coursehub/internal/db"
	"coursehub/internal/ledger"
)

// errStatusUnchanged means a conditional status update matched no row.
var errStatusUnchanged = errors.New("status unchanged")

const (
	enrollmentColumns = `id, course_id, participant_id, status, price_cents, commission_cents,
		organizer_earnings_cents, created_at, updated_at`
	purchaseColumns = `id, course_id, participant_id, price_cents, commission_cents,
		organizer_earnings_cents, created_at`
	consultationColumns = `id, trainer_id, participant_id, status, scheduled_at, duration_minutes,
		price_per_hour_cents, commission_rate, created_at, updated_at`
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateEnrollment inserts the enrollment and its ledger row atomically. A
// second active enrollment for the same (course, participant) trips the
// partial unique index and is reported as ErrAlreadyEnrolled.
func (r *PostgresRepository) CreateEnrollment(ctx context.Context, e Enrollment, w LedgerWriter) (*Enrollment, *ledger.Transaction, error) {
	var (
		out Enrollment
		tx  *ledger.Transaction
	)
	err := db.WithTx(ctx, r.db, func(q *sqlx.Tx) error {
		err := q.GetContext(ctx, &out, `
			INSERT INTO course_enrollments (course_id, participant_id, status, price_cents, commission_cents, organizer_earnings_cents)
			VALUES ($1, $2, 'pending', $3, $4, $5)
			RETURNING `+enrollmentColumns,
			e.CourseID, e.ParticipantID, e.Price, e.Commission, e.OrganizerEarnings,
		)
		if err != nil {
			if db.IsUniqueViolation(err, "uq_enrollments_active") {
				return ErrAlreadyEnrolled.Wrap(err)
			}
			return apperr.Storage("insert enrollment", err)
		}

		tx, err = w(ctx, q, ledger.EnrollmentRef(out.ID))
		return err
	})
	if err != nil {
		return nil, nil, storageErr("create enrollment", err)
	}
	return &out, tx, nil
}

func (r *PostgresRepository) GetEnrollment(ctx context.Context, id int) (*Enrollment, error) {
	var e Enrollment
	err := r.db.GetContext(ctx, &e, `
		SELECT e.id, e.course_id, e.participant_id, e.status, e.price_cents, e.commission_cents,
			e.organizer_earnings_cents, e.created_at, e.updated_at,
			c.organizer_id, c.title AS course_title
		FROM course_enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE e.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, apperr.Storage("get enrollment", err)
	}
	return &e, nil
}

// UpdateEnrollmentStatus moves the enrollment to `to` only if its current
// status is one of from. errStatusUnchanged is returned otherwise.
func (r *PostgresRepository) UpdateEnrollmentStatus(ctx context.Context, id int, to EnrollmentStatus, from ...EnrollmentStatus) (*Enrollment, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	var e Enrollment
	err := r.db.GetContext(ctx, &e, `
		UPDATE course_enrollments
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+enrollmentColumns,
		id, to, pq.Array(allowed),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errStatusUnchanged
	}
	if err != nil {
		return nil, apperr.Storage("update enrollment status", err)
	}
	return &e, nil
}

func (r *PostgresRepository) CreatePurchase(ctx context.Context, p Purchase, w LedgerWriter) (*Purchase, *ledger.Transaction, error) {
	var (
		out Purchase
		tx  *ledger.Transaction
	)
	err := db.WithTx(ctx, r.db, func(q *sqlx.Tx) error {
		err := q.GetContext(ctx, &out, `
			INSERT INTO course_purchases (course_id, participant_id, price_cents, commission_cents, organizer_earnings_cents)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+purchaseColumns,
			p.CourseID, p.ParticipantID, p.Price, p.Commission, p.OrganizerEarnings,
		)
		if err != nil {
			if db.IsUniqueViolation(err, "uq_purchases_course_participant") {
				return ErrAlreadyPurchased.Wrap(err)
			}
			return apperr.Storage("insert purchase", err)
		}

		tx, err = w(ctx, q, ledger.PurchaseRef(out.ID))
		return err
	})
	if err != nil {
		return nil, nil, storageErr("create purchase", err)
	}
	return &out, tx, nil
}

// CreateConsultationOffer inserts a slot unless it overlaps one of the
// trainer's live consultations. The trainer's schedule lock serializes
// concurrent offers, which the overlap read alone would not.
func (r *PostgresRepository) CreateConsultationOffer(ctx context.Context, c Consultation) (*Consultation, error) {
	var out Consultation
	err := db.WithTx(ctx, r.db, func(q *sqlx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, q, db.LockTrainerSchedule, c.TrainerID); err != nil {
			return apperr.Storage("lock trainer schedule", err)
		}

		overlaps, err := db.Exists(ctx, q, `
			SELECT EXISTS (
				SELECT 1 FROM consultations
				WHERE trainer_id = $1
					AND status IN ('pending', 'confirmed')
					AND scheduled_at < $3
					AND scheduled_at + make_interval(mins => duration_minutes) > $2
			)`,
			c.TrainerID, c.ScheduledAt, c.EndsAt(),
		)
		if err != nil {
			return apperr.Storage("check consultation overlap", err)
		}
		if overlaps {
			return ErrScheduleOverlap
		}

		err = q.GetContext(ctx, &out, `
			INSERT INTO consultations (trainer_id, status, scheduled_at, duration_minutes, price_per_hour_cents, commission_rate)
			VALUES ($1, 'pending', $2, $3, $4, $5)
			RETURNING `+consultationColumns,
			c.TrainerID, c.ScheduledAt, c.DurationMinutes, c.PricePerHour, c.CommissionRate,
		)
		if err != nil {
			return apperr.Storage("insert consultation", err)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("create consultation", err)
	}
	return &out, nil
}

func (r *PostgresRepository) GetConsultation(ctx context.Context, id int) (*Consultation, error) {
	var c Consultation
	err := r.db.GetContext(ctx, &c, `SELECT `+consultationColumns+` FROM consultations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConsultationNotFound
	}
	if err != nil {
		return nil, apperr.Storage("get consultation", err)
	}
	return &c, nil
}

// BookConsultation binds the participant with a single compare-and-swap on
// status. Of two concurrent bookings exactly one matches the pending row;
// the other gets ErrSlotTaken.
func (r *PostgresRepository) BookConsultation(ctx context.Context, id, participantID int, w LedgerWriter) (*Consultation, *ledger.Transaction, error) {
	var (
		out Consultation
		tx  *ledger.Transaction
	)
	err := db.WithTx(ctx, r.db, func(q *sqlx.Tx) error {
		err := q.GetContext(ctx, &out, `
			UPDATE consultations
			SET status = 'confirmed', participant_id = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'pending' AND trainer_id <> $2
			RETURNING `+consultationColumns,
			id, participantID,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSlotTaken
		}
		if err != nil {
			return apperr.Storage("book consultation", err)
		}

		tx, err = w(ctx, q, ledger.ConsultationRef(out.ID))
		return err
	})
	if err != nil {
		return nil, nil, storageErr("book consultation", err)
	}
	return &out, tx, nil
}

func (r *PostgresRepository) CancelConsultation(ctx context.Context, id int) (*Consultation, error) {
	var c Consultation
	err := r.db.GetContext(ctx, &c, `
		UPDATE consultations
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status <> 'cancelled'
		RETURNING `+consultationColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errStatusUnchanged
	}
	if err != nil {
		return nil, apperr.Storage("cancel consultation", err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListOpenConsultations(ctx context.Context, trainerID int) ([]Consultation, error) {
	out := []Consultation{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE trainer_id = $1 AND status = 'pending' AND scheduled_at > NOW()
		ORDER BY scheduled_at`, trainerID)
	if err != nil {
		return nil, apperr.Storage("list consultations", err)
	}
	return out, nil
}

// storageErr keeps typed errors from inside a transaction and wraps
// anything else, e.g. a failed BEGIN or COMMIT.
func storageErr(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Storage(op, err)
}
