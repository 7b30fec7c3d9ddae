package booking

import (
	"time"

	"coursehub/internal/apperr"
	"coursehub/internal/auth"
	"coursehub/internal/ledger"
	"coursehub/internal/money"
)

type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentConfirmed EnrollmentStatus = "confirmed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment is a participant's request to join an in-person course. The
// price fields are a snapshot taken when the request was made.
type Enrollment struct {
	ID                int              `db:"id" json:"id"`
	CourseID          int              `db:"course_id" json:"course_id"`
	ParticipantID     int              `db:"participant_id" json:"participant_id"`
	Status            EnrollmentStatus `db:"status" json:"status"`
	Price             money.Cents      `db:"price_cents" json:"price_cents"`
	Commission        money.Cents      `db:"commission_cents" json:"commission_cents"`
	OrganizerEarnings money.Cents      `db:"organizer_earnings_cents" json:"organizer_earnings_cents"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`

	// Filled by lookups that join the course.
	OrganizerID int    `db:"organizer_id" json:"organizer_id,omitempty"`
	CourseTitle string `db:"course_title" json:"course_title,omitempty"`
}

// Purchase is an instant, final purchase of an on-demand course.
type Purchase struct {
	ID                int         `db:"id" json:"id"`
	CourseID          int         `db:"course_id" json:"course_id"`
	ParticipantID     int         `db:"participant_id" json:"participant_id"`
	Price             money.Cents `db:"price_cents" json:"price_cents"`
	Commission        money.Cents `db:"commission_cents" json:"commission_cents"`
	OrganizerEarnings money.Cents `db:"organizer_earnings_cents" json:"organizer_earnings_cents"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

type ConsultationStatus string

const (
	// ConsultationPending is an offered slot nobody has booked yet.
	ConsultationPending   ConsultationStatus = "pending"
	ConsultationConfirmed ConsultationStatus = "confirmed"
	ConsultationCancelled ConsultationStatus = "cancelled"
)

type Consultation struct {
	ID              int                `db:"id" json:"id"`
	TrainerID       int                `db:"trainer_id" json:"trainer_id"`
	ParticipantID   *int               `db:"participant_id" json:"participant_id,omitempty"`
	Status          ConsultationStatus `db:"status" json:"status"`
	ScheduledAt     time.Time          `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int                `db:"duration_minutes" json:"duration_minutes"`
	PricePerHour    money.Cents        `db:"price_per_hour_cents" json:"price_per_hour_cents"`
	CommissionRate  *money.Percent     `db:"commission_rate" json:"commission_rate,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

func (c *Consultation) EndsAt() time.Time {
	return c.ScheduledAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

type OfferConsultationRequest struct {
	ScheduledAt     time.Time      `json:"scheduled_at" binding:"required"`
	DurationMinutes int            `json:"duration_minutes" binding:"required,gt=0,lte=480"`
	PricePerHour    money.Cents    `json:"price_per_hour_cents" binding:"gte=0"`
	CommissionRate  *money.Percent `json:"commission_rate"`
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID int
	Role   auth.Role
}

type EnrollmentResult struct {
	Enrollment  *Enrollment         `json:"enrollment"`
	Transaction *ledger.Transaction `json:"transaction,omitempty"`
}

type PurchaseResult struct {
	Purchase    *Purchase           `json:"purchase"`
	Transaction *ledger.Transaction `json:"transaction"`
}

type ConsultationResult struct {
	Consultation *Consultation       `json:"consultation"`
	Transaction  *ledger.Transaction `json:"transaction,omitempty"`
}

var (
	ErrOwnCourse          = apperr.Permission("own_course", "organizers cannot enroll in or buy their own course")
	ErrWrongCourseKind    = apperr.Validation("wrong_course_kind", "course does not support this kind of booking")
	ErrAlreadyEnrolled    = apperr.Conflict("already_enrolled", "you already have an active enrollment for this course")
	ErrAlreadyPurchased   = apperr.Conflict("already_purchased", "you already own this course")
	ErrEnrollmentNotFound = apperr.NotFound("enrollment_not_found", "enrollment not found")
	ErrEnrollmentClosed   = apperr.Conflict("enrollment_cancelled", "enrollment has been cancelled")
	ErrNotCourseOrganizer = apperr.Permission("not_course_organizer", "only the course organizer can manage its enrollments")

	ErrConsultationNotFound = apperr.NotFound("consultation_not_found", "consultation not found")
	ErrOwnConsultation      = apperr.Permission("own_consultation", "trainers cannot book their own consultation")
	ErrSlotTaken            = apperr.Conflict("slot_unavailable", "consultation slot is no longer available")
	ErrSlotInPast           = apperr.Validation("slot_in_past", "consultation must be scheduled in the future")
	ErrScheduleOverlap      = apperr.Conflict("schedule_overlap", "consultation overlaps an existing one")
	ErrNotConsultationParty = apperr.Permission("not_consultation_party", "only the trainer or the booked participant can cancel")
)
