package ledger

import (
	"fmt"
	"time"

	"coursehub/internal/apperr"
	"coursehub/internal/money"
)

type Type string
type Status string

const (
	TypeCourseLive     Type = "course_live"
	TypeCourseOnline   Type = "course_online"
	TypeConsultation   Type = "consultation"
	TypeCompanyPackage Type = "company_package"

	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (t Type) Valid() bool {
	switch t {
	case TypeCourseLive, TypeCourseOnline, TypeConsultation, TypeCompanyPackage:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Transaction is one monetizable event. Only Status, PaymentDate and
// UpdatedAt change after insert; rows are never deleted.
type Transaction struct {
	ID                int         `db:"id" json:"id"`
	Type              Type        `db:"type" json:"type"`
	Amount            money.Cents `db:"amount_cents" json:"amount_cents"`
	Commission        money.Cents `db:"commission_cents" json:"commission_cents"`
	OrganizerEarnings money.Cents `db:"organizer_earnings_cents" json:"organizer_earnings_cents"`
	Status            Status      `db:"status" json:"status"`
	EnrollmentID      *int        `db:"enrollment_id" json:"enrollment_id,omitempty"`
	PurchaseID        *int        `db:"purchase_id" json:"purchase_id,omitempty"`
	ConsultationID    *int        `db:"consultation_id" json:"consultation_id,omitempty"`
	OrganizerID       int         `db:"organizer_id" json:"organizer_id"`
	ParticipantID     *int        `db:"participant_id" json:"participant_id,omitempty"`
	PaymentDate       *time.Time  `db:"payment_date" json:"payment_date,omitempty"`
	PaymentMethod     string      `db:"payment_method" json:"payment_method"`
	Description       string      `db:"description" json:"description,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

func (t *Transaction) Split() money.Split {
	return money.Split{Amount: t.Amount, Commission: t.Commission, OrganizerEarnings: t.OrganizerEarnings}
}

type RefKind string

const (
	RefEnrollment   RefKind = "enrollment"
	RefPurchase     RefKind = "purchase"
	RefConsultation RefKind = "consultation"
)

// Ref points at the booking, purchase or consultation a transaction originates from.
type Ref struct {
	Kind RefKind
	ID   int
}

func EnrollmentRef(id int) Ref   { return Ref{Kind: RefEnrollment, ID: id} }
func PurchaseRef(id int) Ref     { return Ref{Kind: RefPurchase, ID: id} }
func ConsultationRef(id int) Ref { return Ref{Kind: RefConsultation, ID: id} }

func (r Ref) column() (string, error) {
	switch r.Kind {
	case RefEnrollment:
		return "enrollment_id", nil
	case RefPurchase:
		return "purchase_id", nil
	case RefConsultation:
		return "consultation_id", nil
	}
	return "", fmt.Errorf("unknown reference kind %q", r.Kind)
}

// OpenParams describes a transaction to record.
type OpenParams struct {
	Type          Type
	Split         money.Split
	Status        Status
	Ref           *Ref
	OrganizerID   int
	ParticipantID *int
	PaymentMethod string
	Description   string
}

const DefaultPaymentMethod = "processor"

var (
	ErrInvalidType       = apperr.Validation("invalid_transaction_type", "invalid transaction type")
	ErrInvalidStatus     = apperr.Validation("invalid_transaction_status", "invalid transaction status")
	ErrInvalidTransition = apperr.Validation("invalid_transition", "transactions can only move to completed or cancelled")
	ErrNotFound          = apperr.NotFound("transaction_not_found", "transaction not found")
	ErrDuplicate         = apperr.Conflict("duplicate_transaction", "an active transaction already exists for this booking")
	ErrInvalidRange      = apperr.Validation("invalid_range", "from must be before to")
)

// NewTransaction validates params and builds the row to insert. An
// unbalanced split panics: pricing never produces one.
func NewTransaction(p OpenParams, now time.Time) (*Transaction, error) {
	if !p.Type.Valid() {
		return nil, ErrInvalidType.Wrap(fmt.Errorf("type %q", p.Type))
	}
	if !p.Status.Valid() {
		return nil, ErrInvalidStatus.Wrap(fmt.Errorf("status %q", p.Status))
	}
	if p.OrganizerID <= 0 {
		return nil, apperr.Validation("invalid_organizer", "organizer id is required")
	}
	p.Split.MustBalance()

	t := &Transaction{
		Type:              p.Type,
		Amount:            p.Split.Amount,
		Commission:        p.Split.Commission,
		OrganizerEarnings: p.Split.OrganizerEarnings,
		Status:            p.Status,
		OrganizerID:       p.OrganizerID,
		ParticipantID:     p.ParticipantID,
		PaymentMethod:     p.PaymentMethod,
		Description:       p.Description,
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = DefaultPaymentMethod
	}
	if p.Status == StatusCompleted {
		ts := now
		t.PaymentDate = &ts
	}
	if p.Ref != nil {
		id := p.Ref.ID
		switch p.Ref.Kind {
		case RefEnrollment:
			t.EnrollmentID = &id
		case RefPurchase:
			t.PurchaseID = &id
		case RefConsultation:
			t.ConsultationID = &id
		default:
			return nil, apperr.Validation("invalid_reference", fmt.Sprintf("unknown reference kind %q", p.Ref.Kind))
		}
	}
	return t, nil
}

// Filter narrows Aggregate and List. Zero values mean "any".
type Filter struct {
	OrganizerID *int
	Type        *Type
	From        *time.Time
	To          *time.Time
}

func (f Filter) validate() error {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return ErrInvalidRange
	}
	return nil
}

// Totals is the aggregate of a group of transactions.
type Totals struct {
	Count      int         `db:"count" json:"count"`
	Revenue    money.Cents `db:"revenue_cents" json:"revenue_cents"`
	Commission money.Cents `db:"commission_cents" json:"commission_cents"`
	Earnings   money.Cents `db:"earnings_cents" json:"earnings_cents"`
}

type TypeTotals struct {
	Type Type `db:"type" json:"type"`
	Totals
}

// DayTotals is one UTC day of ledger activity.
type DayTotals struct {
	Day       string `db:"day" json:"day"`
	Completed int    `db:"completed" json:"completed"`
	Pending   int    `db:"pending" json:"pending"`
	Totals
}

type Summary struct {
	ByType []TypeTotals `json:"by_type"`
	Totals Totals       `json:"totals"`
}
