package booking

import (
	"context"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/ledger"
)

// LedgerWriter opens the ledger row for a booking inside the booking's own
// database transaction, so either both rows exist or neither does.
type LedgerWriter func(ctx context.Context, q sqlx.QueryerContext, ref ledger.Ref) (*ledger.Transaction, error)

type Repository interface {
	CreateEnrollment(ctx context.Context, e Enrollment, w LedgerWriter) (*Enrollment, *ledger.Transaction, error)
	GetEnrollment(ctx context.Context, id int) (*Enrollment, error)
	UpdateEnrollmentStatus(ctx context.Context, id int, to EnrollmentStatus, from ...EnrollmentStatus) (*Enrollment, error)

	CreatePurchase(ctx context.Context, p Purchase, w LedgerWriter) (*Purchase, *ledger.Transaction, error)

	CreateConsultationOffer(ctx context.Context, c Consultation) (*Consultation, error)
	GetConsultation(ctx context.Context, id int) (*Consultation, error)
	BookConsultation(ctx context.Context, id, participantID int, w LedgerWriter) (*Consultation, *ledger.Transaction, error)
	CancelConsultation(ctx context.Context, id int) (*Consultation, error)
	ListOpenConsultations(ctx context.Context, trainerID int) ([]Consultation, error)
}
