package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/apperr"
	"coursehub/internal/db"
)

// errNotPending means the conditional update matched no pending row.
var errNotPending = errors.New("transaction is not pending")

const transactionColumns = `id, type, amount_cents, commission_cents, organizer_earnings_cents, status,
	enrollment_id, purchase_id, consultation_id, organizer_id, participant_id,
	payment_date, payment_method, description, created_at, updated_at`

const filterClause = `
	status <> 'cancelled'
	AND ($1::int IS NULL OR organizer_id = $1)
	AND ($2::varchar IS NULL OR type = $2)
	AND ($3::timestamptz IS NULL OR created_at >= $3)
	AND ($4::timestamptz IS NULL OR created_at < $4)`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes t through q, which may be the pool or an open transaction
// owned by a booking flow. A second active row for the same origin is
// reported as ErrDuplicate.
func Insert(ctx context.Context, q sqlx.QueryerContext, t *Transaction) (*Transaction, error) {
	out := &Transaction{}
	err := sqlx.GetContext(ctx, q, out, `
		INSERT INTO financial_transactions (
			type, amount_cents, commission_cents, organizer_earnings_cents, status,
			enrollment_id, purchase_id, consultation_id, organizer_id, participant_id,
			payment_date, payment_method, description
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+transactionColumns,
		t.Type, t.Amount, t.Commission, t.OrganizerEarnings, t.Status,
		t.EnrollmentID, t.PurchaseID, t.ConsultationID, t.OrganizerID, t.ParticipantID,
		t.PaymentDate, t.PaymentMethod, t.Description,
	)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_transactions_enrollment", "uq_transactions_purchase", "uq_transactions_consultation") {
			return nil, ErrDuplicate.Wrap(err)
		}
		return nil, apperr.Storage("insert transaction", err)
	}
	return out, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, t *Transaction) (*Transaction, error) {
	return Insert(ctx, r.db, t)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (*Transaction, error) {
	t := &Transaction{}
	err := r.db.GetContext(ctx, t, `SELECT `+transactionColumns+` FROM financial_transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Storage("get transaction", err)
	}
	return t, nil
}

// FindByRef returns the transaction for an origin, preferring the
// non-cancelled one when a cancelled predecessor exists.
func (r *PostgresRepository) FindByRef(ctx context.Context, ref Ref) (*Transaction, error) {
	col, err := ref.column()
	if err != nil {
		return nil, apperr.Validation("invalid_reference", err.Error())
	}

	t := &Transaction{}
	err = r.db.GetContext(ctx, t, `
		SELECT `+transactionColumns+`
		FROM financial_transactions
		WHERE `+col+` = $1
		ORDER BY (status <> 'cancelled') DESC, id DESC
		LIMIT 1`, ref.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Storage("find transaction", err)
	}
	return t, nil
}

// TransitionPending moves a pending row to `to`. Completion stamps the
// payment date unless one is already set. Returns errNotPending when the row
// is missing or already terminal.
func (r *PostgresRepository) TransitionPending(ctx context.Context, id int, to Status) (*Transaction, error) {
	t := &Transaction{}
	err := r.db.GetContext(ctx, t, `
		UPDATE financial_transactions
		SET status = $2,
		    payment_date = CASE WHEN $3 THEN COALESCE(payment_date, NOW()) ELSE payment_date END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transactionColumns,
		id, to, to == StatusCompleted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotPending
		}
		return nil, apperr.Storage("transition transaction", err)
	}
	return t, nil
}

func (r *PostgresRepository) Aggregate(ctx context.Context, f Filter) ([]TypeTotals, error) {
	var rows []TypeTotals
	err := r.db.SelectContext(ctx, &rows, `
		SELECT type,
		       COUNT(*) AS count,
		       COALESCE(SUM(amount_cents), 0) AS revenue_cents,
		       COALESCE(SUM(commission_cents), 0) AS commission_cents,
		       COALESCE(SUM(organizer_earnings_cents), 0) AS earnings_cents
		FROM financial_transactions
		WHERE`+filterClause+`
		GROUP BY type
		ORDER BY type`,
		f.OrganizerID, typeArg(f.Type), f.From, f.To,
	)
	if err != nil {
		return nil, apperr.Storage("aggregate transactions", err)
	}
	return rows, nil
}

func (r *PostgresRepository) Daily(ctx context.Context, f Filter) ([]DayTotals, error) {
	days := []DayTotals{}
	err := r.db.SelectContext(ctx, &days, `
		SELECT TO_CHAR(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(*) AS count,
		       COUNT(*) FILTER (WHERE status = 'completed') AS completed,
		       COUNT(*) FILTER (WHERE status = 'pending') AS pending,
		       COALESCE(SUM(amount_cents), 0) AS revenue_cents,
		       COALESCE(SUM(commission_cents), 0) AS commission_cents,
		       COALESCE(SUM(organizer_earnings_cents), 0) AS earnings_cents
		FROM financial_transactions
		WHERE`+filterClause+`
		GROUP BY day
		ORDER BY day`,
		f.OrganizerID, typeArg(f.Type), f.From, f.To,
	)
	if err != nil {
		return nil, apperr.Storage("daily transactions", err)
	}
	return days, nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT `+transactionColumns+`
		FROM financial_transactions
		WHERE`+filterClause+`
		ORDER BY created_at DESC, id DESC
		LIMIT $5 OFFSET $6`,
		f.OrganizerID, typeArg(f.Type), f.From, f.To, limit, offset,
	)
	if err != nil {
		return nil, apperr.Storage("list transactions", err)
	}
	return txs, nil
}

func typeArg(t *Type) any {
	if t == nil {
		return nil
	}
	return string(*t)
}
