package subscription

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/apperr"
	"coursehub/internal/db"
)

const subscriptionColumns = `id, organizer_id, status, start_date, end_date, monthly_price_cents,
	processor_customer_id, processor_subscription_id, created_at, updated_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByOrganizer(ctx context.Context, organizerID int) (*Subscription, error) {
	sub := &Subscription{}
	err := r.db.GetContext(ctx, sub, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE organizer_id = $1`, organizerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Storage("get subscription", err)
	}
	return sub, nil
}

// Renew reads the organizer's row under lock, asks next for the new state and
// writes it. The advisory lock also covers the first renewal, when there is
// no row for FOR UPDATE to lock.
func (r *PostgresRepository) Renew(ctx context.Context, organizerID int, next RenewFunc) (*Subscription, error) {
	out := &Subscription{}
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, db.LockSubscription, organizerID); err != nil {
			return err
		}

		var cur *Subscription
		existing := &Subscription{}
		err := tx.GetContext(ctx, existing, `
			SELECT `+subscriptionColumns+`
			FROM subscriptions
			WHERE organizer_id = $1
			FOR UPDATE`, organizerID)
		switch {
		case err == nil:
			cur = existing
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		want := next(cur)
		if cur == nil {
			return tx.GetContext(ctx, out, `
				INSERT INTO subscriptions (organizer_id, status, start_date, end_date, monthly_price_cents)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING `+subscriptionColumns,
				organizerID, want.Status, want.StartDate, want.EndDate, want.MonthlyPrice,
			)
		}
		return tx.GetContext(ctx, out, `
			UPDATE subscriptions
			SET status = $2, start_date = $3, end_date = $4, monthly_price_cents = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING `+subscriptionColumns,
			cur.ID, want.Status, want.StartDate, want.EndDate, want.MonthlyPrice,
		)
	})
	if err != nil {
		return nil, apperr.Storage("renew subscription", err)
	}
	return out, nil
}

// Cancel marks the row cancelled and leaves the end date alone.
func (r *PostgresRepository) Cancel(ctx context.Context, organizerID int) (*Subscription, error) {
	sub := &Subscription{}
	err := r.db.GetContext(ctx, sub, `
		UPDATE subscriptions
		SET status = 'cancelled', updated_at = NOW()
		WHERE organizer_id = $1
		RETURNING `+subscriptionColumns, organizerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Storage("cancel subscription", err)
	}
	return sub, nil
}

// UpsertFromCheckout creates or overwrites the organizer's row with the
// processor's period. Replaying the same checkout yields the same row.
func (r *PostgresRepository) UpsertFromCheckout(ctx context.Context, c Checkout) (*Subscription, error) {
	sub := &Subscription{}
	err := r.db.GetContext(ctx, sub, `
		INSERT INTO subscriptions (
			organizer_id, status, start_date, end_date, monthly_price_cents,
			processor_customer_id, processor_subscription_id
		)
		VALUES ($1, 'active', $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT ON CONSTRAINT uq_subscriptions_organizer DO UPDATE SET
			status = 'active',
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			monthly_price_cents = EXCLUDED.monthly_price_cents,
			processor_customer_id = COALESCE(EXCLUDED.processor_customer_id, subscriptions.processor_customer_id),
			processor_subscription_id = COALESCE(EXCLUDED.processor_subscription_id, subscriptions.processor_subscription_id),
			updated_at = NOW()
		RETURNING `+subscriptionColumns,
		c.OrganizerID, c.PeriodStart, c.PeriodEnd, c.MonthlyPrice,
		c.ProcessorCustomerID, c.ProcessorSubscriptionID,
	)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_subscriptions_processor_subscription") {
			return nil, apperr.Conflict("processor_subscription_taken", "processor subscription belongs to another organizer").Wrap(err)
		}
		return nil, apperr.Storage("upsert subscription", err)
	}
	return sub, nil
}

func (r *PostgresRepository) UpdateByProcessorID(ctx context.Context, processorSubscriptionID string, u ProcessorUpdate) (*Subscription, error) {
	var status *string
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
	}

	sub := &Subscription{}
	err := r.db.GetContext(ctx, sub, `
		UPDATE subscriptions
		SET status = COALESCE($2, status),
		    start_date = COALESCE($3, start_date),
		    end_date = COALESCE($4, end_date),
		    updated_at = NOW()
		WHERE processor_subscription_id = $1
		RETURNING `+subscriptionColumns,
		processorSubscriptionID, status, u.PeriodStart, u.PeriodEnd,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Storage("update subscription by processor id", err)
	}
	return sub, nil
}
