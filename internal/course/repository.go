package course

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/apperr"
)

const courseColumns = `id, organizer_id, title, kind, base_price_cents, participant_price_cents,
	funding_percentage, live_commission_rate, online_price_cents, online_discount_percentage,
	commission_rate, created_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, organizerID int, req CreateCourseRequest) (*Course, error) {
	query := `
		INSERT INTO courses (
			organizer_id, title, kind, base_price_cents, participant_price_cents,
			funding_percentage, live_commission_rate, online_price_cents,
			online_discount_percentage, commission_rate
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + courseColumns

	var c Course
	err := r.db.GetContext(ctx, &c, query,
		organizerID, req.Title, req.Kind, req.BasePrice, req.ParticipantPrice,
		req.FundingPercentage, req.LiveCommissionRate, req.OnlinePrice,
		req.OnlineDiscountPercentage, req.CommissionRate,
	)
	if err != nil {
		return nil, apperr.Storage("create course", err)
	}
	return &c, nil
}

// GetByID is also what booking flows use to price a course.
func (r *PostgresRepository) GetByID(ctx context.Context, id int) (*Course, error) {
	var c Course
	err := r.db.GetContext(ctx, &c, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Storage("get course", err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListByOrganizer(ctx context.Context, organizerID int) ([]Course, error) {
	courses := []Course{}
	err := r.db.SelectContext(ctx, &courses,
		`SELECT `+courseColumns+` FROM courses WHERE organizer_id = $1 ORDER BY created_at DESC`, organizerID)
	if err != nil {
		return nil, apperr.Storage("list courses", err)
	}
	return courses, nil
}
