package course

import (
	"time"

	"coursehub/internal/apperr"
	"coursehub/internal/money"
	"coursehub/internal/pricing"
)

type Kind string

const (
	KindStationary Kind = "stationary"
	KindOnline     Kind = "online"
)

// Course carries the catalog fields pricing depends on. Nil pointers mean
// the organizer left the value unset and the platform default applies.
type Course struct {
	ID                       int            `db:"id" json:"id"`
	OrganizerID              int            `db:"organizer_id" json:"organizer_id"`
	Title                    string         `db:"title" json:"title"`
	Kind                     Kind           `db:"kind" json:"kind"`
	BasePrice                money.Cents    `db:"base_price_cents" json:"base_price_cents"`
	ParticipantPrice         *money.Cents   `db:"participant_price_cents" json:"participant_price_cents,omitempty"`
	FundingPercentage        *money.Percent `db:"funding_percentage" json:"funding_percentage,omitempty"`
	LiveCommissionRate       *money.Percent `db:"live_commission_rate" json:"live_commission_rate,omitempty"`
	OnlinePrice              *money.Cents   `db:"online_price_cents" json:"online_price_cents,omitempty"`
	OnlineDiscountPercentage *money.Percent `db:"online_discount_percentage" json:"online_discount_percentage,omitempty"`
	CommissionRate           *money.Percent `db:"commission_rate" json:"commission_rate,omitempty"`
	CreatedAt                time.Time      `db:"created_at" json:"created_at"`
}

func (c *Course) StationaryInput() pricing.StationaryInput {
	return pricing.StationaryInput{
		BasePrice:          c.BasePrice,
		ParticipantPrice:   c.ParticipantPrice,
		FundingPercentage:  c.FundingPercentage,
		LiveCommissionRate: c.LiveCommissionRate,
	}
}

func (c *Course) OnlineInput() pricing.OnlineInput {
	return pricing.OnlineInput{
		BasePrice:                c.BasePrice,
		OnlinePrice:              c.OnlinePrice,
		OnlineDiscountPercentage: c.OnlineDiscountPercentage,
		CommissionRate:           c.CommissionRate,
	}
}

type CreateCourseRequest struct {
	Title                    string         `json:"title" binding:"required,min=3,max=255"`
	Kind                     Kind           `json:"kind" binding:"required,oneof=stationary online"`
	BasePrice                money.Cents    `json:"base_price_cents" binding:"gte=0"`
	ParticipantPrice         *money.Cents   `json:"participant_price_cents" binding:"omitempty,gte=0"`
	FundingPercentage        *money.Percent `json:"funding_percentage"`
	LiveCommissionRate       *money.Percent `json:"live_commission_rate"`
	OnlinePrice              *money.Cents   `json:"online_price_cents" binding:"omitempty,gte=0"`
	OnlineDiscountPercentage *money.Percent `json:"online_discount_percentage"`
	CommissionRate           *money.Percent `json:"commission_rate"`
}

// clamp pins every percentage into [0, 100]. Pricing rejects out-of-range
// values, so this runs before anything is stored.
func (r *CreateCourseRequest) clamp() {
	for _, p := range []*money.Percent{
		r.FundingPercentage,
		r.LiveCommissionRate,
		r.OnlineDiscountPercentage,
		r.CommissionRate,
	} {
		if p != nil {
			*p = money.ClampPercent(*p)
		}
	}
}

var (
	ErrNotFound    = apperr.NotFound("course_not_found", "course not found")
	ErrInvalidKind = apperr.Validation("invalid_course_kind", "course kind must be stationary or online")
)
