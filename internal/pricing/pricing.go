// Package pricing computes gross price, platform commission and organizer
// earnings for each sales channel. All functions are pure; percentages must
// already be within [0, 100] when they arrive here.
package pricing

import (
	"fmt"

	"coursehub/internal/apperr"
	"coursehub/internal/money"
)

var ErrInvalidInput = apperr.Validation("invalid_pricing_input", "invalid pricing input")

// Defaults is the single source of fallback rates.
type Defaults struct {
	LiveCommission         money.Percent
	OnlineCommission       money.Percent
	OnlineDiscount         money.Percent
	ConsultationCommission money.Percent
	PackageCommission      money.Percent
}

// StandardDefaults are the platform rates used when configuration does not override them.
func StandardDefaults() Defaults {
	return Defaults{
		LiveCommission:         money.Pct(10),
		OnlineCommission:       money.Pct(10),
		OnlineDiscount:         money.Pct(50),
		ConsultationCommission: money.Pct(10),
		PackageCommission:      money.Pct(10),
	}
}

type Policy struct {
	defaults Defaults
}

func NewPolicy(d Defaults) (*Policy, error) {
	for name, p := range map[string]money.Percent{
		"live commission":         d.LiveCommission,
		"online commission":       d.OnlineCommission,
		"online discount":         d.OnlineDiscount,
		"consultation commission": d.ConsultationCommission,
		"package commission":      d.PackageCommission,
	} {
		if !p.InRange() {
			return nil, invalid("default %s %s outside [0, 100]", name, p)
		}
	}
	return &Policy{defaults: d}, nil
}

func (p *Policy) Defaults() Defaults { return p.defaults }

// StationaryInput describes an in-person course. Nil pointers mean "not set".
type StationaryInput struct {
	BasePrice          money.Cents
	ParticipantPrice   *money.Cents
	FundingPercentage  *money.Percent
	LiveCommissionRate *money.Percent
}

// Stationary prices an enrollment. With a funding discount the participant
// pays the explicit participant price or the discounted base price and the
// commission applies to that amount; without funding it applies to the base price.
func (p *Policy) Stationary(in StationaryInput) (money.Split, error) {
	if in.BasePrice.IsNegative() {
		return money.Split{}, invalid("base price %s is negative", in.BasePrice)
	}
	rate, err := p.rateOr(in.LiveCommissionRate, p.defaults.LiveCommission, "live commission rate")
	if err != nil {
		return money.Split{}, err
	}

	price := in.BasePrice
	if in.FundingPercentage != nil {
		if err := checkPercent(*in.FundingPercentage, "funding percentage"); err != nil {
			return money.Split{}, err
		}
		if *in.FundingPercentage > money.ZeroPercent {
			if in.ParticipantPrice != nil {
				if in.ParticipantPrice.IsNegative() {
					return money.Split{}, invalid("participant price %s is negative", *in.ParticipantPrice)
				}
				price = *in.ParticipantPrice
			} else {
				price = in.BasePrice.Less(*in.FundingPercentage)
			}
		}
	}

	return money.NewSplit(price, price.Of(rate)), nil
}

// OnlineInput describes an on-demand video course.
type OnlineInput struct {
	BasePrice                money.Cents
	OnlinePrice              *money.Cents
	OnlineDiscountPercentage *money.Percent
	CommissionRate           *money.Percent
}

func (p *Policy) Online(in OnlineInput) (money.Split, error) {
	if in.BasePrice.IsNegative() {
		return money.Split{}, invalid("base price %s is negative", in.BasePrice)
	}
	rate, err := p.rateOr(in.CommissionRate, p.defaults.OnlineCommission, "commission rate")
	if err != nil {
		return money.Split{}, err
	}

	var price money.Cents
	if in.OnlinePrice != nil {
		if in.OnlinePrice.IsNegative() {
			return money.Split{}, invalid("online price %s is negative", *in.OnlinePrice)
		}
		price = *in.OnlinePrice
	} else {
		discount, err := p.rateOr(in.OnlineDiscountPercentage, p.defaults.OnlineDiscount, "online discount")
		if err != nil {
			return money.Split{}, err
		}
		price = in.BasePrice.Less(discount)
	}

	return money.NewSplit(price, price.Of(rate)), nil
}

type ConsultationInput struct {
	PricePerHour    money.Cents
	DurationMinutes int
	CommissionRate  *money.Percent
}

func (p *Policy) Consultation(in ConsultationInput) (money.Split, error) {
	if in.PricePerHour.IsNegative() {
		return money.Split{}, invalid("price per hour %s is negative", in.PricePerHour)
	}
	if in.DurationMinutes <= 0 {
		return money.Split{}, invalid("duration %d minutes is not positive", in.DurationMinutes)
	}
	rate, err := p.rateOr(in.CommissionRate, p.defaults.ConsultationCommission, "commission rate")
	if err != nil {
		return money.Split{}, err
	}

	total := in.PricePerHour.MulDiv(int64(in.DurationMinutes), 60)
	return money.NewSplit(total, total.Of(rate)), nil
}

type CompanyPackageInput struct {
	Amount         money.Cents
	CommissionRate *money.Percent
}

func (p *Policy) CompanyPackage(in CompanyPackageInput) (money.Split, error) {
	if in.Amount.IsNegative() {
		return money.Split{}, invalid("amount %s is negative", in.Amount)
	}
	rate, err := p.rateOr(in.CommissionRate, p.defaults.PackageCommission, "commission rate")
	if err != nil {
		return money.Split{}, err
	}
	return money.NewSplit(in.Amount, in.Amount.Of(rate)), nil
}

func (p *Policy) rateOr(v *money.Percent, def money.Percent, name string) (money.Percent, error) {
	if v == nil {
		return def, nil
	}
	if err := checkPercent(*v, name); err != nil {
		return 0, err
	}
	return *v, nil
}

func checkPercent(v money.Percent, name string) error {
	if !v.InRange() {
		return invalid("%s %s outside [0, 100]", name, v)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return ErrInvalidInput.Wrap(fmt.Errorf(format, args...))
}
