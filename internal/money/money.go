// Package money holds fixed-point amounts and percentages used by pricing and the ledger.
// Amounts are int64 minor units (cents); there is no floating point arithmetic.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Cents is an amount in the smallest currency unit.
type Cents int64

// FromMajor converts whole currency units to cents.
func FromMajor(units int64) Cents { return Cents(units * 100) }

func (c Cents) IsNegative() bool { return c < 0 }

// String formats the amount as major units, e.g. "12.50".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Percent is a percentage held as hundredths of a percent (basis points):
// 10% is Percent(1000), 12.5% is Percent(1250).
type Percent int64

const (
	ZeroPercent    Percent = 0
	HundredPercent Percent = 10000
)

var ErrInvalidPercent = errors.New("invalid percent")

// Pct builds a Percent from a whole number of percent.
func Pct(whole int64) Percent { return Percent(whole * 100) }

// InRange reports whether p lies in [0, 100].
func (p Percent) InRange() bool { return p >= ZeroPercent && p <= HundredPercent }

func (p Percent) String() string {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if v%100 == 0 {
		return fmt.Sprintf("%s%d", sign, v/100)
	}
	return strings.TrimRight(fmt.Sprintf("%s%d.%02d", sign, v/100, v%100), "0")
}

// ClampPercent bounds p to [0, 100]. Callers at the request boundary clamp
// before handing percentages to pricing.
func ClampPercent(p Percent) Percent {
	if p < ZeroPercent {
		return ZeroPercent
	}
	if p > HundredPercent {
		return HundredPercent
	}
	return p
}

// ParsePercent parses a decimal string such as "12.5" with at most two fraction digits.
func ParsePercent(s string) (Percent, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidPercent
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		frac = strings.TrimRight(frac, "0")
		if len(frac) > 2 {
			return 0, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidPercent, s)
		}
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPercent, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPercent, err)
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return Percent(v), nil
}

// Scan reads NUMERIC columns, which lib/pq delivers as []byte.
func (p *Percent) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = 0
		return nil
	case []byte:
		parsed, err := ParsePercent(string(v))
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case string:
		parsed, err := ParsePercent(v)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case int64:
		*p = Pct(v)
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T into Percent", src)
	}
}

// Value writes the percent as a decimal string for NUMERIC(5,2) columns.
func (p Percent) Value() (driver.Value, error) {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100), nil
}

// MarshalJSON renders the percent as a JSON number, e.g. 12.5.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts a JSON number or numeric string.
func (p *Percent) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := ParsePercent(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Of returns p percent of c, rounded half away from zero to the minor unit.
func (c Cents) Of(p Percent) Cents {
	return Cents(divRound(int64(c)*int64(p), int64(HundredPercent)))
}

// Less returns c reduced by p percent, rounded like Of.
func (c Cents) Less(p Percent) Cents {
	return Cents(divRound(int64(c)*int64(HundredPercent-p), int64(HundredPercent)))
}

// MulDiv returns c*num/den rounded half away from zero. den must be positive.
func (c Cents) MulDiv(num, den int64) Cents {
	if den <= 0 {
		panic("money: non-positive denominator")
	}
	return Cents(divRound(int64(c)*num, den))
}

func divRound(n, d int64) int64 {
	if n >= 0 {
		return (n + d/2) / d
	}
	return -((-n + d/2) / d)
}
