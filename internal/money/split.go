package money

import "fmt"

// Split is the three-way division of a gross amount between the platform and the organizer.
// Commission + OrganizerEarnings == Amount always holds for values built by NewSplit.
type Split struct {
	Amount            Cents `json:"amount_cents"`
	Commission        Cents `json:"commission_cents"`
	OrganizerEarnings Cents `json:"organizer_earnings_cents"`
}

// NewSplit derives earnings from amount and commission.
func NewSplit(amount, commission Cents) Split {
	s := Split{Amount: amount, Commission: commission, OrganizerEarnings: amount - commission}
	s.MustBalance()
	return s
}

// Balanced reports whether the split satisfies the money invariant.
func (s Split) Balanced() bool {
	return s.Commission+s.OrganizerEarnings == s.Amount
}

// MustBalance panics when the invariant does not hold. A broken split is a
// programming error, never a user-facing condition.
func (s Split) MustBalance() {
	if !s.Balanced() {
		panic(fmt.Sprintf("money: unbalanced split: commission %s + earnings %s != amount %s",
			s.Commission, s.OrganizerEarnings, s.Amount))
	}
}
