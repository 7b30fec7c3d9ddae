// Package access decides whether a caller may create courses. Admins always
// may; organizers need a live subscription; everyone else is refused.
package access

import (
	"context"

	"coursehub/internal/auth"
	"coursehub/internal/subscription"
)

type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonNoSubscription Reason = "no_subscription"
	ReasonExpired        Reason = "expired"
	ReasonRoleNotAllowed Reason = "role_not_allowed"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

type Gate struct {
	entitlements EntitlementSource
}

func NewGate(entitlements EntitlementSource) *Gate {
	return &Gate{entitlements: entitlements}
}

func (g *Gate) CanCreateCourse(ctx context.Context, role auth.Role, organizerID int) (Decision, error) {
	switch role {
	case auth.RoleAdmin:
		return Decision{Allowed: true, Reason: ReasonOK}, nil
	case auth.RoleOrganizer:
	default:
		return Decision{Reason: ReasonRoleNotAllowed}, nil
	}

	e, err := g.entitlements.Entitlement(ctx, organizerID)
	if err != nil {
		return Decision{}, err
	}
	switch e.State {
	case subscription.EntitlementActive:
		return Decision{Allowed: true, Reason: ReasonOK}, nil
	case subscription.EntitlementExpired:
		return Decision{Reason: ReasonExpired}, nil
	default:
		return Decision{Reason: ReasonNoSubscription}, nil
	}
}
