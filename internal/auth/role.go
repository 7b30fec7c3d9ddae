package auth

import "fmt"

// Role is the closed set of account roles carried in session tokens.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleOrganizer, RoleParticipant:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// Capability names an action gated by role.
type Capability string

const (
	CapEnroll             Capability = "enroll"
	CapPurchase           Capability = "purchase"
	CapBookConsultation   Capability = "book_consultation"
	CapOfferConsultation  Capability = "offer_consultation"
	CapManageEnrollments  Capability = "manage_enrollments"
	CapManageSubscription Capability = "manage_subscription"
	CapCreateCourse       Capability = "create_course"
	CapViewLedger         Capability = "view_ledger"
	CapRecordPackages     Capability = "record_company_packages"
)

// capabilities is the single role table every route consults. Course
// creation by organizers is further gated on an active subscription.
var capabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManageEnrollments: true,
		CapCreateCourse:      true,
		CapViewLedger:        true,
		CapRecordPackages:    true,
	},
	RoleOrganizer: {
		CapOfferConsultation:  true,
		CapManageEnrollments:  true,
		CapManageSubscription: true,
		CapCreateCourse:       true,
		CapViewLedger:         true,
		CapEnroll:             true,
		CapPurchase:           true,
		CapBookConsultation:   true,
	},
	RoleParticipant: {
		CapEnroll:           true,
		CapPurchase:         true,
		CapBookConsultation: true,
	},
}

func (r Role) Allows(c Capability) bool {
	return capabilities[r][c]
}
