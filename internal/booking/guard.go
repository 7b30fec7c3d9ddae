package booking

import (
	"time"

	"coursehub/internal/auth"
	"coursehub/internal/course"
)

// Guard holds the checks that can be made before touching storage.
// Uniqueness itself is never decided here: two concurrent requests both pass
// the guard, and the unique index or conditional update picks the winner.
type Guard struct {
	now func() time.Time
}

func NewGuard() Guard {
	return Guard{now: time.Now}
}

func (g Guard) CheckEnrollment(c *course.Course, participantID int) error {
	if c.OrganizerID == participantID {
		return ErrOwnCourse
	}
	if c.Kind != course.KindStationary {
		return ErrWrongCourseKind
	}
	return nil
}

func (g Guard) CheckPurchase(c *course.Course, participantID int) error {
	if c.OrganizerID == participantID {
		return ErrOwnCourse
	}
	if c.Kind != course.KindOnline {
		return ErrWrongCourseKind
	}
	return nil
}

func (g Guard) CheckBooking(c *Consultation, participantID int) error {
	if c.TrainerID == participantID {
		return ErrOwnConsultation
	}
	if c.Status != ConsultationPending {
		return ErrSlotTaken
	}
	if !c.ScheduledAt.After(g.now()) {
		return ErrSlotInPast
	}
	return nil
}

func (g Guard) CheckOffer(req OfferConsultationRequest) error {
	if !req.ScheduledAt.After(g.now()) {
		return ErrSlotInPast
	}
	return nil
}

// CanManageEnrollment allows the course organizer and admins.
func (g Guard) CanManageEnrollment(actor Actor, e *Enrollment) error {
	if actor.Role == auth.RoleAdmin || actor.UserID == e.OrganizerID {
		return nil
	}
	return ErrNotCourseOrganizer
}

// CanCancelConsultation allows the trainer, the bound participant and admins.
func (g Guard) CanCancelConsultation(actor Actor, c *Consultation) error {
	switch {
	case actor.Role == auth.RoleAdmin, actor.UserID == c.TrainerID:
		return nil
	case c.ParticipantID != nil && *c.ParticipantID == actor.UserID:
		return nil
	}
	return ErrNotConsultationParty
}
