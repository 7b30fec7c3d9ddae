package email

import (
	"context"
	"fmt"
	"time"

	"coursehub/internal/user"
)

type UserLookup interface {
	FindByID(ctx context.Context, id int) (*user.User, error)
}

// Notifier turns booking and subscription events into queued emails.
type Notifier struct {
	mail  *Service
	users UserLookup
}

func NewNotifier(mail *Service, users UserLookup) *Notifier {
	return &Notifier{mail: mail, users: users}
}

func (n *Notifier) EnrollmentConfirmed(ctx context.Context, participantID int, courseTitle string) error {
	u, err := n.users.FindByID(ctx, participantID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`Hi %s,

The organizer confirmed your enrollment in "%s".`, u.Name, courseTitle)

	return n.mail.Send(ctx, "enrollment_confirmed", u.Email, u.Name, "Enrollment confirmed - "+courseTitle, body+signatureLn)
}

// ConsultationBooked tells both the trainer and the participant.
func (n *Notifier) ConsultationBooked(ctx context.Context, trainerID, participantID int, scheduledAt time.Time, durationMinutes int) error {
	trainer, err := n.users.FindByID(ctx, trainerID)
	if err != nil {
		return err
	}
	participant, err := n.users.FindByID(ctx, participantID)
	if err != nil {
		return err
	}
	when := scheduledAt.UTC().Format(timeLayout)

	body := fmt.Sprintf(`Hi %s,

%s booked your consultation on %s (%d minutes).`, trainer.Name, participant.Name, when, durationMinutes)
	if err := n.mail.Send(ctx, "consultation_booked", trainer.Email, trainer.Name, "New consultation booking", body+signatureLn); err != nil {
		return err
	}

	body = fmt.Sprintf(`Hi %s,

Your consultation with %s is booked for %s (%d minutes).`, participant.Name, trainer.Name, when, durationMinutes)
	return n.mail.Send(ctx, "consultation_booked", participant.Email, participant.Name, "Consultation booked", body+signatureLn)
}

func (n *Notifier) SubscriptionPaymentFailed(ctx context.Context, organizerID int, endDate time.Time) error {
	u, err := n.users.FindByID(ctx, organizerID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`Hi %s,

We could not collect your subscription payment. Course creation is paused
until the payment succeeds. Subscription end date: %s.`, u.Name, endDate.UTC().Format(dateLayout))

	return n.mail.Send(ctx, "subscription_payment_failed", u.Email, u.Name, "Subscription payment failed", body+signatureLn)
}
