package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/apperr"
	"coursehub/internal/money"
)

func TestNewTransaction(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("completed rows carry a payment date", func(t *testing.T) {
		ref := PurchaseRef(9)
		tx, err := NewTransaction(OpenParams{
			Type:        TypeCourseOnline,
			Split:       money.NewSplit(50000, 5000),
			Status:      StatusCompleted,
			Ref:         &ref,
			OrganizerID: 2,
		}, now)
		require.NoError(t, err)

		require.NotNil(t, tx.PaymentDate)
		assert.Equal(t, now, *tx.PaymentDate)
		assert.Equal(t, 9, *tx.PurchaseID)
		assert.Nil(t, tx.EnrollmentID)
		assert.Equal(t, DefaultPaymentMethod, tx.PaymentMethod)
		assert.True(t, tx.Split().Balanced())
	})

	t.Run("pending rows have no payment date", func(t *testing.T) {
		tx, err := NewTransaction(OpenParams{
			Type:          TypeCourseLive,
			Split:         money.NewSplit(20000, 2000),
			Status:        StatusPending,
			OrganizerID:   2,
			PaymentMethod: "invoice",
		}, now)
		require.NoError(t, err)
		assert.Nil(t, tx.PaymentDate)
		assert.Equal(t, "invoice", tx.PaymentMethod)
	})

	t.Run("rejects unknown type and status", func(t *testing.T) {
		_, err := NewTransaction(OpenParams{Type: "refund", Status: StatusPending, OrganizerID: 1}, now)
		assert.ErrorIs(t, err, ErrInvalidType)

		_, err = NewTransaction(OpenParams{Type: TypeConsultation, Status: "paid", OrganizerID: 1}, now)
		assert.ErrorIs(t, err, ErrInvalidStatus)

		_, err = NewTransaction(OpenParams{Type: TypeConsultation, Status: StatusPending}, now)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("unbalanced split panics", func(t *testing.T) {
		assert.Panics(t, func() {
			_, _ = NewTransaction(OpenParams{
				Type:        TypeConsultation,
				Split:       money.Split{Amount: 100, Commission: 10, OrganizerEarnings: 80},
				Status:      StatusPending,
				OrganizerID: 1,
			}, now)
		})
	})
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
