package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"payments-service/domain"
)

func newRefundStatusFixture(t *testing.T) (*RefundStatusServiceImpl, *fakeReservationStore, *fakeCancellationStore, *fakeNotifier, *domain.Reservation) {
	t.Helper()

	reservation := &domain.Reservation{
		ID:           primitive.NewObjectID(),
		GuestID:      "guest-1",
		GuestEmail:   "guest@example.com",
		TotalAmount:  200,
		RefundAmount: 100,
		RefundID:     "rfnd_123",
		Status:       domain.ReservationRefundPending,
		RefundStatus: domain.RefundProcessing,
	}
	reservations := newFakeReservationStore(reservation)

	cancellations := newFakeCancellationStore()
	_, err := cancellations.Insert(&domain.Cancellation{
		ReservationID: reservation.ID,
		GuestID:       reservation.GuestID,
		RefundStatus:  domain.RefundPending,
		Status:        domain.CancellationPending,
	}, context.Background())
	require.NoError(t, err)
	require.NoError(t, cancellations.SetRefundRequested(reservation.ID, reservation.RefundID, context.Background()))

	notifier := &fakeNotifier{}
	svc := NewRefundStatusServiceImpl(reservations, cancellations, notifier, testLogger(), testTracer()).(*RefundStatusServiceImpl)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	return svc, reservations, cancellations, notifier, reservation
}

func TestApplyCompletedTransitionsAndNotifiesOnce(t *testing.T) {
	svc, reservations, cancellations, notifier, reservation := newRefundStatusFixture(t)

	result, err := svc.Apply("rfnd_123", domain.OutcomeCompleted, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateApplied, result)

	stored, err := reservations.GetByID(reservation.ID, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRefunded, stored.Status)
	assert.Equal(t, domain.RefundCompleted, stored.RefundStatus)
	require.NotNil(t, stored.RefundedAt)

	audit, err := cancellations.GetByReservationID(reservation.ID, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CancellationCompleted, audit.Status)
	assert.Equal(t, domain.RefundCompleted, audit.RefundStatus)

	require.Equal(t, 1, notifier.callCount())
	assert.Equal(t, NotificationRefundSucceeded, notifier.calls[0].kind)
	assert.Equal(t, "guest@example.com", notifier.calls[0].recipient)
}

func TestApplyIsIdempotent(t *testing.T) {
	svc, _, _, notifier, _ := newRefundStatusFixture(t)

	first, err := svc.Apply("rfnd_123", domain.OutcomeCompleted, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateApplied, first)

	second, err := svc.Apply("rfnd_123", domain.OutcomeCompleted, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateUnchanged, second)

	assert.Equal(t, 1, notifier.callCount())
}

func TestApplyConcurrentCallersTransitionExactlyOnce(t *testing.T) {
	svc, reservations, _, notifier, reservation := newRefundStatusFixture(t)

	const callers = 16
	results := make([]domain.UpdateResult, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := svc.Apply("rfnd_123", domain.OutcomeCompleted, context.Background())
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, result := range results {
		if result == domain.UpdateApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied, "exactly one caller must win the transition")
	assert.Equal(t, 1, notifier.callCount(), "the winner alone notifies")

	stored, err := reservations.GetByID(reservation.ID, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRefunded, stored.Status)
}

func TestApplyFailedOutcome(t *testing.T) {
	svc, reservations, cancellations, notifier, reservation := newRefundStatusFixture(t)

	result, err := svc.Apply("rfnd_123", domain.OutcomeFailed, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateApplied, result)

	stored, err := reservations.GetByID(reservation.ID, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, stored.Status)
	assert.Equal(t, domain.RefundFailed, stored.RefundStatus)
	assert.Nil(t, stored.RefundedAt)

	audit, err := cancellations.GetByReservationID(reservation.ID, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CancellationFailed, audit.Status)

	require.Equal(t, 1, notifier.callCount())
	assert.Equal(t, NotificationRefundFailed, notifier.calls[0].kind)
}

func TestApplyPendingIsNoOp(t *testing.T) {
	svc, reservations, _, notifier, reservation := newRefundStatusFixture(t)

	result, err := svc.Apply("rfnd_123", domain.OutcomePending, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateSkipped, result)

	stored, err := reservations.GetByID(reservation.ID, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRefundPending, stored.Status)
	assert.Equal(t, 0, notifier.callCount())
}

func TestApplyUnknownRefundID(t *testing.T) {
	svc, _, _, notifier, _ := newRefundStatusFixture(t)

	_, err := svc.Apply("rfnd_unknown", domain.OutcomeCompleted, context.Background())
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	assert.Equal(t, 0, notifier.callCount())
}

func TestApplyStoreErrorPropagates(t *testing.T) {
	svc, reservations, _, _, _ := newRefundStatusFixture(t)
	reservations.applyErr = errors.New("connection reset")

	result, err := svc.Apply("rfnd_123", domain.OutcomeCompleted, context.Background())
	assert.Error(t, err)
	assert.Equal(t, domain.UpdateSkipped, result)
}

func TestApplyNotificationFailureDoesNotUndoTransition(t *testing.T) {
	svc, reservations, _, notifier, reservation := newRefundStatusFixture(t)
	notifier.err = errors.New("smtp down")

	result, err := svc.Apply("rfnd_123", domain.OutcomeCompleted, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateApplied, result)

	stored, err := reservations.GetByID(reservation.ID, context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRefunded, stored.Status)
}
