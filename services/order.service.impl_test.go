package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"payments-service/domain"
	"payments-service/gateway"
)

func newOrderFixture(t *testing.T) (OrderService, *fakeReservationStore, *fakeGateway, *domain.Accommodation) {
	t.Helper()

	accommodation := &domain.Accommodation{
		ID:   primitive.NewObjectID(),
		Name: "Sea View Apartment",
	}
	reservations := newFakeReservationStore()
	gw := &fakeGateway{}
	svc := NewOrderServiceImpl(reservations, newFakeAccommodationStore(accommodation), gw, testTracer())
	return svc, reservations, gw, accommodation
}

func validCreateRequest(accommodationID string) *domain.CreateReservationRequest {
	checkIn := time.Now().Add(10 * 24 * time.Hour)
	return &domain.CreateReservationRequest{
		AccommodationID: accommodationID,
		CheckInDate:     checkIn,
		CheckOutDate:    checkIn.Add(3 * 24 * time.Hour),
		Adults:          2,
		TotalAmount:     450.50,
	}
}

func TestCreateOrderPersistsPendingReservation(t *testing.T) {
	svc, reservations, gw, accommodation := newOrderFixture(t)
	guest := &domain.User{ID: "guest-1", Email: "guest@example.com"}

	reservation, err := svc.CreateOrder(guest, validCreateRequest(accommodation.ID.Hex()), context.Background())
	require.NoError(t, err)

	assert.Equal(t, "order_test", reservation.OrderID)
	assert.Equal(t, domain.ReservationPending, reservation.Status)
	assert.Equal(t, domain.RefundNone, reservation.RefundStatus)
	assert.Equal(t, guest.ID, reservation.GuestID)
	assert.Equal(t, guest.Email, reservation.GuestEmail)
	assert.Equal(t, 1, gw.orderCalls)

	stored, err := reservations.GetByOrderID("order_test", context.Background())
	require.NoError(t, err)
	assert.Equal(t, 450.50, stored.TotalAmount)
}

func TestCreateOrderSendsMinorUnits(t *testing.T) {
	svc, _, gw, accommodation := newOrderFixture(t)
	var gotAmount int64
	var gotReceipt string
	gw.createOrderFn = func(amountMinor int64, currency, receipt string) (*gateway.Order, error) {
		gotAmount = amountMinor
		gotReceipt = receipt
		return &gateway.Order{ID: "order_test", Amount: amountMinor, Currency: currency}, nil
	}

	_, err := svc.CreateOrder(&domain.User{ID: "guest-1"}, validCreateRequest(accommodation.ID.Hex()), context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(45050), gotAmount)
	assert.True(t, strings.HasPrefix(gotReceipt, "rsv_"))
}

func TestCreateOrderValidatesRequest(t *testing.T) {
	svc, _, gw, accommodation := newOrderFixture(t)

	req := validCreateRequest(accommodation.ID.Hex())
	req.TotalAmount = 0
	_, err := svc.CreateOrder(&domain.User{ID: "guest-1"}, req, context.Background())
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	req = validCreateRequest(accommodation.ID.Hex())
	req.CheckOutDate = req.CheckInDate.Add(-24 * time.Hour)
	_, err = svc.CreateOrder(&domain.User{ID: "guest-1"}, req, context.Background())
	assert.ErrorAs(t, err, &validationErr)

	assert.Equal(t, 0, gw.orderCalls, "invalid requests never reach the gateway")
}

func TestCreateOrderUnknownAccommodation(t *testing.T) {
	svc, _, gw, _ := newOrderFixture(t)

	_, err := svc.CreateOrder(&domain.User{ID: "guest-1"}, validCreateRequest(primitive.NewObjectID().Hex()), context.Background())
	assert.ErrorIs(t, err, domain.ErrAccommodationNotFound)
	assert.Equal(t, 0, gw.orderCalls)
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	svc, reservations, gw, accommodation := newOrderFixture(t)
	gw.createOrderFn = func(amountMinor int64, currency, receipt string) (*gateway.Order, error) {
		return nil, gateway.ErrUnavailable
	}

	_, err := svc.CreateOrder(&domain.User{ID: "guest-1"}, validCreateRequest(accommodation.ID.Hex()), context.Background())
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Empty(t, reservations.byID, "nothing persisted when the order fails")
}

func TestCreateOrderPersistFailureReportsOrderID(t *testing.T) {
	svc, reservations, _, accommodation := newOrderFixture(t)
	reservations.insertErr = errors.New("write concern timeout")

	_, err := svc.CreateOrder(&domain.User{ID: "guest-1"}, validCreateRequest(accommodation.ID.Hex()), context.Background())
	var persistErr *domain.PersistAfterOrderError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "order_test", persistErr.OrderID)
}
