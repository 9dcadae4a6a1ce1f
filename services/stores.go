package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"payments-service/domain"
)

// ReservationStore is the slice of the reservation repository the payment
// services need. Satisfied by repository.ReservationRepository.
type ReservationStore interface {
	Insert(reservation *domain.Reservation, ctx context.Context) (primitive.ObjectID, error)
	GetByID(id primitive.ObjectID, ctx context.Context) (*domain.Reservation, error)
	GetByOrderID(orderID string, ctx context.Context) (*domain.Reservation, error)
	GetByRefundID(refundID string, ctx context.Context) (*domain.Reservation, error)
	GetByGuestID(guestID string, ctx context.Context) (domain.Reservations, error)
	ConfirmPayment(orderID, paymentID, signature string, ctx context.Context) (*domain.Reservation, error)
	MarkCancelled(id primitive.ObjectID, upd domain.CancelUpdate, ctx context.Context) (*domain.Reservation, error)
	SetRefundRequested(id primitive.ObjectID, refundID string, ctx context.Context) error
	MarkRefundRequestFailed(id primitive.ObjectID, ctx context.Context) error
	ApplyRefundOutcome(refundID string, status domain.ReservationStatus, refundStatus domain.RefundStatus, refundedAt *time.Time, ctx context.Context) (bool, error)
	ListPendingRefunds(ctx context.Context) (domain.Reservations, error)
	ListUnsentRefundRequests(ctx context.Context) (domain.Reservations, error)
}

// CancellationStore is satisfied by repository.CancellationRepository.
type CancellationStore interface {
	Insert(cancellation *domain.Cancellation, ctx context.Context) (primitive.ObjectID, error)
	GetByReservationID(reservationID primitive.ObjectID, ctx context.Context) (*domain.Cancellation, error)
	SetRefundRequested(reservationID primitive.ObjectID, refundID string, ctx context.Context) error
	MarkRefundRequestFailed(reservationID primitive.ObjectID, ctx context.Context) error
	ApplyRefundOutcome(refundID string, status domain.CancellationStatus, refundStatus domain.RefundStatus, completedAt *time.Time, ctx context.Context) (bool, error)
}

// AccommodationStore is satisfied by repository.AccommodationRepository.
type AccommodationStore interface {
	GetByID(id string, ctx context.Context) (*domain.Accommodation, error)
}
