package services

import (
	"context"

	"payments-service/domain"
)

type CancellationService interface {
	Cancel(reservationID string, requester *domain.User, reason string, ctx context.Context) (*domain.Reservation, *domain.Cancellation, error)
}
