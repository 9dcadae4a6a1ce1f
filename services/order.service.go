package services

import (
	"context"

	"payments-service/domain"
)

type OrderService interface {
	CreateOrder(guest *domain.User, req *domain.CreateReservationRequest, ctx context.Context) (*domain.Reservation, error)
}
