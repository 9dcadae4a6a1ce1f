package services

import (
	"context"

	"payments-service/domain"
)

type PaymentService interface {
	VerifyPayment(req *domain.VerifyPaymentRequest, ctx context.Context) (*domain.Reservation, error)
}
