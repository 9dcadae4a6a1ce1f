package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/gateway"
)

type PaymentServiceImpl struct {
	reservations ReservationStore
	keySecret    string
	Tracer       trace.Tracer
}

func NewPaymentServiceImpl(reservations ReservationStore, keySecret string, tr trace.Tracer) PaymentService {
	return &PaymentServiceImpl{
		reservations: reservations,
		keySecret:    keySecret,
		Tracer:       tr,
	}
}

// VerifyPayment recomputes the checkout signature and confirms the pending
// reservation behind the order. A mismatch mutates nothing; an order id we
// never issued (or already consumed) comes back as not found so a retry
// cannot land on a different reservation.
func (s *PaymentServiceImpl) VerifyPayment(req *domain.VerifyPaymentRequest, ctx context.Context) (*domain.Reservation, error) {
	spanCtx, span := s.Tracer.Start(ctx, "PaymentService.VerifyPayment")
	defer span.End()

	if !gateway.VerifyPaymentSignature(s.keySecret, req.OrderID, req.PaymentID, req.Signature) {
		span.SetStatus(codes.Error, "payment signature mismatch")
		return nil, domain.ErrSignatureMismatch
	}

	reservation, err := s.reservations.ConfirmPayment(req.OrderID, req.PaymentID, req.Signature, spanCtx)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			// The order may already have been consumed by an earlier retry of
			// the same verification. That one is fine to answer again.
			existing, lookupErr := s.reservations.GetByOrderID(req.OrderID, spanCtx)
			if lookupErr == nil && existing.Status == domain.ReservationConfirmed && existing.PaymentID == req.PaymentID {
				span.SetStatus(codes.Ok, "Payment already verified")
				return existing, nil
			}
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "Payment verified")
	return reservation, nil
}
