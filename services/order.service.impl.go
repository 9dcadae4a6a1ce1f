package services

import (
	"context"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/gateway"
)

type OrderServiceImpl struct {
	reservations   ReservationStore
	accommodations AccommodationStore
	gateway        gateway.Client
	validate       *validator.Validate
	Tracer         trace.Tracer
}

func NewOrderServiceImpl(reservations ReservationStore, accommodations AccommodationStore, gw gateway.Client, tr trace.Tracer) OrderService {
	return &OrderServiceImpl{
		reservations:   reservations,
		accommodations: accommodations,
		gateway:        gw,
		validate:       validator.New(),
		Tracer:         tr,
	}
}

// CreateOrder opens a gateway payment order and persists the pending
// reservation carrying the order id. The two steps are sequential; if the
// second fails the caller gets a PersistAfterOrderError so the charge is
// not silently repeated.
func (s *OrderServiceImpl) CreateOrder(guest *domain.User, req *domain.CreateReservationRequest, ctx context.Context) (*domain.Reservation, error) {
	spanCtx, span := s.Tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewValidationError("invalid reservation request: %v", err)
	}
	if !req.CheckOutDate.After(req.CheckInDate) {
		span.SetStatus(codes.Error, "check-out must be after check-in")
		return nil, domain.NewValidationError("check-out date must be after check-in date")
	}

	if _, err := s.accommodations.GetByID(req.AccommodationID, spanCtx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	receipt := "rsv_" + uuid.NewString()
	order, err := s.gateway.CreateOrder(spanCtx, MinorUnits(req.TotalAmount), "INR", receipt)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reservation := &domain.Reservation{
		AccommodationID: req.AccommodationID,
		GuestID:         guest.ID,
		GuestEmail:      guest.Email,
		CheckInDate:     req.CheckInDate,
		CheckOutDate:    req.CheckOutDate,
		Adults:          req.Adults,
		Children:        req.Children,
		Infants:         req.Infants,
		Pets:            req.Pets,
		GuestMessage:    req.GuestMessage,
		TotalAmount:     req.TotalAmount,
		OrderID:         order.ID,
		Status:          domain.ReservationPending,
		RefundStatus:    domain.RefundNone,
	}

	if _, err := s.reservations.Insert(reservation, spanCtx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.PersistAfterOrderError{OrderID: order.ID, Err: err}
	}

	span.SetStatus(codes.Ok, "Order created")
	return reservation, nil
}

// MinorUnits converts a decimal amount to the gateway's integer minor
// units (paise).
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
