package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/services"
)

type PaymentHandler struct {
	orderService   services.OrderService
	paymentService services.PaymentService
	reservations   services.ReservationStore
	cancellations  services.CancellationStore
	auth           *AuthClient
	Tracer         trace.Tracer
}

func NewPaymentHandler(orderService services.OrderService, paymentService services.PaymentService,
	reservations services.ReservationStore, cancellations services.CancellationStore,
	auth *AuthClient, tr trace.Tracer) PaymentHandler {
	return PaymentHandler{
		orderService:   orderService,
		paymentService: paymentService,
		reservations:   reservations,
		cancellations:  cancellations,
		auth:           auth,
		Tracer:         tr,
	}
}

func (s *PaymentHandler) CreateOrder(c *gin.Context) {
	spanCtx, span := s.Tracer.Start(c.Request.Context(), "PaymentHandler.CreateOrder")
	defer span.End()

	token := c.GetHeader("Authorization")
	currentUser, err := s.auth.CurrentUser(spanCtx, token)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to obtain current user information. Try again later")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to obtain current user information. Try again later"})
		return
	}

	var req domain.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "Invalid JSON request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON request"})
		return
	}

	reservation, err := s.orderService.CreateOrder(currentUser, &req, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		var persistErr *domain.PersistAfterOrderError
		switch {
		case errors.As(err, &persistErr):
			// The gateway order exists but our record does not. The client must
			// not start a fresh checkout for the same stay.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":    "Reservation could not be saved. Do not retry the payment; contact support.",
				"order_id": persistErr.OrderID,
			})
		case isValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrAccommodationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	span.SetStatus(codes.Ok, "Order created")
	c.JSON(http.StatusCreated, gin.H{"reservation": reservation, "order_id": reservation.OrderID})
}

func (s *PaymentHandler) VerifyPayment(c *gin.Context) {
	spanCtx, span := s.Tracer.Start(c.Request.Context(), "PaymentHandler.VerifyPayment")
	defer span.End()

	var req domain.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "Invalid JSON request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON request"})
		return
	}

	reservation, err := s.paymentService.VerifyPayment(&req, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, domain.ErrSignatureMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Payment verification failed"})
		case errors.Is(err, domain.ErrReservationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "No pending reservation for this order"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	span.SetStatus(codes.Ok, "Payment verified")
	c.JSON(http.StatusOK, gin.H{"reservation": reservation})
}

func (s *PaymentHandler) GetReservation(c *gin.Context) {
	spanCtx, span := s.Tracer.Start(c.Request.Context(), "PaymentHandler.GetReservation")
	defer span.End()

	token := c.GetHeader("Authorization")
	currentUser, err := s.auth.CurrentUser(spanCtx, token)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to obtain current user information")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to obtain current user information"})
		return
	}

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		span.SetStatus(codes.Error, "Invalid reservation id")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reservation id"})
		return
	}

	reservation, err := s.reservations.GetByID(id, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
		return
	}
	if reservation.GuestID != currentUser.ID {
		span.SetStatus(codes.Error, "Not the reservation's guest")
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to view this reservation"})
		return
	}

	span.SetStatus(codes.Ok, "Got reservation")
	c.JSON(http.StatusOK, gin.H{"reservation": reservation})
}

func (s *PaymentHandler) GetReservationsForGuest(c *gin.Context) {
	spanCtx, span := s.Tracer.Start(c.Request.Context(), "PaymentHandler.GetReservationsForGuest")
	defer span.End()

	token := c.GetHeader("Authorization")
	currentUser, err := s.auth.CurrentUser(spanCtx, token)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to obtain current user information")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to obtain current user information"})
		return
	}

	reservations, err := s.reservations.GetByGuestID(currentUser.ID, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	span.SetStatus(codes.Ok, "Got reservations for guest")
	c.JSON(http.StatusOK, gin.H{"reservations": reservations})
}

func (s *PaymentHandler) GetCancellation(c *gin.Context) {
	spanCtx, span := s.Tracer.Start(c.Request.Context(), "PaymentHandler.GetCancellation")
	defer span.End()

	token := c.GetHeader("Authorization")
	currentUser, err := s.auth.CurrentUser(spanCtx, token)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to obtain current user information")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to obtain current user information"})
		return
	}

	reservationID, err := primitive.ObjectIDFromHex(c.Param("reservationId"))
	if err != nil {
		span.SetStatus(codes.Error, "Invalid reservation id")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reservation id"})
		return
	}

	cancellation, err := s.cancellations.GetByReservationID(reservationID, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusNotFound, gin.H{"error": "Cancellation not found"})
		return
	}
	if cancellation.GuestID != currentUser.ID {
		span.SetStatus(codes.Error, "Not the reservation's guest")
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to view this cancellation"})
		return
	}

	span.SetStatus(codes.Ok, "Got cancellation")
	c.JSON(http.StatusOK, gin.H{"cancellation": cancellation})
}

func isValidationError(err error) bool {
	var validationErr *domain.ValidationError
	return errors.As(err, &validationErr)
}

func ExtractTraceInfoMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
