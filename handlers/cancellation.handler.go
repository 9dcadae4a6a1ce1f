package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/services"
)

type CancellationHandler struct {
	cancellationService services.CancellationService
	auth                *AuthClient
	Tracer              trace.Tracer
}

func NewCancellationHandler(cancellationService services.CancellationService, auth *AuthClient, tr trace.Tracer) CancellationHandler {
	return CancellationHandler{
		cancellationService: cancellationService,
		auth:                auth,
		Tracer:              tr,
	}
}

func (s *CancellationHandler) CancelReservation(c *gin.Context) {
	spanCtx, span := s.Tracer.Start(c.Request.Context(), "CancellationHandler.CancelReservation")
	defer span.End()

	token := c.GetHeader("Authorization")
	currentUser, err := s.auth.CurrentUser(spanCtx, token)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to obtain current user information. Try again later")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to obtain current user information. Try again later"})
		return
	}

	var req domain.CancelReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "Invalid JSON request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON request"})
		return
	}

	reservation, cancellation, err := s.cancellationService.Cancel(c.Param("reservationId"), currentUser, req.Reason, spanCtx)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRefundInitiationFailed):
			// The cancellation stands even though the refund did not go out.
			// Report both halves of the outcome.
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusOK, gin.H{
				"message":      "Reservation cancelled, but the refund could not be initiated. Support has been notified.",
				"reservation":  reservation,
				"cancellation": cancellation,
			})
		case errors.Is(err, domain.ErrAlreadyCancelled):
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusConflict, gin.H{"error": "Reservation is already cancelled"})
		case errors.Is(err, domain.ErrNotReservationGuest):
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to cancel this reservation"})
		case errors.Is(err, domain.ErrReservationNotFound):
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
		case isValidationError(err):
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	span.SetStatus(codes.Ok, "Reservation cancelled")
	c.JSON(http.StatusOK, gin.H{
		"message":      "Reservation cancelled",
		"reservation":  reservation,
		"cancellation": cancellation,
	})
}
