package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/gateway"
)

type CancellationServiceImpl struct {
	reservations   ReservationStore
	cancellations  CancellationStore
	accommodations AccommodationStore
	gateway        gateway.Client
	notifications  NotificationService
	logger         *logrus.Logger
	Tracer         trace.Tracer

	now func() time.Time
}

func NewCancellationServiceImpl(reservations ReservationStore, cancellations CancellationStore,
	accommodations AccommodationStore, gw gateway.Client, notifications NotificationService,
	logger *logrus.Logger, tr trace.Tracer) CancellationService {
	return &CancellationServiceImpl{
		reservations:   reservations,
		cancellations:  cancellations,
		accommodations: accommodations,
		gateway:        gw,
		notifications:  notifications,
		logger:         logger,
		Tracer:         tr,
		now:            time.Now,
	}
}

// Cancel ends the stay and, when the policy grants a refund, asks the
// gateway to return the money. Everything up to the refund request is made
// durable first: a crash between the write and the gateway call leaves a
// refund_pending/pending record without a transaction id, which the
// reconciler's unsent-request sweep picks up later.
func (s *CancellationServiceImpl) Cancel(reservationID string, requester *domain.User, reason string, ctx context.Context) (*domain.Reservation, *domain.Cancellation, error) {
	spanCtx, span := s.Tracer.Start(ctx, "CancellationService.Cancel")
	defer span.End()

	id, err := primitive.ObjectIDFromHex(reservationID)
	if err != nil {
		span.SetStatus(codes.Error, "invalid reservation id")
		return nil, nil, domain.ErrReservationNotFound
	}

	reservation, err := s.reservations.GetByID(id, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	if reservation.GuestID != requester.ID {
		span.SetStatus(codes.Error, "requester is not the reservation's guest")
		return nil, nil, domain.ErrNotReservationGuest
	}

	switch reservation.Status {
	case domain.ReservationCancelled, domain.ReservationRefundPending, domain.ReservationRefunded:
		// A retry can land here after a crash between the reservation
		// transition and the audit insert. Repair the missing record so
		// every cancelled reservation keeps exactly one.
		s.ensureAuditRecord(reservation, spanCtx)
		span.SetStatus(codes.Error, "already cancelled")
		return nil, nil, domain.ErrAlreadyCancelled
	case domain.ReservationConfirmed:
		// cancellable
	default:
		span.SetStatus(codes.Error, "reservation is not cancellable")
		return nil, nil, domain.NewValidationError("a %s reservation cannot be cancelled", reservation.Status)
	}

	if len(reason) < 10 {
		span.SetStatus(codes.Error, "reason too short")
		return nil, nil, domain.NewValidationError("cancellation reason must be at least 10 characters")
	}

	accommodation, err := s.accommodations.GetByID(reservation.AccommodationID, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	policy := accommodation.CancellationPolicy

	days := domain.DaysUntilCheckIn(reservation.CheckInDate, s.now())
	percentage := domain.ComputeRefundPercentage(policy.Tier, days)
	refundAmount := reservation.TotalAmount * float64(percentage) / 100

	upd := domain.CancelUpdate{
		Status:           domain.ReservationCancelled,
		RefundStatus:     domain.RefundNone,
		RefundAmount:     refundAmount,
		RefundPercentage: percentage,
		Reason:           reason,
	}
	if refundAmount > 0 {
		upd.Status = domain.ReservationRefundPending
		upd.RefundStatus = domain.RefundPending
	}

	reservation, err = s.reservations.MarkCancelled(id, upd, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	cancellation := &domain.Cancellation{
		ReservationID:     id,
		GuestID:           reservation.GuestID,
		Reason:            reason,
		PolicyTier:        policy.Tier,
		PolicyDescription: policy.Description,
		OriginalAmount:    reservation.TotalAmount,
		RefundAmount:      refundAmount,
		RefundPercentage:  percentage,
		DaysUntilCheckIn:  days,
		RefundStatus:      upd.RefundStatus,
		Status:            domain.CancellationPending,
	}
	if _, err := s.cancellations.Insert(cancellation, spanCtx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	if refundAmount <= 0 {
		span.SetStatus(codes.Ok, "Reservation cancelled, nothing to refund")
		return reservation, cancellation, nil
	}

	refund, err := s.gateway.CreateRefund(spanCtx, reservation.PaymentID, MinorUnits(refundAmount), map[string]string{
		"reason":         reason,
		"reservation_id": reservation.ID.Hex(),
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			// Unknown outcome. The record stays refund_pending/pending with no
			// transaction id and the reconciler re-issues the request.
			s.logger.WithFields(logrus.Fields{"reservation_id": reservationID}).
				Warn("Refund request not delivered, leaving for reconciler: ", err)
			span.SetStatus(codes.Ok, "Cancelled, refund request deferred")
			return reservation, cancellation, nil
		}

		// Permanent rejection: the stay stays cancelled, the refund is failed.
		s.logger.WithFields(logrus.Fields{"reservation_id": reservationID}).
			Error("Refund initiation rejected by gateway: ", err)
		if markErr := s.reservations.MarkRefundRequestFailed(id, spanCtx); markErr != nil {
			s.logger.Error("Failed to record refund rejection on reservation: ", markErr)
		}
		if markErr := s.cancellations.MarkRefundRequestFailed(id, spanCtx); markErr != nil {
			s.logger.Error("Failed to record refund rejection on cancellation: ", markErr)
		}
		reservation.Status = domain.ReservationCancelled
		reservation.RefundStatus = domain.RefundFailed
		cancellation.RefundStatus = domain.RefundFailed
		cancellation.Status = domain.CancellationFailed

		if notifyErr := s.notifications.Dispatch(NotificationRefundFailed, reservation.GuestEmail, reservation); notifyErr != nil {
			s.logger.Error("Failed to send refund-failed notification: ", notifyErr)
		}

		span.SetStatus(codes.Error, "Cancelled but refund initiation failed")
		return reservation, cancellation, domain.ErrRefundInitiationFailed
	}

	if err := s.reservations.SetRefundRequested(id, refund.ID, spanCtx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	if err := s.cancellations.SetRefundRequested(id, refund.ID, spanCtx); err != nil {
		s.logger.Error("Failed to mirror refund id onto cancellation: ", err)
	}
	reservation.RefundID = refund.ID
	reservation.RefundStatus = domain.RefundProcessing
	cancellation.RefundID = refund.ID
	cancellation.RefundStatus = domain.RefundProcessing
	cancellation.Status = domain.CancellationProcessing

	span.SetStatus(codes.Ok, "Reservation cancelled, refund requested")
	return reservation, cancellation, nil
}

// ensureAuditRecord rebuilds the cancellation audit record from the
// reservation's persisted fields when it is missing. Best effort: repair
// failures are logged, the caller's answer does not change.
func (s *CancellationServiceImpl) ensureAuditRecord(reservation *domain.Reservation, ctx context.Context) {
	if _, err := s.cancellations.GetByReservationID(reservation.ID, ctx); !errors.Is(err, domain.ErrReservationNotFound) {
		return
	}

	var tier domain.PolicyTier
	var description string
	if accommodation, err := s.accommodations.GetByID(reservation.AccommodationID, ctx); err == nil {
		tier = accommodation.CancellationPolicy.Tier
		description = accommodation.CancellationPolicy.Description
	}

	cancelledAt := s.now()
	if reservation.CancelledAt != nil {
		cancelledAt = *reservation.CancelledAt
	}

	cancellation := &domain.Cancellation{
		ReservationID:     reservation.ID,
		GuestID:           reservation.GuestID,
		Reason:            reservation.CancellationReason,
		PolicyTier:        tier,
		PolicyDescription: description,
		OriginalAmount:    reservation.TotalAmount,
		RefundAmount:      reservation.RefundAmount,
		RefundPercentage:  reservation.RefundPercentage,
		DaysUntilCheckIn:  domain.DaysUntilCheckIn(reservation.CheckInDate, cancelledAt),
		RefundID:          reservation.RefundID,
		RefundStatus:      reservation.RefundStatus,
		Status:            auditStatusFor(reservation.RefundStatus),
	}
	if _, err := s.cancellations.Insert(cancellation, ctx); err != nil && !errors.Is(err, domain.ErrAlreadyCancelled) {
		s.logger.WithFields(logrus.Fields{"reservation_id": reservation.ID.Hex()}).
			Error("Failed to repair missing cancellation record: ", err)
	}
}

func auditStatusFor(refundStatus domain.RefundStatus) domain.CancellationStatus {
	switch refundStatus {
	case domain.RefundCompleted:
		return domain.CancellationCompleted
	case domain.RefundFailed:
		return domain.CancellationFailed
	case domain.RefundProcessing:
		return domain.CancellationProcessing
	default:
		return domain.CancellationPending
	}
}
