package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
)

type RefundStatusServiceImpl struct {
	reservations  ReservationStore
	cancellations CancellationStore
	notifications NotificationService
	logger        *logrus.Logger
	Tracer        trace.Tracer

	now func() time.Time
}

func NewRefundStatusServiceImpl(reservations ReservationStore, cancellations CancellationStore,
	notifications NotificationService, logger *logrus.Logger, tr trace.Tracer) RefundStatusService {
	return &RefundStatusServiceImpl{
		reservations:  reservations,
		cancellations: cancellations,
		notifications: notifications,
		logger:        logger,
		Tracer:        tr,
		now:           time.Now,
	}
}

// Apply moves the reservation identified by the refund transaction id to
// the terminal state the outcome implies. The transition itself is one
// conditional update in the store; when it matches nothing the outcome was
// already applied by the other path and this call reports unchanged. The
// notification fires only on the call that actually transitioned, which is
// what makes it exactly-once.
func (s *RefundStatusServiceImpl) Apply(refundID string, outcome domain.RefundOutcome, ctx context.Context) (domain.UpdateResult, error) {
	spanCtx, span := s.Tracer.Start(ctx, "RefundStatusService.Apply")
	defer span.End()

	if outcome == domain.OutcomePending {
		span.SetStatus(codes.Ok, "Refund still pending, nothing to do")
		return domain.UpdateSkipped, nil
	}

	var (
		status       domain.ReservationStatus
		refundStatus domain.RefundStatus
		auditStatus  domain.CancellationStatus
		kind         NotificationKind
		refundedAt   *time.Time
	)
	switch outcome {
	case domain.OutcomeCompleted:
		now := s.now()
		status = domain.ReservationRefunded
		refundStatus = domain.RefundCompleted
		auditStatus = domain.CancellationCompleted
		kind = NotificationRefundSucceeded
		refundedAt = &now
	case domain.OutcomeFailed:
		status = domain.ReservationCancelled
		refundStatus = domain.RefundFailed
		auditStatus = domain.CancellationFailed
		kind = NotificationRefundFailed
	default:
		span.SetStatus(codes.Error, "unknown refund outcome")
		return domain.UpdateSkipped, domain.NewValidationError("unknown refund outcome %q", outcome)
	}

	transitioned, err := s.reservations.ApplyRefundOutcome(refundID, status, refundStatus, refundedAt, spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.UpdateSkipped, err
	}

	// The audit mirror is conditional on its own non-terminal status, so
	// running it on the unchanged path too lets a retry heal a mirror that a
	// previous crash left behind.
	if _, err := s.cancellations.ApplyRefundOutcome(refundID, auditStatus, refundStatus, refundedAt, spanCtx); err != nil {
		s.logger.WithFields(logrus.Fields{"refund_id": refundID}).
			Error("Failed to mirror refund outcome onto cancellation: ", err)
	}

	if !transitioned {
		if _, err := s.reservations.GetByRefundID(refundID, spanCtx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return domain.UpdateSkipped, err
		}
		span.SetStatus(codes.Ok, "Refund outcome already applied")
		return domain.UpdateUnchanged, nil
	}

	reservation, err := s.reservations.GetByRefundID(refundID, spanCtx)
	if err != nil {
		// The transition is already durable; notification addressing failed.
		s.logger.WithFields(logrus.Fields{"refund_id": refundID}).
			Error("Refund outcome applied but reservation reload failed: ", err)
		span.SetStatus(codes.Ok, "Refund outcome applied")
		return domain.UpdateApplied, nil
	}

	if err := s.notifications.Dispatch(kind, reservation.GuestEmail, reservation); err != nil {
		// Logged and swallowed: state correctness outranks delivery.
		s.logger.WithFields(logrus.Fields{"refund_id": refundID, "kind": string(kind)}).
			Error("Failed to send refund notification: ", err)
	}

	span.SetStatus(codes.Ok, "Refund outcome applied")
	return domain.UpdateApplied, nil
}
