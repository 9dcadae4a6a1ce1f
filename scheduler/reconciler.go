package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/gateway"
	"payments-service/services"
)

// CycleSummary is observability output only; correctness never depends on
// its counts.
type CycleSummary struct {
	Total     int
	Updated   int
	Unchanged int
	Errored   int
	Resent    int
}

// Reconciler polls the gateway for every reservation whose refund is still
// in flight and funnels the answers into the same refund status updater
// the webhook path uses. It is owned by the process lifecycle: Start takes
// a context and the loop dies with it, no global task registry.
type Reconciler struct {
	reservations  services.ReservationStore
	cancellations services.CancellationStore
	refundStatus  services.RefundStatusService
	gateway       gateway.Client
	notifications services.NotificationService
	logger        *logrus.Logger
	Tracer        trace.Tracer

	interval time.Duration
	throttle time.Duration

	running int32
}

func NewReconciler(reservations services.ReservationStore, cancellations services.CancellationStore,
	refundStatus services.RefundStatusService, gw gateway.Client, notifications services.NotificationService,
	logger *logrus.Logger, tr trace.Tracer, interval, throttle time.Duration) *Reconciler {
	return &Reconciler{
		reservations:  reservations,
		cancellations: cancellations,
		refundStatus:  refundStatus,
		gateway:       gw,
		notifications: notifications,
		logger:        logger,
		Tracer:        tr,
		interval:      interval,
		throttle:      throttle,
	}
}

// Start runs one cycle eagerly and then one per interval until the context
// is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		r.RunCycle(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Reconciler stopped")
				return
			case <-ticker.C:
				r.RunCycle(ctx)
			}
		}
	}()
}

// RunCycle processes every pending refund once. Not reentrant: if the
// previous cycle is still running the new one is skipped, which bounds the
// number of outstanding gateway calls.
func (r *Reconciler) RunCycle(ctx context.Context) CycleSummary {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		r.logger.Warn("Previous reconcile cycle still running, skipping")
		return CycleSummary{}
	}
	defer atomic.StoreInt32(&r.running, 0)

	spanCtx, span := r.Tracer.Start(ctx, "Reconciler.RunCycle")
	defer span.End()

	var summary CycleSummary

	reservations, err := r.reservations.ListPendingRefunds(spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("Failed to list pending refunds: ", err)
		return summary
	}
	summary.Total = len(reservations)

	for i, reservation := range reservations {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			// Fixed delay between gateway calls to stay under the provider's
			// rate limits.
			select {
			case <-ctx.Done():
				return summary
			case <-time.After(r.throttle):
			}
		}

		refund, err := r.gateway.FetchRefund(spanCtx, reservation.RefundID)
		if err != nil {
			// Unknown outcome; the next cycle will ask again. One bad record
			// must not sink the rest of the cycle.
			summary.Errored++
			r.logger.WithFields(logrus.Fields{"refund_id": reservation.RefundID}).
				Warn("Failed to fetch refund status: ", err)
			continue
		}

		result, err := r.refundStatus.Apply(reservation.RefundID, gateway.OutcomeFromStatus(refund.Status), spanCtx)
		if err != nil {
			summary.Errored++
			r.logger.WithFields(logrus.Fields{"refund_id": reservation.RefundID}).
				Error("Failed to apply refund outcome: ", err)
			continue
		}
		if result == domain.UpdateApplied {
			summary.Updated++
		} else {
			summary.Unchanged++
		}
	}

	summary.Resent = r.sweepUnsentRefunds(spanCtx)

	r.logger.WithFields(logrus.Fields{
		"total":     summary.Total,
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"errored":   summary.Errored,
		"resent":    summary.Resent,
	}).Info("Reconcile cycle finished")
	span.SetStatus(codes.Ok, "Reconcile cycle finished")
	return summary
}

// sweepUnsentRefunds re-issues refund requests that were durably recorded
// but never reached the gateway (crash or outage between the cancellation
// write and the refund call). These records carry no transaction id, so
// the regular pending query cannot see them.
func (r *Reconciler) sweepUnsentRefunds(ctx context.Context) int {
	reservations, err := r.reservations.ListUnsentRefundRequests(ctx)
	if err != nil {
		r.logger.Error("Failed to list unsent refund requests: ", err)
		return 0
	}

	resent := 0
	for _, reservation := range reservations {
		if ctx.Err() != nil {
			break
		}

		refund, err := r.gateway.CreateRefund(ctx, reservation.PaymentID, services.MinorUnits(reservation.RefundAmount), map[string]string{
			"reason":         reservation.CancellationReason,
			"reservation_id": reservation.ID.Hex(),
		})
		if err != nil {
			if errors.Is(err, gateway.ErrUnavailable) {
				// Unknown outcome; the record stays pending for the next cycle.
				r.logger.WithFields(logrus.Fields{"reservation_id": reservation.ID.Hex()}).
					Warn("Re-issued refund request not delivered, retrying next cycle: ", err)
				continue
			}

			// Permanent rejection: record the terminal failure so the record
			// is never retried again, same as a rejection at cancel time.
			r.logger.WithFields(logrus.Fields{"reservation_id": reservation.ID.Hex()}).
				Error("Re-issued refund request rejected by gateway: ", err)
			if markErr := r.reservations.MarkRefundRequestFailed(reservation.ID, ctx); markErr != nil {
				r.logger.Error("Failed to record refund rejection on reservation: ", markErr)
				continue
			}
			if markErr := r.cancellations.MarkRefundRequestFailed(reservation.ID, ctx); markErr != nil {
				r.logger.Error("Failed to record refund rejection on cancellation: ", markErr)
			}
			reservation.Status = domain.ReservationCancelled
			reservation.RefundStatus = domain.RefundFailed
			if notifyErr := r.notifications.Dispatch(services.NotificationRefundFailed, reservation.GuestEmail, reservation); notifyErr != nil {
				r.logger.Error("Failed to send refund-failed notification: ", notifyErr)
			}
			continue
		}

		if err := r.reservations.SetRefundRequested(reservation.ID, refund.ID, ctx); err != nil {
			r.logger.Error("Failed to record re-issued refund id: ", err)
			continue
		}
		if err := r.cancellations.SetRefundRequested(reservation.ID, refund.ID, ctx); err != nil {
			r.logger.Error("Failed to mirror re-issued refund id: ", err)
		}
		resent++
	}
	return resent
}
