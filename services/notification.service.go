package services

import "payments-service/domain"

type NotificationKind string

const (
	NotificationRefundSucceeded NotificationKind = "refund-succeeded"
	NotificationRefundFailed    NotificationKind = "refund-failed"
)

// NotificationService delivers transactional mail about terminal refund
// outcomes. Only the refund status updater and the cancellation service's
// split-outcome path are allowed to call it; delivery failure never
// propagates into the state machine.
type NotificationService interface {
	Dispatch(kind NotificationKind, recipient string, reservation *domain.Reservation) error
}
