package domain

// RefundOutcome is the gateway's verdict on a refund, as reported by either
// a webhook push or a reconciliation poll.
type RefundOutcome string

const (
	OutcomeCompleted RefundOutcome = "completed"
	OutcomeFailed    RefundOutcome = "failed"
	OutcomePending   RefundOutcome = "pending"
)

// CancelUpdate carries the fields the cancellation service computed for
// the confirmed -> cancelled/refund_pending transition.
type CancelUpdate struct {
	Status           ReservationStatus
	RefundStatus     RefundStatus
	RefundAmount     float64
	RefundPercentage int
	Reason           string
}

// UpdateResult tells a caller of the refund status updater whether its
// invocation was the one that actually moved the reservation.
type UpdateResult string

const (
	UpdateApplied   UpdateResult = "applied"
	UpdateUnchanged UpdateResult = "unchanged"
	UpdateSkipped   UpdateResult = "skipped"
)
