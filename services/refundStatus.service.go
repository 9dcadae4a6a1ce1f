package services

import (
	"context"

	"payments-service/domain"
)

// RefundStatusService is the single reconciliation core behind both the
// webhook processor and the polling reconciler. Whatever path reports the
// outcome, at most one invocation ever produces an effective transition
// and the notification that goes with it.
type RefundStatusService interface {
	Apply(refundID string, outcome domain.RefundOutcome, ctx context.Context) (domain.UpdateResult, error)
}
