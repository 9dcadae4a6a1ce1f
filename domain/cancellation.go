package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CancellationStatus string

const (
	CancellationPending    CancellationStatus = "pending"
	CancellationProcessing CancellationStatus = "processing"
	CancellationCompleted  CancellationStatus = "completed"
	CancellationFailed     CancellationStatus = "failed"
)

// Cancellation is the audit record written once per cancelled reservation.
// Only its refund mirror fields change after creation, so the numbers that
// were computed at cancellation time survive whatever happens to the
// reservation afterwards. One record per reservation, enforced by a unique
// index on reservation_id.
type Cancellation struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReservationID primitive.ObjectID `bson:"reservation_id" json:"reservation_id"`
	GuestID       string             `bson:"guest_id" json:"guest_id"`
	Reason        string             `bson:"reason" json:"reason"`

	// Policy snapshot used for the computation.
	PolicyTier        PolicyTier `bson:"policy_tier" json:"policy_tier"`
	PolicyDescription string     `bson:"policy_description" json:"policy_description"`

	OriginalAmount   float64 `bson:"original_amount" json:"original_amount"`
	RefundAmount     float64 `bson:"refund_amount" json:"refund_amount"`
	RefundPercentage int     `bson:"refund_percentage" json:"refund_percentage"`
	DaysUntilCheckIn int     `bson:"days_until_check_in" json:"days_until_check_in"`

	RefundID     string             `bson:"refund_id,omitempty" json:"refund_id,omitempty"`
	RefundStatus RefundStatus       `bson:"refund_status" json:"refund_status"`
	Status       CancellationStatus `bson:"status" json:"status"`

	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	RefundCompletedAt *time.Time `bson:"refund_completed_at,omitempty" json:"refund_completed_at,omitempty"`
}
