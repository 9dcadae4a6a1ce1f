package domain

import (
	"encoding/json"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReservationStatus string

const (
	ReservationPending       ReservationStatus = "pending"
	ReservationConfirmed     ReservationStatus = "confirmed"
	ReservationCancelled     ReservationStatus = "cancelled"
	ReservationCompleted     ReservationStatus = "completed"
	ReservationRefundPending ReservationStatus = "refund_pending"
	ReservationRefunded      ReservationStatus = "refunded"
)

type RefundStatus string

const (
	RefundNone       RefundStatus = "none"
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
)

// Reservation is one booking attempt. It is created when a gateway order is
// opened, confirmed after payment verification and never deleted afterwards:
// cancelled, completed and refunded are terminal.
type Reservation struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AccommodationID string             `bson:"accommodation_id" json:"accommodation_id"`
	GuestID         string             `bson:"guest_id" json:"guest_id"`
	GuestEmail      string             `bson:"guest_email" json:"guest_email"`
	CheckInDate     time.Time          `bson:"check_in_date" json:"check_in_date"`
	CheckOutDate    time.Time          `bson:"check_out_date" json:"check_out_date"`
	Adults          int                `bson:"adults" json:"adults"`
	Children        int                `bson:"children" json:"children"`
	Infants         int                `bson:"infants" json:"infants"`
	Pets            int                `bson:"pets" json:"pets"`
	GuestMessage    string             `bson:"guest_message,omitempty" json:"guest_message,omitempty"`
	TotalAmount     float64            `bson:"total_amount" json:"total_amount"`

	OrderID          string `bson:"order_id" json:"order_id"`
	PaymentID        string `bson:"payment_id,omitempty" json:"payment_id,omitempty"`
	PaymentSignature string `bson:"payment_signature,omitempty" json:"-"`
	RefundID         string `bson:"refund_id,omitempty" json:"refund_id,omitempty"`

	Status             ReservationStatus `bson:"status" json:"status"`
	RefundStatus       RefundStatus      `bson:"refund_status" json:"refund_status"`
	RefundAmount       float64           `bson:"refund_amount,omitempty" json:"refund_amount,omitempty"`
	RefundPercentage   int               `bson:"refund_percentage,omitempty" json:"refund_percentage,omitempty"`
	CancellationReason string            `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	ConfirmedAt *time.Time `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `bson:"refunded_at,omitempty" json:"refunded_at,omitempty"`
}

type Reservations []*Reservation

// CreateReservationRequest is the payload for opening a payment order.
type CreateReservationRequest struct {
	AccommodationID string    `json:"accommodation_id" validate:"required"`
	CheckInDate     time.Time `json:"check_in_date" validate:"required"`
	CheckOutDate    time.Time `json:"check_out_date" validate:"required"`
	Adults          int       `json:"adults" validate:"required,min=1"`
	Children        int       `json:"children" validate:"min=0"`
	Infants         int       `json:"infants" validate:"min=0"`
	Pets            int       `json:"pets" validate:"min=0"`
	GuestMessage    string    `json:"guest_message"`
	TotalAmount     float64   `json:"total_amount" validate:"required,gt=0"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"required,min=10"`
}

func (o *Reservation) ToJSON(w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(o)
}

func (o *Reservation) FromJSON(r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(o)
}

func (o Reservations) ToJSON(w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(o)
}
