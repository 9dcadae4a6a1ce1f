package repository

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payments-service/domain"
)

// ReservationRepository encapsulates the reservations collection. Every
// state transition is a conditional update keyed on the state the caller
// expects, so a stale writer matches nothing instead of clobbering a newer
// terminal write.
type ReservationRepository struct {
	collection *mongo.Collection
	logger     *log.Logger
}

func NewReservationRepository(collection *mongo.Collection, logger *log.Logger) *ReservationRepository {
	return &ReservationRepository{collection: collection, logger: logger}
}

func (rr *ReservationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := rr.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "refund_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "guest_id", Value: 1}},
		},
	})
	if err != nil {
		rr.logger.Println(err)
	}
	return err
}

func (rr *ReservationRepository) Insert(reservation *domain.Reservation, ctx context.Context) (primitive.ObjectID, error) {
	reservation.ID = primitive.NewObjectID()
	reservation.CreatedAt = time.Now()

	_, err := rr.collection.InsertOne(ctx, reservation)
	if err != nil {
		rr.logger.Println(err)
		return primitive.NilObjectID, err
	}
	return reservation.ID, nil
}

func (rr *ReservationRepository) GetByID(id primitive.ObjectID, ctx context.Context) (*domain.Reservation, error) {
	return rr.findOne(bson.M{"_id": id}, ctx)
}

func (rr *ReservationRepository) GetByOrderID(orderID string, ctx context.Context) (*domain.Reservation, error) {
	return rr.findOne(bson.M{"order_id": orderID}, ctx)
}

func (rr *ReservationRepository) GetByRefundID(refundID string, ctx context.Context) (*domain.Reservation, error) {
	return rr.findOne(bson.M{"refund_id": refundID}, ctx)
}

func (rr *ReservationRepository) GetByGuestID(guestID string, ctx context.Context) (domain.Reservations, error) {
	cursor, err := rr.collection.Find(ctx, bson.M{"guest_id": guestID})
	if err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations domain.Reservations
	if err := cursor.All(ctx, &reservations); err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	return reservations, nil
}

func (rr *ReservationRepository) findOne(filter bson.M, ctx context.Context) (*domain.Reservation, error) {
	var reservation domain.Reservation
	err := rr.collection.FindOne(ctx, filter).Decode(&reservation)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	return &reservation, nil
}

// ConfirmPayment moves a pending reservation to confirmed, but only while
// it is still pending. Returns ErrReservationNotFound when no pending
// reservation carries the order id.
func (rr *ReservationRepository) ConfirmPayment(orderID, paymentID, signature string, ctx context.Context) (*domain.Reservation, error) {
	now := time.Now()
	filter := bson.M{"order_id": orderID, "status": domain.ReservationPending}
	update := bson.M{"$set": bson.M{
		"status":            domain.ReservationConfirmed,
		"payment_id":        paymentID,
		"payment_signature": signature,
		"confirmed_at":      now,
	}}

	var reservation domain.Reservation
	err := rr.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&reservation)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	return &reservation, nil
}

// MarkCancelled transitions confirmed -> cancelled/refund_pending. The
// filter on the confirmed status makes a concurrent double cancel lose
// cleanly: the second caller gets ErrAlreadyCancelled.
func (rr *ReservationRepository) MarkCancelled(id primitive.ObjectID, upd domain.CancelUpdate, ctx context.Context) (*domain.Reservation, error) {
	now := time.Now()
	filter := bson.M{"_id": id, "status": domain.ReservationConfirmed}
	update := bson.M{"$set": bson.M{
		"status":              upd.Status,
		"refund_status":       upd.RefundStatus,
		"refund_amount":       upd.RefundAmount,
		"refund_percentage":   upd.RefundPercentage,
		"cancellation_reason": upd.Reason,
		"cancelled_at":        now,
	}}

	var reservation domain.Reservation
	err := rr.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&reservation)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrAlreadyCancelled
	}
	if err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	return &reservation, nil
}

// SetRefundRequested records the gateway's refund transaction id once the
// refund request was accepted.
func (rr *ReservationRepository) SetRefundRequested(id primitive.ObjectID, refundID string, ctx context.Context) error {
	filter := bson.M{"_id": id, "refund_status": domain.RefundPending}
	update := bson.M{"$set": bson.M{
		"refund_id":     refundID,
		"refund_status": domain.RefundProcessing,
	}}

	_, err := rr.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		rr.logger.Println(err)
	}
	return err
}

// MarkRefundRequestFailed records a permanent gateway rejection of the
// refund request. The reservation stays cancelled.
func (rr *ReservationRepository) MarkRefundRequestFailed(id primitive.ObjectID, ctx context.Context) error {
	filter := bson.M{"_id": id, "refund_status": domain.RefundPending}
	update := bson.M{"$set": bson.M{
		"status":        domain.ReservationCancelled,
		"refund_status": domain.RefundFailed,
	}}

	_, err := rr.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		rr.logger.Println(err)
	}
	return err
}

// ApplyRefundOutcome is the compare-and-skip at the heart of the
// reconciliation core: a single conditional update keyed on the
// pre-transition state. It reports whether this call was the one that
// moved the reservation, so racing webhook and poller invocations resolve
// to exactly one effective transition.
func (rr *ReservationRepository) ApplyRefundOutcome(refundID string, status domain.ReservationStatus, refundStatus domain.RefundStatus, refundedAt *time.Time, ctx context.Context) (bool, error) {
	filter := bson.M{
		"refund_id":     refundID,
		"status":        domain.ReservationRefundPending,
		"refund_status": bson.M{"$in": []domain.RefundStatus{domain.RefundPending, domain.RefundProcessing}},
	}
	set := bson.M{
		"status":        status,
		"refund_status": refundStatus,
	}
	if refundedAt != nil {
		set["refunded_at"] = refundedAt
	}

	result, err := rr.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		rr.logger.Println(err)
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// ListPendingRefunds returns every reservation whose refund is in flight
// and already has a gateway transaction id, most recently cancelled first.
// Terminal refund states are excluded by the filter, so a failed refund is
// never polled again.
func (rr *ReservationRepository) ListPendingRefunds(ctx context.Context) (domain.Reservations, error) {
	filter := bson.M{
		"refund_status": bson.M{"$in": []domain.RefundStatus{domain.RefundPending, domain.RefundProcessing}},
		"refund_id":     bson.M{"$exists": true, "$ne": ""},
	}
	opts := options.Find().SetSort(bson.D{{Key: "cancelled_at", Value: -1}})

	cursor, err := rr.collection.Find(ctx, filter, opts)
	if err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations domain.Reservations
	if err := cursor.All(ctx, &reservations); err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	return reservations, nil
}

// ListUnsentRefundRequests finds cancellations that were durably recorded
// but whose gateway refund call never completed (crash or gateway outage
// mid-request). They carry no transaction id, so the regular pending query
// cannot see them.
func (rr *ReservationRepository) ListUnsentRefundRequests(ctx context.Context) (domain.Reservations, error) {
	filter := bson.M{
		"status":        domain.ReservationRefundPending,
		"refund_status": domain.RefundPending,
		"$or": []bson.M{
			{"refund_id": bson.M{"$exists": false}},
			{"refund_id": ""},
		},
	}

	cursor, err := rr.collection.Find(ctx, filter)
	if err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations domain.Reservations
	if err := cursor.All(ctx, &reservations); err != nil {
		rr.logger.Println(err)
		return nil, err
	}
	return reservations, nil
}

// IsDup reports whether err is a mongo duplicate key error.
func IsDup(err error) bool {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}
