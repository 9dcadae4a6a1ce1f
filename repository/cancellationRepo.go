package repository

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payments-service/domain"
)

// CancellationRepository holds the audit records. One per reservation,
// enforced by a unique index; only the refund mirror fields ever change
// after insert.
type CancellationRepository struct {
	collection *mongo.Collection
	logger     *log.Logger
}

func NewCancellationRepository(collection *mongo.Collection, logger *log.Logger) *CancellationRepository {
	return &CancellationRepository{collection: collection, logger: logger}
}

func (cr *CancellationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := cr.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "reservation_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		cr.logger.Println(err)
	}
	return err
}

func (cr *CancellationRepository) Insert(cancellation *domain.Cancellation, ctx context.Context) (primitive.ObjectID, error) {
	cancellation.ID = primitive.NewObjectID()
	cancellation.CreatedAt = time.Now()

	_, err := cr.collection.InsertOne(ctx, cancellation)
	if err != nil {
		if IsDup(err) {
			return primitive.NilObjectID, domain.ErrAlreadyCancelled
		}
		cr.logger.Println(err)
		return primitive.NilObjectID, err
	}
	return cancellation.ID, nil
}

func (cr *CancellationRepository) GetByReservationID(reservationID primitive.ObjectID, ctx context.Context) (*domain.Cancellation, error) {
	var cancellation domain.Cancellation
	err := cr.collection.FindOne(ctx, bson.M{"reservation_id": reservationID}).Decode(&cancellation)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		cr.logger.Println(err)
		return nil, err
	}
	return &cancellation, nil
}

func (cr *CancellationRepository) SetRefundRequested(reservationID primitive.ObjectID, refundID string, ctx context.Context) error {
	filter := bson.M{"reservation_id": reservationID, "status": domain.CancellationPending}
	update := bson.M{"$set": bson.M{
		"refund_id":     refundID,
		"refund_status": domain.RefundProcessing,
		"status":        domain.CancellationProcessing,
	}}

	_, err := cr.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		cr.logger.Println(err)
	}
	return err
}

func (cr *CancellationRepository) MarkRefundRequestFailed(reservationID primitive.ObjectID, ctx context.Context) error {
	filter := bson.M{"reservation_id": reservationID, "status": domain.CancellationPending}
	update := bson.M{"$set": bson.M{
		"refund_status": domain.RefundFailed,
		"status":        domain.CancellationFailed,
	}}

	_, err := cr.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		cr.logger.Println(err)
	}
	return err
}

// ApplyRefundOutcome mirrors the reservation's terminal refund transition
// onto the audit record. Conditional on a non-terminal status, so retries
// and racing callers are no-ops once the mirror is written.
func (cr *CancellationRepository) ApplyRefundOutcome(refundID string, status domain.CancellationStatus, refundStatus domain.RefundStatus, completedAt *time.Time, ctx context.Context) (bool, error) {
	filter := bson.M{
		"refund_id": refundID,
		"status":    bson.M{"$in": []domain.CancellationStatus{domain.CancellationPending, domain.CancellationProcessing}},
	}
	set := bson.M{
		"status":        status,
		"refund_status": refundStatus,
	}
	if completedAt != nil {
		set["refund_completed_at"] = completedAt
	}

	result, err := cr.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		cr.logger.Println(err)
		return false, err
	}
	return result.ModifiedCount > 0, nil
}
