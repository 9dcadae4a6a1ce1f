package repository

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"payments-service/domain"
)

// AccommodationRepository gives read-only access to the accommodations
// collection owned by the accommodations service. This service only needs
// the cancellation policy and the listing's existence.
type AccommodationRepository struct {
	collection *mongo.Collection
	logger     *log.Logger
}

func NewAccommodationRepository(collection *mongo.Collection, logger *log.Logger) *AccommodationRepository {
	return &AccommodationRepository{collection: collection, logger: logger}
}

func (ar *AccommodationRepository) GetByID(id string, ctx context.Context) (*domain.Accommodation, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrAccommodationNotFound
	}

	var accommodation domain.Accommodation
	err = ar.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&accommodation)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrAccommodationNotFound
	}
	if err != nil {
		ar.logger.Println(err)
		return nil, err
	}
	return &accommodation, nil
}
