package domain

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Accommodation is owned by the accommodations service; this service only
// reads the cancellation policy off it.
type Accommodation struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HostID             string             `bson:"host_id" json:"host_id"`
	Name               string             `bson:"name" json:"name"`
	Location           string             `bson:"location" json:"location"`
	CancellationPolicy CancellationPolicy `bson:"cancellation_policy" json:"cancellation_policy"`
}
