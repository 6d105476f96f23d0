package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TryOn represents one completed try-on generation. All three URLs point at
// durable storage, never at local temp paths.
type TryOn struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID         string             `bson:"user_id" json:"userId"`
	PersonImageURL string             `bson:"person_image_url" json:"personImageUrl"`
	ClothImageURL  string             `bson:"cloth_image_url" json:"clothImageUrl"`
	ResultImageURL string             `bson:"result_image_url" json:"resultImageUrl"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}
