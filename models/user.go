package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a registered user. TryOnCount and LastTryOnDate track the
// per-calendar-day generation quota.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name          string             `bson:"name" json:"name"`
	Email         string             `bson:"email" json:"email"`
	Password      string             `bson:"password" json:"-"` // Password is not returned in JSON
	TryOnCount    int                `bson:"try_on_count" json:"tryOnCount"`
	LastTryOnDate *time.Time         `bson:"last_try_on_date,omitempty" json:"lastTryOnDate,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updatedAt"`
}
