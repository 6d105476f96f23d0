package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/models"
)

// UserStore persists users and their usage counters.
type UserStore struct {
	col *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{col: db.Collection("users")}
}

// FindByID loads a user by hex id. Returns an authentication error when the
// user cannot be found, so quota admission fails closed.
func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.Authentication("User not found", err)
	}

	var user models.User
	err = s.col.FindOne(ctx, bson.M{"_id": objID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.Authentication("User not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &user, nil
}

// FindByEmail loads a user by email, returning mongo.ErrNoDocuments when absent.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.col.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user and fills in its generated id.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if _, err := s.col.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// SaveUsage overwrites the usage counter fields. Used by the quota gate to
// persist a daily reset immediately.
func (s *UserStore) SaveUsage(ctx context.Context, id string, count int, last time.Time) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", id, err)
	}

	update := bson.M{"$set": bson.M{
		"try_on_count":     count,
		"last_try_on_date": last,
		"updated_at":       time.Now(),
	}}
	if _, err := s.col.UpdateByID(ctx, objID, update); err != nil {
		return fmt.Errorf("failed to save usage for user %s: %w", id, err)
	}
	return nil
}

// IncrementUsage bumps the try-on counter after a successful generation.
func (s *UserStore) IncrementUsage(ctx context.Context, id string, now time.Time) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", id, err)
	}

	update := bson.M{
		"$inc": bson.M{"try_on_count": 1},
		"$set": bson.M{"last_try_on_date": now, "updated_at": now},
	}
	if _, err := s.col.UpdateByID(ctx, objID, update); err != nil {
		return fmt.Errorf("failed to increment usage for user %s: %w", id, err)
	}
	return nil
}
