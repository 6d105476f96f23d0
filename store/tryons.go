package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/models"
)

// TryOnStore persists completed try-on records.
type TryOnStore struct {
	col *mongo.Collection
}

func NewTryOnStore(db *mongo.Database) *TryOnStore {
	return &TryOnStore{col: db.Collection("tryons")}
}

// Create inserts a record and fills in its generated id and timestamp.
func (s *TryOnStore) Create(ctx context.Context, record *models.TryOn) error {
	record.ID = primitive.NewObjectID()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if _, err := s.col.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to save try-on record: %w", err)
	}
	return nil
}

// FindByID loads one record by hex id.
func (s *TryOnStore) FindByID(ctx context.Context, id string) (*models.TryOn, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound("Try-On not found")
	}

	var record models.TryOn
	err = s.col.FindOne(ctx, bson.M{"_id": objID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("Try-On not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load try-on %s: %w", id, err)
	}
	return &record, nil
}

// Delete removes one record by hex id.
func (s *TryOnStore) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.NotFound("Try-On not found")
	}

	result, err := s.col.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete try-on %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return apperr.NotFound("Try-On not found")
	}
	return nil
}

// ListByUser returns the user's records, newest first. The result is never
// nil so the handler encodes [] instead of null.
func (s *TryOnStore) ListByUser(ctx context.Context, userID string) ([]models.TryOn, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.col.Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list try-ons for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	records := []models.TryOn{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode try-ons for user %s: %w", userID, err)
	}
	return records, nil
}
