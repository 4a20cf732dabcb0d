package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

// SessionRepository defines the interface for session-related database operations.
// Sessions are addressed by the SHA-256 digest of their bearer token.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) (*model.Session, error)

	// IsUsable reports whether a valid, unexpired session exists for tokenHash.
	IsUsable(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// Invalidate marks the session as no longer valid. Unknown hashes are
	// not an error.
	Invalidate(ctx context.Context, tokenHash string) error

	InvalidateAll(ctx context.Context, userID string) (int64, error)

	// Sweep deletes expired and invalidated sessions.
	Sweep(ctx context.Context, now time.Time) (int64, error)

	ListActive(ctx context.Context, userID string, now time.Time) ([]*model.Session, error)
}

const sessionCollection = "sessions"

type sessionMongoRepository struct {
	db *mongo.Database
}

// NewSessionMongoRepository creates a MongoDB session repository and ensures
// its indexes exist.
func NewSessionMongoRepository(ctx context.Context, db *mongo.Database) (SessionRepository, error) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}

	if _, err := db.Collection(sessionCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create session indexes: %w", err)
	}

	return &sessionMongoRepository{db: db}, nil
}

func (r *sessionMongoRepository) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	session.CreatedAt = time.Now().UTC()
	session.IsValid = true

	if _, err := r.db.Collection(sessionCollection).InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *sessionMongoRepository) IsUsable(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	count, err := r.db.Collection(sessionCollection).CountDocuments(
		ctx,
		bson.M{
			"token_hash": tokenHash,
			"is_valid":   true,
			"expires_at": bson.M{"$gt": now},
		},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return count > 0, nil
}

func (r *sessionMongoRepository) Invalidate(ctx context.Context, tokenHash string) error {
	_, err := r.db.Collection(sessionCollection).UpdateOne(
		ctx,
		bson.M{"token_hash": tokenHash},
		bson.M{"$set": bson.M{"is_valid": false}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *sessionMongoRepository) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.Collection(sessionCollection).UpdateMany(
		ctx,
		bson.M{"user_id": userID, "is_valid": true},
		bson.M{"$set": bson.M{"is_valid": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *sessionMongoRepository) Sweep(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Collection(sessionCollection).DeleteMany(ctx, bson.M{
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$lte": now}},
			bson.M{"is_valid": false},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return result.DeletedCount, nil
}

func (r *sessionMongoRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*model.Session, error) {
	cursor, err := r.db.Collection(sessionCollection).Find(
		ctx,
		bson.M{
			"user_id":    userID,
			"is_valid":   true,
			"expires_at": bson.M{"$gt": now},
		},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []*model.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return sessions, nil
}
