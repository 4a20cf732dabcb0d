package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

// PasswordResetTokenRepository defines the interface for password reset token operations.
type PasswordResetTokenRepository interface {
	// Upsert stores token as the user's only reset token, replacing any
	// previous one.
	Upsert(ctx context.Context, token *model.PasswordResetToken) error

	// Consume atomically marks the unused, unexpired token with tokenHash as
	// used and returns its user id. It returns ErrNotFound otherwise.
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)

	// InvalidateUserTokens marks all unused tokens of a user as used.
	InvalidateUserTokens(ctx context.Context, userID string) error

	// DeleteExpiredTokens removes expired and used tokens.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

const passwordResetTokenCollection = "password_reset_tokens"

type passwordResetTokenMongoRepository struct {
	db *mongo.Database
}

// NewPasswordResetTokenMongoRepository creates a new MongoDB repository for password reset tokens.
func NewPasswordResetTokenMongoRepository(ctx context.Context, db *mongo.Database) (PasswordResetTokenRepository, error) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	if _, err := db.Collection(passwordResetTokenCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create password reset token indexes: %w", err)
	}

	return &passwordResetTokenMongoRepository{db: db}, nil
}

func (r *passwordResetTokenMongoRepository) Upsert(ctx context.Context, token *model.PasswordResetToken) error {
	now := time.Now().UTC()

	_, err := r.db.Collection(passwordResetTokenCollection).UpdateOne(
		ctx,
		bson.M{"user_id": token.UserID},
		bson.M{
			"$set": bson.M{
				"token_hash": token.TokenHash,
				"expires_at": token.ExpiresAt,
				"used":       false,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"_id":        uuid.NewString(),
				"created_at": now,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *passwordResetTokenMongoRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var token model.PasswordResetToken
	err := r.db.Collection(passwordResetTokenCollection).FindOneAndUpdate(
		ctx,
		bson.M{
			"token_hash": tokenHash,
			"used":       false,
			"expires_at": bson.M{"$gt": now},
		},
		bson.M{"$set": bson.M{
			"used":       true,
			"updated_at": now,
		}},
	).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return token.UserID, nil
}

func (r *passwordResetTokenMongoRepository) InvalidateUserTokens(ctx context.Context, userID string) error {
	_, err := r.db.Collection(passwordResetTokenCollection).UpdateMany(
		ctx,
		bson.M{"user_id": userID, "used": false},
		bson.M{"$set": bson.M{
			"used":       true,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *passwordResetTokenMongoRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Collection(passwordResetTokenCollection).DeleteMany(ctx, bson.M{
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$lte": now}},
			bson.M{"used": true},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return result.DeletedCount, nil
}
