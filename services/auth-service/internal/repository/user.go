package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

// UserRepository defines the interface for user-related database operations.
// Emails are normalized to lowercase before they are stored or looked up.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithPassword inserts a password account. It returns ErrDuplicate
	// when the email is taken.
	CreateWithPassword(ctx context.Context, params CreateUserParams) (*model.User, error)

	// UpsertByFederatedSubject creates or refreshes the account bound to a
	// federated subject in a single conditional write. An existing password
	// account with the same email and no subject yet is linked instead. It
	// returns ErrDuplicate when the email belongs to a different subject.
	UpsertByFederatedSubject(ctx context.Context, params UpsertFederatedUserParams) (*model.User, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string) error
}

// CreateUserParams defines the parameters for creating a password account.
type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
}

// UpsertFederatedUserParams defines the identity asserted by a federated
// provider.
type UpsertFederatedUserParams struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const userCollection = "users"

type userMongoRepository struct {
	db *mongo.Database
}

// NewUserMongoRepository creates a MongoDB user repository and ensures its
// indexes exist.
func NewUserMongoRepository(ctx context.Context, db *mongo.Database) (UserRepository, error) {
	collection := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"google_id": bson.M{"$type": "string"}}),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}

	return &userMongoRepository{db: db}, nil
}

func (r *userMongoRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (r *userMongoRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *userMongoRepository) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var user model.User
	err := r.db.Collection(userCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &user, nil
}

func (r *userMongoRepository) CreateWithPassword(ctx context.Context, params CreateUserParams) (*model.User, error) {
	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(params.Email),
		Name:         params.Name,
		PasswordHash: &params.PasswordHash,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := r.db.Collection(userCollection).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *userMongoRepository) UpsertByFederatedSubject(
	ctx context.Context,
	params UpsertFederatedUserParams,
) (*model.User, error) {
	// A racing insert of the same subject loses on the unique index; the
	// retry then matches the winner's document.
	user, err := r.upsertBySubject(ctx, params)
	if mongo.IsDuplicateKeyError(err) {
		user, err = r.upsertBySubject(ctx, params)
	}
	if err == nil {
		return user, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// The email is taken; link it if it has no subject yet.
	return r.linkSubject(ctx, params)
}

func (r *userMongoRepository) upsertBySubject(
	ctx context.Context,
	params UpsertFederatedUserParams,
) (*model.User, error) {
	now := time.Now().UTC()

	set := bson.M{
		"name":          params.Name,
		"last_login_at": now,
		"updated_at":    now,
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"_id":            uuid.NewString(),
			"email":          normalizeEmail(params.Email),
			"email_verified": true,
			"status":         model.UserStatusActive,
			"created_at":     now,
		},
	}
	if params.Picture != "" {
		set["picture"] = params.Picture
	} else {
		update["$unset"] = bson.M{"picture": ""}
	}

	var user model.User
	err := r.db.Collection(userCollection).FindOneAndUpdate(
		ctx,
		bson.M{"google_id": params.Subject},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userMongoRepository) linkSubject(ctx context.Context, params UpsertFederatedUserParams) (*model.User, error) {
	now := time.Now().UTC()

	set := bson.M{
		"google_id":      params.Subject,
		"email_verified": true,
		"name":           params.Name,
		"last_login_at":  now,
		"updated_at":     now,
	}
	if params.Picture != "" {
		set["picture"] = params.Picture
	}

	var user model.User
	err := r.db.Collection(userCollection).FindOneAndUpdate(
		ctx,
		bson.M{
			"email":     normalizeEmail(params.Email),
			"google_id": bson.M{"$exists": false},
		},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDuplicate
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &user, nil
}

func (r *userMongoRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.Collection(userCollection).UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"password_hash": passwordHash,
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *userMongoRepository) TouchLastLogin(ctx context.Context, id string) error {
	result, err := r.db.Collection(userCollection).UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_login_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}
