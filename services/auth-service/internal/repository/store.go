package repository

import (
	"context"
	"database/sql"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Store groups the repositories of one storage backend.
type Store struct {
	Users       UserRepository
	Sessions    SessionRepository
	ResetTokens PasswordResetTokenRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// NewPostgresStore returns PostgreSQL-backed repositories sharing db.
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Users:       NewUserPostgresRepository(db),
		Sessions:    NewSessionPostgresRepository(db),
		ResetTokens: NewPasswordResetTokenPostgresRepository(db),
		ping:        db.PingContext,
		close:       func(context.Context) error { return db.Close() },
	}
}

// NewMongoStore returns MongoDB-backed repositories and creates their indexes.
func NewMongoStore(ctx context.Context, client *mongo.Client, db *mongo.Database) (*Store, error) {
	users, err := NewUserMongoRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	sessions, err := NewSessionMongoRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	resetTokens, err := NewPasswordResetTokenMongoRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	return &Store{
		Users:       users,
		Sessions:    sessions,
		ResetTokens: resetTokens,
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		close: client.Disconnect,
	}, nil
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the backend connection.
func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}
