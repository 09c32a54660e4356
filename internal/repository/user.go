package repository

import (
	"context"

	"authdesk/internal/domain"
)

// Storage keys of the two persisted collections.
const (
	UsersKey       = "users"
	CurrentUserKey = "currentUser"
)

// UserRepository loads and saves the whole user registry.
type UserRepository interface {
	// Load returns the registry in insertion order; an absent registry is empty.
	Load(ctx context.Context) ([]domain.UserRecord, error)
	Save(ctx context.Context, users []domain.UserRecord) error
}

// SessionRepository holds at most one current session record.
type SessionRepository interface {
	// Load returns nil when no session is persisted.
	Load(ctx context.Context) (*domain.SessionRecord, error)
	Save(ctx context.Context, session domain.SessionRecord) error
	Clear(ctx context.Context) error
}
