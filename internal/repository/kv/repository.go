// Package kv implements the registry and session repositories as JSON
// documents on top of a storage.Store.
package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"authdesk/internal/domain"
	"authdesk/internal/repository"
	"authdesk/internal/storage"
)

type UserRepository struct {
	store storage.Store
}

func NewUserRepository(store storage.Store) repository.UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) Load(ctx context.Context) ([]domain.UserRecord, error) {
	raw, found, err := r.store.Get(ctx, repository.UsersKey)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if !found || len(raw) == 0 {
		return []domain.UserRecord{}, nil
	}

	var users []domain.UserRecord
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	if users == nil {
		users = []domain.UserRecord{}
	}
	return users, nil
}

func (r *UserRepository) Save(ctx context.Context, users []domain.UserRecord) error {
	if users == nil {
		users = []domain.UserRecord{}
	}
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := r.store.Set(ctx, repository.UsersKey, raw); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

type SessionRepository struct {
	store storage.Store
}

func NewSessionRepository(store storage.Store) repository.SessionRepository {
	return &SessionRepository{store: store}
}

func (r *SessionRepository) Load(ctx context.Context) (*domain.SessionRecord, error) {
	raw, found, err := r.store.Get(ctx, repository.CurrentUserKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found || len(raw) == 0 {
		return nil, nil
	}

	var session domain.SessionRecord
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) Save(ctx context.Context, session domain.SessionRecord) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.store.Set(ctx, repository.CurrentUserKey, raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, repository.CurrentUserKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
