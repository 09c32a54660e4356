package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"authdesk/internal/domain"
	"authdesk/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateEmail is returned when attempting to register an email that is already taken.
	ErrDuplicateEmail = errors.New("user with this email already exists")
	// ErrUserNotFound is returned by lookups for an unknown email.
	ErrUserNotFound = errors.New("user not found")
)

// UserService describes registry operations.
type UserService interface {
	FindByEmail(ctx context.Context, email string) (*domain.UserRecord, error)
	Register(ctx context.Context, candidate domain.UserRecord) (*domain.UserRecord, error)
	Authenticate(ctx context.Context, email, password string) (*domain.UserRecord, error)
	List(ctx context.Context) ([]domain.UserRecord, error)
}

type userService struct {
	mu     sync.Mutex
	users  repository.UserRepository
	codec  PasswordCodec
	now    func() time.Time
	logger logrus.FieldLogger
}

type UserServiceOption func(*userService)

func WithPasswordCodec(c PasswordCodec) UserServiceOption {
	return func(s *userService) { s.codec = c }
}

func WithClock(now func() time.Time) UserServiceOption {
	return func(s *userService) { s.now = now }
}

func WithUserLogger(l logrus.FieldLogger) UserServiceOption {
	return func(s *userService) { s.logger = l }
}

func NewUserService(users repository.UserRepository, opts ...UserServiceOption) UserService {
	s := &userService{
		users: users,
		codec: PlainCodec{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	return s
}

func (s *userService) FindByEmail(ctx context.Context, email string) (*domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	if u := findByEmail(users, email); u != nil {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (s *userService) Register(ctx context.Context, candidate domain.UserRecord) (*domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	if findByEmail(users, candidate.Email) != nil {
		return nil, ErrDuplicateEmail
	}

	stored, err := s.codec.Encode(candidate.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	id := now.UnixMilli()
	for _, u := range users {
		if u.ID >= id {
			id = u.ID + 1
		}
	}

	user := domain.UserRecord{
		ID:        id,
		Email:     candidate.Email,
		FullName:  candidate.FullName,
		UserType:  candidate.UserType,
		Password:  stored,
		CreatedAt: now,
	}
	if user.UserType == "" {
		user.UserType = domain.UserTypeUser
	}

	if err := s.users.Save(ctx, append(users, user)); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"email": user.Email, "id": user.ID}).Info("user registered")
	return &user, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	u := findByEmail(users, email)
	if u == nil || !s.codec.Matches(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *userService) List(ctx context.Context) ([]domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.Load(ctx)
}

func findByEmail(users []domain.UserRecord, email string) *domain.UserRecord {
	for i := range users {
		if users[i].Email == email {
			u := users[i]
			return &u
		}
	}
	return nil
}
