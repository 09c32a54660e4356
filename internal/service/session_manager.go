package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"authdesk/internal/domain"
	"authdesk/internal/repository"
)

type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// Messages shown to the user when a submit fails.
const (
	MsgDuplicateEmail     = "User with this email already exists"
	MsgInvalidCredentials = "Invalid email or password"
	MsgUnexpected         = "Something went wrong, please try again"
)

var (
	// ErrBusy is returned while a submit is in flight.
	ErrBusy = errors.New("an operation is already in progress")
	// ErrAlreadyAuthenticated is returned when submitting with an active session.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrUnknownField         = errors.New("unknown form field")
	ErrInvalidMode          = errors.New("invalid mode")
)

// ValidationError carries per-field failures of a rejected form.
type ValidationError struct {
	Errors domain.ValidationErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + e.Errors[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type ManagerConfig struct {
	// SubmitDelay simulates request latency before a submit is processed.
	SubmitDelay time.Duration
	Logger      logrus.FieldLogger
}

// Snapshot is a point-in-time copy of a manager's state.
type Snapshot struct {
	State  State                   `json:"state"`
	Mode   domain.Mode             `json:"mode"`
	Form   domain.FormState        `json:"form"`
	Errors domain.ValidationErrors `json:"errors"`
	User   *domain.SessionRecord   `json:"user,omitempty"`
}

func (s Snapshot) IsAdmin() bool {
	return s.User != nil && s.User.IsAdmin()
}

// Manager drives one login/sign-up form and the session that results from it.
//
// Anonymous --submit--> Authenticating --success--> Authenticated
// Authenticating --failure--> Anonymous (errors set, form kept)
// Authenticated --logout--> Anonymous (session cleared, form reset)
type Manager struct {
	cfg      ManagerConfig
	users    UserService
	sessions repository.SessionRepository

	mu      sync.Mutex
	state   State
	mode    domain.Mode
	form    domain.FormState
	errors  domain.ValidationErrors
	current *domain.SessionRecord
}

// NewManager builds a manager and restores a persisted session if there is one.
func NewManager(ctx context.Context, cfg ManagerConfig, users UserService, sessions repository.SessionRepository) (*Manager, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	m := &Manager{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		state:    StateAnonymous,
		mode:     domain.ModeLogin,
		form:     domain.EmptyForm(),
		errors:   domain.ValidationErrors{},
	}

	session, err := sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if session != nil {
		m.current = session
		m.state = StateAuthenticated
		cfg.Logger.WithField("email", session.Email).Info("session restored")
	}
	return m, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns the authenticated identity, if any.
func (m *Manager) CurrentUser() (*domain.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	s := *m.current
	return &s, true
}

func (m *Manager) IsAdmin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.IsAdmin()
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		State:  m.state,
		Mode:   m.mode,
		Form:   m.form,
		Errors: m.errors.Clone(),
	}
	if m.current != nil {
		s := *m.current
		snap.User = &s
	}
	return snap
}

// SetMode switches between the login and sign-up forms.
func (m *Manager) SetMode(mode domain.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	return nil
}

// SetField updates one form field and drops any error shown for it.
func (m *Manager) SetField(field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.form.Set(field, value) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	delete(m.errors, field)
	return nil
}

// Login replaces the form with form and submits it in login mode.
func (m *Manager) Login(ctx context.Context, form domain.FormState) (*domain.SessionRecord, error) {
	return m.fillAndSubmit(ctx, domain.ModeLogin, form)
}

// SignUp replaces the form with form and submits it in sign-up mode.
func (m *Manager) SignUp(ctx context.Context, form domain.FormState) (*domain.SessionRecord, error) {
	return m.fillAndSubmit(ctx, domain.ModeSignup, form)
}

func (m *Manager) fillAndSubmit(ctx context.Context, mode domain.Mode, form domain.FormState) (*domain.SessionRecord, error) {
	m.mu.Lock()
	if err := m.checkCanSubmitLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if form.UserType == "" {
		form.UserType = domain.UserTypeUser
	}
	m.mode = mode
	m.form = form
	m.mu.Unlock()

	return m.Submit(ctx)
}

func (m *Manager) checkCanSubmitLocked() error {
	switch m.state {
	case StateAuthenticating:
		return ErrBusy
	case StateAuthenticated:
		return ErrAlreadyAuthenticated
	}
	return nil
}

// Submit validates the current form and runs login or sign-up depending on
// the selected mode. A successful sign-up logs the new user in.
func (m *Manager) Submit(ctx context.Context) (*domain.SessionRecord, error) {
	m.mu.Lock()
	if err := m.checkCanSubmitLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	mode, form := m.mode, m.form
	if errs := Validate(form, mode); len(errs) > 0 {
		m.errors = errs
		m.mu.Unlock()
		return nil, &ValidationError{Errors: errs.Clone()}
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	log := m.cfg.Logger.WithFields(logrus.Fields{"mode": mode, "email": form.Email})
	session, errs, err := m.perform(ctx, mode, form)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateAnonymous
		if errs != nil {
			m.errors = errs
		}
		log.WithError(err).Warn("submit failed")
		return nil, err
	}

	m.state = StateAuthenticated
	m.current = session
	m.errors = domain.ValidationErrors{}
	log.Info("authenticated")

	s := *session
	return &s, nil
}

func (m *Manager) perform(ctx context.Context, mode domain.Mode, form domain.FormState) (*domain.SessionRecord, domain.ValidationErrors, error) {
	if err := m.wait(ctx); err != nil {
		return nil, nil, err
	}

	var (
		user *domain.UserRecord
		err  error
	)
	if mode == domain.ModeSignup {
		user, err = m.users.Register(ctx, domain.UserRecord{
			Email:    form.Email,
			FullName: form.FullName,
			UserType: form.UserType,
			Password: form.Password,
		})
	} else {
		user, err = m.users.Authenticate(ctx, form.Email, form.Password)
	}
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return nil, domain.ValidationErrors{domain.FieldEmail: MsgDuplicateEmail}, err
	case errors.Is(err, ErrInvalidCredentials):
		return nil, domain.ValidationErrors{domain.FieldGeneral: MsgInvalidCredentials}, err
	case err != nil:
		return nil, domain.ValidationErrors{domain.FieldGeneral: MsgUnexpected}, err
	}

	session := user.Session()
	if err := m.sessions.Save(ctx, session); err != nil {
		return nil, domain.ValidationErrors{domain.FieldGeneral: MsgUnexpected}, err
	}
	return &session, nil, nil
}

func (m *Manager) wait(ctx context.Context) error {
	if m.cfg.SubmitDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.cfg.SubmitDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Logout ends the session and resets the form to its initial state.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticating {
		return ErrBusy
	}
	if err := m.sessions.Clear(ctx); err != nil {
		return err
	}

	if m.current != nil {
		m.cfg.Logger.WithField("email", m.current.Email).Info("logged out")
	}
	m.current = nil
	m.state = StateAnonymous
	m.mode = domain.ModeLogin
	m.form = domain.EmptyForm()
	m.errors = domain.ValidationErrors{}
	return nil
}

// Discard removes the persisted session without touching in-memory state. It
// is used when the owning tab goes away.
func (m *Manager) Discard(ctx context.Context) error {
	return m.sessions.Clear(ctx)
}
