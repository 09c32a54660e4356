// Package tabs gives every client tab its own session manager. A tab is
// identified by a signed token; the manager behind it keeps its session
// record in a per-tab namespace of the ephemeral session store.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"authdesk/internal/repository/kv"
	"authdesk/internal/service"
	"authdesk/internal/storage"
)

const Issuer = "authdesk"

// ErrInvalidToken is returned for tokens that are malformed, forged or expired.
var ErrInvalidToken = errors.New("invalid tab token")

type Config struct {
	Secret      []byte
	TokenTTL    time.Duration
	SubmitDelay time.Duration
	Logger      logrus.FieldLogger
}

type tab struct {
	manager  *service.Manager
	lastSeen time.Time
}

// Registry owns the managers of all open tabs.
type Registry struct {
	cfg      Config
	users    service.UserService
	sessions storage.Store
	now      func() time.Time

	mu   sync.Mutex
	tabs map[string]*tab

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRegistry builds a registry. sessions is the ephemeral store shared by all
// tabs; each tab gets its own key prefix in it.
func NewRegistry(cfg Config, users service.UserService, sessions storage.Store) (*Registry, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("tab secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Registry{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		now:      time.Now,
		tabs:     make(map[string]*tab),
	}, nil
}

// Open starts a new tab and returns its token.
func (r *Registry) Open(ctx context.Context) (string, *service.Manager, error) {
	id := uuid.NewString()
	token, err := r.sign(id)
	if err != nil {
		return "", nil, err
	}
	m, err := r.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	r.cfg.Logger.WithField("tab", id).Debug("tab opened")
	return token, m, nil
}

// Resolve returns the manager of the tab named by token. A tab that is valid
// but not in memory, e.g. after a restart, is rebuilt from its stored session.
func (r *Registry) Resolve(ctx context.Context, token string) (*service.Manager, error) {
	id, err := r.parse(token)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, id)
}

// Close forgets the tab and removes its session record.
func (r *Registry) Close(ctx context.Context, token string) error {
	id, err := r.parse(token)
	if err != nil {
		return err
	}

	r.mu.Lock()
	t, ok := r.tabs[id]
	delete(r.tabs, id)
	r.mu.Unlock()

	if ok {
		return t.manager.Discard(ctx)
	}
	return kv.NewSessionRepository(r.tabStore(id)).Clear(ctx)
}

// Len reports the number of tabs held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// Sweep closes tabs not used for longer than idle.
func (r *Registry) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*tab
	for id, t := range r.tabs {
		if t.lastSeen.Before(cutoff) {
			stale = append(stale, t)
			delete(r.tabs, id)
		}
	}
	r.mu.Unlock()

	for _, t := range stale {
		if err := t.manager.Discard(ctx); err != nil {
			r.cfg.Logger.WithError(err).Warn("discard idle tab session")
		}
	}
	if len(stale) > 0 {
		r.cfg.Logger.Infof("swept %d idle tabs", len(stale))
	}
	return len(stale)
}

// Start runs Sweep every interval until Shutdown or ctx is done.
func (r *Registry) Start(ctx context.Context, interval, idle time.Duration) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx, idle)
			}
		}
	}()
}

func (r *Registry) Shutdown() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Registry) load(ctx context.Context, id string) (*service.Manager, error) {
	if m, ok := r.touch(id); ok {
		return m, nil
	}

	// Building a manager reads the tab's stored session, so it runs without
	// holding r.mu.
	m, err := service.NewManager(ctx, service.ManagerConfig{
		SubmitDelay: r.cfg.SubmitDelay,
		Logger:      r.cfg.Logger.WithField("tab", id),
	}, r.users, kv.NewSessionRepository(r.tabStore(id)))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tabs[id]; ok {
		// A concurrent request for the same tab won.
		t.lastSeen = r.now()
		return t.manager, nil
	}
	r.tabs[id] = &tab{manager: m, lastSeen: r.now()}
	return m, nil
}

func (r *Registry) touch(id string) (*service.Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[id]
	if !ok {
		return nil, false
	}
	t.lastSeen = r.now()
	return t.manager, true
}

func (r *Registry) tabStore(id string) storage.Store {
	return storage.WithPrefix(r.sessions, "tab/"+id)
}

func (r *Registry) sign(id string) (string, error) {
	now := r.now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(r.cfg.TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign tab token: %w", err)
	}
	return token, nil
}

func (r *Registry) parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.cfg.Secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(r.now))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
