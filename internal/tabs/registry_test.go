package tabs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authdesk/internal/domain"
	"authdesk/internal/repository/kv"
	"authdesk/internal/service"
	"authdesk/internal/storage"
)

func newRegistry(t *testing.T, sessions storage.Store) *Registry {
	t.Helper()
	logger, _ := test.NewNullLogger()
	users := service.NewUserService(kv.NewUserRepository(storage.NewMemoryStore()), service.WithUserLogger(logger))
	r, err := NewRegistry(Config{Secret: []byte("tab-secret"), TokenTTL: time.Hour, Logger: logger}, users, sessions)
	require.NoError(t, err)
	return r
}

func signup(t *testing.T, m *service.Manager, email string) {
	t.Helper()
	_, err := m.SignUp(context.Background(), domain.FormState{
		Email: email, Password: "secret", ConfirmPassword: "secret", FullName: "Tab User", UserType: domain.UserTypeUser,
	})
	require.NoError(t, err)
}

func TestNewRegistry_RequiresSecret(t *testing.T) {
	_, err := NewRegistry(Config{}, nil, storage.NewMemoryStore())
	require.Error(t, err)
}

func TestOpenResolve_SameManager(t *testing.T) {
	r := newRegistry(t, storage.NewMemoryStore())
	ctx := context.Background()

	token, m, err := r.Open(ctx)
	require.NoError(t, err)

	got, err := r.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Same(t, m, got)
	assert.Equal(t, 1, r.Len())
}

func TestTabsAreIsolated(t *testing.T) {
	r := newRegistry(t, storage.NewMemoryStore())
	ctx := context.Background()

	_, a, err := r.Open(ctx)
	require.NoError(t, err)
	_, b, err := r.Open(ctx)
	require.NoError(t, err)

	signup(t, a, "a@b.com")
	assert.Equal(t, service.StateAuthenticated, a.State())
	assert.Equal(t, service.StateAnonymous, b.State())
}

func TestResolve_RejectsBadTokens(t *testing.T) {
	r := newRegistry(t, storage.NewMemoryStore())
	ctx := context.Background()

	_, err := r.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: Issuer, Subject: "5f0c8c1e-3c1a-4c43-9d59-0e6d1c6f3a11",
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = r.Resolve(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	notUUID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: Issuer, Subject: "../etc",
	}).SignedString([]byte("tab-secret"))
	require.NoError(t, err)
	_, err = r.Resolve(ctx, notUUID)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolve_ExpiredToken(t *testing.T) {
	r := newRegistry(t, storage.NewMemoryStore())
	ctx := context.Background()

	token, _, err := r.Open(ctx)
	require.NoError(t, err)

	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = r.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolve_RestoresSessionAfterRestart(t *testing.T) {
	shared := storage.NewMemoryStore()
	logger, _ := test.NewNullLogger()
	users := service.NewUserService(kv.NewUserRepository(storage.NewMemoryStore()), service.WithUserLogger(logger))
	ctx := context.Background()

	first, err := NewRegistry(Config{Secret: []byte("s"), Logger: logger}, users, shared)
	require.NoError(t, err)
	token, m, err := first.Open(ctx)
	require.NoError(t, err)
	signup(t, m, "a@b.com")

	second, err := NewRegistry(Config{Secret: []byte("s"), Logger: logger}, users, shared)
	require.NoError(t, err)
	restored, err := second.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, service.StateAuthenticated, restored.State())
}

func TestClose_RemovesSession(t *testing.T) {
	shared := storage.NewMemoryStore()
	r := newRegistry(t, shared)
	ctx := context.Background()

	token, m, err := r.Open(ctx)
	require.NoError(t, err)
	signup(t, m, "a@b.com")

	require.NoError(t, r.Close(ctx, token))
	assert.Equal(t, 0, r.Len())

	fresh, err := r.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, service.StateAnonymous, fresh.State())
}

func TestSweep_DropsIdleTabs(t *testing.T) {
	r := newRegistry(t, storage.NewMemoryStore())
	ctx := context.Background()

	base := time.Now()
	r.now = func() time.Time { return base }
	_, _, err := r.Open(ctx)
	require.NoError(t, err)

	r.now = func() time.Time { return base.Add(30 * time.Minute) }
	token, _, err := r.Open(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sweep(ctx, 20*time.Minute))
	assert.Equal(t, 1, r.Len())

	_, err = r.Resolve(ctx, token)
	require.NoError(t, err)
}

func TestStartShutdown(t *testing.T) {
	r := newRegistry(t, storage.NewMemoryStore())
	ctx := context.Background()
	_, _, err := r.Open(ctx)
	require.NoError(t, err)

	r.Start(ctx, 5*time.Millisecond, 0)
	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	r.Shutdown()
}

// gatedStore holds every Get under prefix until release is closed.
type gatedStore struct {
	storage.Store
	prefix  string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if strings.HasPrefix(key, g.prefix) {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.Store.Get(ctx, key)
}

func TestResolve_SlowRestoreDoesNotBlockOtherTabs(t *testing.T) {
	slowID := uuid.NewString()
	gate := &gatedStore{
		Store:   storage.NewMemoryStore(),
		prefix:  "tab/" + slowID + "/",
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := newRegistry(t, gate)
	ctx := context.Background()

	fastToken, _, err := r.Open(ctx)
	require.NoError(t, err)
	slowToken, err := r.sign(slowID)
	require.NoError(t, err)

	slowDone := make(chan *service.Manager, 1)
	go func() {
		m, err := r.Resolve(ctx, slowToken)
		assert.NoError(t, err)
		slowDone <- m
	}()
	<-gate.entered

	fastDone := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, fastToken)
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		close(gate.release)
		t.Fatal("resolving one tab waited on another tab's session restore")
	}

	close(gate.release)
	assert.NotNil(t, <-slowDone)
	assert.Equal(t, 2, r.Len())
}

func TestResolve_ConcurrentSameTabSharesManager(t *testing.T) {
	r := newRegistry(t, storage.NewMemoryStore())
	ctx := context.Background()
	token, err := r.sign(uuid.NewString())
	require.NoError(t, err)

	const n = 16
	got := make([]*service.Manager, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := r.Resolve(ctx, token)
			assert.NoError(t, err)
			got[i] = m
		}()
	}
	wg.Wait()

	for _, m := range got {
		assert.Same(t, got[0], m)
	}
	assert.Equal(t, 1, r.Len())
}
