package poll

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietConfig() Config {
	logger, _ := test.NewNullLogger()
	return Config{Logger: logger}
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(quietConfig())
	assert.Equal(t, DefaultCategories(), p.Categories())
	assert.Equal(t, map[string]int{"javascript": 0, "rust": 0, "python": 0}, p.Snapshot())
}

func TestTick_UsesPick(t *testing.T) {
	cfg := quietConfig()
	picks := []int{2, 0, 2}
	cfg.Pick = func(n int) int {
		require.Equal(t, 3, n)
		v := picks[0]
		picks = picks[1:]
		return v
	}
	p := NewPoller(cfg)

	assert.Equal(t, "python", p.Tick())
	assert.Equal(t, "javascript", p.Tick())
	assert.Equal(t, "python", p.Tick())
	assert.Equal(t, map[string]int{"javascript": 1, "rust": 0, "python": 2}, p.Snapshot())
}

func TestVote(t *testing.T) {
	p := NewPoller(quietConfig())

	require.NoError(t, p.Vote("rust"))
	require.ErrorIs(t, p.Vote("cobol"), ErrUnknownCategory)
	assert.Equal(t, 1, p.Snapshot()["rust"])
}

func TestSnapshot_IsACopy(t *testing.T) {
	p := NewPoller(quietConfig())
	s := p.Snapshot()
	s["rust"] = 100
	assert.Equal(t, 0, p.Snapshot()["rust"])
}

func TestStart_TicksUntilShutdown(t *testing.T) {
	cfg := quietConfig()
	cfg.Interval = 2 * time.Millisecond
	p := NewPoller(cfg)

	require.NoError(t, p.Start(context.Background()))
	require.Error(t, p.Start(context.Background()))

	total := func() int {
		n := 0
		for _, v := range p.Snapshot() {
			n += v
		}
		return n
	}
	require.Eventually(t, func() bool { return total() >= 3 }, time.Second, 2*time.Millisecond)

	p.Shutdown()
	after := total()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, total())
}
