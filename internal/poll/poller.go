package poll

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnknownCategory is returned when voting for a category that is not polled.
var ErrUnknownCategory = errors.New("unknown poll category")

// Poller keeps vote counters and casts a random vote on every tick.
type Poller interface {
	Start(ctx context.Context) error
	Shutdown()
	Vote(category string) error
	Tick() string
	Snapshot() map[string]int
	Categories() []string
}

type Config struct {
	Categories []string
	Interval   time.Duration
	// Pick returns an index in [0, n). Defaults to a uniform random pick.
	Pick   func(n int) int
	Logger logrus.FieldLogger
}

type poller struct {
	cfg Config

	mu     sync.Mutex
	counts map[string]int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func DefaultCategories() []string {
	return []string{"javascript", "rust", "python"}
}

func NewPoller(cfg Config) Poller {
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 700 * time.Millisecond
	}
	if cfg.Pick == nil {
		cfg.Pick = rand.IntN
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	counts := make(map[string]int, len(cfg.Categories))
	for _, c := range cfg.Categories {
		counts[c] = 0
	}
	return &poller{cfg: cfg, counts: counts}
}

func (p *poller) Start(ctx context.Context) error {
	if p.cancel != nil {
		return fmt.Errorf("poller already started")
	}
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Tick()
			}
		}
	}()

	p.cfg.Logger.Infof("poll started, categories %v every %s", p.cfg.Categories, p.cfg.Interval)
	return nil
}

func (p *poller) Shutdown() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.cfg.Logger.Info("poll stopped")
}

// Tick casts one vote for a randomly picked category and returns it.
func (p *poller) Tick() string {
	c := p.cfg.Categories[p.cfg.Pick(len(p.cfg.Categories))]
	p.mu.Lock()
	p.counts[c]++
	p.mu.Unlock()
	return c
}

func (p *poller) Vote(category string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.counts[category]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	p.counts[category]++
	return nil
}

func (p *poller) Snapshot() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

func (p *poller) Categories() []string {
	return append([]string(nil), p.cfg.Categories...)
}
