package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cardhub/connectors/internal/domain/shared"
)

type entry struct {
	expiresAt time.Time
}

// InMemoryReplayGuard keeps claims in a map. Claims are per process, so it
// only suits single-instance deployments and tests.
type InMemoryReplayGuard struct {
	mu        sync.Mutex
	entries   map[string]entry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryReplayGuard starts a guard with a background sweep of expired
// claims.
func NewInMemoryReplayGuard() *InMemoryReplayGuard {
	g := &InMemoryReplayGuard{
		entries:  make(map[string]entry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	g.wg.Add(1)
	go g.cleanupLoop(time.Minute)

	return g
}

// Claim records key until ttl elapses. It returns false while an earlier
// claim is still live.
func (g *InMemoryReplayGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, exists := g.entries[key]; exists && now.Before(e.expiresAt) {
		return false, nil
	}
	g.entries[key] = entry{expiresAt: now.Add(ttl)}
	return true, nil
}

// Release drops key so the action can be retried.
func (g *InMemoryReplayGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (g *InMemoryReplayGuard) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopChan)
		g.wg.Wait()
	})
	return nil
}

func (g *InMemoryReplayGuard) cleanupLoop(every time.Duration) {
	defer g.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

func (g *InMemoryReplayGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, e := range g.entries {
		if !now.Before(e.expiresAt) {
			delete(g.entries, key)
		}
	}
}

// Size returns the number of tracked claims.
func (g *InMemoryReplayGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

var _ shared.ReplayGuard = (*InMemoryReplayGuard)(nil)

// NoopReplayGuard admits every claim. It is used when replay protection is
// disabled.
type NoopReplayGuard struct{}

func (NoopReplayGuard) Claim(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (NoopReplayGuard) Release(context.Context, string) error                       { return nil }
func (NoopReplayGuard) Close() error                                                { return nil }

var _ shared.ReplayGuard = NoopReplayGuard{}
