// Package inflight prevents the same payment from being submitted twice
// while the first submission is still being processed.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by Acquire while another holder owns the key.
var ErrBusy = errors.New("operation already in flight")

// Guard hands out exclusive, self-expiring claims on keys. The returned
// release func is safe to call more than once.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	held map[string]claim
}

type claim struct {
	token     string
	expiresAt time.Time
}

// NewMemoryGuard returns a guard whose claims expire after ttl even if they
// are never released.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, now: time.Now, held: make(map[string]claim)}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if c, ok := g.held[key]; ok && now.Before(c.expiresAt) {
		return nil, ErrBusy
	}
	token := uuid.NewString()
	g.held[key] = claim{token: token, expiresAt: now.Add(g.ttl)}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			// a claim that expired may now belong to someone else
			if c, ok := g.held[key]; ok && c.token == token {
				delete(g.held, key)
			}
			g.mu.Unlock()
		})
	}, nil
}
