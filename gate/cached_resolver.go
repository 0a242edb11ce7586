package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedResolver caches resolved profiles for ttl. Concurrent misses for the
// same user share one lookup.
type CachedResolver[U comparable] struct {
	inner ProfileResolver[U]
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[U]cacheEntry
	gen   uint64
	group singleflight.Group
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

func NewCachedResolver[U comparable](inner ProfileResolver[U], ttl time.Duration) *CachedResolver[U] {
	return &CachedResolver[U]{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[U]cacheEntry),
	}
}

func (r *CachedResolver[U]) Resolve(ctx context.Context, user U) (Profile, error) {
	r.mu.RLock()
	entry, ok := r.cache[user]
	gen := r.gen
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.profile, nil
	}

	v, err, _ := r.group.Do(fmt.Sprint(user), func() (any, error) {
		profile, err := r.inner.Resolve(ctx, user)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		// an invalidation during the lookup makes the result stale
		if r.gen == gen {
			r.cache[user] = cacheEntry{profile: profile, expiresAt: r.now().Add(r.ttl)}
		}
		r.mu.Unlock()
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	profile, _ := v.(Profile)
	return profile, nil
}

// Invalidate drops one user, e.g. after their profile assignment changed.
func (r *CachedResolver[U]) Invalidate(user U) {
	r.mu.Lock()
	delete(r.cache, user)
	r.gen++
	r.mu.Unlock()
	r.group.Forget(fmt.Sprint(user))
}

// InvalidateAll clears the cache, e.g. after profile permissions changed.
func (r *CachedResolver[U]) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[U]cacheEntry)
	r.gen++
	r.mu.Unlock()
}
