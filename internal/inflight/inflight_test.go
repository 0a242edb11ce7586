package inflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryGuardExclusive(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "echeance:1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := g.Acquire(ctx, "echeance:1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if r2, err := g.Acquire(ctx, "echeance:2"); err != nil {
		t.Fatalf("other key should be free: %v", err)
	} else {
		r2()
	}
	release()
	release()
	r3, err := g.Acquire(ctx, "echeance:1")
	if err != nil {
		t.Fatalf("expected free key after release: %v", err)
	}
	r3()
}

func TestMemoryGuardExpiry(t *testing.T) {
	g := NewMemoryGuard(time.Second)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }
	ctx := context.Background()

	stale, err := g.Acquire(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Second)
	fresh, err := g.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("expired claim should be replaced: %v", err)
	}
	// releasing the stale claim must not free the fresh one
	stale()
	if _, err := g.Acquire(ctx, "k"); !errors.Is(err, ErrBusy) {
		t.Fatalf("stale release freed the new claim: %v", err)
	}
	fresh()
}

func TestMemoryGuardConcurrent(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Acquire(context.Background(), "same"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins = %d", wins.Load())
	}
}
