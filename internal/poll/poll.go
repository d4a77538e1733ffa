// Package poll runs repeating fetches whose lifetime is bound to a context, and keeps only the
// newest result when fetches complete out of order.
package poll

import (
	"context"
	"sync"
	"time"
)

// Run calls fn immediately and then every interval until ctx is done. A failing fn does not stop
// the loop; its error goes to onError when set. Run returns ctx.Err() once the context ends.
func Run(ctx context.Context, interval time.Duration, fn func(context.Context) error, onError func(error)) error {
	if interval <= 0 {
		interval = time.Second
	}

	tick := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil && onError != nil {
			onError(err)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}

// Latest holds the most recent committed value of a series of concurrent fetches. Each fetch takes a
// token from Begin before it starts; a completion only lands if no fetch that began later has
// already committed.
type Latest[T any] struct {
	mu        sync.Mutex
	issued    uint64
	committed uint64
	value     T
	has       bool
}

// Begin returns the token for a new fetch.
func (l *Latest[T]) Begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	return l.issued
}

// Commit stores v if token is newer than the last committed one. It reports whether v was kept;
// false means the response is stale and must be dropped.
func (l *Latest[T]) Commit(token uint64, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token <= l.committed {
		return false
	}
	l.committed = token
	l.value = v
	l.has = true
	return true
}

// Fail records a failed completion. Like Commit it reports false for a stale token, so a late error
// never outranks a newer result. The last committed value is kept.
func (l *Latest[T]) Fail(token uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token <= l.committed {
		return false
	}
	l.committed = token
	return true
}

// Get returns the newest committed value.
func (l *Latest[T]) Get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.has
}
