// Package singleflight coalesces concurrent identical calls so only one
// request is in flight per key; duplicate callers wait for the owner's
// result. Waiters stay cancellable through their own context.
package singleflight

import (
	"context"
	"sync"
	"time"
)

// Group manages the set of in-flight calls.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

type call struct {
	done    chan struct{}
	payload []byte
	err     error
}

// New creates an empty Group.
func New() *Group {
	return &Group{m: make(map[string]*call)}
}

// Do executes fn, ensuring only one execution per key runs at a time.
// Duplicate callers block until the owner finishes and receive the same
// payload and error; shared reports whether the result came from another
// caller's execution. A waiting caller whose ctx is cancelled unblocks with
// ctx.Err() without disturbing the owner.
func (g *Group) Do(ctx context.Context, key string, fn func() ([]byte, error)) (payload []byte, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.payload, c.err, true
		case <-ctx.Done():
			return nil, ctx.Err(), true
		}
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.payload, c.err = fn()
	close(c.done)

	// Keep the entry around briefly so near-simultaneous duplicates still
	// coalesce, then drop it to bound memory.
	time.AfterFunc(100*time.Millisecond, func() {
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
	})

	return c.payload, c.err, false
}

// Forget removes key immediately, letting the next caller execute afresh.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
