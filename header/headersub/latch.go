// Copyright 2024 XDC Network
// Single-cell, single-writer/multi-reader latch for gossiped heads.

// Package headersub implements the HeaderSub watcher collaborator: a
// single-cell, single-writer/multi-reader latch carrying the most recently
// gossiped head. Consumers observe the latest value; intermediate values
// may be skipped — it is a latch, not a queue.
package headersub

import (
	"sync"
	"sync/atomic"

	"github.com/celestiaorg/lumen-node/header"
)

// Latch is the HeaderSub watcher.
type Latch struct {
	version atomic.Uint64
	mu      sync.RWMutex
	head    header.ExtendedHeader

	watchMu  sync.Mutex
	watchers []chan struct{}
}

// NewLatch returns an empty latch.
func NewLatch() *Latch { return &Latch{} }

// Init seeds the latch with the node's initial head, without incrementing
// the version observers would see as a fresh gossip event.
func (l *Latch) Init(h header.ExtendedHeader) {
	l.mu.Lock()
	l.head = h
	l.mu.Unlock()
}

// Publish is the single writer's entry point: it replaces the latched head
// and wakes every waiter. Last-writer-wins; there is no queueing.
func (l *Latch) Publish(h header.ExtendedHeader) {
	l.mu.Lock()
	l.head = h
	l.mu.Unlock()
	l.version.Add(1)

	l.watchMu.Lock()
	watchers := l.watchers
	l.watchers = nil
	l.watchMu.Unlock()
	for _, ch := range watchers {
		close(ch)
	}
}

// Get returns the latest latched head, or (nil, false) if nothing has been
// published yet.
func (l *Latch) Get() (header.ExtendedHeader, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head, l.head != nil
}

// Version returns the publish count, useful for detecting whether Get's
// result has changed since a previous observation without comparing the
// (possibly expensive to compare) header value itself.
func (l *Latch) Version() uint64 { return l.version.Load() }

// Changed returns a channel that is closed the next time Publish is called.
// Callers select on it rather than polling Get in a loop.
func (l *Latch) Changed() <-chan struct{} {
	ch := make(chan struct{})
	l.watchMu.Lock()
	l.watchers = append(l.watchers, ch)
	l.watchMu.Unlock()
	return ch
}
