// Copyright 2024 XDC Network
// Typed lifecycle notifications built on go-ethereum's event.FeedOf.

// Package events defines a small typed pub/sub for the core subsystems'
// lifecycle notifications, built on go-ethereum's event.FeedOf.
package events

import (
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// FetchingHeadHeaderStarted is posted when head discovery begins.
type FetchingHeadHeaderStarted struct{}

// FetchingHeadHeaderFinished is posted once head discovery resolves.
type FetchingHeadHeaderFinished struct {
	Height uint64
	Took   time.Duration
}

// FetchingHeadersStarted is posted when a gap-filling batch is scheduled.
type FetchingHeadersStarted struct {
	From, To uint64
}

// FetchingHeadersFinished is posted when a gap-filling batch succeeds.
type FetchingHeadersFinished struct {
	From, To uint64
	Took     time.Duration
}

// FetchingHeadersFailed is posted when a gap-filling batch fails.
type FetchingHeadersFailed struct {
	From, To uint64
	Error    error
	Took     time.Duration
}

// AddedHeaderFromHeaderSub is posted when the syncer adjacently ingests a
// gossiped head directly from the HeaderSub latch.
type AddedHeaderFromHeaderSub struct {
	Height uint64
}

// FatalPrunerError is posted immediately before the pruner exits on an
// unrecoverable storage fault.
type FatalPrunerError struct {
	Error error
}

// Bus is the core subsystems' shared publisher, a thin wrapper around
// event.FeedOf[any], so events of different types share one feed.
type Bus struct {
	feed event.FeedOf[any]
}

// NewBus returns an empty Bus.
func NewBus() *Bus { return &Bus{} }

// Post publishes an event to every current subscriber. Send is a no-op
// when nobody is subscribed yet. Subscribers must keep their channel
// buffered or draining, since Send delivers synchronously.
func (b *Bus) Post(ev any) {
	b.feed.Send(ev)
}

// Subscribe delivers every event posted to the bus onto ch. The returned
// Subscription must be closed by the caller (event.Subscription.Unsubscribe).
func (b *Bus) Subscribe(ch chan<- any) event.Subscription {
	return b.feed.Subscribe(ch)
}
