// Copyright 2024 XDC Network
// Node composition root: wires storage, peer tracking and sync/prune workers.

// Package node is the composition root: it wires the Store, PeerTracker,
// HeaderSub latch, exchange Client, Syncer and Pruner collaborators into one
// lifecycle. Callers supply a p2p.Transport implementation; the wire
// transport itself lives outside this package.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/celestiaorg/lumen-node/events"
	"github.com/celestiaorg/lumen-node/header"
	"github.com/celestiaorg/lumen-node/header/blockstore"
	"github.com/celestiaorg/lumen-node/header/headersub"
	"github.com/celestiaorg/lumen-node/header/p2p"
	"github.com/celestiaorg/lumen-node/header/p2p/peer"
	"github.com/celestiaorg/lumen-node/header/pruner"
	"github.com/celestiaorg/lumen-node/header/store"
	headersync "github.com/celestiaorg/lumen-node/header/sync"
)

// pollInterval paces the exchange client's pending-request timeout sweep.
const pollInterval = time.Second

// Config holds the collaborators and codec a Node is built from. Store,
// Transport and Decode are required; Blockstore defaults to an in-memory
// implementation when nil.
type Config struct {
	Store      store.Store
	Blockstore blockstore.Blockstore
	Transport  p2p.Transport
	Decode     header.Decoder
}

// Node owns one running instance of the core: the store it serves reads
// from, the collaborators the Syncer and Pruner drive, and the goroutines
// backing their Run loops.
type Node struct {
	Store   store.Store
	Tracker *peer.Tracker
	Latch   *headersub.Latch
	Client  *p2p.Client
	Syncer  *headersync.Syncer
	Pruner  *pruner.Pruner
	Bus     *events.Bus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires cfg's collaborators into a Node. It does not start any
// goroutines; call Start for that.
func New(cfg Config) *Node {
	bs := cfg.Blockstore
	if bs == nil {
		bs = blockstore.NewInMemory()
	}

	tracker := peer.NewTracker()
	latch := headersub.NewLatch()
	bus := events.NewBus()
	client := p2p.NewClient(tracker, cfg.Transport, cfg.Decode)

	return &Node{
		Store:   cfg.Store,
		Tracker: tracker,
		Latch:   latch,
		Client:  client,
		Syncer:  headersync.NewSyncer(cfg.Store, tracker, latch, client, bus),
		Pruner:  pruner.NewPruner(cfg.Store, bs, bus),
		Bus:     bus,
	}
}

// Start launches the client's poll loop, the syncer and the pruner as
// background goroutines. It returns immediately; call Stop to tear them
// down.
func (n *Node) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(3)
	go func() { defer n.wg.Done(); n.Client.Run(ctx, pollInterval) }()
	go func() { defer n.wg.Done(); n.Syncer.Run(ctx) }()
	go func() { defer n.wg.Done(); n.Pruner.Run(ctx) }()
}

// Stop cancels every background goroutine Start launched and blocks until
// they have all exited.
func (n *Node) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	n.wg.Wait()
}

// SyncingInfo reports the syncer's current progress.
func (n *Node) SyncingInfo() (header.SyncingInfo, error) {
	return n.Syncer.Info()
}

// OnHeaderGossiped feeds an externally-received gossiped head into the
// HeaderSub latch. The gossip transport itself lives outside this package.
func (n *Node) OnHeaderGossiped(h header.ExtendedHeader) {
	n.Latch.Publish(h)
}
