// Copyright 2024 XDC Network
// Ticker-driven background worker that evicts headers past their retention window.

// Package pruner implements the Pruner: the background worker that evicts
// headers (and their content-addressed sampled chunks) whose timestamps
// fall outside the retention window from the tail of the store.
package pruner

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/celestiaorg/lumen-node/events"
	"github.com/celestiaorg/lumen-node/header/blockstore"
	"github.com/celestiaorg/lumen-node/header/store"
	"github.com/celestiaorg/lumen-node/header/sync"
)

const (
	// BlockProductionTimeEstimate paces the pruner's tick interval.
	BlockProductionTimeEstimate = 12 * time.Second

	// PruningWindow is the retention horizon: a header older than this is
	// eligible for removal. It is deliberately one hour wider than the
	// syncer's syncing window so a header the syncer still considers
	// in-window is never raced out from under it.
	PruningWindow = sync.SyncingWindow + time.Hour
)

// Pruner is the background tail-eviction worker. The zero value is not
// usable; construct with NewPruner.
type Pruner struct {
	store      store.Store
	blockstore blockstore.Blockstore
	bus        *events.Bus
	now        func() time.Time
}

// NewPruner wires the store it trims, the blockstore it evicts
// content-addressed chunks from, and the event bus it reports fatal errors
// on.
func NewPruner(s store.Store, bs blockstore.Blockstore, bus *events.Bus) *Pruner {
	return &Pruner{store: s, blockstore: bs, bus: bus, now: time.Now}
}

// Run drives the pruning loop on a BlockProductionTimeEstimate tick until
// ctx is canceled or a fatal error occurs.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(BlockProductionTimeEstimate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := p.pass(); err != nil {
			log.Error("pruner: fatal error, exiting", "err", err)
			p.bus.Post(events.FatalPrunerError{Error: err})
			return
		}
	}
}

// pass runs one pruning tick: it repeatedly inspects the tail header and
// removes it, along with its sampling metadata's CIDs, for as long as the
// tail remains older than the retention window.
func (p *Pruner) pass() error {
	cutoff := p.now().Add(-PruningWindow)
	if cutoff.Before(time.Unix(0, 0)) {
		cutoff = time.Unix(0, 0)
	}

	for {
		ranges, err := p.store.StoredHeaderRanges()
		if err != nil {
			return err
		}
		tail, ok := ranges.Tail()
		if !ok {
			return nil
		}

		h, err := p.store.GetByHeight(tail)
		if err != nil {
			return err
		}
		if !h.Time().Before(cutoff) {
			return nil
		}

		meta, err := p.store.GetSamplingMetadata(tail)
		if err != nil {
			return err
		}
		if meta != nil && len(meta.CIDs) > 0 {
			if err := p.blockstore.DeleteMany(meta.CIDs); err != nil {
				return err
			}
		}

		removed, err := p.store.RemoveLast()
		if err != nil {
			return err
		}
		if removed != tail {
			return errors.New("pruner: removed unexpected tail height")
		}
	}
}

