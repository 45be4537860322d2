// Copyright 2024 XDC Network
// Connecting/Connected state machine driving header gap-fill and live ingest.

// Package sync implements the Syncer: the control loop that discovers a
// trusted subjective head, schedules bounded batches to close the gap
// between the store's coverage and that head, ingests live head
// announcements from the HeaderSub latch, and enforces a rolling syncing
// window.
package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/celestiaorg/lumen-node/events"
	"github.com/celestiaorg/lumen-node/header"
	"github.com/celestiaorg/lumen-node/header/headersub"
	"github.com/celestiaorg/lumen-node/header/p2p/peer"
	"github.com/celestiaorg/lumen-node/header/store"
)

const (
	// MaxHeadersInBatch bounds how many headers one gap-filling request asks
	// for.
	MaxHeadersInBatch = 512
	// SyncingWindow is the retention horizon the syncer tries to keep fully
	// covered.
	SyncingWindow = 30 * 24 * time.Hour
	// TryInitBackoffMax is the ceiling on try_init's exponential retry
	// interval.
	TryInitBackoffMax = 60 * time.Second

	statusInterval = 60 * time.Second
)

// errReconnect is returned internally by the connected phase to signal a
// transition back to Connecting; it never escapes the package.
var errReconnect = errors.New("sync: peer tracker reports zero connected peers")

// HeaderRequester is the Header Exchange Client capability the syncer
// drives. *p2p.Client satisfies it.
type HeaderRequester interface {
	Send(ctx context.Context, req header.HeaderRequest) ([]header.ExtendedHeader, error)
}

type ongoingBatch struct {
	rng    header.BlockRange
	cancel context.CancelFunc
}

// Syncer is the syncer core. The zero value is not usable; construct with
// NewSyncer.
type Syncer struct {
	store   store.Store
	tracker *peer.Tracker
	latch   *headersub.Latch
	client  HeaderRequester
	bus     *events.Bus
	now     func() time.Time

	subjectiveHead     atomic.Uint64 // 0 == unset
	estimatedWindowEnd atomic.Uint64 // 0 == unset

	ongoingMu sync.Mutex
	ongoing   *ongoingBatch

	resultCh chan batchResult

	done    chan struct{}
	doneErr error
}

type batchResult struct {
	rng     header.BlockRange
	headers []header.ExtendedHeader
	err     error
	elapsed time.Duration
}

// NewSyncer wires the collaborators the syncer orchestrates: the Store it
// appends to, the PeerTracker it reads connectivity from, the HeaderSub
// latch it ingests live heads from, the exchange client it fetches through,
// and the event bus it reports progress on.
func NewSyncer(s store.Store, tracker *peer.Tracker, latch *headersub.Latch, client HeaderRequester, bus *events.Bus) *Syncer {
	return &Syncer{
		store:    s,
		tracker:  tracker,
		latch:    latch,
		client:   client,
		bus:      bus,
		now:      time.Now,
		resultCh: make(chan batchResult, 1),
		done:     make(chan struct{}),
	}
}

// Run drives the Connecting/Connected state machine until ctx is canceled.
// It is meant to be launched in its own goroutine; callers observe progress
// through Info and the event bus.
func (s *Syncer) Run(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.connecting(ctx); err != nil {
			s.doneErr = header.ErrWorkerDied
			return
		}
		if err := s.connected(ctx); err != nil {
			if !errors.Is(err, errReconnect) {
				s.doneErr = header.ErrWorkerDied
				return
			}
			log.Info("syncer: lost all connected peers, returning to connecting")
			continue
		}
	}
}

// Info returns a snapshot of syncer progress, or header.ErrWorkerDied once
// the worker has terminated.
func (s *Syncer) Info() (header.SyncingInfo, error) {
	select {
	case <-s.done:
		return header.SyncingInfo{}, s.doneErr
	default:
	}
	ranges, err := s.store.StoredHeaderRanges()
	if err != nil {
		return header.SyncingInfo{}, err
	}
	return header.SyncingInfo{StoredHeaders: ranges, SubjectiveHead: s.subjectiveHead.Load()}, nil
}

// connecting blocks until a trusted peer is available and try_init
// succeeds, retrying with exponential backoff on failure.
func (s *Syncer) connecting(ctx context.Context) error {
	b := newBackoff(time.Second, 2, TryInitBackoffMax)
	watch, unsubscribe := s.tracker.Watch()
	defer unsubscribe()

	for {
		if err := s.waitTrustedPeer(ctx, watch); err != nil {
			return err
		}

		head, err := s.tryInit(ctx)
		if err == nil {
			s.setSubjectiveHead(head.Height())
			s.latch.Init(head)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.next()
		log.Warn("syncer: try_init failed, backing off", "err", err, "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Syncer) waitTrustedPeer(ctx context.Context, watch <-chan peer.Summary) error {
	for {
		if s.tracker.Summary().NumConnectedTrustedPeers > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watch:
		}
	}
}

// tryInit performs one head-discovery attempt: elect a head via the
// exchange client and insert it into the store.
func (s *Syncer) tryInit(ctx context.Context) (header.ExtendedHeader, error) {
	s.bus.Post(events.FetchingHeadHeaderStarted{})
	start := s.now()

	headers, err := s.client.Send(ctx, header.HeaderRequest{Data: header.Origin(0), Amount: 1})
	if err != nil {
		return nil, err
	}
	head := headers[0]

	if err := s.store.Insert(head); err != nil {
		return nil, err
	}
	s.bus.Post(events.FetchingHeadHeaderFinished{Height: head.Height(), Took: s.now().Sub(start)})
	return head, nil
}

// connected runs the Connected phase until the peer tracker reports zero
// connected peers (errReconnect) or ctx is canceled.
func (s *Syncer) connected(ctx context.Context) error {
	watch, unsubscribe := s.tracker.Watch()
	defer unsubscribe()
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	// latch.Changed returns a one-shot channel: re-arm it only after it
	// actually fires, not on every select iteration, or unrelated branches
	// firing would pile up abandoned watcher channels on the latch.
	changed := s.latch.Changed()

	s.fetchNextBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			s.cancelOngoing()
			return ctx.Err()

		case summary := <-watch:
			if summary.NumConnectedPeers == 0 {
				s.cancelOngoing()
				return errReconnect
			}

		case <-changed:
			s.onHeaderSubMessage()
			changed = s.latch.Changed()

		case res := <-s.resultCh:
			s.onFetchNextBatchResult(res)
			s.fetchNextBatch(ctx)

		case <-statusTicker.C:
			info, _ := s.Info()
			log.Info("syncer: status", "subjective_head", info.SubjectiveHead, "stored", info.StoredHeaders.String())
		}
	}
}

// onHeaderSubMessage reacts to a freshly published gossip head: it bumps the
// subjective head unconditionally, and folds the header straight into the
// store when it is exactly adjacent to the current head.
func (s *Syncer) onHeaderSubMessage() {
	if s.subjectiveHead.Load() == 0 {
		return
	}
	head, ok := s.latch.Get()
	if !ok {
		return
	}
	h := head.Height()
	s.bumpSubjectiveHead(h)

	headHeight, err := s.store.GetHeadHeight()
	if err != nil && !errors.Is(err, header.ErrNotFound) {
		log.Warn("syncer: header_sub: failed to read store head", "err", err)
		return
	}
	if err == nil && headHeight+1 == h {
		if err := s.store.Insert(head); err != nil {
			log.Warn("syncer: header_sub: adjacent insert failed", "height", h, "err", err)
			return
		}
		s.bus.Post(events.AddedHeaderFromHeaderSub{Height: h})
	}
}

// fetchNextBatch is the scheduler's entry point. It is a no-op unless the
// serialization, connectivity, and initialization preconditions hold.
func (s *Syncer) fetchNextBatch(ctx context.Context) {
	s.ongoingMu.Lock()
	busy := s.ongoing != nil
	s.ongoingMu.Unlock()
	if busy {
		return
	}
	if s.tracker.Summary().NumConnectedPeers == 0 {
		return
	}
	subjectiveHead := s.subjectiveHead.Load()
	if subjectiveHead == 0 {
		return
	}

	ranges, err := s.store.StoredHeaderRanges()
	if err != nil {
		log.Warn("syncer: failed to read stored header ranges", "err", err)
		return
	}

	next := calculateRangeToFetch(subjectiveHead, ranges, s.estimatedWindowEnd.Load(), MaxHeadersInBatch)
	if next.Empty() {
		return
	}

	if edge, ok := s.windowEdge(next); ok {
		s.estimatedWindowEnd.Store(edge)
		return
	}

	batchCtx, cancel := context.WithCancel(ctx)
	s.ongoingMu.Lock()
	s.ongoing = &ongoingBatch{rng: next, cancel: cancel}
	s.ongoingMu.Unlock()

	s.bus.Post(events.FetchingHeadersStarted{From: next.Lo, To: next.Hi})
	go s.runBatch(batchCtx, next)
}

// windowEdge checks whether the stored header immediately above the batch
// (next.Hi+1, the current tail when backfilling) is already outside the
// syncing window; if so, the batch is dropped and that header's height is
// recorded as the boundary instead of fetching.
func (s *Syncer) windowEdge(next header.BlockRange) (uint64, bool) {
	below, err := s.store.GetByHeight(next.Hi + 1)
	if err != nil {
		return 0, false
	}
	if below.Time().Before(s.now().Add(-SyncingWindow)) {
		return below.Height(), true
	}
	return 0, false
}

func (s *Syncer) runBatch(ctx context.Context, rng header.BlockRange) {
	start := s.now()
	headers, err := s.client.Send(ctx, header.HeaderRequest{Data: header.Origin(rng.Lo), Amount: rng.Len()})
	select {
	case s.resultCh <- batchResult{rng: rng, headers: headers, err: err, elapsed: s.now().Sub(start)}:
	case <-ctx.Done():
	}
}

// onFetchNextBatchResult applies a completed batch fetch: on success it
// inserts the headers into the store, on failure it just reports the event.
func (s *Syncer) onFetchNextBatchResult(res batchResult) {
	s.ongoingMu.Lock()
	if s.ongoing == nil || s.ongoing.rng != res.rng {
		s.ongoingMu.Unlock()
		return
	}
	s.ongoing.cancel()
	s.ongoing = nil
	s.ongoingMu.Unlock()

	if res.err != nil {
		s.bus.Post(events.FetchingHeadersFailed{From: res.rng.Lo, To: res.rng.Hi, Error: res.err, Took: res.elapsed})
		return
	}
	if err := s.store.Insert(res.headers...); err != nil {
		s.bus.Post(events.FetchingHeadersFailed{From: res.rng.Lo, To: res.rng.Hi, Error: err, Took: res.elapsed})
		return
	}
	s.bus.Post(events.FetchingHeadersFinished{From: res.rng.Lo, To: res.rng.Hi, Took: res.elapsed})
}

func (s *Syncer) cancelOngoing() {
	s.ongoingMu.Lock()
	defer s.ongoingMu.Unlock()
	if s.ongoing != nil {
		s.ongoing.cancel()
		s.ongoing = nil
	}
}

func (s *Syncer) setSubjectiveHead(h uint64) { s.subjectiveHead.Store(h) }

func (s *Syncer) bumpSubjectiveHead(h uint64) {
	for {
		cur := s.subjectiveHead.Load()
		if h <= cur {
			return
		}
		if s.subjectiveHead.CompareAndSwap(cur, h) {
			return
		}
	}
}

// calculateRangeToFetch picks the next batch to fetch, newest gap first. The
// store holds a single contiguous range once a head exists, so there are at
// most two gaps to consider: above the current head, up to the subjective
// head (the "newest" gap, always preferred); and below the current tail,
// down to height 1 (the backfill gap the initial try_init head discovery
// leaves behind, clipped against a previously discovered window edge).
func calculateRangeToFetch(subjectiveHead uint64, stored header.BlockRanges, windowEnd, maxBatch uint64) header.BlockRange {
	empty := header.BlockRange{Lo: 1, Hi: 0}

	head, hasHead := stored.Head()
	if !hasHead {
		// try_init always inserts the discovered head before the scheduler
		// ever runs; an empty store here is defensive, not expected.
		return clipBatch(1, subjectiveHead, 0, maxBatch)
	}

	if head < subjectiveHead {
		return clipBatch(head+1, subjectiveHead, 0, maxBatch)
	}

	tail, _ := stored.Tail()
	if tail > 1 {
		return clipBatch(1, tail-1, windowEnd, maxBatch)
	}
	return empty
}

// clipBatch returns the newest maxBatch-sized slice of [lo, hi], further
// clipped so it never dips to or below windowEnd (0 meaning no known edge
// yet).
func clipBatch(lo, hi, windowEnd, maxBatch uint64) header.BlockRange {
	if lo > hi {
		return header.BlockRange{Lo: 1, Hi: 0}
	}
	if hi-lo+1 > maxBatch {
		lo = hi - maxBatch + 1
	}
	if windowEnd > 0 && lo <= windowEnd {
		lo = windowEnd + 1
	}
	if lo > hi {
		return header.BlockRange{Lo: 1, Hi: 0}
	}
	return header.BlockRange{Lo: lo, Hi: hi}
}
