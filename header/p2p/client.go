// Copyright 2024 XDC Network
// Channel select per outstanding request, matched by request id; timeouts
// are delivered on that channel by Poll's sweep.

// Package p2p implements the Header Exchange Client collaborator: the
// request/response protocol client that fetches ranges of ExtendedHeaders
// from peers with session-level multi-peer fan-out, validation, and a
// head-discovery quorum algorithm.
package p2p

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/celestiaorg/lumen-node/header"
	"github.com/celestiaorg/lumen-node/header/p2p/peer"
)

const (
	// MaxPeers bounds how many trusted peers are fanned out to for head
	// discovery.
	MaxPeers = 10
	// MinHeadResponses is the quorum a candidate head needs to be elected
	// outright.
	MinHeadResponses = 2
	// RequestTimeout is the absolute lifetime of a pending request before
	// poll's sweep delivers a timeout failure.
	RequestTimeout = 10 * time.Second
)

// RequestID is the protocol-assigned identifier correlating a dispatched
// request with its eventual OnResponseReceived/OnFailure callback.
type RequestID = uuid.UUID

// Transport is the peer-wire capability the exchange client drives. Its
// implementation (libp2p/devp2p request-response stream handling) lives
// outside this package; only the contract the client needs is defined
// here. SendRequest dispatches req to p under the given request id, which
// the transport later passes back when it calls the Client's
// OnResponseReceived or OnFailure as the peer's reply (or lack of one)
// arrives.
type Transport interface {
	SendRequest(ctx context.Context, p peer.ID, req header.HeaderRequest, id RequestID) error
}

// ClientBinder is an optional capability a Transport implements when it
// needs a handle back to the Client it is paired with, to later deliver
// OnResponseReceived/OnFailure as wire replies arrive. NewClient calls it
// automatically if the supplied Transport implements it, since the Client
// does not exist yet at the point a caller constructs its Transport.
type ClientBinder interface {
	BindClient(c *Client)
}

type pendingRequest struct {
	peer      peer.ID
	request   header.HeaderRequest
	startedAt time.Time
	respond   chan pendingResult
}

type pendingResult struct {
	responses header.Responses
	failure   error // an OutboundFailureError, or nil on a delivered response
}

// Client is the Header Exchange Client.
type Client struct {
	tracker   *peer.Tracker
	transport Transport
	decode    header.Decoder

	mu      sync.Mutex
	pending map[RequestID]*pendingRequest

	metrics metrics
}

type metrics struct {
	succeeded  int64
	failed     int64
	timedOut   int64
}

// NewClient constructs an exchange Client. decode turns reply bodies into
// headers; its codec lives outside this package. Each decoded header is then
// checked with its own Validate method.
func NewClient(tracker *peer.Tracker, transport Transport, decode header.Decoder) *Client {
	c := &Client{
		tracker:   tracker,
		transport: transport,
		decode:    decode,
		pending:   make(map[RequestID]*pendingRequest),
	}
	if binder, ok := transport.(ClientBinder); ok {
		binder.BindClient(c)
	}
	return c
}

// Send classifies the request into a range request or a head request and
// dispatches accordingly, blocking until the result (success,
// decoded-and-verified headers; or a typed error) is available.
func (c *Client) Send(ctx context.Context, req header.HeaderRequest) ([]header.ExtendedHeader, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsHeadRequest() {
		return c.sendHeadRequest(ctx)
	}
	return c.sendRangeRequest(ctx, req)
}

// sendRangeRequest dispatches a range request to the tracker's best peer
// and decodes/verifies the reply.
func (c *Client) sendRangeRequest(ctx context.Context, req header.HeaderRequest) ([]header.ExtendedHeader, error) {
	best, ok := c.tracker.BestPeer()
	if !ok {
		return nil, header.ErrNoConnectedPeers
	}
	resp, err := c.dispatch(ctx, best, req)
	if err != nil {
		c.metrics.failed++
		return nil, err
	}
	headers, err := header.DecodeAndVerify(ctx, req, resp, c.decode)
	if err != nil {
		c.metrics.failed++
		return nil, err
	}
	c.metrics.succeeded++
	return headers, nil
}

// headVote is one trusted peer's surviving reply during head election.
type headVote struct {
	header header.ExtendedHeader
}

// sendHeadRequest fans out to up to MaxPeers trusted peers, joins every
// responder (success or failure, waiting for all to complete rather than
// racing to the first reply), then elects a winner by the quorum rule.
func (c *Client) sendHeadRequest(ctx context.Context) ([]header.ExtendedHeader, error) {
	peers := c.tracker.TrustedNPeers(MaxPeers)
	if len(peers) == 0 {
		return nil, header.ErrNoConnectedPeers
	}

	headReq := header.HeaderRequest{Data: header.Origin(0), Amount: 1}
	votes := make([]*headVote, len(peers))

	g, gctx := errgroup.WithContext(detachCancel(ctx))
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			resp, err := c.dispatch(ctx, p, headReq)
			if err != nil {
				log.Debug("head election: peer failed", "peer", p, "err", err)
				return nil // failures are discarded, not joined as an error
			}
			headers, err := header.DecodeAndVerify(gctx, headReq, resp, c.decode)
			if err != nil {
				log.Debug("head election: peer reply rejected", "peer", p, "err", err)
				return nil
			}
			votes[i] = &headVote{header: headers[0]}
			return nil
		})
	}
	// errgroup's error is always nil here (per-peer failures are swallowed
	// above so the quorum logic sees every vote, not just the first
	// success); Wait still blocks until all goroutines finish.
	_ = g.Wait()

	elected, err := electHead(votes)
	if err != nil {
		c.metrics.failed++
		return nil, err
	}
	c.metrics.succeeded++
	return []header.ExtendedHeader{elected}, nil
}

// electHead applies the quorum rule:
//   - discard failed/empty replies (callers already filtered those out)
//   - tally distinct hashes
//   - sort by (height DESC, peer_count DESC)
//   - return the first with peer_count >= MinHeadResponses
//   - else return the header with the max height
//   - else (no survivors) HeaderNotFound
func electHead(votes []*headVote) (header.ExtendedHeader, error) {
	type candidate struct {
		h     header.ExtendedHeader
		count int
	}
	byHash := make(map[header.Hash]*candidate)
	order := make([]header.Hash, 0, len(votes))
	for _, v := range votes {
		if v == nil {
			continue
		}
		hash := v.header.Hash()
		c, ok := byHash[hash]
		if !ok {
			c = &candidate{h: v.header}
			byHash[hash] = c
			order = append(order, hash)
		}
		c.count++
	}
	if len(order) == 0 {
		return nil, header.ErrHeaderNotFound
	}

	candidates := make([]*candidate, len(order))
	for i, hash := range order {
		candidates[i] = byHash[hash]
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].h.Height() != candidates[j].h.Height() {
			return candidates[i].h.Height() > candidates[j].h.Height()
		}
		return candidates[i].count > candidates[j].count
	})

	for _, c := range candidates {
		if c.count >= MinHeadResponses {
			return c.h, nil
		}
	}
	return candidates[0].h, nil
}

// dispatch records pending state for one request and blocks until
// OnResponseReceived/OnFailure resolves it, poll() times it out, or ctx is
// canceled.
func (c *Client) dispatch(ctx context.Context, p peer.ID, req header.HeaderRequest) (header.Responses, error) {
	id := uuid.New()
	pr := &pendingRequest{peer: p, request: req, startedAt: time.Now(), respond: make(chan pendingResult, 1)}

	c.mu.Lock()
	c.pending[id] = pr
	c.mu.Unlock()

	if err := c.transport.SendRequest(ctx, p, req, id); err != nil {
		c.removePending(id)
		return nil, header.NewOutboundFailure(header.OutboundFailureDial)
	}

	select {
	case res := <-pr.respond:
		if res.failure != nil {
			return nil, res.failure
		}
		return res.responses, nil
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// OnResponseReceived looks up the pending request and delivers the raw
// responses to its waiter.
func (c *Client) OnResponseReceived(id RequestID, responses header.Responses) {
	pr := c.removePending(id)
	if pr == nil {
		return // no longer pending: already timed out or delivered
	}
	pr.respond <- pendingResult{responses: responses}
}

// OnFailure surfaces an OutboundFailureError to the waiting responder.
func (c *Client) OnFailure(id RequestID, kind header.OutboundFailureKind) {
	pr := c.removePending(id)
	if pr == nil {
		return
	}
	pr.respond <- pendingResult{failure: header.NewOutboundFailure(kind)}
}

// Poll prunes requests whose elapsed time has reached RequestTimeout,
// delivering OutboundFailureTimeout to each.
func (c *Client) Poll() {
	now := time.Now()
	c.mu.Lock()
	var expired []*pendingRequest
	for id, pr := range c.pending {
		if now.Sub(pr.startedAt) >= RequestTimeout {
			expired = append(expired, pr)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, pr := range expired {
		c.metrics.timedOut++
		pr.respond <- pendingResult{failure: header.NewOutboundFailure(header.OutboundFailureTimeout)}
	}
}

// Run drives Poll on a fixed interval until ctx is canceled. A real
// deployment calls it from the same goroutine that owns the client's
// lifecycle.
func (c *Client) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Poll()
		}
	}
}

func (c *Client) removePending(id RequestID) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr := c.pending[id]
	delete(c.pending, id)
	return pr
}

// PendingCount reports the number of in-flight requests; used by tests to
// assert the sweep invariant.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// detachCancel returns a context that carries ctx's values but not its
// cancellation, so one peer's slow reply during head election cannot be
// torn down by another peer's errgroup-propagated error; only the caller's
// own ctx cancellation (handled separately by dispatch's select) should
// abort a vote.
func detachCancel(ctx context.Context) context.Context {
	return detachedContext{ctx}
}

type detachedContext struct{ parent context.Context }

func (d detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (d detachedContext) Done() <-chan struct{}       { return nil }
func (d detachedContext) Err() error                  { return nil }
func (d detachedContext) Value(key any) any           { return d.parent.Value(key) }
