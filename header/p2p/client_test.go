package p2p

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/lumen-node/header"
	"github.com/celestiaorg/lumen-node/header/p2p/peer"
)

type fakeHeader struct {
	height uint64
	hash   header.Hash
}

func (h *fakeHeader) Height() uint64      { return h.height }
func (h *fakeHeader) Hash() header.Hash   { return h.hash }
func (h *fakeHeader) Time() time.Time     { return time.Unix(int64(h.height), 0) }
func (h *fakeHeader) Validate() error     { return nil }
func (h *fakeHeader) VerifyAdjacent(u header.ExtendedHeader) error {
	if u.Height() != h.height+1 {
		return errors.New("fake: not adjacent")
	}
	return nil
}

func fakeHash(height uint64) header.Hash {
	var h header.Hash
	binary.BigEndian.PutUint64(h[24:], height)
	return h
}

func encodeFakeHeader(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return buf
}

func decodeFakeHeader(raw []byte) (header.ExtendedHeader, error) {
	if len(raw) != 8 {
		return nil, errors.New("fake: bad length")
	}
	height := binary.BigEndian.Uint64(raw)
	return &fakeHeader{height: height, hash: fakeHash(height)}, nil
}

// scriptedTransport answers SendRequest according to a per-peer script the
// test installs up front, delivering results asynchronously via the
// callbacks the client itself wires into OnResponseReceived/OnFailure.
type scriptedTransport struct {
	mu     sync.Mutex
	client *Client
	script map[peer.ID]func() (header.Responses, *header.OutboundFailureKind)
	delay  time.Duration
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{script: make(map[peer.ID]func() (header.Responses, *header.OutboundFailureKind))}
}

func (s *scriptedTransport) BindClient(c *Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *scriptedTransport) SendRequest(ctx context.Context, p peer.ID, req header.HeaderRequest, id RequestID) error {
	s.mu.Lock()
	fn := s.script[p]
	delay := s.delay
	s.mu.Unlock()
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if fn == nil {
			s.client.OnFailure(id, header.OutboundFailureDial)
			return
		}
		resp, failure := fn()
		if failure != nil {
			s.client.OnFailure(id, *failure)
			return
		}
		s.client.OnResponseReceived(id, resp)
	}()
	return nil
}

func headResponse(height uint64) header.Responses {
	return header.Responses{{Body: encodeFakeHeader(height), StatusCode: header.StatusOK}}
}

func newTestClient(transport *scriptedTransport) (*Client, *peer.Tracker) {
	tracker := peer.NewTracker()
	c := NewClient(tracker, transport, decodeFakeHeader)
	return c, tracker
}

func TestClientHeadElectionByQuorum(t *testing.T) {
	transport := newScriptedTransport()
	c, tracker := newTestClient(transport)

	for _, id := range []peer.ID{"a", "b", "c"} {
		tracker.SetConnected(id, string(id), nil)
		tracker.SetTrusted(id, true)
	}
	transport.script["a"] = func() (header.Responses, *header.OutboundFailureKind) { return headResponse(10), nil }
	transport.script["b"] = func() (header.Responses, *header.OutboundFailureKind) { return headResponse(10), nil }
	transport.script["c"] = func() (header.Responses, *header.OutboundFailureKind) { return headResponse(12), nil }

	headers, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(0), Amount: 1})
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, uint64(10), headers[0].Height())
}

func TestClientHeadElectionFallsBackToMaxHeight(t *testing.T) {
	transport := newScriptedTransport()
	c, tracker := newTestClient(transport)

	for _, id := range []peer.ID{"a", "b", "c"} {
		tracker.SetConnected(id, string(id), nil)
		tracker.SetTrusted(id, true)
	}
	transport.script["a"] = func() (header.Responses, *header.OutboundFailureKind) { return headResponse(5), nil }
	transport.script["b"] = func() (header.Responses, *header.OutboundFailureKind) { return headResponse(8), nil }
	transport.script["c"] = func() (header.Responses, *header.OutboundFailureKind) { return headResponse(9), nil }

	headers, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(0), Amount: 1})
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, uint64(9), headers[0].Height())
}

func TestClientHeadElectionNoSurvivorsIsNotFound(t *testing.T) {
	transport := newScriptedTransport()
	c, tracker := newTestClient(transport)

	for _, id := range []peer.ID{"a", "b"} {
		tracker.SetConnected(id, string(id), nil)
		tracker.SetTrusted(id, true)
	}
	timeoutKind := header.OutboundFailureTimeout
	transport.script["a"] = func() (header.Responses, *header.OutboundFailureKind) { return nil, &timeoutKind }
	transport.script["b"] = func() (header.Responses, *header.OutboundFailureKind) { return nil, &timeoutKind }

	_, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(0), Amount: 1})
	require.ErrorIs(t, err, header.ErrHeaderNotFound)
}

func TestClientHeadRequestNoConnectedPeers(t *testing.T) {
	transport := newScriptedTransport()
	c, _ := newTestClient(transport)

	_, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(0), Amount: 1})
	require.ErrorIs(t, err, header.ErrNoConnectedPeers)
}

func TestClientRangeRequestUsesBestPeer(t *testing.T) {
	transport := newScriptedTransport()
	c, tracker := newTestClient(transport)

	tracker.SetConnected("only", "c1", nil)
	transport.script["only"] = func() (header.Responses, *header.OutboundFailureKind) {
		return header.Responses{
			{Body: encodeFakeHeader(100), StatusCode: header.StatusOK},
			{Body: encodeFakeHeader(101), StatusCode: header.StatusOK},
		}, nil
	}

	headers, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(100), Amount: 2})
	require.NoError(t, err)
	require.Len(t, headers, 2)
	require.Equal(t, uint64(100), headers[0].Height())
	require.Equal(t, uint64(101), headers[1].Height())
}

func TestClientRangeRequestNoConnectedPeers(t *testing.T) {
	transport := newScriptedTransport()
	c, _ := newTestClient(transport)

	_, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(1), Amount: 1})
	require.ErrorIs(t, err, header.ErrNoConnectedPeers)
}

func TestClientRangeRequestShapeViolation(t *testing.T) {
	transport := newScriptedTransport()
	c, tracker := newTestClient(transport)

	tracker.SetConnected("only", "c1", nil)
	transport.script["only"] = func() (header.Responses, *header.OutboundFailureKind) {
		// request asked for heights 1..2, peer skips height 2 and sends 3
		return header.Responses{
			{Body: encodeFakeHeader(1), StatusCode: header.StatusOK},
			{Body: encodeFakeHeader(3), StatusCode: header.StatusOK},
		}, nil
	}

	_, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(1), Amount: 2})
	require.ErrorIs(t, err, header.ErrInvalidResponse)
}

func TestClientInvalidRequestRejectedSynchronously(t *testing.T) {
	transport := newScriptedTransport()
	c, _ := newTestClient(transport)

	_, err := c.Send(context.Background(), header.HeaderRequest{Data: header.Origin(1), Amount: 0})
	require.ErrorIs(t, err, header.ErrInvalidRequest)
	require.Equal(t, 0, c.PendingCount())
}

func TestClientPollTimesOutStaleRequests(t *testing.T) {
	transport := newScriptedTransport()
	transport.delay = RequestTimeout * 10 // never resolves within the test
	c, tracker := newTestClient(transport)
	tracker.SetConnected("only", "c1", nil)

	// run the blocking request in a goroutine, then backdate the pending
	// entry's startedAt by RequestTimeout and poll once by hand.
	done := make(chan error, 1)
	go func() {
		_, err := c.sendRangeRequest(context.Background(), header.HeaderRequest{Data: header.Origin(1), Amount: 1})
		done <- err
	}()

	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, time.Millisecond)

	c.mu.Lock()
	for _, pr := range c.pending {
		pr.startedAt = time.Now().Add(-RequestTimeout)
	}
	c.mu.Unlock()
	c.Poll()

	select {
	case err := <-done:
		var outboundErr *header.OutboundFailureError
		require.ErrorAs(t, err, &outboundErr)
		require.Equal(t, header.OutboundFailureTimeout, outboundErr.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Poll to resolve the stale request")
	}
	require.Equal(t, 0, c.PendingCount())
}
