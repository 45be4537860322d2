// Copyright 2024 XDC Network
// Connected and trusted peer membership oracle, observable via Watch.

// Package peer implements the PeerTracker collaborator: the connected and
// trusted peer membership oracle the exchange client and syncer read. It is
// mutated by external connection-lifecycle code and is read-only from the
// core's perspective.
package peer

import (
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// ID identifies a peer on the p2p overlay. The concrete identity scheme
// (libp2p PeerId, devp2p enode.ID, ...) is a transport concern outside this
// package; ID is kept as an opaque string.
type ID string

// Metadata is opaque connection metadata recorded alongside a peer
// (protocol versions, multiaddrs, ...); this package never inspects it.
type Metadata any

type peerStat struct {
	connID  string
	meta    Metadata
	latency time.Duration // exponential moving average, zero until first sample
}

// Summary is the watchable connectivity snapshot.
type Summary struct {
	NumConnectedPeers        int
	NumConnectedTrustedPeers int
}

// Tracker is the PeerTracker collaborator.
type Tracker struct {
	mu sync.RWMutex

	connected map[ID]*peerStat
	trusted   mapset.Set[ID]

	watchers []chan Summary
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		connected: make(map[ID]*peerStat),
		trusted:   mapset.NewSet[ID](),
	}
}

// SetConnected records id as connected with the given protocol connection id
// and metadata.
func (t *Tracker) SetConnected(id ID, connID string, meta Metadata) {
	t.mu.Lock()
	t.connected[id] = &peerStat{connID: connID, meta: meta}
	t.mu.Unlock()
	t.notify()
}

// SetDisconnected removes id from the connected set, making SetConnected
// reversible.
func (t *Tracker) SetDisconnected(id ID) {
	t.mu.Lock()
	delete(t.connected, id)
	t.mu.Unlock()
	t.notify()
}

// SetTrusted marks id as trusted or untrusted.
func (t *Tracker) SetTrusted(id ID, trusted bool) {
	t.mu.Lock()
	if trusted {
		t.trusted.Add(id)
	} else {
		t.trusted.Remove(id)
	}
	t.mu.Unlock()
	t.notify()
}

// RecordLatency folds a fresh round-trip sample into id's moving-average
// latency, used to break ties in BestPeer. Unknown peers are ignored.
func (t *Tracker) RecordLatency(id ID, sample time.Duration) {
	const alpha = 0.25
	t.mu.Lock()
	defer t.mu.Unlock()
	stat, ok := t.connected[id]
	if !ok {
		return
	}
	if stat.latency == 0 {
		stat.latency = sample
		return
	}
	stat.latency = time.Duration(float64(stat.latency)*(1-alpha) + float64(sample)*alpha)
}

// BestPeer returns a connected peer to send a range request to, preferring
// the lowest observed latency. A peer with no latency sample yet counts as
// zero latency, so it is preferred over sampled peers. Ties are broken
// deterministically by lowest ID so tests are reproducible.
func (t *Tracker) BestPeer() (ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.connected) == 0 {
		return "", false
	}
	ids := t.sortedConnectedIDs()
	best := ids[0]
	for _, id := range ids[1:] {
		if t.connected[id].latency < t.connected[best].latency {
			best = id
		}
	}
	return best, true
}

// TrustedNPeers returns up to n connected, trusted peers, used to fan a
// head-discovery request out across a quorum.
func (t *Tracker) TrustedNPeers(n int) []ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ID, 0, n)
	for _, id := range t.sortedConnectedIDs() {
		if !t.trusted.Contains(id) {
			continue
		}
		out = append(out, id)
		if len(out) == n {
			break
		}
	}
	return out
}

func (t *Tracker) sortedConnectedIDs() []ID {
	ids := make([]ID, 0, len(t.connected))
	for id := range t.connected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Summary returns the current watchable snapshot.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summaryLocked()
}

func (t *Tracker) summaryLocked() Summary {
	trustedConnected := 0
	for id := range t.connected {
		if t.trusted.Contains(id) {
			trustedConnected++
		}
	}
	return Summary{
		NumConnectedPeers:        len(t.connected),
		NumConnectedTrustedPeers: trustedConnected,
	}
}

// Watch returns a channel fed with every Summary change, and an unsubscribe
// function the caller must invoke once it stops reading from the channel or
// the tracker would hold a reference to it for the life of the process. The
// channel is buffered; a slow reader only misses intermediate values, never
// blocks the tracker.
func (t *Tracker) Watch() (<-chan Summary, func()) {
	ch := make(chan Summary, 1)
	t.mu.Lock()
	t.watchers = append(t.watchers, ch)
	ch <- t.summaryLocked()
	t.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			t.mu.Lock()
			for i, w := range t.watchers {
				if w == ch {
					t.watchers = append(t.watchers[:i], t.watchers[i+1:]...)
					break
				}
			}
			t.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

func (t *Tracker) notify() {
	t.mu.RLock()
	summary := t.summaryLocked()
	watchers := t.watchers
	t.mu.RUnlock()
	for _, ch := range watchers {
		select {
		case ch <- summary:
		default:
			// drop the stale pending value and force the newest one through
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- summary:
			default:
			}
		}
	}
}
