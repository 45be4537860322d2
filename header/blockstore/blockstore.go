// Copyright 2024 XDC Network
// Content-addressed block storage capability, deletable by CID.

// Package blockstore defines the content-addressed block storage capability
// the pruner consumes when it evicts a header's associated sampled chunks.
// It only needs to delete by CID; the chunk structures themselves and their
// identifiers live outside this package.
package blockstore

import "github.com/ipfs/go-cid"

// Blockstore is the capability the pruner uses to remove content-addressed
// chunks once their owning header falls out of the pruning window. It is
// deliberately minimal: the pruner never reads or writes block content,
// only deletes it.
type Blockstore interface {
	// Has reports whether a block with the given CID is present.
	Has(c cid.Cid) (bool, error)
	// DeleteMany removes the given CIDs. It is best-effort: implementations
	// may abort on the first error, leaving the rest of the batch in place
	// for a later pass.
	DeleteMany(cids []cid.Cid) error
}

// InMemory is a trivial Blockstore used by tests and by deployments that
// keep sampled chunks only transiently.
type InMemory struct {
	present map[cid.Cid]struct{}
}

// NewInMemory returns an InMemory Blockstore seeded with the given CIDs.
func NewInMemory(seed ...cid.Cid) *InMemory {
	bs := &InMemory{present: make(map[cid.Cid]struct{}, len(seed))}
	for _, c := range seed {
		bs.present[c] = struct{}{}
	}
	return bs
}

func (b *InMemory) Has(c cid.Cid) (bool, error) {
	_, ok := b.present[c]
	return ok, nil
}

func (b *InMemory) DeleteMany(cids []cid.Cid) error {
	for _, c := range cids {
		delete(b.present, c)
	}
	return nil
}

// Len reports how many blocks remain; a test convenience.
func (b *InMemory) Len() int { return len(b.present) }
