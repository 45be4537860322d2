// Copyright 2024 XDC Network
// Key/value accessor conventions for the append-mostly header store.

// Package store implements the header Store collaborator: an append-mostly
// index of ExtendedHeaders by height and hash, with range introspection and
// tail removal. The pruner removes from the tail; the syncer only inserts.
package store

import (
	"github.com/ipfs/go-cid"

	"github.com/celestiaorg/lumen-node/header"
)

// SamplingMetadata is the auxiliary, CID-addressed row the pruner consumes
// alongside a header before evicting it.
type SamplingMetadata struct {
	CIDs []cid.Cid
}

// Store is the persistent map of height->header and hash->header the
// syncer appends to and the pruner trims from the tail of. Implementations
// must make a concurrent tail-removal and head-insertion linearizable:
// neither may corrupt the covered-ranges view.
type Store interface {
	// GetHead returns the highest stored header, or header.ErrNotFound if
	// the store is empty.
	GetHead() (header.ExtendedHeader, error)
	// GetHeadHeight returns the height of GetHead without decoding the
	// full header.
	GetHeadHeight() (uint64, error)
	// GetByHeight returns the header at the given height.
	GetByHeight(height uint64) (header.ExtendedHeader, error)
	// GetByHash returns the header with the given hash.
	GetByHash(hash header.Hash) (header.ExtendedHeader, error)
	// Insert adds one or more headers. It rejects a batch that collides
	// with an existing height (StoreErrHeightExists) or hash
	// (StoreErrHashExists), or that neither directly extends the current
	// head nor directly precedes the current tail
	// (StoreErrNonContinuousAppend). Headers within the batch must
	// themselves be contiguous and ascending.
	Insert(headers ...header.ExtendedHeader) error
	// StoredHeaderRanges reports the store's coverage as a disjoint,
	// non-adjacent set of height ranges.
	StoredHeaderRanges() (header.BlockRanges, error)
	// RemoveLast removes the single lowest-height stored header (the tail)
	// and returns the height removed.
	RemoveLast() (uint64, error)
	// GetSamplingMetadata returns the CID list associated with height, or
	// (nil, nil) if none was ever recorded.
	GetSamplingMetadata(height uint64) (*SamplingMetadata, error)
	// PutSamplingMetadata records the CID list produced by DAS for height.
	// Outside this package's core scope (DAS execution is a non-goal) but
	// needed so tests and the pruner have something to consume.
	PutSamplingMetadata(height uint64, meta SamplingMetadata) error
}
