package store

import (
	"sync"

	"github.com/celestiaorg/lumen-node/header"
)

// InMemory is a Store implementation backed by plain maps, used by tests
// and by non-persistent deployments.
type InMemory struct {
	mu sync.RWMutex

	byHeight map[uint64]header.ExtendedHeader
	byHash   map[header.Hash]header.ExtendedHeader
	sampling map[uint64]SamplingMetadata
	ranges   header.BlockRanges
}

// NewInMemory returns an empty in-memory Store.
func NewInMemory() *InMemory {
	return &InMemory{
		byHeight: make(map[uint64]header.ExtendedHeader),
		byHash:   make(map[header.Hash]header.ExtendedHeader),
		sampling: make(map[uint64]SamplingMetadata),
	}
}

func (s *InMemory) GetHead() (header.ExtendedHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	height, ok := s.ranges.Head()
	if !ok {
		return nil, header.ErrNotFound
	}
	return s.byHeight[height], nil
}

func (s *InMemory) GetHeadHeight() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	height, ok := s.ranges.Head()
	if !ok {
		return 0, header.ErrNotFound
	}
	return height, nil
}

func (s *InMemory) GetByHeight(height uint64) (header.ExtendedHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byHeight[height]
	if !ok {
		return nil, header.ErrNotFound
	}
	return h, nil
}

func (s *InMemory) GetByHash(hash header.Hash) (header.ExtendedHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byHash[hash]
	if !ok {
		return nil, header.ErrNotFound
	}
	return h, nil
}

// Insert requires the batch to be internally contiguous and ascending, and
// to touch the existing coverage at one of its two edges: it either
// directly extends the current head upward, or directly precedes the
// current tail (the gap-filling direction the syncer uses to backfill
// below an already-known head). A batch touching neither edge would split
// the store into two disjoint ranges, which this implementation does not
// support.
func (s *InMemory) Insert(headers ...header.ExtendedHeader) error {
	if len(headers) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 1; i < len(headers); i++ {
		if headers[i].Height() != headers[i-1].Height()+1 {
			return &header.StoreError{Kind: header.StoreErrNonContinuousAppend, Head: headers[i-1].Height(), Got: headers[i].Height()}
		}
	}

	for _, h := range headers {
		if _, exists := s.byHeight[h.Height()]; exists {
			return &header.StoreError{Kind: header.StoreErrHeightExists, Got: h.Height()}
		}
		if _, exists := s.byHash[h.Hash()]; exists {
			return &header.StoreError{Kind: header.StoreErrHashExists, Got: h.Height()}
		}
	}

	first, last := headers[0].Height(), headers[len(headers)-1].Height()
	head, hasHead := s.ranges.Head()
	tail, hasTail := s.ranges.Tail()
	if hasHead {
		extendsHead := first == head+1
		extendsTail := hasTail && last+1 == tail
		if !extendsHead && !extendsTail {
			return &header.StoreError{Kind: header.StoreErrNonContinuousAppend, Head: head, Got: first}
		}
	}

	for _, h := range headers {
		s.byHeight[h.Height()] = h
		s.byHash[h.Hash()] = h
	}
	s.ranges = s.ranges.Add(header.BlockRange{Lo: first, Hi: last})
	return nil
}

func (s *InMemory) StoredHeaderRanges() (header.BlockRanges, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(header.BlockRanges, len(s.ranges))
	copy(out, s.ranges)
	return out, nil
}

func (s *InMemory) RemoveLast() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail, ok := s.ranges.Tail()
	if !ok {
		return 0, header.ErrNotFound
	}
	h := s.byHeight[tail]
	delete(s.byHeight, tail)
	delete(s.byHash, h.Hash())
	delete(s.sampling, tail)

	s.ranges[0].Lo++
	if s.ranges[0].Empty() {
		s.ranges = s.ranges[1:]
	}
	return tail, nil
}

func (s *InMemory) GetSamplingMetadata(height uint64) (*SamplingMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.sampling[height]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

func (s *InMemory) PutSamplingMetadata(height uint64, meta SamplingMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampling[height] = meta
	return nil
}
