// Copyright 2024 XDC Network
// LevelDB-backed Store: fixed key prefixes, big-endian height suffixes,
// log.Crit on unrecoverable backend writes.

package store

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ipfs/go-cid"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/celestiaorg/lumen-node/header"
)

var (
	headerPrefix    = []byte("h") // headerPrefix + height (8 bytes big-endian) -> encoded header
	hashIndexPrefix = []byte("H") // hashIndexPrefix + hash -> height (8 bytes big-endian)
	samplingPrefix  = []byte("s") // samplingPrefix + height -> json-encoded CID list
	headKey         = []byte("LastHeaderHeight")
	tailKey         = []byte("FirstHeaderHeight")
)

func heightKey(prefix []byte, height uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], height)
	return key
}

func hashKey(hash header.Hash) []byte {
	key := make([]byte, len(hashIndexPrefix)+len(hash))
	copy(key, hashIndexPrefix)
	copy(key[len(hashIndexPrefix):], hash[:])
	return key
}

// LevelDB is a Store implementation backed by goleveldb, an on-disk KV
// engine.
type LevelDB struct {
	mu sync.RWMutex

	db      *leveldb.DB
	encode  header.Encoder
	decode  header.Decoder
	ranges  header.BlockRanges
}

// OpenLevelDB opens (or creates) a goleveldb-backed Store at path, replaying
// its persisted height range into memory.
func OpenLevelDB(path string, encode header.Encoder, decode header.Decoder) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	s := &LevelDB{db: db, encode: encode, decode: decode}
	if err := s.loadRanges(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadRanges rebuilds the in-memory coverage index by scanning the header
// keyspace once at startup; a real deployment would persist the range
// summary directly, but a linear rebuild keeps this path simple and
// correct.
func (s *LevelDB) loadRanges() error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(headerPrefix)+8 || string(key[:len(headerPrefix)]) != string(headerPrefix) {
			continue
		}
		height := binary.BigEndian.Uint64(key[len(headerPrefix):])
		s.ranges = s.ranges.Add(header.BlockRange{Lo: height, Hi: height})
	}
	return iter.Error()
}

func (s *LevelDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *LevelDB) GetHead() (header.ExtendedHeader, error) {
	s.mu.RLock()
	height, ok := s.ranges.Head()
	s.mu.RUnlock()
	if !ok {
		return nil, header.ErrNotFound
	}
	return s.GetByHeight(height)
}

func (s *LevelDB) GetHeadHeight() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	height, ok := s.ranges.Head()
	if !ok {
		return 0, header.ErrNotFound
	}
	return height, nil
}

func (s *LevelDB) GetByHeight(height uint64) (header.ExtendedHeader, error) {
	raw, err := s.db.Get(heightKey(headerPrefix, height), nil)
	if err == leveldb.ErrNotFound {
		return nil, header.ErrNotFound
	}
	if err != nil {
		return nil, &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
	}
	return s.decode(raw)
}

func (s *LevelDB) GetByHash(hash header.Hash) (header.ExtendedHeader, error) {
	raw, err := s.db.Get(hashKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, header.ErrNotFound
	}
	if err != nil {
		return nil, &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
	}
	return s.GetByHeight(binary.BigEndian.Uint64(raw))
}

// Insert requires the same edge-touching contiguity this store's single
// range invariant depends on as InMemory.Insert.
func (s *LevelDB) Insert(headers ...header.ExtendedHeader) error {
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
		if _, err := s.db.Get(heightKey(headerPrefix, h.Height()), nil); err == nil {
			return &header.StoreError{Kind: header.StoreErrHeightExists, Got: h.Height()}
		}
		if _, err := s.db.Get(hashKey(h.Hash()), nil); err == nil {
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

	batch := new(leveldb.Batch)
	for _, h := range headers {
		encoded, err := s.encode(h)
		if err != nil {
			return &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
		}
		batch.Put(heightKey(headerPrefix, h.Height()), encoded)
		batch.Put(hashKey(h.Hash()), heightBytes8(h.Height()))
	}

	newHead, newTail := last, first
	if hasHead && head > newHead {
		newHead = head
	}
	if hasTail && tail < newTail {
		newTail = tail
	}
	batch.Put(headKey, heightBytes8(newHead))
	batch.Put(tailKey, heightBytes8(newTail))

	if err := s.db.Write(batch, nil); err != nil {
		log.Crit("Failed to write header batch", "err", err)
		return &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
	}

	s.ranges = s.ranges.Add(header.BlockRange{Lo: first, Hi: last})
	return nil
}

func heightBytes8(height uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, height)
	return b
}

func (s *LevelDB) StoredHeaderRanges() (header.BlockRanges, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(header.BlockRanges, len(s.ranges))
	copy(out, s.ranges)
	return out, nil
}

func (s *LevelDB) RemoveLast() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail, ok := s.ranges.Tail()
	if !ok {
		return 0, header.ErrNotFound
	}
	h, err := s.GetByHeight(tail)
	if err != nil {
		return 0, err
	}

	batch := new(leveldb.Batch)
	batch.Delete(heightKey(headerPrefix, tail))
	batch.Delete(hashKey(h.Hash()))
	batch.Delete(heightKey(samplingPrefix, tail))

	s.ranges[0].Lo++
	nowEmpty := s.ranges[0].Empty()
	newTail := s.ranges[0].Lo
	if nowEmpty {
		s.ranges = s.ranges[1:]
	}
	if !nowEmpty {
		batch.Put(tailKey, heightBytes8(newTail))
	} else {
		batch.Delete(tailKey)
		batch.Delete(headKey)
	}

	if err := s.db.Write(batch, nil); err != nil {
		log.Crit("Failed to remove tail header", "height", tail, "err", err)
		return 0, &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
	}
	return tail, nil
}

func (s *LevelDB) GetSamplingMetadata(height uint64) (*SamplingMetadata, error) {
	raw, err := s.db.Get(heightKey(samplingPrefix, height), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
	}
	var wire struct{ CIDs []string }
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
	}
	meta := SamplingMetadata{CIDs: make([]cid.Cid, 0, len(wire.CIDs))}
	for _, s := range wire.CIDs {
		c, err := cid.Decode(s)
		if err != nil {
			return nil, &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
		}
		meta.CIDs = append(meta.CIDs, c)
	}
	return &meta, nil
}

func (s *LevelDB) PutSamplingMetadata(height uint64, meta SamplingMetadata) error {
	wire := struct{ CIDs []string }{CIDs: make([]string, len(meta.CIDs))}
	for i, c := range meta.CIDs {
		wire.CIDs[i] = c.String()
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	if err := s.db.Put(heightKey(samplingPrefix, height), raw, nil); err != nil {
		log.Crit("Failed to store sampling metadata", "height", height, "err", err)
		return &header.StoreError{Kind: header.StoreErrBackend, Backend: err}
	}
	return nil
}
