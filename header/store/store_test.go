package store

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/lumen-node/header"
)

type testHeader struct {
	height uint64
	t      time.Time
}

func (h *testHeader) Height() uint64    { return h.height }
func (h *testHeader) Time() time.Time   { return h.t }
func (h *testHeader) Validate() error   { return nil }
func (h *testHeader) VerifyAdjacent(u header.ExtendedHeader) error { return nil }
func (h *testHeader) Hash() header.Hash {
	var hh header.Hash
	binary.BigEndian.PutUint64(hh[24:], h.height)
	return hh
}

func newTestHeader(height uint64) *testHeader {
	return &testHeader{height: height, t: time.Unix(int64(height), 0)}
}

func testEncode(h header.ExtendedHeader) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h.Height())
	return b, nil
}

func testDecode(raw []byte) (header.ExtendedHeader, error) {
	return newTestHeader(binary.BigEndian.Uint64(raw)), nil
}

func runStoreSuite(t *testing.T, s Store) {
	_, err := s.GetHead()
	require.ErrorIs(t, err, header.ErrNotFound)

	require.NoError(t, s.Insert(newTestHeader(1), newTestHeader(2), newTestHeader(3)))

	head, err := s.GetHead()
	require.NoError(t, err)
	require.Equal(t, uint64(3), head.Height())

	ranges, err := s.StoredHeaderRanges()
	require.NoError(t, err)
	require.Equal(t, "[1..=3]", ranges.String())

	got, err := s.GetByHeight(2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.Height())

	byHash, err := s.GetByHash(newTestHeader(2).Hash())
	require.NoError(t, err)
	require.Equal(t, uint64(2), byHash.Height())

	// non-continuous append rejected
	err = s.Insert(newTestHeader(5))
	var storeErr *header.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, header.StoreErrNonContinuousAppend, storeErr.Kind)

	// duplicate height rejected
	err = s.Insert(newTestHeader(3))
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, header.StoreErrHeightExists, storeErr.Kind)

	require.NoError(t, s.Insert(newTestHeader(4)))

	removed, err := s.RemoveLast()
	require.NoError(t, err)
	require.Equal(t, uint64(1), removed)

	ranges, err = s.StoredHeaderRanges()
	require.NoError(t, err)
	require.Equal(t, "[2..=4]", ranges.String())

	_, err = s.GetByHeight(1)
	require.ErrorIs(t, err, header.ErrNotFound)

	meta, err := s.GetSamplingMetadata(2)
	require.NoError(t, err)
	require.Nil(t, meta)

	require.NoError(t, s.PutSamplingMetadata(2, SamplingMetadata{}))
	meta, err = s.GetSamplingMetadata(2)
	require.NoError(t, err)
	require.NotNil(t, meta)
}

// runBackfillSuite exercises the gap-filling direction the syncer relies on:
// a head discovered far ahead of an empty store, backfilled by batches that
// extend the tail downward rather than the head upward.
func runBackfillSuite(t *testing.T, s Store) {
	require.NoError(t, s.Insert(newTestHeader(100)))

	ranges, err := s.StoredHeaderRanges()
	require.NoError(t, err)
	require.Equal(t, "[100..=100]", ranges.String())

	require.NoError(t, s.Insert(newTestHeader(97), newTestHeader(98), newTestHeader(99)))

	ranges, err = s.StoredHeaderRanges()
	require.NoError(t, err)
	require.Equal(t, "[97..=100]", ranges.String())

	// neither extends the head nor precedes the tail: rejected
	err = s.Insert(newTestHeader(50))
	var storeErr *header.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, header.StoreErrNonContinuousAppend, storeErr.Kind)
}

func TestInMemoryStoreBackfill(t *testing.T) {
	runBackfillSuite(t, NewInMemory())
}

func TestLevelDBStoreBackfill(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLevelDB(dir, testEncode, testDecode)
	require.NoError(t, err)
	defer s.Close()

	runBackfillSuite(t, s)
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, NewInMemory())
}

func TestLevelDBStore(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLevelDB(dir, testEncode, testDecode)
	require.NoError(t, err)
	defer s.Close()

	runStoreSuite(t, s)
}
