package header

import (
	"encoding/binary"
	"errors"
	"time"
)

// fakeHeader is a minimal ExtendedHeader used by this package's own tests;
// the exchange client and syncer packages have their own richer fakes.
type fakeHeader struct {
	height uint64
	hash   Hash
	time   time.Time
	bad    bool
}

func (h *fakeHeader) Height() uint64 { return h.height }
func (h *fakeHeader) Hash() Hash     { return h.hash }
func (h *fakeHeader) Time() time.Time { return h.time }
func (h *fakeHeader) Validate() error {
	if h.bad {
		return errors.New("fake: intrinsically invalid")
	}
	return nil
}
func (h *fakeHeader) VerifyAdjacent(untrusted ExtendedHeader) error {
	if untrusted.Height() != h.height+1 {
		return errors.New("fake: not adjacent")
	}
	return nil
}

func fakeHash(height uint64) Hash {
	var h Hash
	binary.BigEndian.PutUint64(h[24:], height)
	return h
}

func encodeFake(h *fakeHeader) []byte {
	buf := make([]byte, 8+1)
	binary.BigEndian.PutUint64(buf[:8], h.height)
	if h.bad {
		buf[8] = 1
	}
	return buf
}

func decodeFake(raw []byte) (ExtendedHeader, error) {
	if len(raw) != 9 {
		return nil, errors.New("fake: bad length")
	}
	height := binary.BigEndian.Uint64(raw[:8])
	return &fakeHeader{
		height: height,
		hash:   fakeHash(height),
		time:   time.Unix(int64(height), 0),
		bad:    raw[8] == 1,
	}, nil
}
