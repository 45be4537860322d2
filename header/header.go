// Copyright 2024 XDC Network
// Header pipeline contracts: request/response shapes and error taxonomy.

// Package header defines the wire-level contracts shared by the exchange
// client, the syncer and the header store: the ExtendedHeader capability, the
// HeaderRequest/HeaderResponse shapes, and the error taxonomy surfaced to
// callers.
package header

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HashLength is the canonical content-hash length every ExtendedHeader and
// every Hash-keyed HeaderRequest must respect.
const HashLength = common.HashLength

// Hash is the content address of an ExtendedHeader. It reuses go-ethereum's
// fixed-size hash type rather than rolling a new one.
type Hash = common.Hash

// ExtendedHeader is opaque to this package beyond the invariants the core
// subsystems rely on: a monotone positive height, a content-addressed hash,
// a wall-clock time, and pairwise verification against a predecessor. It
// carries no interior mutability once constructed.
type ExtendedHeader interface {
	// Height returns the header's height. Heights are 1-indexed; 0 is never
	// a valid header height (it is reserved for "head query" requests).
	Height() uint64
	// Hash returns the header's content hash.
	Hash() Hash
	// Time returns the header's wall-clock timestamp.
	Time() time.Time
	// Validate performs intrinsic, self-contained validation (signature and
	// commit structure) that does not require any external anchor.
	Validate() error
	// VerifyAdjacent checks that untrusted directly extends the receiver,
	// i.e. that untrusted.Height() == h.Height()+1 and the commit over
	// untrusted is valid given h as the trusted predecessor.
	VerifyAdjacent(untrusted ExtendedHeader) error
}

// Decoder turns raw response bytes into an ExtendedHeader. Intrinsic
// validation is a separate step: DecodeAndVerify calls the decoded
// header's Validate method afterwards. Implementations of the wire
// codec (protobuf or otherwise) are out of scope for this package; only the
// contract is defined here.
type Decoder func(raw []byte) (ExtendedHeader, error)

// Encoder is the inverse of Decoder, used by on-disk Store implementations
// to persist a header's bytes.
type Encoder func(h ExtendedHeader) ([]byte, error)

// Error kinds surfaced to exchange-client and syncer callers.
var (
	// ErrInvalidRequest is returned synchronously when a caller supplies a
	// malformed HeaderRequest.
	ErrInvalidRequest = errors.New("header: invalid request")
	// ErrInvalidResponse is returned when a peer's reply violates the
	// shape or intrinsic-validity rules for the request that produced it.
	ErrInvalidResponse = errors.New("header: invalid response")
	// ErrHeaderNotFound is returned when a request could not be satisfied,
	// including head-quorum failure.
	ErrHeaderNotFound = errors.New("header: not found")
	// ErrNoConnectedPeers is returned when no peer candidates exist.
	ErrNoConnectedPeers = errors.New("header: no connected peers")
	// ErrWorkerDied indicates the syncer's background worker has
	// terminated; every subsequent info request fails with it.
	ErrWorkerDied = errors.New("header: syncer worker died")
)

// OutboundFailureKind enumerates transport-level failure kinds.
type OutboundFailureKind int

const (
	OutboundFailureTimeout OutboundFailureKind = iota
	OutboundFailureConnectionClosed
	OutboundFailureDial
	OutboundFailureIo
)

func (k OutboundFailureKind) String() string {
	switch k {
	case OutboundFailureTimeout:
		return "timeout"
	case OutboundFailureConnectionClosed:
		return "connection closed"
	case OutboundFailureDial:
		return "dial failure"
	case OutboundFailureIo:
		return "io error"
	default:
		return "unknown"
	}
}

// OutboundFailureError wraps a transport-level failure reported by the p2p
// stack back to a pending request's responder.
type OutboundFailureError struct {
	Kind OutboundFailureKind
}

func (e *OutboundFailureError) Error() string {
	return "header: outbound failure: " + e.Kind.String()
}

// NewOutboundFailure builds an OutboundFailureError for the given kind.
func NewOutboundFailure(kind OutboundFailureKind) error {
	return &OutboundFailureError{Kind: kind}
}

// StoreErrorKind enumerates the Store contract's error taxonomy.
type StoreErrorKind int

const (
	StoreErrNotFound StoreErrorKind = iota
	StoreErrNonContinuousAppend
	StoreErrHeightExists
	StoreErrHashExists
	StoreErrBackend
)

// StoreError is returned by Store operations and re-wrapped by the syncer.
type StoreError struct {
	Kind    StoreErrorKind
	Head    uint64
	Got     uint64
	Backend error
}

func (e *StoreError) Error() string {
	switch e.Kind {
	case StoreErrNotFound:
		return "header: not found in store"
	case StoreErrNonContinuousAppend:
		return "header: non-continuous append"
	case StoreErrHeightExists:
		return "header: height already exists"
	case StoreErrHashExists:
		return "header: hash already exists"
	default:
		if e.Backend != nil {
			return "header: store backend error: " + e.Backend.Error()
		}
		return "header: store backend error"
	}
}

func (e *StoreError) Unwrap() error { return e.Backend }

// ErrNotFound is a convenience sentinel store implementations can compare
// against with errors.Is.
var ErrNotFound = &StoreError{Kind: StoreErrNotFound}

func (e *StoreError) Is(target error) bool {
	other, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}
