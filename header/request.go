package header

import "fmt"

// RequestData is the tagged union carried by a HeaderRequest: either a
// height-based Origin query (Origin(0) is the special "head" query) or a
// Hash query. Exactly one of Height/IsHash is meaningful.
type RequestData struct {
	isHash bool
	height uint64
	hash   Hash
}

// Origin builds request data that asks for headers starting at height.
// Origin(0) is the head-query form.
func Origin(height uint64) RequestData {
	return RequestData{height: height}
}

// ByHash builds request data that asks for the single header with hash h.
func ByHash(h Hash) RequestData {
	return RequestData{isHash: true, hash: h}
}

// IsHash reports whether the request data is a Hash query.
func (d RequestData) IsHash() bool { return d.isHash }

// Height returns the Origin height; only meaningful when !IsHash().
func (d RequestData) Height() uint64 { return d.height }

// HashValue returns the queried hash; only meaningful when IsHash().
func (d RequestData) HashValue() Hash { return d.hash }

// HeaderRequest is a query for one or more ExtendedHeaders.
type HeaderRequest struct {
	Data   RequestData
	Amount uint64
}

// IsHeadRequest reports whether the request is the special head-discovery
// form Origin(0). It does not look at Amount; Validate is what requires
// amount == 1 for it.
func (r HeaderRequest) IsHeadRequest() bool {
	return !r.Data.IsHash() && r.Data.Height() == 0
}

// Validate checks the request against its shape rules:
//   - amount >= 1
//   - Origin(0) requires amount == 1
//   - Hash(b) requires amount == 1 (the hash length is enforced by the Hash
//     type itself, which is always HashLength bytes)
func (r HeaderRequest) Validate() error {
	if r.Amount < 1 {
		return fmt.Errorf("%w: amount must be >= 1, got %d", ErrInvalidRequest, r.Amount)
	}
	if r.Data.IsHash() && r.Amount != 1 {
		return fmt.Errorf("%w: hash request must have amount == 1, got %d", ErrInvalidRequest, r.Amount)
	}
	if r.IsHeadRequest() && r.Amount != 1 {
		return fmt.Errorf("%w: head request (Origin(0)) must have amount == 1, got %d", ErrInvalidRequest, r.Amount)
	}
	return nil
}

// StatusCode mirrors the wire-level HeaderResponse status.
type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusNotFound
	StatusInvalid
)

// HeaderResponse is one wire-level reply message: opaque bytes plus a status
// code. Only StatusOK with decodable, self-validating bytes is usable.
type HeaderResponse struct {
	Body       []byte
	StatusCode StatusCode
}

// Responses is a peer's full reply to one HeaderRequest: a stream of
// HeaderResponse messages. A response with StatusCode != OK for any message
// invalidates the whole reply for shape purposes.
type Responses []HeaderResponse

// usableBodies extracts decodable bodies, returning nil if any message in
// the stream is not StatusOK.
func (rs Responses) usableBodies() ([][]byte, bool) {
	bodies := make([][]byte, 0, len(rs))
	for _, r := range rs {
		if r.StatusCode != StatusOK {
			return nil, false
		}
		bodies = append(bodies, r.Body)
	}
	return bodies, true
}
