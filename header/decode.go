package header

import (
	"context"
	"fmt"
	"runtime"
	"sort"
)

// ValidationsPerYield bounds how many headers the decode loop validates
// before cooperatively yielding, so a long response batch cannot starve
// other goroutines sharing the same scheduler.
const ValidationsPerYield = 32

// DecodeAndVerify rejects empty or over-long response lists, decodes and
// intrinsically validates each body, sorts the result ascending by height,
// and checks the decoded heights against the shape the request demands. It
// does not check adjacency or signatures against an external anchor — that
// is the caller's responsibility.
func DecodeAndVerify(ctx context.Context, req HeaderRequest, resp Responses, decode Decoder) ([]ExtendedHeader, error) {
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}
	if uint64(len(resp)) > req.Amount {
		return nil, fmt.Errorf("%w: got %d headers, requested at most %d", ErrInvalidResponse, len(resp), req.Amount)
	}
	bodies, ok := resp.usableBodies()
	if !ok {
		return nil, fmt.Errorf("%w: peer reported a non-OK status", ErrInvalidResponse)
	}

	headers := make([]ExtendedHeader, 0, len(bodies))
	for i, body := range bodies {
		if i > 0 && i%ValidationsPerYield == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				runtime.Gosched()
			}
		}
		h, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("%w: decode header %d/%d: %v", ErrInvalidResponse, i+1, len(bodies), err)
		}
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("%w: intrinsic validation failed for header %d/%d: %v", ErrInvalidResponse, i+1, len(bodies), err)
		}
		headers = append(headers, h)
	}

	sort.Slice(headers, func(i, j int) bool { return headers[i].Height() < headers[j].Height() })

	if err := checkShape(req, headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// checkShape enforces that decoded heights match the shape the request
// demands: exact height/hash for single-item requests, a contiguous,
// duplicate-free run starting at the requested origin otherwise.
func checkShape(req HeaderRequest, headers []ExtendedHeader) error {
	switch {
	case req.IsHeadRequest():
		if len(headers) != 1 {
			return fmt.Errorf("%w: head request must yield exactly one header, got %d", ErrInvalidResponse, len(headers))
		}
		return nil

	case req.Data.IsHash():
		if len(headers) != 1 {
			return fmt.Errorf("%w: hash request must yield exactly one header, got %d", ErrInvalidResponse, len(headers))
		}
		if headers[0].Hash() != req.Data.HashValue() {
			return fmt.Errorf("%w: header hash does not match requested hash", ErrInvalidResponse)
		}
		return nil

	case req.Data.Height() > 0:
		start := req.Data.Height()
		seen := make(map[uint64]struct{}, len(headers))
		for i, h := range headers {
			want := start + uint64(i)
			if h.Height() != want {
				return fmt.Errorf("%w: expected contiguous heights from %d, got %d at index %d", ErrInvalidResponse, start, h.Height(), i)
			}
			if _, dup := seen[h.Height()]; dup {
				return fmt.Errorf("%w: duplicate height %d", ErrInvalidResponse, h.Height())
			}
			seen[h.Height()] = struct{}{}
		}
		return nil

	default:
		return fmt.Errorf("%w: malformed request shape", ErrInvalidResponse)
	}
}
