package header

import "fmt"

// BlockRange is a non-empty inclusive range of heights [Lo, Hi].
type BlockRange struct {
	Lo uint64
	Hi uint64
}

// Len returns the number of heights the range covers.
func (r BlockRange) Len() uint64 {
	if r.Hi < r.Lo {
		return 0
	}
	return r.Hi - r.Lo + 1
}

// Empty reports whether the range contains no heights.
func (r BlockRange) Empty() bool { return r.Hi < r.Lo }

// Contains reports whether height lies within the range.
func (r BlockRange) Contains(height uint64) bool {
	return !r.Empty() && height >= r.Lo && height <= r.Hi
}

// adjacentOrOverlapping reports whether two ranges touch or overlap and
// should be fused into one.
func adjacentOrOverlapping(a, b BlockRange) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	if a.Hi+1 < a.Hi { // overflow guard, Hi is already max uint64
		return a.Lo <= b.Hi && b.Lo <= a.Hi
	}
	return a.Lo <= b.Hi+1 && b.Lo <= a.Hi+1
}

func (r BlockRange) String() string {
	if r.Empty() {
		return "[]"
	}
	return fmt.Sprintf("[%d..=%d]", r.Lo, r.Hi)
}

// BlockRanges is an ordered set of disjoint, non-adjacent inclusive ranges.
// Any two ranges that touch or overlap must be fused; callers never see
// adjacent entries.
type BlockRanges []BlockRange

// Add inserts a range into the set, fusing it with any range it touches or
// overlaps, and returns the resulting, still-normalized set.
func (rs BlockRanges) Add(add BlockRange) BlockRanges {
	if add.Empty() {
		return normalize(rs)
	}
	widened := make(BlockRanges, len(rs), len(rs)+1)
	copy(widened, rs)
	widened = append(widened, add)
	return normalize(widened)
}

func fuse(a, b BlockRange) BlockRange {
	lo, hi := a.Lo, a.Hi
	if b.Lo < lo {
		lo = b.Lo
	}
	if b.Hi > hi {
		hi = b.Hi
	}
	return BlockRange{Lo: lo, Hi: hi}
}

// normalize sorts ranges by Lo and fuses any that ended up touching, which
// can happen after Add inserts into the middle of the set.
func normalize(rs BlockRanges) BlockRanges {
	if len(rs) < 2 {
		return rs
	}
	sorted := make(BlockRanges, len(rs))
	copy(sorted, rs)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Lo > sorted[j].Lo; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	out := make(BlockRanges, 0, len(sorted))
	out = append(out, sorted[0])
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if adjacentOrOverlapping(*last, r) {
			*last = fuse(*last, r)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Head returns the highest covered height, or (0, false) if empty.
func (rs BlockRanges) Head() (uint64, bool) {
	if len(rs) == 0 {
		return 0, false
	}
	return rs[len(rs)-1].Hi, true
}

// Tail returns the lowest covered height, or (0, false) if empty.
func (rs BlockRanges) Tail() (uint64, bool) {
	if len(rs) == 0 {
		return 0, false
	}
	return rs[0].Lo, true
}

// Contains reports whether height is covered by any range in the set.
func (rs BlockRanges) Contains(height uint64) bool {
	for _, r := range rs {
		if r.Contains(height) {
			return true
		}
		if height < r.Lo {
			break
		}
	}
	return false
}

func (rs BlockRanges) String() string {
	if len(rs) == 0 {
		return "[]"
	}
	s := ""
	for i, r := range rs {
		if i > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s
}
