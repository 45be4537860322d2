package header

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockRangesAddFusesAdjacent(t *testing.T) {
	var rs BlockRanges
	rs = rs.Add(BlockRange{Lo: 1, Hi: 10})
	rs = rs.Add(BlockRange{Lo: 11, Hi: 20})
	require.Equal(t, "[1..=20]", rs.String())
}

func TestBlockRangesAddKeepsDisjoint(t *testing.T) {
	var rs BlockRanges
	rs = rs.Add(BlockRange{Lo: 1, Hi: 10})
	rs = rs.Add(BlockRange{Lo: 20, Hi: 30})
	require.Equal(t, "[1..=10], [20..=30]", rs.String())

	rs = rs.Add(BlockRange{Lo: 11, Hi: 19})
	require.Equal(t, "[1..=30]", rs.String())
}

func TestBlockRangesHeadTail(t *testing.T) {
	var rs BlockRanges
	_, ok := rs.Head()
	require.False(t, ok)

	rs = rs.Add(BlockRange{Lo: 5, Hi: 9}).Add(BlockRange{Lo: 1, Hi: 3})
	head, ok := rs.Head()
	require.True(t, ok)
	require.Equal(t, uint64(9), head)

	tail, ok := rs.Tail()
	require.True(t, ok)
	require.Equal(t, uint64(1), tail)
}

func TestBlockRangesContains(t *testing.T) {
	var rs BlockRanges
	rs = rs.Add(BlockRange{Lo: 1, Hi: 10}).Add(BlockRange{Lo: 20, Hi: 30})
	require.True(t, rs.Contains(5))
	require.True(t, rs.Contains(25))
	require.False(t, rs.Contains(15))
	require.False(t, rs.Contains(31))
}

func TestBlockRangeOverlapFuses(t *testing.T) {
	var rs BlockRanges
	rs = rs.Add(BlockRange{Lo: 1, Hi: 10})
	rs = rs.Add(BlockRange{Lo: 5, Hi: 15})
	require.Equal(t, "[1..=15]", rs.String())
}
