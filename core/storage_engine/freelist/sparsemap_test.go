package freelist

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSparseMapSetIsSet(t *testing.T) {
	sm := NewSparseMap()
	require.False(t, sm.IsSet(0))

	for i := uint64(0); i < 5000; i += 3 {
		sm.Set(i, true)
	}
	for i := uint64(0); i < 5000; i++ {
		require.Equal(t, i%3 == 0, sm.IsSet(i), "bit %d", i)
	}
	require.Equal(t, uint64(1667), sm.Popcount())

	for i := uint64(0); i < 5000; i += 3 {
		sm.Set(i, false)
	}
	require.Equal(t, uint64(0), sm.Popcount())
	require.Equal(t, 0, sm.MiniMapCount())
}

// TestSparseMapCompression checks that full and empty vectors are not materialized.
func TestSparseMapCompression(t *testing.T) {
	sm := NewSparseMap()
	for i := uint64(0); i < 2048; i++ {
		sm.Set(i, true)
	}
	require.Equal(t, 1, sm.MiniMapCount())
	require.Equal(t, 4+miniMapHeaderSize, sm.EncodedSize())

	sm.Set(100, false)
	require.Equal(t, 4+miniMapHeaderSize+8, sm.EncodedSize())
	sm.Set(100, true)
	require.Equal(t, 4+miniMapHeaderSize, sm.EncodedSize())
}

func TestSparseMapSelect(t *testing.T) {
	sm := NewSparseMap()
	for i := 0; i < 8; i++ {
		sm.Set(uint64(i*10), true)
	}
	for i := 0; i < 8; i++ {
		idx, ok := sm.Select(uint64(i))
		require.True(t, ok)
		require.Equal(t, uint64(i*10), idx)
	}
	_, ok := sm.Select(8)
	require.False(t, ok)

	// Select must agree with ascending IsSet iteration on a random map.
	sm.Clear()
	rng := rand.New(rand.NewSource(7))
	var want []uint64
	for i := uint64(0); i < 10000; i++ {
		if rng.Intn(4) == 0 {
			sm.Set(i, true)
			want = append(want, i)
		}
	}
	for k, idx := range want {
		got, ok := sm.Select(uint64(k))
		require.True(t, ok)
		require.Equal(t, idx, got)
	}
	var scanned []uint64
	sm.Scan(func(idx uint64) bool { scanned = append(scanned, idx); return true })
	require.Equal(t, want, scanned)
}

func TestSparseMapNextClearAndPopcountRange(t *testing.T) {
	sm := NewSparseMap()
	for i := uint64(0); i < 130; i++ {
		sm.Set(i, true)
	}
	idx, ok := sm.NextClear(0, 1000)
	require.True(t, ok)
	require.Equal(t, uint64(130), idx)

	_, ok = sm.NextClear(0, 100)
	require.False(t, ok)

	sm.Set(64, false)
	idx, ok = sm.NextClear(10, 1000)
	require.True(t, ok)
	require.Equal(t, uint64(64), idx)

	require.Equal(t, uint64(63), sm.PopcountRange(1, 65))
	require.Equal(t, uint64(129), sm.PopcountRange(0, 10000))

	set, ok := sm.NextSet(64)
	require.True(t, ok)
	require.Equal(t, uint64(65), set)
}

// TestSparseMapSplitAligned reproduces the region scenario: 6144 set bits split
// at 2048 leave [0,2048) in the source and [2048,6144) in the target.
func TestSparseMapSplitAligned(t *testing.T) {
	a, b := NewSparseMap(), NewSparseMap()
	for i := uint64(0); i < 6144; i++ {
		a.Set(i, true)
	}
	require.NoError(t, a.Split(2048, b))

	for i := uint64(0); i < 6144; i++ {
		require.Equal(t, i < 2048, a.IsSet(i), "source bit %d", i)
		require.Equal(t, i >= 2048, b.IsSet(i), "target bit %d", i)
	}
	require.Equal(t, uint64(2048), a.Popcount())
	require.Equal(t, uint64(4096), b.Popcount())
	require.Equal(t, uint64(2048), b.Start())
}

// TestSparseMapSplitInsideMiniMap splits at a BitVector boundary inside a
// miniMap, which reduces the capacity of both halves.
func TestSparseMapSplitInsideMiniMap(t *testing.T) {
	a, b := NewSparseMap(), NewSparseMap()
	for i := uint64(0); i < 2048*3; i++ {
		a.Set(i, true)
	}
	require.NoError(t, a.Split(64, b))
	for i := uint64(0); i < 2048*3; i++ {
		require.Equal(t, i < 64, a.IsSet(i), "source bit %d", i)
		require.Equal(t, i >= 64, b.IsSet(i), "target bit %d", i)
	}

	// Setting a bit in the reduced source range beyond its capacity must not
	// collide with the moved bits.
	a.Set(10, false)
	require.False(t, a.IsSet(10))
	require.True(t, b.IsSet(64))

	require.Error(t, a.Split(65, NewSparseMap()))
}

func TestSparseMapMergeIsInverseOfSplit(t *testing.T) {
	a := NewSparseMap()
	rng := rand.New(rand.NewSource(11))
	for i := uint64(0); i < 6000; i++ {
		if rng.Intn(3) == 0 {
			a.Set(i, true)
		}
	}
	orig := a.Clone()
	b := NewSparseMap()
	require.NoError(t, a.Split(1024+128, b))
	require.NoError(t, a.Merge(b))
	require.Equal(t, orig.Popcount(), a.Popcount())
	for i := uint64(0); i < 6000; i++ {
		require.Equal(t, orig.IsSet(i), a.IsSet(i), "bit %d", i)
	}
	require.Equal(t, orig.MiniMapCount(), a.MiniMapCount())
	require.Equal(t, 0, b.MiniMapCount())

	c := NewSparseMap()
	c.Set(0, true)
	require.Error(t, a.Merge(c))
}

func TestSparseMapMarshalRoundTrip(t *testing.T) {
	sm := NewSparseMap()
	for _, i := range []uint64{1, 2, 3, 700, 2047, 2048, 9000, 9001, 65536} {
		sm.Set(i, true)
	}
	data, err := sm.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, sm.EncodedSize())

	got := NewSparseMap()
	require.NoError(t, got.UnmarshalBinary(data))
	for i := uint64(0); i < 70000; i++ {
		require.Equal(t, sm.IsSet(i), got.IsSet(i), "bit %d", i)
	}

	require.Error(t, got.UnmarshalBinary(data[:len(data)-3]))
}
