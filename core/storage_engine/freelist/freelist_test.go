package freelist

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
)

const testPageSize = 1024

// memStore is an in-memory PageStore/Grower pair.
type memStore struct {
	pages map[uint64][]byte
	size  uint64
	limit uint64
}

func newMemStore() *memStore { return &memStore{pages: make(map[uint64][]byte)} }

func (m *memStore) LoadPage(addr uint64) ([]byte, error) {
	p, ok := m.pages[addr]
	if !ok {
		return nil, dberror.ErrIO
	}
	return append([]byte(nil), p...), nil
}

func (m *memStore) StorePage(addr uint64, data []byte) error {
	m.pages[addr] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Truncate(size uint64) error {
	if m.limit > 0 && size > m.limit {
		return errors.New("disk full")
	}
	m.size = size
	return nil
}

func TestAllocateFreeReuse(t *testing.T) {
	store := newMemStore()
	fl := New(testPageSize, 1, store, zap.NewNop())

	a, err := fl.Allocate()
	require.NoError(t, err)
	b, err := fl.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint64(testPageSize), a)
	require.Equal(t, uint64(2*testPageSize), b)
	require.Equal(t, uint64(3*testPageSize), store.size)

	require.NoError(t, fl.Free(a))
	require.False(t, fl.IsAllocated(a))

	c, err := fl.Allocate()
	require.NoError(t, err)
	require.Equal(t, a, c, "freed block must be reused at the same address")
	require.Equal(t, uint64(3), fl.Blocks())

	require.ErrorIs(t, fl.Free(0), dberror.ErrInvalidParameter)
	require.NoError(t, fl.Free(b))
	require.ErrorIs(t, fl.Free(b), dberror.ErrInvalidParameter)
}

func TestGrowFailureLeavesNoBitSet(t *testing.T) {
	store := newMemStore()
	store.limit = 2 * testPageSize
	fl := New(testPageSize, 1, store, nil)

	_, err := fl.Allocate()
	require.NoError(t, err)
	_, err = fl.Allocate()
	require.Error(t, err)
	require.Equal(t, uint64(2), fl.Allocated())
	require.Equal(t, uint64(2), fl.Blocks())
}

// TestRandomInterleaving checks that live allocations never collide and that
// Select enumerates exactly the allocated set in ascending order.
func TestRandomInterleaving(t *testing.T) {
	fl := New(testPageSize, 1, newMemStore(), nil)
	rng := rand.New(rand.NewSource(42))
	live := map[uint64]bool{0: true}

	for step := 0; step < 20000; step++ {
		if len(live) > 1 && rng.Intn(3) == 0 {
			var victim uint64
			for addr := range live {
				if addr != 0 {
					victim = addr
					break
				}
			}
			require.NoError(t, fl.Free(victim))
			delete(live, victim)
			continue
		}
		addr, err := fl.Allocate()
		require.NoError(t, err)
		require.False(t, live[addr], "address %d handed out twice", addr)
		live[addr] = true
	}

	want := make([]uint64, 0, len(live))
	for addr := range live {
		want = append(want, addr)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	require.Equal(t, uint64(len(want)), fl.Allocated())
	for k, addr := range want {
		got, err := fl.Select(uint64(k))
		require.NoError(t, err)
		require.Equal(t, addr, got)
	}
	_, err := fl.Select(uint64(len(want)))
	require.ErrorIs(t, err, dberror.ErrInvalidParameter)

	var scanned []uint64
	fl.Scan(func(addr uint64) bool { scanned = append(scanned, addr); return true })
	require.Equal(t, want, scanned)
}

// TestSplitRegionScenario allocates 6144 contiguous blocks and splits the
// bitmap at the 2048 block boundary.
func TestSplitRegionScenario(t *testing.T) {
	fl := New(testPageSize, 0, newMemStore(), nil)
	for i := 0; i < 6144; i++ {
		addr, err := fl.Allocate()
		require.NoError(t, err)
		require.Equal(t, uint64(i)*testPageSize, addr)
	}
	require.Len(t, fl.Regions(), 1)

	require.NoError(t, fl.SplitRegion(2048))
	regions := fl.Regions()
	require.Len(t, regions, 2)
	require.Equal(t, RegionInfo{Lo: 0, Hi: 2048, Allocated: 2048, Bytes: regions[0].Bytes}, regions[0])
	require.Equal(t, uint64(2048), regions[1].Lo)
	require.Equal(t, uint64(4096), regions[1].Allocated)

	for i := uint64(0); i < 6144; i++ {
		require.True(t, fl.IsAllocated(i*testPageSize))
	}
	first, err := fl.Select(2048)
	require.NoError(t, err)
	require.Equal(t, uint64(2048*testPageSize), first)

	// Allocation continues past the split without disturbing either region.
	addr, err := fl.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint64(6144*testPageSize), addr)

	require.NoError(t, fl.MergeRegions(0))
	require.Len(t, fl.Regions(), 1)
	require.Equal(t, uint64(6145), fl.Allocated())
}

// TestFragmentationSplitsAndPersists frees every other block so each vector is
// mixed, forcing regions to split to stay within one page, then round-trips
// the state through freelist pages.
func TestFragmentationSplitsAndPersists(t *testing.T) {
	const pageSize = 512
	store := newMemStore()
	fl := New(pageSize, 1, store, nil)
	for i := 0; i < 8191; i++ {
		_, err := fl.Allocate()
		require.NoError(t, err)
	}
	for i := uint64(2); i < 8192; i += 2 {
		require.NoError(t, fl.Free(i*pageSize))
	}
	regions := fl.Regions()
	require.Greater(t, len(regions), 1)
	for _, r := range regions {
		require.LessOrEqual(t, r.Bytes, pageSize-4-regionDataOffset)
	}

	root, err := fl.Persist(store)
	require.NoError(t, err)
	require.NotZero(t, root)

	loaded, err := Load(store, root, pageSize, fl.Blocks(), store, nil)
	require.NoError(t, err)
	require.Equal(t, fl.Allocated(), loaded.Allocated())
	require.Equal(t, len(fl.Regions()), len(loaded.Regions()))
	for i := uint64(0); i < fl.Blocks(); i++ {
		require.Equal(t, fl.IsAllocated(i*pageSize), loaded.IsAllocated(i*pageSize), "block %d", i)
	}

	// A second persist reuses the same chain.
	root2, err := loaded.Persist(store)
	require.NoError(t, err)
	require.Equal(t, root, root2)
}

func TestLoadRejectsBadChain(t *testing.T) {
	store := newMemStore()
	store.pages[testPageSize] = make([]byte, testPageSize)
	_, err := Load(store, testPageSize, testPageSize, 4, store, nil)
	require.ErrorIs(t, err, dberror.ErrCorruption)
}
