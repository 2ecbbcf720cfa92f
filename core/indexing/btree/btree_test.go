package btree

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/storage_engine/blob"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	"github.com/sushant-115/stratadb/core/storage_engine/freelist"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
)

const testPageSize = 1024

type fixture struct {
	cache *pagecache.PageCache
	fl    *freelist.Freelist
	blobs *blob.Manager
	tree  *BTree
	// pages allocated before the tree was created
	baseline uint64
}

func newFixture(t *testing.T, dups bool) *fixture {
	t.Helper()
	dev, err := disk.NewMemoryDevice(testPageSize, 0)
	require.NoError(t, err)
	require.NoError(t, dev.Truncate(testPageSize))
	cache, err := pagecache.New(dev, testPageSize, pagecache.Options{EnableCRC32: true}, zap.NewNop())
	require.NoError(t, err)
	fl := freelist.New(testPageSize, 1, dev, nil)
	cache.SetAllocator(fl)
	blobs, err := blob.New(cache, testPageSize, 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(blobs.Close)

	f := &fixture{cache: cache, fl: fl, blobs: blobs, baseline: fl.Allocated()}
	f.tree, err = Create(cache, blobs, Config{PageSize: testPageSize, EnableDuplicates: dups}, zap.NewNop())
	require.NoError(t, err)
	return f
}

func key(i int) []byte { return []byte(fmt.Sprintf("key%06d", i)) }

// scan returns every key of the tree in cursor order.
func scan(t *testing.T, tree *BTree) []string {
	t.Helper()
	var keys []string
	c := tree.NewCursor()
	for {
		err := c.Next(true)
		if err != nil {
			require.ErrorIs(t, err, dberror.ErrKeyNotFound)
			return keys
		}
		k, err := c.Key()
		require.NoError(t, err)
		keys = append(keys, string(k))
	}
}

func TestInsertFindInOrder(t *testing.T) {
	f := newFixture(t, false)
	const n = 3000

	perm := rand.New(rand.NewPCG(1, 2)).Perm(n)
	for _, i := range perm {
		require.NoError(t, f.tree.Insert(key(i), []byte(fmt.Sprintf("value-%d", i)), 0))
	}
	require.NoError(t, f.tree.Check())

	for i := 0; i < n; i++ {
		got, err := f.tree.Find(key(i))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("value-%d", i), string(got))
	}
	_, err := f.tree.Find([]byte("missing"))
	require.ErrorIs(t, err, dberror.ErrKeyNotFound)

	keys := scan(t, f.tree)
	require.Len(t, keys, n)
	require.True(t, slices.IsSorted(keys))

	count, err := f.tree.Count(true)
	require.NoError(t, err)
	require.EqualValues(t, n, count)
}

func TestInsertExistingKey(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.tree.Insert([]byte("k"), []byte("v1"), 0))

	err := f.tree.Insert([]byte("k"), []byte("v2"), 0)
	require.ErrorIs(t, err, dberror.ErrDuplicateKey)
	require.Equal(t, -12, dberror.Code(err))

	err = f.tree.Insert([]byte("k"), []byte("v2"), Duplicate)
	require.ErrorIs(t, err, dberror.ErrInvalidParameter)
	err = f.tree.Insert([]byte("k"), []byte("v2"), Overwrite|Duplicate)
	require.ErrorIs(t, err, dberror.ErrInvalidParameter)

	require.NoError(t, f.tree.Insert([]byte("k"), []byte("v2"), Overwrite))
	got, err := f.tree.Find([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}

func TestDuplicatesKeepInsertionOrder(t *testing.T) {
	f := newFixture(t, true)
	k := []byte("dup")
	for _, v := range []string{"1", "2", "3"} {
		require.NoError(t, f.tree.Insert(k, []byte(v), Duplicate))
	}
	recs, err := f.tree.Records(k)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("1"), []byte("2"), []byte("3")}, recs)

	require.NoError(t, f.tree.Insert(k, []byte("0"), DuplicateInsertFirst))
	pos, err := f.tree.InsertAt(k, []byte("x"), DuplicateInsertBefore, 2)
	require.NoError(t, err)
	require.Equal(t, 2, pos)
	recs, err = f.tree.Records(k)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "1", "x", "2", "3"}, toStrings(recs))

	require.NoError(t, f.tree.OverwriteDuplicate(k, 4, bytes.Repeat([]byte("L"), 500)))
	require.NoError(t, f.tree.EraseDuplicate(k, 2))
	require.ErrorIs(t, f.tree.EraseDuplicate(k, 9), dberror.ErrKeyNotFound)
	recs, err = f.tree.Records(k)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "1", "2", string(bytes.Repeat([]byte("L"), 500))}, toStrings(recs))

	count, err := f.tree.Count(false)
	require.NoError(t, err)
	require.EqualValues(t, 4, count)
	first, err := f.tree.Find(k)
	require.NoError(t, err)
	require.Equal(t, []byte("0"), first)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.tree.EraseDuplicate(k, 0))
	}
	n, err := f.tree.DuplicateCount(k)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, f.tree.EraseDuplicate(k, 0))
	_, err = f.tree.Find(k)
	require.ErrorIs(t, err, dberror.ErrKeyNotFound)
	require.NoError(t, f.tree.Check())
}

func toStrings(recs [][]byte) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = string(r)
	}
	return out
}

func TestExtendedKeysAndLargeRecords(t *testing.T) {
	f := newFixture(t, false)
	prefix := bytes.Repeat([]byte("p"), 100)
	long := func(i int) []byte { return append(slices.Clone(prefix), key(i)...) }
	record := func(i int) []byte { return bytes.Repeat([]byte{byte(i)}, 3000+i) }

	for i := 299; i >= 0; i-- {
		require.NoError(t, f.tree.Insert(long(i), record(i), 0))
	}
	require.NoError(t, f.tree.Check())
	for i := 0; i < 300; i++ {
		got, err := f.tree.Find(long(i))
		require.NoError(t, err)
		require.Equal(t, record(i), got)
	}
	_, err := f.tree.Find(prefix)
	require.ErrorIs(t, err, dberror.ErrKeyNotFound)

	keys := scan(t, f.tree)
	require.Len(t, keys, 300)
	require.Equal(t, string(long(0)), keys[0])
	require.True(t, slices.IsSorted(keys))

	big := make([]byte, MaxKeySize+1)
	require.ErrorIs(t, f.tree.Insert(big, nil, 0), dberror.ErrInvalidParameter)
}

func TestEmptyRecordsSurviveReload(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.tree.Insert([]byte("empty"), []byte{}, 0))
	require.NoError(t, f.tree.Insert([]byte("dups"), []byte{}, 0))
	require.NoError(t, f.tree.Insert([]byte("dups"), []byte("x"), Duplicate))

	// drop every resident page so the nodes are decoded from the device
	require.NoError(t, f.cache.FlushAll(context.Background()))
	f.cache.Purge()
	tree, err := Open(f.cache, f.blobs, f.tree.Root(), Config{PageSize: testPageSize, EnableDuplicates: true}, zap.NewNop())
	require.NoError(t, err)

	got, err := tree.Find([]byte("empty"))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	recs, err := tree.Records([]byte("dups"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0])
	require.Empty(t, recs[0])
	require.Equal(t, []byte("x"), recs[1])
}

func TestRandomInsertErase(t *testing.T) {
	f := newFixture(t, false)
	rng := rand.New(rand.NewPCG(7, 11))
	model := map[string][]byte{}

	randomKey := func() []byte {
		k := key(rng.IntN(1500))
		if rng.IntN(8) == 0 {
			k = append(bytes.Repeat([]byte{'z'}, 80), k...)
		}
		return k
	}
	for op := 0; op < 12000; op++ {
		k := randomKey()
		if rng.IntN(3) == 0 {
			err := f.tree.Erase(k)
			if _, ok := model[string(k)]; ok {
				require.NoError(t, err)
				delete(model, string(k))
			} else {
				require.ErrorIs(t, err, dberror.ErrKeyNotFound)
			}
		} else {
			v := bytes.Repeat([]byte{byte(op)}, rng.IntN(120))
			require.NoError(t, f.tree.Insert(k, v, Overwrite))
			model[string(k)] = v
		}
		if op%2000 == 0 {
			require.NoError(t, f.tree.Check(), "op %d", op)
		}
	}
	require.NoError(t, f.tree.Check())

	want := make([]string, 0, len(model))
	for k := range model {
		want = append(want, k)
	}
	slices.Sort(want)
	require.Equal(t, want, scan(t, f.tree))
	for k, v := range model {
		got, err := f.tree.Find([]byte(k))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	for _, k := range want {
		require.NoError(t, f.tree.Erase([]byte(k)))
	}
	require.NoError(t, f.tree.Check())
	count, err := f.tree.Count(false)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, f.tree.Drop())
	require.Equal(t, f.baseline, f.fl.Allocated())
}

func TestDropFreesEverything(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 500; i++ {
		k := key(i)
		if i%5 == 0 {
			k = append(bytes.Repeat([]byte{'x'}, 90), k...)
		}
		require.NoError(t, f.tree.Insert(k, bytes.Repeat([]byte{1}, i), 0))
		if i%7 == 0 {
			require.NoError(t, f.tree.Insert(k, []byte("second"), Duplicate))
		}
	}
	var owned int
	require.NoError(t, f.tree.OwnedPages(func(addr uint64) error {
		require.True(t, f.fl.IsAllocated(addr), "page %d", addr)
		owned++
		return nil
	}))
	require.EqualValues(t, f.fl.Allocated()-f.baseline, owned)

	require.NoError(t, f.tree.Drop())
	require.Equal(t, f.baseline, f.fl.Allocated())
}

func TestCursorFindModes(t *testing.T) {
	f := newFixture(t, false)
	for i := 0; i < 400; i += 2 {
		require.NoError(t, f.tree.Insert(key(i), key(i), 0))
	}
	c := f.tree.NewCursor()

	cases := []struct {
		mode FindMode
		at   int
		want int
	}{
		{FindExact, 10, 10},
		{FindGEQ, 10, 10},
		{FindGEQ, 11, 12},
		{FindGT, 10, 12},
		{FindLEQ, 10, 10},
		{FindLEQ, 11, 10},
		{FindLT, 10, 8},
		{FindGEQ, -1, 0},
		{FindLEQ, 1000, 398},
	}
	for _, tc := range cases {
		search := key(tc.at)
		if tc.at < 0 {
			search = []byte("a")
		}
		require.NoError(t, c.Find(search, tc.mode), "mode %d at %d", tc.mode, tc.at)
		k, err := c.Key()
		require.NoError(t, err)
		require.Equal(t, key(tc.want), k, "mode %d at %d", tc.mode, tc.at)
	}

	require.ErrorIs(t, c.Find(key(11), FindExact), dberror.ErrKeyNotFound)
	require.False(t, c.IsValid())
	require.ErrorIs(t, c.Find(key(398), FindGT), dberror.ErrKeyNotFound)
	require.ErrorIs(t, c.Find(key(0), FindLT), dberror.ErrKeyNotFound)
	_, err := c.Key()
	require.ErrorIs(t, err, dberror.ErrCursorIsNil)
}

func TestCursorMovesAtEdges(t *testing.T) {
	f := newFixture(t, false)
	c := f.tree.NewCursor()
	require.ErrorIs(t, c.First(), dberror.ErrKeyNotFound)
	require.ErrorIs(t, c.Next(false), dberror.ErrKeyNotFound)

	for i := 0; i < 300; i++ {
		require.NoError(t, f.tree.Insert(key(i), nil, 0))
	}
	require.NoError(t, c.Last())
	require.ErrorIs(t, c.Next(false), dberror.ErrKeyNotFound)
	k, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, key(299), k)

	for i := 298; i >= 0; i-- {
		require.NoError(t, c.Previous(false))
		k, err := c.Key()
		require.NoError(t, err)
		require.Equal(t, key(i), k)
	}
	require.ErrorIs(t, c.Previous(false), dberror.ErrKeyNotFound)
	k, err = c.Key()
	require.NoError(t, err)
	require.Equal(t, key(0), k)
}

func TestCursorDuplicates(t *testing.T) {
	f := newFixture(t, true)
	for _, k := range []string{"a", "b", "c"} {
		for d := 0; d < 3; d++ {
			require.NoError(t, f.tree.Insert([]byte(k), []byte(fmt.Sprintf("%s%d", k, d)), Duplicate))
		}
	}
	c := f.tree.NewCursor()
	var seen []string
	for c.Next(false) == nil {
		rec, err := c.Record()
		require.NoError(t, err)
		seen = append(seen, string(rec))
	}
	require.Equal(t, []string{"a0", "a1", "a2", "b0", "b1", "b2", "c0", "c1", "c2"}, seen)

	require.NoError(t, c.Find([]byte("b"), FindExact))
	require.NoError(t, c.Previous(false))
	rec, err := c.Record()
	require.NoError(t, err)
	require.Equal(t, []byte("a2"), rec)
	idx, err := c.DuplicateIndex()
	require.NoError(t, err)
	require.Equal(t, 2, idx)

	require.ErrorIs(t, c.NextDuplicate(), dberror.ErrKeyNotFound)
	require.NoError(t, c.PreviousDuplicate())
	require.NoError(t, c.Next(true))
	k, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("b"), k)

	require.NoError(t, c.NextDuplicate())
	require.NoError(t, c.Overwrite([]byte("B1")))
	rec, err = c.Record()
	require.NoError(t, err)
	require.Equal(t, []byte("B1"), rec)

	require.NoError(t, c.Erase())
	require.False(t, c.IsValid())
	recs, err := f.tree.Records([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []string{"b0", "b2"}, toStrings(recs))

	require.NoError(t, c.Find([]byte("c"), FindExact))
	require.NoError(t, c.Insert([]byte("c"), []byte("cX"), DuplicateInsertAfter))
	idx, err = c.DuplicateIndex()
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	n, err := c.DuplicateCount()
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestCursorSurvivesTreeChanges(t *testing.T) {
	f := newFixture(t, false)
	for i := 0; i < 1000; i += 10 {
		require.NoError(t, f.tree.Insert(key(i), nil, 0))
	}
	c := f.tree.NewCursor()
	require.NoError(t, c.Find(key(500), FindExact))

	// enough inserts to split the leaf under the cursor
	for i := 0; i < 1000; i++ {
		if i%10 != 0 {
			require.NoError(t, f.tree.Insert(key(i), nil, 0))
		}
	}
	k, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, key(500), k)
	require.NoError(t, c.Next(false))
	k, err = c.Key()
	require.NoError(t, err)
	require.Equal(t, key(501), k)

	require.NoError(t, f.tree.Erase(key(501)))
	_, err = c.Key()
	require.ErrorIs(t, err, dberror.ErrCursorIsNil)
	require.NoError(t, c.Next(false))
	k, err = c.Key()
	require.NoError(t, err)
	require.Equal(t, key(502), k)

	require.NoError(t, f.tree.Erase(key(502)))
	require.NoError(t, c.Previous(false))
	k, err = c.Key()
	require.NoError(t, err)
	require.Equal(t, key(500), k)
}

func TestCheckDetectsDisorder(t *testing.T) {
	f := newFixture(t, false)
	for i := 0; i < 20; i++ {
		require.NoError(t, f.tree.Insert(key(i), nil, 0))
	}
	require.NoError(t, f.tree.Check())

	root, err := f.tree.loadNode(f.tree.Root())
	require.NoError(t, err)
	require.True(t, root.isLeaf)
	root.entries[3], root.entries[4] = root.entries[4], root.entries[3]
	require.NoError(t, f.tree.storeNode(root))
	require.ErrorIs(t, f.tree.Check(), dberror.ErrCorruption)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	f := newFixture(t, false)
	_, err := Open(f.cache, f.blobs, 0, Config{PageSize: testPageSize}, nil)
	require.ErrorIs(t, err, dberror.ErrCorruption)
	_, err = Open(f.cache, f.blobs, f.tree.Root(), Config{PageSize: testPageSize, KeyInlineMax: 4}, nil)
	require.ErrorIs(t, err, dberror.ErrInvalidParameter)

	tree, err := Open(f.cache, f.blobs, f.tree.Root(), Config{PageSize: testPageSize}, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Check())
}
