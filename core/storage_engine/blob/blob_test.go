package blob

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	"github.com/sushant-115/stratadb/core/storage_engine/freelist"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
	pagemanager "github.com/sushant-115/stratadb/core/write_engine/page_manager"
)

const testPageSize = 512

type fixture struct {
	cache *pagecache.PageCache
	fl    *freelist.Freelist
	blobs *Manager
}

func newFixture(t *testing.T, cacheBytes int64) *fixture {
	t.Helper()
	dev, err := disk.NewMemoryDevice(testPageSize, 0)
	require.NoError(t, err)
	require.NoError(t, dev.Truncate(testPageSize))
	cache, err := pagecache.New(dev, testPageSize, pagecache.Options{EnableCRC32: true}, zap.NewNop())
	require.NoError(t, err)
	fl := freelist.New(testPageSize, 1, dev, nil)
	cache.SetAllocator(fl)
	blobs, err := New(cache, testPageSize, cacheBytes, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(blobs.Close)
	return &fixture{cache: cache, fl: fl, blobs: blobs}
}

func TestAllocateReadAcrossPages(t *testing.T) {
	for _, cacheBytes := range []int64{0, DefaultCacheBytes} {
		f := newFixture(t, cacheBytes)
		for _, size := range []int{0, 1, 100, 492, 493, 5000} {
			data := bytes.Repeat([]byte{byte(size)}, size)
			id, err := f.blobs.Allocate(data)
			require.NoError(t, err)

			got, err := f.blobs.Read(id)
			require.NoError(t, err)
			require.Equal(t, data, got, "size %d", size)

			// Cached reads hand out copies.
			got = append(got, 'x')
			again, err := f.blobs.Read(id)
			require.NoError(t, err)
			require.Equal(t, data, again)
		}
	}
}

func TestOverwriteKeepsIDAndResizesChain(t *testing.T) {
	f := newFixture(t, DefaultCacheBytes)
	id, err := f.blobs.Allocate(bytes.Repeat([]byte("a"), 2000))
	require.NoError(t, err)
	_, err = f.blobs.Read(id)
	require.NoError(t, err)
	before := f.fl.Allocated()

	require.NoError(t, f.blobs.Overwrite(id, []byte("short")))
	got, err := f.blobs.Read(id)
	require.NoError(t, err)
	require.Equal(t, []byte("short"), got)
	require.Less(t, f.fl.Allocated(), before)

	long := bytes.Repeat([]byte("b"), 3000)
	require.NoError(t, f.blobs.Overwrite(id, long))
	got, err = f.blobs.Read(id)
	require.NoError(t, err)
	require.Equal(t, long, got)
	pages, err := f.blobs.Pages(id)
	require.NoError(t, err)
	require.Len(t, pages, 7)
	require.Equal(t, id, pages[0])
}

func TestFreeReturnsPages(t *testing.T) {
	f := newFixture(t, DefaultCacheBytes)
	start := f.fl.Allocated()
	id, err := f.blobs.Allocate(bytes.Repeat([]byte("z"), 1500))
	require.NoError(t, err)
	require.Equal(t, start+4, f.fl.Allocated())

	require.NoError(t, f.blobs.Free(id))
	require.Equal(t, start, f.fl.Allocated())

	// The id now refers to a page of another kind.
	page, err := f.cache.AllocatePage(pagemanager.KindBtreeLeaf)
	require.NoError(t, err)
	require.Equal(t, id, page.Address())
	f.cache.Release(page)
	_, err = f.blobs.Read(id)
	require.ErrorIs(t, err, dberror.ErrCorruption)
}
