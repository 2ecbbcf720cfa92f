package pagecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	"github.com/sushant-115/stratadb/core/storage_engine/freelist"
	pagemanager "github.com/sushant-115/stratadb/core/write_engine/page_manager"
)

const testPageSize = 1024

// xorTransform flips every byte with a per-address mask.
type xorTransform struct{}

func (xorTransform) Encode(addr uint64, buf []byte) error {
	for i := range buf {
		buf[i] ^= byte(addr>>10) + 0x5a
	}
	return nil
}

func (t xorTransform) Decode(addr uint64, buf []byte) error { return t.Encode(addr, buf) }

func newTestCache(t *testing.T, opts Options) (*PageCache, *disk.MemoryDevice) {
	t.Helper()
	dev, err := disk.NewMemoryDevice(testPageSize, 0)
	require.NoError(t, err)
	require.NoError(t, dev.Truncate(testPageSize))
	var cacheDev disk.Device = dev
	if opts.CacheOnly {
		cacheDev = nil
	}
	c, err := New(cacheDev, testPageSize, opts, zap.NewNop())
	require.NoError(t, err)
	c.SetAllocator(freelist.New(testPageSize, 1, dev, nil))
	return c, dev
}

func fill(page *pagemanager.Page, b byte) {
	payload := page.Payload()
	for i := 1; i < len(payload); i++ {
		payload[i] = b
	}
}

func TestEvictionWritesDirtyVictims(t *testing.T) {
	c, _ := newTestCache(t, Options{CacheSize: minResidentPages * testPageSize, EnableCRC32: true})

	var addrs []uint64
	for i := 0; i < 3*minResidentPages; i++ {
		page, err := c.AllocatePage(pagemanager.KindBlob)
		require.NoError(t, err)
		fill(page, byte(i))
		addrs = append(addrs, page.Address())
		c.Release(page)
	}
	stats := c.Stats()
	require.Greater(t, stats.Evictions, uint64(0))
	require.LessOrEqual(t, stats.Resident, minResidentPages)

	for i, addr := range addrs {
		page, err := c.Acquire(addr, ReadOnly)
		require.NoError(t, err)
		require.Equal(t, pagemanager.KindBlob, page.Kind())
		require.Equal(t, byte(i), page.Payload()[10], "page %d", addr)
		c.Release(page)
	}
}

func TestPinnedPagesAreNotEvicted(t *testing.T) {
	c, _ := newTestCache(t, Options{CacheSize: minResidentPages * testPageSize})

	var pinned []*pagemanager.Page
	for i := 0; i < minResidentPages+4; i++ {
		page, err := c.AllocatePage(pagemanager.KindBlob)
		require.NoError(t, err)
		pinned = append(pinned, page)
	}
	require.Equal(t, minResidentPages+4, c.Stats().Resident)
	require.Zero(t, c.Stats().Evictions)
	for _, page := range pinned {
		c.Release(page)
	}
}

func TestChecksumMismatchIsCorruption(t *testing.T) {
	c, dev := newTestCache(t, Options{EnableCRC32: true})
	page, err := c.AllocatePage(pagemanager.KindBtreeLeaf)
	require.NoError(t, err)
	fill(page, 7)
	addr := page.Address()
	c.Release(page)
	require.NoError(t, c.FlushAll(context.Background()))

	raw := make([]byte, testPageSize)
	require.NoError(t, dev.ReadPage(addr, raw))
	raw[100] ^= 0xff
	require.NoError(t, dev.WritePage(addr, raw))

	c.Purge()
	_, err = c.Acquire(addr, ReadOnly)
	require.ErrorIs(t, err, dberror.ErrCorruption)
}

func TestTransformRoundTrip(t *testing.T) {
	c, dev := newTestCache(t, Options{EnableCRC32: true, Transform: xorTransform{}})
	page, err := c.AllocatePage(pagemanager.KindBlob)
	require.NoError(t, err)
	fill(page, 0x42)
	addr := page.Address()
	want := append([]byte(nil), page.Data()...)
	c.Release(page)

	images, err := c.DirtyImages()
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, addr, images[0].Addr)
	require.NotEqual(t, want[:testPageSize-pagemanager.TrailerSize], images[0].Data[:testPageSize-pagemanager.TrailerSize])

	decoded := append([]byte(nil), images[0].Data...)
	require.NoError(t, c.DecodeImage(addr, decoded))
	require.Equal(t, want[:testPageSize-pagemanager.TrailerSize], decoded[:testPageSize-pagemanager.TrailerSize])

	require.NoError(t, c.FlushAll(context.Background()))
	raw := make([]byte, testPageSize)
	require.NoError(t, dev.ReadPage(addr, raw))
	require.Equal(t, images[0].Data, raw)

	c.Purge()
	got, err := c.LoadPage(addr)
	require.NoError(t, err)
	require.Equal(t, want[:testPageSize-pagemanager.TrailerSize], got[:testPageSize-pagemanager.TrailerSize])
}

func TestNoStealKeepsDirtyPages(t *testing.T) {
	c, _ := newTestCache(t, Options{CacheSize: minResidentPages * testPageSize, NoSteal: true})
	for i := 0; i < 2*minResidentPages; i++ {
		page, err := c.AllocatePage(pagemanager.KindBlob)
		require.NoError(t, err)
		c.Release(page)
	}
	stats := c.Stats()
	require.Zero(t, stats.Flushes)
	require.Equal(t, 2*minResidentPages, stats.Dirty)
	require.True(t, c.NeedsCheckpoint())

	require.NoError(t, c.FlushAll(context.Background()))
	require.False(t, c.NeedsCheckpoint())
	require.Zero(t, c.DirtyCount())
	require.Equal(t, uint64(2*minResidentPages), c.Stats().Flushes)
}

func TestCacheOnlyBudget(t *testing.T) {
	c, _ := newTestCache(t, Options{CacheSize: 4 * testPageSize, CacheOnly: true})
	for i := 0; i < 4; i++ {
		page, err := c.AllocatePage(pagemanager.KindBlob)
		require.NoError(t, err)
		c.Release(page)
	}
	_, err := c.AllocatePage(pagemanager.KindBlob)
	require.ErrorIs(t, err, dberror.ErrOutOfMemory)

	unlimited, _ := newTestCache(t, Options{CacheSize: 4 * testPageSize, CacheOnly: true, Unlimited: true})
	for i := 0; i < 10; i++ {
		page, err := unlimited.AllocatePage(pagemanager.KindBlob)
		require.NoError(t, err)
		unlimited.Release(page)
	}
	require.Equal(t, 10, unlimited.Stats().Resident)
}

func TestStorePageAndFreePage(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	page, err := c.AllocatePage(pagemanager.KindFreelist)
	require.NoError(t, err)
	addr := page.Address()
	c.Release(page)

	img := make([]byte, testPageSize)
	img[0] = byte(pagemanager.KindFreelist)
	img[500] = 9
	require.NoError(t, c.StorePage(addr, img))
	got, err := c.LoadPage(addr)
	require.NoError(t, err)
	require.Equal(t, img, got)

	require.NoError(t, c.FreePage(addr))
	require.Zero(t, c.Stats().Resident)

	again, err := c.AllocatePage(pagemanager.KindBlob)
	require.NoError(t, err)
	require.Equal(t, addr, again.Address())
	require.Zero(t, again.Payload()[500])
	c.Release(again)

	_, err = c.Acquire(0, ReadOnly)
	require.ErrorIs(t, err, dberror.ErrInvalidParameter)
}
