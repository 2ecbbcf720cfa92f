package pagecache

import (
	"container/list" // For LRU
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/storage_engine/common"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	pagemanager "github.com/sushant-115/stratadb/core/write_engine/page_manager"
)

const (
	// DefaultCacheSize is the default byte budget of the cache.
	DefaultCacheSize uint64 = 1 << 20

	// minResidentPages keeps a B-tree descent (path plus siblings) resident
	// even with a tiny budget.
	minResidentPages = 16
)

// AccessMode selects how a page is acquired.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	// ReadWrite marks the page dirty on acquisition.
	ReadWrite
)

// PageTransform is applied to a page image on its way to and from the device.
// It must not change the length of buf.
type PageTransform interface {
	Encode(addr uint64, buf []byte) error
	Decode(addr uint64, buf []byte) error
}

// Allocator hands out and takes back page addresses. The freelist implements it.
type Allocator interface {
	Allocate() (uint64, error)
	Free(addr uint64) error
}

// Options configures a PageCache.
type Options struct {
	// CacheSize is the byte budget for resident pages.
	CacheSize uint64
	// Unlimited lifts the budget of a CacheOnly cache.
	Unlimited bool
	// CacheOnly keeps every page in memory and never touches the device.
	CacheOnly bool
	// NoSteal keeps dirty pages resident until FlushAll. The budget becomes
	// soft and NeedsCheckpoint reports when it is exceeded.
	NoSteal bool
	// EnableCRC32 stamps and verifies the page trailer.
	EnableCRC32 bool
	Transform   PageTransform
	// Throttle limits the write rate of FlushAll.
	Throttle *common.Throttle
}

// Image is a device-ready copy of a page.
type Image struct {
	Addr uint64
	Data []byte
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
	Resident  int
	Dirty     int
	Capacity  uint64
}

// PageCache keeps recently used pages in memory and writes dirty pages back
// to the device. It implements a simple LRU eviction policy over a byte budget.
type PageCache struct {
	mu        sync.Mutex
	dev       disk.Device
	alloc     Allocator
	pageSize  int
	opts      Options
	pageTable map[uint64]*pagemanager.Page
	lruList   *list.List // front = most recently used
	logger    *zap.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	flushes   atomic.Uint64
}

// New creates a page cache over dev. dev may be nil for a CacheOnly cache.
func New(dev disk.Device, pageSize int, opts Options, logger *zap.Logger) (*PageCache, error) {
	if err := disk.ValidatePageSize(pageSize); err != nil {
		return nil, err
	}
	if dev == nil && !opts.CacheOnly {
		return nil, fmt.Errorf("%w: page cache needs a device", dberror.ErrInvalidParameter)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}
	c := &PageCache{
		dev:       dev,
		pageSize:  pageSize,
		opts:      opts,
		pageTable: make(map[uint64]*pagemanager.Page),
		lruList:   list.New(),
		logger:    logger,
	}
	logger.Debug("page cache initialized", zap.Int("page_size", pageSize),
		zap.Uint64("cache_size", opts.CacheSize), zap.Bool("cache_only", opts.CacheOnly),
		zap.Bool("no_steal", opts.NoSteal))
	return c, nil
}

// SetAllocator wires the space manager used by AllocatePage and FreePage.
func (c *PageCache) SetAllocator(a Allocator) {
	c.mu.Lock()
	c.alloc = a
	c.mu.Unlock()
}

func (c *PageCache) PageSize() int { return c.pageSize }

// SetCapacity changes the byte budget. Pages above the new budget are
// evicted lazily.
func (c *PageCache) SetCapacity(bytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.CacheSize = bytes
	c.shrinkLocked()
}

func (c *PageCache) Capacity() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.CacheSize
}

func (c *PageCache) capacityPages() int {
	n := int(c.opts.CacheSize / uint64(c.pageSize))
	if n < minResidentPages && !c.opts.CacheOnly {
		n = minResidentPages
	}
	return n
}

// Acquire returns the page at addr pinned. ReadWrite marks it dirty.
func (c *PageCache) Acquire(addr uint64, mode AccessMode) (*pagemanager.Page, error) {
	if addr == disk.HeaderAddress || addr%uint64(c.pageSize) != 0 {
		return nil, fmt.Errorf("%w: page address %d", dberror.ErrInvalidParameter, addr)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if page, ok := c.pageTable[addr]; ok {
		c.hits.Add(1)
		page.Pin()
		c.lruList.MoveToFront(page.LruElement())
		if mode == ReadWrite {
			page.SetDirty(true)
		}
		return page, nil
	}
	c.misses.Add(1)
	if c.opts.CacheOnly {
		return nil, fmt.Errorf("%w: page %d is not resident", dberror.ErrIO, addr)
	}

	page, err := c.frameLocked(addr)
	if err != nil {
		return nil, err
	}
	if err := c.readLocked(addr, page.Data()); err != nil {
		return nil, err
	}
	c.trackLocked(page)
	page.Pin()
	if mode == ReadWrite {
		page.SetDirty(true)
	}
	return page, nil
}

// Release unpins a page acquired with Acquire or AllocatePage.
func (c *PageCache) Release(page *pagemanager.Page) {
	if page == nil {
		return
	}
	c.mu.Lock()
	page.Unpin()
	c.mu.Unlock()
}

// MarkDirty marks an acquired page as modified.
func (c *PageCache) MarkDirty(page *pagemanager.Page) {
	c.mu.Lock()
	page.SetDirty(true)
	c.mu.Unlock()
}

// AllocatePage takes a block from the space manager and returns a zeroed,
// pinned, dirty page of the given kind.
func (c *PageCache) AllocatePage(kind pagemanager.PageKind) (*pagemanager.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alloc == nil {
		return nil, fmt.Errorf("%w: page cache has no allocator", dberror.ErrInvalidParameter)
	}
	addr, err := c.alloc.Allocate()
	if err != nil {
		return nil, err
	}
	if stale, ok := c.pageTable[addr]; ok {
		c.dropLocked(stale)
	}
	page, err := c.frameLocked(addr)
	if err != nil {
		if ferr := c.alloc.Free(addr); ferr != nil {
			c.logger.Warn("failed to return block after frame allocation error",
				zap.Uint64("addr", addr), zap.Error(ferr))
		}
		return nil, err
	}
	page.SetKind(kind)
	page.SetDirty(true)
	page.Pin()
	c.trackLocked(page)
	return page, nil
}

// FreePage discards the cached copy of addr and returns the block to the
// space manager. The caller must not use the page afterwards.
func (c *PageCache) FreePage(addr uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alloc == nil {
		return fmt.Errorf("%w: page cache has no allocator", dberror.ErrInvalidParameter)
	}
	if page, ok := c.pageTable[addr]; ok {
		c.dropLocked(page)
	}
	return c.alloc.Free(addr)
}

// LoadPage returns a copy of the page at addr.
func (c *PageCache) LoadPage(addr uint64) ([]byte, error) {
	page, err := c.Acquire(addr, ReadOnly)
	if err != nil {
		return nil, err
	}
	defer c.Release(page)
	return append([]byte(nil), page.Data()...), nil
}

// StorePage replaces the contents of the page at addr without reading it
// from the device first.
func (c *PageCache) StorePage(addr uint64, data []byte) error {
	if len(data) != c.pageSize {
		return fmt.Errorf("%w: page image is %d bytes", dberror.ErrInvalidParameter, len(data))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.pageTable[addr]
	if !ok {
		var err error
		if page, err = c.frameLocked(addr); err != nil {
			return err
		}
		c.trackLocked(page)
	} else {
		c.lruList.MoveToFront(page.LruElement())
	}
	copy(page.Data(), data)
	page.SetDirty(true)
	return nil
}

// Flush writes the page at addr if it is resident and dirty.
func (c *PageCache) Flush(addr uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.pageTable[addr]
	if !ok || !page.IsDirty() || c.opts.CacheOnly {
		return nil
	}
	return c.writeLocked(page)
}

// FlushAll writes every dirty page in address order and syncs the device.
func (c *PageCache) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.CacheOnly {
		return nil
	}
	for _, page := range c.dirtyLocked() {
		if err := c.opts.Throttle.WaitN(ctx, c.pageSize); err != nil {
			return err
		}
		if err := c.writeLocked(page); err != nil {
			return err
		}
	}
	if err := c.dev.Sync(); err != nil {
		return err
	}
	c.shrinkLocked()
	return nil
}

// DirtyImages returns device-ready images of every dirty page in address order.
func (c *PageCache) DirtyImages() ([]Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dirty := c.dirtyLocked()
	images := make([]Image, 0, len(dirty))
	for _, page := range dirty {
		img, err := c.imageLocked(page)
		if err != nil {
			return nil, err
		}
		images = append(images, Image{Addr: page.Address(), Data: img})
	}
	return images, nil
}

// DirtyCount returns the number of dirty resident pages.
func (c *PageCache) DirtyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirtyLocked())
}

// NeedsCheckpoint reports that a no-steal cache has outgrown its budget.
func (c *PageCache) NeedsCheckpoint() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.NoSteal && len(c.pageTable) > c.capacityPages()
}

// Purge drops every resident page. Dirty pages are lost.
func (c *PageCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageTable = make(map[uint64]*pagemanager.Page)
	c.lruList.Init()
}

func (c *PageCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Flushes:   c.flushes.Load(),
		Resident:  len(c.pageTable),
		Dirty:     len(c.dirtyLocked()),
		Capacity:  c.opts.CacheSize,
	}
}

// DecodeImage turns a device image back into page contents, verifying the
// checksum. Recovery uses it to validate changeset images.
func (c *PageCache) DecodeImage(addr uint64, buf []byte) error {
	return c.decode(addr, buf)
}

// frameLocked returns an unused frame for addr, evicting if the budget is
// exhausted. This method MUST be called with c.mu locked.
func (c *PageCache) frameLocked(addr uint64) (*pagemanager.Page, error) {
	if len(c.pageTable) < c.capacityPages() {
		return pagemanager.NewPage(addr, c.pageSize), nil
	}
	if c.opts.CacheOnly {
		if c.opts.Unlimited {
			return pagemanager.NewPage(addr, c.pageSize), nil
		}
		return nil, fmt.Errorf("%w: cache budget of %d bytes exhausted", dberror.ErrOutOfMemory, c.opts.CacheSize)
	}
	victim := c.victimLocked()
	if victim == nil {
		// Every resident page is pinned or dirty without steal: exceed the budget.
		c.logger.Debug("page cache over budget", zap.Int("resident", len(c.pageTable)),
			zap.Int("capacity_pages", c.capacityPages()))
		return pagemanager.NewPage(addr, c.pageSize), nil
	}
	if victim.IsDirty() {
		if err := c.writeLocked(victim); err != nil {
			return nil, fmt.Errorf("failed to flush dirty victim page %d: %w", victim.Address(), err)
		}
	}
	c.dropLocked(victim)
	c.evictions.Add(1)
	victim.Reset(addr)
	return victim, nil
}

// victimLocked finds the least recently used evictable page.
func (c *PageCache) victimLocked() *pagemanager.Page {
	for e := c.lruList.Back(); e != nil; e = e.Prev() {
		page := e.Value.(*pagemanager.Page)
		if page.PinCount() > 0 {
			continue
		}
		if page.IsDirty() && c.opts.NoSteal {
			continue
		}
		return page
	}
	return nil
}

func (c *PageCache) shrinkLocked() {
	if c.opts.CacheOnly {
		return
	}
	for len(c.pageTable) > c.capacityPages() {
		victim := c.victimLocked()
		if victim == nil || victim.IsDirty() {
			return
		}
		c.dropLocked(victim)
		c.evictions.Add(1)
	}
}

func (c *PageCache) trackLocked(page *pagemanager.Page) {
	c.pageTable[page.Address()] = page
	page.SetLruElement(c.lruList.PushFront(page))
}

func (c *PageCache) dropLocked(page *pagemanager.Page) {
	delete(c.pageTable, page.Address())
	if e := page.LruElement(); e != nil {
		c.lruList.Remove(e)
		page.SetLruElement(nil)
	}
}

func (c *PageCache) dirtyLocked() []*pagemanager.Page {
	var dirty []*pagemanager.Page
	for _, page := range c.pageTable {
		if page.IsDirty() {
			dirty = append(dirty, page)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].Address() < dirty[j].Address() })
	return dirty
}

func (c *PageCache) imageLocked(page *pagemanager.Page) ([]byte, error) {
	buf := append([]byte(nil), page.Data()...)
	if c.opts.EnableCRC32 {
		pagemanager.StampChecksum(buf)
	}
	if c.opts.Transform != nil {
		if err := c.opts.Transform.Encode(page.Address(), buf); err != nil {
			return nil, fmt.Errorf("%w: encoding page %d: %v", dberror.ErrIO, page.Address(), err)
		}
	}
	return buf, nil
}

func (c *PageCache) writeLocked(page *pagemanager.Page) error {
	img, err := c.imageLocked(page)
	if err != nil {
		return err
	}
	if err := c.dev.WritePage(page.Address(), img); err != nil {
		return err
	}
	page.SetDirty(false)
	c.flushes.Add(1)
	return nil
}

func (c *PageCache) readLocked(addr uint64, buf []byte) error {
	if err := c.dev.ReadPage(addr, buf); err != nil {
		return err
	}
	return c.decode(addr, buf)
}

func (c *PageCache) decode(addr uint64, buf []byte) error {
	if isZero(buf) {
		// grown but never written
		return nil
	}
	if c.opts.Transform != nil {
		if err := c.opts.Transform.Decode(addr, buf); err != nil {
			return fmt.Errorf("%w: decoding page %d: %v", dberror.ErrIO, addr, err)
		}
	}
	if c.opts.EnableCRC32 && !pagemanager.VerifyChecksum(buf) {
		return fmt.Errorf("%w: checksum mismatch on page %d", dberror.ErrCorruption, addr)
	}
	return nil
}

func isZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
