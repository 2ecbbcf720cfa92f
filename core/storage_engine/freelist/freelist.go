package freelist

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	pagemanager "github.com/sushant-115/stratadb/core/write_engine/page_manager"
)

// Grower extends the backing store. disk.Device satisfies it.
type Grower interface {
	Truncate(size uint64) error
}

// PageStore reads and writes whole page images on behalf of the freelist.
// The page cache implements it so freelist pages share the flush path of
// every other page.
type PageStore interface {
	LoadPage(addr uint64) ([]byte, error)
	StorePage(addr uint64, data []byte) error
}

// Layout of a freelist page.
const (
	regionKindOffset = 0
	regionLenOffset  = 4
	regionLoOffset   = 8
	regionNextOffset = 16
	regionDataOffset = 24
)

// region covers the blocks [lo, next region's lo). used caches its popcount
// so searches can skip full regions without touching the bitmap.
type region struct {
	lo   uint64
	bits *SparseMap
	used uint64
}

// RegionInfo describes a region for reporting.
type RegionInfo struct {
	Lo        uint64
	Hi        uint64
	Allocated uint64
	Bytes     int
}

// Freelist is the space manager: bit i set means block i is allocated.
type Freelist struct {
	mu       sync.Mutex
	pageSize uint64
	blocks   uint64
	regions  []*region
	pages    []uint64
	grower   Grower
	maxBytes int
	logger   *zap.Logger
}

// New creates a space manager for a store that currently holds blocks blocks.
// Block 0 (the header) is marked allocated.
func New(pageSize int, blocks uint64, grower Grower, logger *zap.Logger) *Freelist {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Freelist{
		pageSize: uint64(pageSize),
		blocks:   blocks,
		regions:  []*region{{lo: 0, bits: NewSparseMap()}},
		grower:   grower,
		maxBytes: pageSize - pagemanager.TrailerSize - regionDataOffset,
		logger:   logger,
	}
	if blocks > 0 {
		f.regions[0].bits.Set(0, true)
		f.regions[0].used = 1
	}
	return f
}

func (f *Freelist) hi(i int) uint64 {
	if i+1 < len(f.regions) {
		return f.regions[i+1].lo
	}
	return ^uint64(0)
}

func (f *Freelist) regionOf(idx uint64) int {
	for i := len(f.regions) - 1; i > 0; i-- {
		if f.regions[i].lo <= idx {
			return i
		}
	}
	return 0
}

// Allocate returns the address of a free block and marks it used. When no
// block is free the store grows by one block.
func (f *Freelist) Allocate() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocate()
}

func (f *Freelist) allocate() (uint64, error) {
	for i, r := range f.regions {
		hi := min(f.hi(i), f.blocks)
		if hi <= r.lo || r.used >= hi-r.lo {
			continue
		}
		if idx, ok := r.bits.NextClear(r.lo, hi); ok {
			f.mark(i, idx)
			return idx * f.pageSize, nil
		}
	}
	idx := f.blocks
	if err := f.grow(1); err != nil {
		return 0, err
	}
	f.mark(f.regionOf(idx), idx)
	return idx * f.pageSize, nil
}

func (f *Freelist) mark(i int, idx uint64) {
	r := f.regions[i]
	r.bits.Set(idx, true)
	r.used++
	f.maybeSplit(i)
}

// Free marks the block at addr free. It becomes available to the next
// allocation at the same address.
func (f *Freelist) Free(addr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free(addr)
}

func (f *Freelist) free(addr uint64) error {
	idx, err := f.index(addr)
	if err != nil {
		return err
	}
	if idx == 0 {
		return fmt.Errorf("%w: cannot free the header page", dberror.ErrInvalidParameter)
	}
	i := f.regionOf(idx)
	r := f.regions[i]
	if !r.bits.IsSet(idx) {
		return fmt.Errorf("%w: block %d is not allocated", dberror.ErrInvalidParameter, idx)
	}
	r.bits.Set(idx, false)
	r.used--
	f.maybeSplit(i)
	return nil
}

// Reserve marks the block at addr allocated. It is used when rebuilding state.
func (f *Freelist) Reserve(addr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, err := f.index(addr)
	if err != nil {
		return err
	}
	i := f.regionOf(idx)
	if f.regions[i].bits.IsSet(idx) {
		return nil
	}
	f.mark(i, idx)
	return nil
}

func (f *Freelist) index(addr uint64) (uint64, error) {
	if addr%f.pageSize != 0 {
		return 0, fmt.Errorf("%w: address %d is not page aligned", dberror.ErrInvalidParameter, addr)
	}
	idx := addr / f.pageSize
	if idx >= f.blocks {
		return 0, fmt.Errorf("%w: address %d beyond end of store", dberror.ErrInvalidParameter, addr)
	}
	return idx, nil
}

// Grow extends the store by n blocks. On failure nothing changes.
func (f *Freelist) Grow(n uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grow(n)
}

func (f *Freelist) grow(n uint64) error {
	if f.grower != nil {
		if err := f.grower.Truncate((f.blocks + n) * f.pageSize); err != nil {
			return err
		}
	}
	f.blocks += n
	return nil
}

// IsAllocated reports whether the block at addr is in use.
func (f *Freelist) IsAllocated(addr uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := addr / f.pageSize
	return f.regions[f.regionOf(idx)].bits.IsSet(idx)
}

// Select returns the address of the k-th (0-based) allocated block in
// ascending address order.
func (f *Freelist) Select(k uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.regions {
		if k < r.used {
			idx, ok := r.bits.Select(k)
			if !ok {
				return 0, fmt.Errorf("%w: region at %d lost track of its bits", dberror.ErrCorruption, r.lo)
			}
			return idx * f.pageSize, nil
		}
		k -= r.used
	}
	return 0, fmt.Errorf("%w: only %d blocks allocated", dberror.ErrInvalidParameter, f.allocated())
}

// Allocated returns the number of allocated blocks.
func (f *Freelist) Allocated() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocated()
}

func (f *Freelist) allocated() uint64 {
	var n uint64
	for _, r := range f.regions {
		n += r.used
	}
	return n
}

// Blocks returns the size of the store in blocks.
func (f *Freelist) Blocks() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks
}

// Scan calls fn with the address of every allocated block in ascending order.
func (f *Freelist) Scan(fn func(addr uint64) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.regions {
		stop := false
		r.bits.Scan(func(idx uint64) bool {
			if !fn(idx * f.pageSize) {
				stop = true
			}
			return !stop
		})
		if stop {
			return
		}
	}
}

// ChainPages returns the addresses of the pages holding the persisted regions.
func (f *Freelist) ChainPages() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.pages...)
}

// Regions returns a snapshot of the region layout.
func (f *Freelist) Regions() []RegionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RegionInfo, len(f.regions))
	for i, r := range f.regions {
		out[i] = RegionInfo{Lo: r.lo, Hi: f.hi(i), Allocated: r.used, Bytes: r.bits.EncodedSize()}
	}
	return out
}

// SplitRegion splits the region containing block at so that at becomes the
// first block of a new region. at must be aligned to 64 blocks.
func (f *Freelist) SplitRegion(at uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.splitRegion(at)
}

func (f *Freelist) splitRegion(at uint64) error {
	i := f.regionOf(at)
	r := f.regions[i]
	if at == r.lo {
		return fmt.Errorf("%w: block %d already starts a region", dberror.ErrInvalidParameter, at)
	}
	moved := NewSparseMap()
	if err := r.bits.Split(at, moved); err != nil {
		return err
	}
	nr := &region{lo: at, bits: moved, used: moved.Popcount()}
	r.used -= nr.used
	f.regions = append(f.regions, nil)
	copy(f.regions[i+2:], f.regions[i+1:])
	f.regions[i+1] = nr
	f.logger.Debug("freelist region split", zap.Uint64("lo", r.lo), zap.Uint64("at", at),
		zap.Uint64("moved", nr.used))
	return nil
}

// MergeRegions folds region i+1 into region i.
func (f *Freelist) MergeRegions(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mergeRegions(i)
}

func (f *Freelist) mergeRegions(i int) error {
	if i < 0 || i+1 >= len(f.regions) {
		return fmt.Errorf("%w: no region after %d", dberror.ErrInvalidParameter, i)
	}
	r, next := f.regions[i], f.regions[i+1]
	if err := r.bits.Merge(next.bits); err != nil {
		return err
	}
	r.used += next.used
	f.regions = append(f.regions[:i+1], f.regions[i+2:]...)
	return nil
}

// maybeSplit keeps every region small enough to be persisted in one page.
func (f *Freelist) maybeSplit(i int) {
	r := f.regions[i]
	if r.bits.EncodedSize() <= f.maxBytes {
		return
	}
	at, ok := r.bits.SplitPoint(r.lo)
	if !ok {
		return
	}
	if err := f.splitRegion(at); err != nil {
		f.logger.Warn("freelist region split failed", zap.Uint64("at", at), zap.Error(err))
	}
}

// compact merges neighbours whose combined encoding fits in half a page.
func (f *Freelist) compact() {
	for i := 0; i+1 < len(f.regions); {
		a, b := f.regions[i], f.regions[i+1]
		if a.bits.EncodedSize()+b.bits.EncodedSize() <= f.maxBytes/2 {
			if err := f.mergeRegions(i); err == nil {
				continue
			}
		}
		i++
	}
}

// Persist writes the regions into a chain of freelist pages and returns the
// address of the first one. Pages for the chain are allocated from the
// freelist itself, so the written state includes them.
func (f *Freelist) Persist(store PageStore) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.compact()
	for len(f.pages) > len(f.regions) {
		last := f.pages[len(f.pages)-1]
		f.pages = f.pages[:len(f.pages)-1]
		if err := f.free(last); err != nil {
			return 0, err
		}
	}
	for len(f.pages) < len(f.regions) {
		addr, err := f.allocate()
		if err != nil {
			return 0, err
		}
		f.pages = append(f.pages, addr)
	}

	for i, r := range f.regions {
		enc, err := r.bits.MarshalBinary()
		if err != nil {
			return 0, err
		}
		if len(enc) > f.maxBytes {
			return 0, fmt.Errorf("%w: freelist region at %d needs %d bytes", dberror.ErrLimitsReached, r.lo, len(enc))
		}
		var next uint64
		if i+1 < len(f.pages) {
			next = f.pages[i+1]
		}
		buf := make([]byte, f.pageSize)
		buf[regionKindOffset] = byte(pagemanager.KindFreelist)
		binary.LittleEndian.PutUint32(buf[regionLenOffset:], uint32(len(enc)))
		binary.LittleEndian.PutUint64(buf[regionLoOffset:], r.lo)
		binary.LittleEndian.PutUint64(buf[regionNextOffset:], next)
		copy(buf[regionDataOffset:], enc)
		if err := store.StorePage(f.pages[i], buf); err != nil {
			return 0, err
		}
	}
	return f.pages[0], nil
}

// Load rebuilds a freelist from the page chain starting at root.
func Load(store PageStore, root uint64, pageSize int, blocks uint64, grower Grower, logger *zap.Logger) (*Freelist, error) {
	f := New(pageSize, blocks, grower, logger)
	if root == pagemanager.InvalidAddress {
		return f, nil
	}
	f.regions = nil
	seen := make(map[uint64]bool)
	for addr := root; addr != pagemanager.InvalidAddress; {
		if seen[addr] || addr/f.pageSize >= blocks {
			return nil, fmt.Errorf("%w: bad freelist page chain at %d", dberror.ErrCorruption, addr)
		}
		seen[addr] = true
		buf, err := store.LoadPage(addr)
		if err != nil {
			return nil, err
		}
		if pagemanager.PageKind(buf[regionKindOffset]) != pagemanager.KindFreelist {
			return nil, fmt.Errorf("%w: page %d is not a freelist page", dberror.ErrCorruption, addr)
		}
		n := int(binary.LittleEndian.Uint32(buf[regionLenOffset:]))
		if n > f.maxBytes {
			return nil, fmt.Errorf("%w: freelist page %d claims %d bytes", dberror.ErrCorruption, addr, n)
		}
		r := &region{lo: binary.LittleEndian.Uint64(buf[regionLoOffset:]), bits: NewSparseMap()}
		if err := r.bits.UnmarshalBinary(buf[regionDataOffset : regionDataOffset+n]); err != nil {
			return nil, err
		}
		if len(f.regions) > 0 && r.lo <= f.regions[len(f.regions)-1].lo {
			return nil, fmt.Errorf("%w: freelist regions out of order at %d", dberror.ErrCorruption, addr)
		}
		f.regions = append(f.regions, r)
		f.pages = append(f.pages, addr)
		addr = binary.LittleEndian.Uint64(buf[regionNextOffset:])
	}
	if len(f.regions) == 0 || f.regions[0].lo != 0 {
		return nil, fmt.Errorf("%w: freelist does not start at block 0", dberror.ErrCorruption)
	}
	for i, r := range f.regions {
		r.used = r.bits.PopcountRange(r.lo, f.hi(i))
	}
	return f, nil
}
