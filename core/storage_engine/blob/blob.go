// Package blob stores byte strings that do not fit into a B-tree node: large
// records, extended keys and duplicate tables. A blob is a chain of blob pages
// and is identified by the address of its first page.
package blob

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
	pagemanager "github.com/sushant-115/stratadb/core/write_engine/page_manager"
)

// Layout of a blob page.
const (
	chunkLenOffset = 4
	nextOffset     = 8
	dataOffset     = 16
)

// DefaultCacheBytes is the default budget of the blob read cache.
const DefaultCacheBytes int64 = 256 << 10

// Pager is the subset of the page cache used by blobs.
type Pager interface {
	Acquire(addr uint64, mode pagecache.AccessMode) (*pagemanager.Page, error)
	Release(page *pagemanager.Page)
	AllocatePage(kind pagemanager.PageKind) (*pagemanager.Page, error)
	FreePage(addr uint64) error
}

// Manager allocates, reads and frees blobs.
type Manager struct {
	pager    Pager
	capacity int
	cache    *ristretto.Cache[uint64, []byte]
	logger   *zap.Logger
}

// New creates a blob manager. cacheBytes <= 0 disables the read cache.
func New(pager Pager, pageSize int, cacheBytes int64, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		pager:    pager,
		capacity: pageSize - pagemanager.TrailerSize - dataOffset,
		logger:   logger,
	}
	if cacheBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
			NumCounters: max(1000, cacheBytes/64),
			MaxCost:     cacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("creating blob cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

// Allocate stores data in a new blob and returns its id.
func (m *Manager) Allocate(data []byte) (uint64, error) {
	n := m.pagesFor(len(data))
	pages := make([]*pagemanager.Page, 0, n)
	defer func() {
		for _, p := range pages {
			m.pager.Release(p)
		}
	}()
	for i := 0; i < n; i++ {
		p, err := m.pager.AllocatePage(pagemanager.KindBlob)
		if err != nil {
			for _, q := range pages {
				if ferr := m.pager.FreePage(q.Address()); ferr != nil {
					m.logger.Warn("failed to release blob page", zap.Uint64("addr", q.Address()), zap.Error(ferr))
				}
			}
			pages = nil
			return 0, err
		}
		pages = append(pages, p)
	}
	m.fill(pages, data)
	return pages[0].Address(), nil
}

// Read returns a copy of the blob's contents.
func (m *Manager) Read(id uint64) ([]byte, error) {
	if m.cache != nil {
		if data, ok := m.cache.Get(id); ok {
			return append([]byte(nil), data...), nil
		}
	}
	var out []byte
	err := m.walk(id, func(p *pagemanager.Page) error {
		n := int(binary.LittleEndian.Uint32(p.Data()[chunkLenOffset:]))
		if n > m.capacity {
			return fmt.Errorf("%w: blob page %d claims %d bytes", dberror.ErrCorruption, p.Address(), n)
		}
		out = append(out, p.Data()[dataOffset:dataOffset+n]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []byte{}
	}
	if m.cache != nil {
		m.cache.Set(id, append([]byte(nil), out...), int64(len(out))+1)
	}
	return out, nil
}

// Overwrite replaces the contents of blob id, reusing its pages where
// possible. The blob keeps its id.
func (m *Manager) Overwrite(id uint64, data []byte) error {
	addrs, err := m.Pages(id)
	if err != nil {
		return err
	}
	m.invalidate(id)
	need := m.pagesFor(len(data))
	pages := make([]*pagemanager.Page, 0, need)
	defer func() {
		for _, p := range pages {
			m.pager.Release(p)
		}
	}()
	for i := 0; i < need; i++ {
		var p *pagemanager.Page
		if i < len(addrs) {
			p, err = m.pager.Acquire(addrs[i], pagecache.ReadWrite)
		} else {
			p, err = m.pager.AllocatePage(pagemanager.KindBlob)
		}
		if err != nil {
			return err
		}
		pages = append(pages, p)
	}
	m.fill(pages, data)
	for _, addr := range addrs[min(need, len(addrs)):] {
		if err := m.pager.FreePage(addr); err != nil {
			return err
		}
	}
	return nil
}

// Free releases every page of blob id.
func (m *Manager) Free(id uint64) error {
	addrs, err := m.Pages(id)
	if err != nil {
		return err
	}
	m.invalidate(id)
	for _, addr := range addrs {
		if err := m.pager.FreePage(addr); err != nil {
			return err
		}
	}
	return nil
}

// Pages returns the addresses of the pages holding blob id.
func (m *Manager) Pages(id uint64) ([]uint64, error) {
	var addrs []uint64
	err := m.walk(id, func(p *pagemanager.Page) error {
		addrs = append(addrs, p.Address())
		return nil
	})
	return addrs, err
}

// Purge empties the read cache.
func (m *Manager) Purge() {
	if m.cache != nil {
		m.cache.Clear()
	}
}

// Close releases the read cache.
func (m *Manager) Close() {
	if m.cache != nil {
		m.cache.Close()
	}
}

func (m *Manager) invalidate(id uint64) {
	if m.cache != nil {
		m.cache.Wait()
		m.cache.Del(id)
	}
}

func (m *Manager) pagesFor(n int) int {
	if n == 0 {
		return 1
	}
	return (n + m.capacity - 1) / m.capacity
}

// fill writes data across pages and links them.
func (m *Manager) fill(pages []*pagemanager.Page, data []byte) {
	for i, p := range pages {
		buf := p.Data()
		clear(buf[1:])
		p.SetKind(pagemanager.KindBlob)
		chunk := data[min(i*m.capacity, len(data)):min((i+1)*m.capacity, len(data))]
		binary.LittleEndian.PutUint32(buf[chunkLenOffset:], uint32(len(chunk)))
		var next uint64
		if i+1 < len(pages) {
			next = pages[i+1].Address()
		}
		binary.LittleEndian.PutUint64(buf[nextOffset:], next)
		copy(buf[dataOffset:], chunk)
	}
}

func (m *Manager) walk(id uint64, fn func(p *pagemanager.Page) error) error {
	seen := make(map[uint64]struct{})
	for addr := id; addr != pagemanager.InvalidAddress; {
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("%w: blob %d chain loops at %d", dberror.ErrCorruption, id, addr)
		}
		seen[addr] = struct{}{}
		p, err := m.pager.Acquire(addr, pagecache.ReadOnly)
		if err != nil {
			return err
		}
		if p.Kind() != pagemanager.KindBlob {
			m.pager.Release(p)
			return fmt.Errorf("%w: page %d of blob %d has kind %s", dberror.ErrCorruption, addr, id, p.Kind())
		}
		err = fn(p)
		next := binary.LittleEndian.Uint64(p.Data()[nextOffset:])
		m.pager.Release(p)
		if err != nil {
			return err
		}
		addr = next
	}
	return nil
}
