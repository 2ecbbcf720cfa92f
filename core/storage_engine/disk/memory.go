package disk

import (
	"fmt"
	"sync"

	"github.com/sushant-115/stratadb/core/dberror"
)

// MemoryDevice keeps the whole store in a byte slice. A non-zero limit caps
// its size; growing past it fails with ErrOutOfMemory.
type MemoryDevice struct {
	mu       sync.Mutex
	data     []byte
	pageSize int
	limit    uint64
}

func NewMemoryDevice(pageSize int, limit uint64) (*MemoryDevice, error) {
	if err := ValidatePageSize(pageSize); err != nil {
		return nil, err
	}
	return &MemoryDevice{pageSize: pageSize, limit: limit}, nil
}

func (m *MemoryDevice) PageSize() int { return m.pageSize }
func (m *MemoryDevice) Path() string  { return "" }

func (m *MemoryDevice) ReadPage(addr uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buf) != m.pageSize {
		return fmt.Errorf("%w: page buffer size (%d) != page size (%d)", dberror.ErrInvalidParameter, len(buf), m.pageSize)
	}
	if addr+uint64(m.pageSize) > uint64(len(m.data)) {
		return fmt.Errorf("%w: read past end of store at offset %d", dberror.ErrIO, addr)
	}
	copy(buf, m.data[addr:addr+uint64(m.pageSize)])
	return nil
}

func (m *MemoryDevice) WritePage(addr uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(buf) != m.pageSize {
		return fmt.Errorf("%w: page buffer size (%d) != page size (%d)", dberror.ErrInvalidParameter, len(buf), m.pageSize)
	}
	end := addr + uint64(m.pageSize)
	if end > uint64(len(m.data)) {
		if err := m.resize(end); err != nil {
			return err
		}
	}
	copy(m.data[addr:end], buf)
	return nil
}

func (m *MemoryDevice) Size() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.data)), nil
}

func (m *MemoryDevice) Truncate(size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resize(size)
}

func (m *MemoryDevice) resize(size uint64) error {
	if m.limit > 0 && size > m.limit {
		return fmt.Errorf("%w: in-memory store limited to %d bytes", dberror.ErrOutOfMemory, m.limit)
	}
	if size <= uint64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *MemoryDevice) Sync() error  { return nil }
func (m *MemoryDevice) Close() error { return nil }
