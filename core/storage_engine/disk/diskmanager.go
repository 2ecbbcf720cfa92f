package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sushant-115/stratadb/core/dberror"
)

// --- Configuration & Constants ---

const (
	DefaultPageSize   = 1024
	MinPageSize       = 512
	MaxPageSize       = 65536
	MaxFilenameLength = 4096
)

var (
	ErrFileExists   = errors.New("database file already exists")
	ErrFileNotFound = errors.New("database file not found")
)

// Device is the backing store of an environment. Addresses are byte offsets
// and always multiples of the page size.
type Device interface {
	PageSize() int
	ReadPage(addr uint64, buf []byte) error
	WritePage(addr uint64, buf []byte) error
	// Size returns the current size of the store in bytes.
	Size() (uint64, error)
	// Truncate grows or shrinks the store to size bytes.
	Truncate(size uint64) error
	Sync() error
	Close() error
	// Path returns the backing file name, or "" for in-memory devices.
	Path() string
}

// ValidatePageSize checks that pageSize is a power of two inside the supported range.
func ValidatePageSize(pageSize int) error {
	if pageSize < MinPageSize || pageSize > MaxPageSize || pageSize&(pageSize-1) != 0 {
		return fmt.Errorf("%w: page size %d must be a power of two in [%d, %d]",
			dberror.ErrInvalidParameter, pageSize, MinPageSize, MaxPageSize)
	}
	return nil
}

// --- DiskManager ---

// DiskManager is the file-backed Device.
type DiskManager struct {
	filePath string
	file     *os.File
	pageSize int
	readOnly bool
	mu       sync.Mutex
}

// CreateFile creates a new, empty database file. It fails if the file exists.
func CreateFile(filePath string, pageSize int) (*DiskManager, error) {
	if err := checkArgs(filePath, pageSize); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, filePath)
		}
		return nil, fmt.Errorf("%w: creating file %s: %v", dberror.ErrIO, filePath, err)
	}
	return &DiskManager{filePath: filePath, file: file, pageSize: pageSize}, nil
}

// OpenFile opens an existing database file.
func OpenFile(filePath string, pageSize int, readOnly bool) (*DiskManager, error) {
	if err := checkArgs(filePath, pageSize); err != nil {
		return nil, err
	}
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	file, err := os.OpenFile(filePath, flags, 0644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
		}
		return nil, fmt.Errorf("%w: opening file %s: %v", dberror.ErrIO, filePath, err)
	}
	return &DiskManager{filePath: filePath, file: file, pageSize: pageSize, readOnly: readOnly}, nil
}

func checkArgs(filePath string, pageSize int) error {
	if filePath == "" || len(filePath) > MaxFilenameLength {
		return fmt.Errorf("%w: invalid file path %q", dberror.ErrInvalidParameter, filePath)
	}
	return ValidatePageSize(pageSize)
}

func (dm *DiskManager) PageSize() int { return dm.pageSize }
func (dm *DiskManager) Path() string  { return dm.filePath }

// SetPageSize is used after the header has been read with a provisional page size.
func (dm *DiskManager) SetPageSize(pageSize int) error {
	if err := ValidatePageSize(pageSize); err != nil {
		return err
	}
	dm.mu.Lock()
	dm.pageSize = pageSize
	dm.mu.Unlock()
	return nil
}

// ReadPage reads a page's data from disk into the provided buffer.
func (dm *DiskManager) ReadPage(addr uint64, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return fmt.Errorf("%w: file not open", dberror.ErrIO)
	}
	if len(buf) != dm.pageSize {
		return fmt.Errorf("%w: page buffer size (%d) != page size (%d)", dberror.ErrInvalidParameter, len(buf), dm.pageSize)
	}
	n, err := dm.file.ReadAt(buf, int64(addr))
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: EOF reading page at offset %d", dberror.ErrIO, addr)
		}
		return fmt.Errorf("%w: reading page at offset %d: %v", dberror.ErrIO, addr, err)
	}
	if n != dm.pageSize {
		return fmt.Errorf("%w: short read at offset %d, expected %d, got %d", dberror.ErrIO, addr, dm.pageSize, n)
	}
	return nil
}

// WritePage writes a page at the given address. It does not sync.
func (dm *DiskManager) WritePage(addr uint64, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return fmt.Errorf("%w: file not open", dberror.ErrIO)
	}
	if dm.readOnly {
		return dberror.ErrReadOnly
	}
	if len(buf) != dm.pageSize {
		return fmt.Errorf("%w: page buffer size (%d) != page size (%d)", dberror.ErrInvalidParameter, len(buf), dm.pageSize)
	}
	if _, err := dm.file.WriteAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("%w: writing page at offset %d: %v", dberror.ErrIO, addr, err)
	}
	return nil
}

func (dm *DiskManager) Size() (uint64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return 0, fmt.Errorf("%w: file not open", dberror.ErrIO)
	}
	fi, err := dm.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: getting file info: %v", dberror.ErrIO, err)
	}
	return uint64(fi.Size()), nil
}

func (dm *DiskManager) Truncate(size uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return fmt.Errorf("%w: file not open", dberror.ErrIO)
	}
	if dm.readOnly {
		return dberror.ErrReadOnly
	}
	if err := dm.file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("%w: resizing file to %d bytes: %v", dberror.ErrIO, size, err)
	}
	return nil
}

// Sync flushes all buffered data to disk.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil || dm.readOnly {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", dberror.ErrIO, err)
	}
	return nil
}

// Close closes the underlying file handle without syncing; callers flush first.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	err := dm.file.Close()
	dm.file = nil
	if err != nil {
		return fmt.Errorf("%w: close: %v", dberror.ErrIO, err)
	}
	return nil
}
