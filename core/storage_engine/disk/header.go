package disk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/stratadb/core/dberror"
)

const (
	HeaderMagic   uint32 = 0x41525453 // "STRA"
	HeaderVersion uint32 = 1

	// HeaderAddress is the address of the header page.
	HeaderAddress uint64 = 0

	fileHeaderSize   = 64
	databaseSlotSize = 24
)

// FileHeader is the fixed part of the header page.
// All fields have fixed sizes so binary.Read/Write stay consistent.
type FileHeader struct {
	Magic         uint32
	Version       uint32
	PageSize      uint32
	Flags         uint32
	MaxDatabases  uint16
	KeyInlineMax  uint16
	_             uint32
	FreelistRoot  uint64
	CheckpointLSN uint64
	_             [fileHeaderSize - 40]byte
}

// DatabaseSlot describes one database in the header directory. Name 0 marks a free slot.
type DatabaseSlot struct {
	Name          uint16
	_             uint16
	Flags         uint32
	Root          uint64
	RecordCounter uint64
}

// Header is the decoded header page.
type Header struct {
	FileHeader
	Databases []DatabaseSlot
}

// MaxDatabasesFor returns how many database slots fit into a header page.
func MaxDatabasesFor(pageSize int) int {
	n := (pageSize - fileHeaderSize) / databaseSlotSize
	if n > 0xFFFF {
		n = 0xFFFF
	}
	return n
}

// NewHeader returns an initialized header for a fresh environment.
func NewHeader(pageSize int, maxDatabases int, keyInlineMax int, flags uint32) (*Header, error) {
	if err := ValidatePageSize(pageSize); err != nil {
		return nil, err
	}
	if maxDatabases <= 0 || maxDatabases > MaxDatabasesFor(pageSize) {
		return nil, fmt.Errorf("%w: max databases %d (page size %d allows %d)",
			dberror.ErrInvalidParameter, maxDatabases, pageSize, MaxDatabasesFor(pageSize))
	}
	return &Header{
		FileHeader: FileHeader{
			Magic:        HeaderMagic,
			Version:      HeaderVersion,
			PageSize:     uint32(pageSize),
			Flags:        flags,
			MaxDatabases: uint16(maxDatabases),
			KeyInlineMax: uint16(keyInlineMax),
		},
		Databases: make([]DatabaseSlot, maxDatabases),
	}, nil
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	c := *h
	c.Databases = append([]DatabaseSlot(nil), h.Databases...)
	return &c
}

// Encode serializes the header into a full page image.
func (h *Header) Encode(pageSize int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &h.FileHeader); err != nil {
		return nil, fmt.Errorf("%w: serializing header: %v", dberror.ErrIO, err)
	}
	for i := range h.Databases {
		if err := binary.Write(buf, binary.LittleEndian, &h.Databases[i]); err != nil {
			return nil, fmt.Errorf("%w: serializing database slot: %v", dberror.ErrIO, err)
		}
	}
	if buf.Len() > pageSize {
		return nil, fmt.Errorf("%w: header size (%d) exceeds page size (%d)", dberror.ErrLimitsReached, buf.Len(), pageSize)
	}
	page := make([]byte, pageSize)
	copy(page, buf.Bytes())
	return page, nil
}

// DecodeFileHeader decodes and validates only the fixed part of a header page.
func DecodeFileHeader(data []byte) (*FileHeader, error) {
	if len(data) < fileHeaderSize {
		return nil, fmt.Errorf("%w: header too short (%d bytes)", dberror.ErrCorruption, len(data))
	}
	var fh FileHeader
	if err := binary.Read(bytes.NewReader(data[:fileHeaderSize]), binary.LittleEndian, &fh); err != nil {
		return nil, fmt.Errorf("%w: deserializing header: %v", dberror.ErrCorruption, err)
	}
	if fh.Magic != HeaderMagic {
		return nil, fmt.Errorf("%w: invalid file magic 0x%x", dberror.ErrCorruption, fh.Magic)
	}
	if fh.Version != HeaderVersion {
		return nil, fmt.Errorf("%w: unsupported file version %d", dberror.ErrCorruption, fh.Version)
	}
	if err := ValidatePageSize(int(fh.PageSize)); err != nil {
		return nil, fmt.Errorf("%w: header page size %d", dberror.ErrCorruption, fh.PageSize)
	}
	return &fh, nil
}

// DecodeHeader decodes a full header page.
func DecodeHeader(data []byte) (*Header, error) {
	fh, err := DecodeFileHeader(data)
	if err != nil {
		return nil, err
	}
	if int(fh.PageSize) != len(data) {
		return nil, fmt.Errorf("%w: header page is %d bytes, header says %d", dberror.ErrCorruption, len(data), fh.PageSize)
	}
	if int(fh.MaxDatabases) > MaxDatabasesFor(len(data)) {
		return nil, fmt.Errorf("%w: header lists %d databases", dberror.ErrCorruption, fh.MaxDatabases)
	}
	h := &Header{FileHeader: *fh, Databases: make([]DatabaseSlot, fh.MaxDatabases)}
	r := bytes.NewReader(data[fileHeaderSize:])
	for i := range h.Databases {
		if err := binary.Read(r, binary.LittleEndian, &h.Databases[i]); err != nil {
			return nil, fmt.Errorf("%w: deserializing database slot %d: %v", dberror.ErrCorruption, i, err)
		}
	}
	return h, nil
}

// ReadHeader loads the header page of an opened file, adjusting the
// device's page size to the one recorded in the file.
func ReadHeader(dm *DiskManager) (*Header, error) {
	buf := make([]byte, dm.PageSize())
	if err := dm.ReadPage(HeaderAddress, buf); err != nil {
		return nil, err
	}
	fh, err := DecodeFileHeader(buf)
	if err != nil {
		return nil, err
	}
	if int(fh.PageSize) != dm.PageSize() {
		if err := dm.SetPageSize(int(fh.PageSize)); err != nil {
			return nil, err
		}
		buf = make([]byte, fh.PageSize)
		if err := dm.ReadPage(HeaderAddress, buf); err != nil {
			return nil, err
		}
	}
	return DecodeHeader(buf)
}

// WriteHeader writes the header page in place. It does not sync.
func WriteHeader(dev Device, h *Header) error {
	page, err := h.Encode(dev.PageSize())
	if err != nil {
		return err
	}
	return dev.WritePage(HeaderAddress, page)
}
