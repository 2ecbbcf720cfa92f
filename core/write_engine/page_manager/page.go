package pagemanager

import (
	"container/list"
	"encoding/binary"
	"hash/crc32"
	"sync"
)

// --- Page Management ---

// PageKind is stored in the first byte of every non-header page.
type PageKind uint8

const (
	KindUnused PageKind = iota
	KindFreelist
	KindBtreeInternal
	KindBtreeLeaf
	KindBlob
)

func (k PageKind) String() string {
	switch k {
	case KindFreelist:
		return "freelist"
	case KindBtreeInternal:
		return "btree-internal"
	case KindBtreeLeaf:
		return "btree-leaf"
	case KindBlob:
		return "blob"
	default:
		return "unused"
	}
}

const (
	// TrailerSize is reserved at the end of every non-header page for a CRC32.
	TrailerSize = 4

	// InvalidAddress never refers to a data page; address 0 is the header.
	InvalidAddress uint64 = 0
)

// Page represents an in-memory copy of a disk page.
type Page struct {
	addr     uint64
	data     []byte
	pinCount uint32
	isDirty  bool
	// For LRU
	lruElement *list.Element

	// latch protects the in-memory contents of this page.
	latch sync.RWMutex
}

// NewPage creates a new Page instance.
func NewPage(addr uint64, size int) *Page {
	return &Page{addr: addr, data: make([]byte, size)}
}

func (p *Page) Reset(addr uint64) {
	p.addr = addr
	p.pinCount = 0
	p.isDirty = false
	p.lruElement = nil
	clear(p.data)
}

func (p *Page) Address() uint64                  { return p.addr }
func (p *Page) Data() []byte                     { return p.data }
func (p *Page) Kind() PageKind                   { return PageKind(p.data[0]) }
func (p *Page) SetKind(k PageKind)               { p.data[0] = byte(k) }
func (p *Page) IsDirty() bool                    { return p.isDirty }
func (p *Page) SetDirty(dirty bool)              { p.isDirty = dirty }
func (p *Page) Pin()                             { p.pinCount++ }
func (p *Page) PinCount() uint32                 { return p.pinCount }
func (p *Page) LruElement() *list.Element        { return p.lruElement }
func (p *Page) SetLruElement(elem *list.Element) { p.lruElement = elem }
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

// Payload returns the part of the page available to its owner.
func (p *Page) Payload() []byte { return p.data[:len(p.data)-TrailerSize] }

func (p *Page) RLock()   { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }
func (p *Page) Lock()    { p.latch.Lock() }
func (p *Page) Unlock()  { p.latch.Unlock() }

// StampChecksum writes the CRC32 of the payload into the trailer of buf.
func StampChecksum(buf []byte) {
	n := len(buf) - TrailerSize
	binary.LittleEndian.PutUint32(buf[n:], crc32.ChecksumIEEE(buf[:n]))
}

// VerifyChecksum checks the trailer of buf. A page of zeroes is accepted:
// blocks that were grown but never written read back that way.
func VerifyChecksum(buf []byte) bool {
	n := len(buf) - TrailerSize
	stored := binary.LittleEndian.Uint32(buf[n:])
	if stored == crc32.ChecksumIEEE(buf[:n]) {
		return true
	}
	if stored != 0 {
		return false
	}
	for _, b := range buf[:n] {
		if b != 0 {
			return false
		}
	}
	return true
}
