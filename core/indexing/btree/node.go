package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/stratadb/core/dberror"
	pagemanager "github.com/sushant-115/stratadb/core/write_engine/page_manager"
)

// --- BTree Node Serialization/Deserialization ---

// Header fields within a node page (offsets relative to start of page data).
// An internal node keeps its leftmost child where a leaf keeps its left sibling.
const (
	nodeKindOffset  = 0
	nodeCountOffset = 2
	nodeLeftOffset  = 8
	nodeRightOffset = 16
	nodeHeaderSize  = 24

	// keySize u32, inline length u16, flags u8
	entryHeaderSize = 7
)

const (
	entryExtendedKey = 1 << 0
	entryRecordShift = 1
	entryRecordMask  = 3 << entryRecordShift
)

type recordKind uint8

const (
	recInline recordKind = iota
	recBlob
	recDups
)

// record references the data of one record. For recBlob size is the record
// length; for recDups blob is the duplicate table and size the duplicate count.
type record struct {
	kind   recordKind
	inline []byte
	blob   uint64
	size   uint32
}

// entry is one key of a node. key holds the whole key, or only its inline
// prefix when keyBlob refers to the full key.
type entry struct {
	key     []byte
	keySize uint32
	keyBlob uint64
	rec     record // leaves only
}

func (e *entry) extended() bool { return e.keyBlob != 0 }

// node represents an in-memory B+tree node. Internal nodes hold
// len(entries)+1 children: children[i] covers keys below entries[i] and
// children[i+1] keys at or above it.
type node struct {
	addr     uint64
	isLeaf   bool
	entries  []entry
	children []uint64
	left     uint64
	right    uint64
}

func entrySize(leaf bool, e *entry) int {
	n := entryHeaderSize + len(e.key)
	if e.extended() {
		n += 8
	}
	if !leaf {
		return n + 8
	}
	if e.rec.kind == recInline {
		return n + 2 + len(e.rec.inline)
	}
	return n + 12
}

// size returns the encoded size of the node's entries.
func (n *node) size() int {
	total := 0
	for i := range n.entries {
		total += entrySize(n.isLeaf, &n.entries[i])
	}
	return total
}

func (n *node) insertEntry(i int, e entry) {
	n.entries = append(n.entries, entry{})
	copy(n.entries[i+1:], n.entries[i:])
	n.entries[i] = e
}

func (n *node) removeEntry(i int) entry {
	e := n.entries[i]
	n.entries = append(n.entries[:i], n.entries[i+1:]...)
	return e
}

func (n *node) insertChild(i int, addr uint64) {
	n.children = append(n.children, 0)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = addr
}

func (n *node) removeChild(i int) uint64 {
	addr := n.children[i]
	n.children = append(n.children[:i], n.children[i+1:]...)
	return addr
}

// serialize writes the node into buf, which must be a whole page.
func (n *node) serialize(buf []byte) error {
	limit := len(buf) - pagemanager.TrailerSize
	clear(buf[:limit])
	if n.isLeaf {
		buf[nodeKindOffset] = byte(pagemanager.KindBtreeLeaf)
		binary.LittleEndian.PutUint64(buf[nodeLeftOffset:], n.left)
		binary.LittleEndian.PutUint64(buf[nodeRightOffset:], n.right)
	} else {
		buf[nodeKindOffset] = byte(pagemanager.KindBtreeInternal)
		binary.LittleEndian.PutUint64(buf[nodeLeftOffset:], n.children[0])
	}
	binary.LittleEndian.PutUint16(buf[nodeCountOffset:], uint16(len(n.entries)))

	off := nodeHeaderSize
	for i := range n.entries {
		e := &n.entries[i]
		if off+entrySize(n.isLeaf, e) > limit {
			return fmt.Errorf("%w: node %d overflows its page", dberror.ErrLimitsReached, n.addr)
		}
		flags := byte(0)
		if e.extended() {
			flags |= entryExtendedKey
		}
		if n.isLeaf {
			flags |= byte(e.rec.kind) << entryRecordShift
		}
		binary.LittleEndian.PutUint32(buf[off:], e.keySize)
		binary.LittleEndian.PutUint16(buf[off+4:], uint16(len(e.key)))
		buf[off+6] = flags
		off += entryHeaderSize
		off += copy(buf[off:], e.key)
		if e.extended() {
			binary.LittleEndian.PutUint64(buf[off:], e.keyBlob)
			off += 8
		}
		if !n.isLeaf {
			binary.LittleEndian.PutUint64(buf[off:], n.children[i+1])
			off += 8
			continue
		}
		switch e.rec.kind {
		case recInline:
			binary.LittleEndian.PutUint16(buf[off:], uint16(len(e.rec.inline)))
			off += 2
			off += copy(buf[off:], e.rec.inline)
		default:
			binary.LittleEndian.PutUint64(buf[off:], e.rec.blob)
			binary.LittleEndian.PutUint32(buf[off+8:], e.rec.size)
			off += 12
		}
	}
	return nil
}

// deserialize reads a node from a page image. Malformed pages are reported
// as corruption.
func deserialize(addr uint64, buf []byte) (*node, error) {
	limit := len(buf) - pagemanager.TrailerSize
	n := &node{addr: addr}
	switch pagemanager.PageKind(buf[nodeKindOffset]) {
	case pagemanager.KindBtreeLeaf:
		n.isLeaf = true
		n.left = binary.LittleEndian.Uint64(buf[nodeLeftOffset:])
		n.right = binary.LittleEndian.Uint64(buf[nodeRightOffset:])
	case pagemanager.KindBtreeInternal:
		n.children = []uint64{binary.LittleEndian.Uint64(buf[nodeLeftOffset:])}
	default:
		return nil, fmt.Errorf("%w: page %d is a %s page, not a btree node", dberror.ErrCorruption,
			addr, pagemanager.PageKind(buf[nodeKindOffset]))
	}
	count := int(binary.LittleEndian.Uint16(buf[nodeCountOffset:]))
	n.entries = make([]entry, count)

	corrupt := func(what string, i int) error {
		return fmt.Errorf("%w: node %d entry %d: %s", dberror.ErrCorruption, addr, i, what)
	}
	off := nodeHeaderSize
	for i := 0; i < count; i++ {
		if off+entryHeaderSize > limit {
			return nil, corrupt("truncated header", i)
		}
		e := &n.entries[i]
		e.keySize = binary.LittleEndian.Uint32(buf[off:])
		inlineLen := int(binary.LittleEndian.Uint16(buf[off+4:]))
		flags := buf[off+6]
		off += entryHeaderSize
		if off+inlineLen > limit || uint32(inlineLen) > e.keySize {
			return nil, corrupt("bad key length", i)
		}
		e.key = make([]byte, inlineLen)
		copy(e.key, buf[off:off+inlineLen])
		off += inlineLen
		if flags&entryExtendedKey != 0 {
			if off+8 > limit {
				return nil, corrupt("truncated key blob", i)
			}
			e.keyBlob = binary.LittleEndian.Uint64(buf[off:])
			off += 8
			if e.keyBlob == 0 {
				return nil, corrupt("extended key without blob", i)
			}
		} else if uint32(inlineLen) != e.keySize {
			return nil, corrupt("short inline key", i)
		}
		if !n.isLeaf {
			if off+8 > limit {
				return nil, corrupt("truncated child", i)
			}
			n.children = append(n.children, binary.LittleEndian.Uint64(buf[off:]))
			off += 8
			continue
		}
		e.rec.kind = recordKind((flags & entryRecordMask) >> entryRecordShift)
		switch e.rec.kind {
		case recInline:
			if off+2 > limit {
				return nil, corrupt("truncated record", i)
			}
			recLen := int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
			if off+recLen > limit {
				return nil, corrupt("truncated record", i)
			}
			e.rec.inline = make([]byte, recLen)
			copy(e.rec.inline, buf[off:off+recLen])
			off += recLen
		case recBlob, recDups:
			if off+12 > limit {
				return nil, corrupt("truncated record reference", i)
			}
			e.rec.blob = binary.LittleEndian.Uint64(buf[off:])
			e.rec.size = binary.LittleEndian.Uint32(buf[off+8:])
			off += 12
		default:
			return nil, corrupt("unknown record kind", i)
		}
	}
	return n, nil
}
