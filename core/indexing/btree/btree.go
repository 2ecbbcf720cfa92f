// Package btree implements the paged B+tree index of a database. Nodes live
// in pages of the page cache; keys that do not fit inline and large records
// live in blobs.
package btree

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
	pagemanager "github.com/sushant-115/stratadb/core/write_engine/page_manager"
)

// MaxKeySize is the largest key accepted by Insert.
const MaxKeySize = math.MaxUint16

// maxDepth bounds a descent; deeper trees only arise from corrupted pages.
const maxDepth = 64

// InsertFlags control how Insert treats an existing key.
type InsertFlags uint32

const (
	// Overwrite replaces the record of an existing key (the first duplicate,
	// or the one selected by the duplicate index).
	Overwrite InsertFlags = 1 << iota
	// Duplicate appends another record to an existing key.
	Duplicate
	DuplicateInsertBefore
	DuplicateInsertAfter
	DuplicateInsertFirst
	DuplicateInsertLast
)

const duplicateFlags = Duplicate | DuplicateInsertBefore | DuplicateInsertAfter |
	DuplicateInsertFirst | DuplicateInsertLast

// Pager is the subset of the page cache used by the tree.
type Pager interface {
	Acquire(addr uint64, mode pagecache.AccessMode) (*pagemanager.Page, error)
	Release(page *pagemanager.Page)
	AllocatePage(kind pagemanager.PageKind) (*pagemanager.Page, error)
	FreePage(addr uint64) error
}

// Blobs stores extended keys, large records and duplicate tables.
type Blobs interface {
	Allocate(data []byte) (uint64, error)
	Read(id uint64) ([]byte, error)
	Overwrite(id uint64, data []byte) error
	Free(id uint64) error
	Pages(id uint64) ([]uint64, error)
}

// Config describes the layout and behaviour of one tree.
type Config struct {
	PageSize int
	// KeyInlineMax is the longest key stored entirely inside a node.
	// Zero selects DefaultKeyInlineMax.
	KeyInlineMax     int
	EnableDuplicates bool
	// Comparator defaults to DefaultComparator when Compare is nil.
	Comparator Comparator
}

// DefaultKeyInlineMax returns the inline key limit used for a page size.
func DefaultKeyInlineMax(pageSize int) int { return pageSize / 16 }

// RecordInlineMax returns the largest record stored inside a leaf.
func RecordInlineMax(pageSize int) int { return pageSize / 32 }

// BTree represents the B+tree of one database.
type BTree struct {
	root      uint64
	pager     Pager
	blobs     Blobs
	cmp       Comparator
	dups      bool
	keyInline int
	recInline int
	usable    int
	maxEntry  int
	minFill   int
	version   uint64
	logger    *zap.Logger
}

func newTree(pager Pager, blobs Blobs, cfg Config, logger *zap.Logger) (*BTree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyInlineMax == 0 {
		cfg.KeyInlineMax = DefaultKeyInlineMax(cfg.PageSize)
	}
	if cfg.KeyInlineMax < 8 || cfg.KeyInlineMax > cfg.PageSize/8 {
		return nil, fmt.Errorf("%w: inline key limit %d for page size %d",
			dberror.ErrInvalidParameter, cfg.KeyInlineMax, cfg.PageSize)
	}
	if cfg.Comparator.Compare == nil {
		cfg.Comparator = DefaultComparator()
	}
	t := &BTree{
		pager:     pager,
		blobs:     blobs,
		cmp:       cfg.Comparator,
		dups:      cfg.EnableDuplicates,
		keyInline: cfg.KeyInlineMax,
		recInline: RecordInlineMax(cfg.PageSize),
		usable:    cfg.PageSize - pagemanager.TrailerSize - nodeHeaderSize,
		logger:    logger,
	}
	t.maxEntry = entryHeaderSize + t.keyInline + 8 + max(8, 2+t.recInline, 12)
	t.minFill = t.usable / 4
	return t, nil
}

// Create allocates the root leaf of a new, empty tree.
func Create(pager Pager, blobs Blobs, cfg Config, logger *zap.Logger) (*BTree, error) {
	t, err := newTree(pager, blobs, cfg, logger)
	if err != nil {
		return nil, err
	}
	root, err := t.newNode(true)
	if err != nil {
		return nil, err
	}
	if err := t.storeNode(root); err != nil {
		return nil, err
	}
	t.root = root.addr
	return t, nil
}

// Open attaches to the tree rooted at root.
func Open(pager Pager, blobs Blobs, root uint64, cfg Config, logger *zap.Logger) (*BTree, error) {
	if root == pagemanager.InvalidAddress {
		return nil, fmt.Errorf("%w: tree without root", dberror.ErrCorruption)
	}
	t, err := newTree(pager, blobs, cfg, logger)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

// Root returns the address of the root node. It changes when the root splits
// or collapses.
func (t *BTree) Root() uint64 { return t.root }

// Version changes on every modification of the tree.
func (t *BTree) Version() uint64 { return t.version }

// Comparator returns the key order of the tree.
func (t *BTree) Comparator() Comparator { return t.cmp }

// AllowsDuplicates reports whether keys may carry more than one record.
func (t *BTree) AllowsDuplicates() bool { return t.dups }

func (t *BTree) isFull(n *node) bool {
	return n.size()+t.maxEntry > t.usable
}

// --- node I/O ---

func (t *BTree) newNode(leaf bool) (*node, error) {
	kind := pagemanager.KindBtreeInternal
	if leaf {
		kind = pagemanager.KindBtreeLeaf
	}
	page, err := t.pager.AllocatePage(kind)
	if err != nil {
		return nil, err
	}
	addr := page.Address()
	t.pager.Release(page)
	return &node{addr: addr, isLeaf: leaf}, nil
}

// Helper to fetch and deserialize a node
func (t *BTree) loadNode(addr uint64) (*node, error) {
	if addr == pagemanager.InvalidAddress {
		return nil, fmt.Errorf("%w: reference to node at address 0", dberror.ErrCorruption)
	}
	page, err := t.pager.Acquire(addr, pagecache.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer t.pager.Release(page)
	return deserialize(addr, page.Data())
}

func (t *BTree) storeNode(n *node) error {
	page, err := t.pager.Acquire(n.addr, pagecache.ReadWrite)
	if err != nil {
		return err
	}
	defer t.pager.Release(page)
	return n.serialize(page.Data())
}

// --- keys ---

func (t *BTree) makeKey(key []byte) (entry, error) {
	e := entry{keySize: uint32(len(key))}
	if len(key) <= t.keyInline {
		e.key = slices.Clone(key)
		if e.key == nil {
			e.key = []byte{}
		}
		return e, nil
	}
	id, err := t.blobs.Allocate(key)
	if err != nil {
		return entry{}, err
	}
	e.key = slices.Clone(key[:t.keyInline])
	e.keyBlob = id
	return e, nil
}

// copyKey duplicates the key of e for use as a separator, including its blob.
func (t *BTree) copyKey(e *entry) (entry, error) {
	if !e.extended() {
		return entry{key: slices.Clone(e.key), keySize: e.keySize}, nil
	}
	full, err := t.fullKey(e)
	if err != nil {
		return entry{}, err
	}
	return t.makeKey(full)
}

// fullKey returns the complete key of e. The result must not be modified.
func (t *BTree) fullKey(e *entry) ([]byte, error) {
	if !e.extended() {
		return e.key, nil
	}
	full, err := t.blobs.Read(e.keyBlob)
	if err != nil {
		return nil, err
	}
	if uint32(len(full)) != e.keySize {
		return nil, fmt.Errorf("%w: key blob %d holds %d bytes, expected %d",
			dberror.ErrCorruption, e.keyBlob, len(full), e.keySize)
	}
	return full, nil
}

func (t *BTree) compareKey(key []byte, e *entry) (int, error) {
	if !e.extended() {
		return t.cmp.Compare(key, e.key), nil
	}
	if t.cmp.PrefixCompare != nil {
		c, err := t.cmp.PrefixCompare(key, len(key), e.key, int(e.keySize))
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNeedFullKey) {
			return 0, err
		}
	}
	full, err := t.fullKey(e)
	if err != nil {
		return 0, err
	}
	return t.cmp.Compare(key, full), nil
}

// lowerBound returns the index of the first entry not less than key and
// whether that entry equals key.
func (t *BTree) lowerBound(n *node, key []byte) (int, bool, error) {
	lo, hi, found := 0, len(n.entries), false
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		c, err := t.compareKey(key, &n.entries[mid])
		if err != nil {
			return 0, false, err
		}
		if c > 0 {
			lo = mid + 1
		} else {
			found = found || c == 0
			hi = mid
		}
	}
	return lo, found, nil
}

// childIndex returns the child of internal node n that covers key.
func (t *BTree) childIndex(n *node, key []byte) (int, error) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		c, err := t.compareKey(key, &n.entries[mid])
		if err != nil {
			return 0, err
		}
		if c >= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

type step struct {
	n     *node
	child int
}

// findLeaf descends to the leaf covering key, recording the internal nodes
// passed on the way when path is non-nil.
func (t *BTree) findLeaf(key []byte, path *[]step) (*node, error) {
	n, err := t.loadNode(t.root)
	if err != nil {
		return nil, err
	}
	for depth := 0; !n.isLeaf; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("%w: tree deeper than %d levels", dberror.ErrCorruption, maxDepth)
		}
		i, err := t.childIndex(n, key)
		if err != nil {
			return nil, err
		}
		if path != nil {
			*path = append(*path, step{n: n, child: i})
		}
		if n, err = t.loadNode(n.children[i]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// --- lookups ---

func notFound(key []byte) error {
	return fmt.Errorf("%w: %q", dberror.ErrKeyNotFound, truncate(key))
}

func truncate(key []byte) []byte {
	if len(key) > 32 {
		return key[:32]
	}
	return key
}

// lookup returns the leaf entry of key.
func (t *BTree) lookup(key []byte) (*entry, error) {
	leaf, err := t.findLeaf(key, nil)
	if err != nil {
		return nil, err
	}
	i, found, err := t.lowerBound(leaf, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound(key)
	}
	return &leaf.entries[i], nil
}

// Find returns the record of key, or its first duplicate.
func (t *BTree) Find(key []byte) ([]byte, error) {
	e, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	recs, err := t.records(e)
	if err != nil {
		return nil, err
	}
	return t.readRecord(recs[0])
}

// Records returns every record of key in duplicate order.
func (t *BTree) Records(key []byte) ([][]byte, error) {
	e, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	return t.readRecords(e)
}

// DuplicateCount returns the number of records stored under key.
func (t *BTree) DuplicateCount(key []byte) (int, error) {
	e, err := t.lookup(key)
	if err != nil {
		return 0, err
	}
	return recordCount(e), nil
}

func recordCount(e *entry) int {
	if e.rec.kind == recDups {
		return int(e.rec.size)
	}
	return 1
}

func (t *BTree) readRecords(e *entry) ([][]byte, error) {
	recs, err := t.records(e)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(recs))
	for i, r := range recs {
		if out[i], err = t.readRecord(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- insertion ---

func (t *BTree) checkInsert(key, data []byte, flags InsertFlags) error {
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w: key of %d bytes exceeds %d", dberror.ErrInvalidParameter, len(key), MaxKeySize)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("%w: record of %d bytes is too large", dberror.ErrInvalidParameter, len(data))
	}
	if flags&Overwrite != 0 && flags&duplicateFlags != 0 {
		return fmt.Errorf("%w: overwrite and duplicate flags are exclusive", dberror.ErrInvalidParameter)
	}
	if flags&duplicateFlags != 0 && !t.dups {
		return fmt.Errorf("%w: database does not allow duplicate keys", dberror.ErrInvalidParameter)
	}
	return nil
}

// Insert stores record under key. Without Overwrite or a duplicate flag an
// existing key fails with ErrDuplicateKey.
func (t *BTree) Insert(key, data []byte, flags InsertFlags) error {
	_, err := t.InsertAt(key, data, flags, 0)
	return err
}

// OverwriteDuplicate replaces the dupIndex-th record of key.
func (t *BTree) OverwriteDuplicate(key []byte, dupIndex int, data []byte) error {
	count, err := t.DuplicateCount(key)
	if err != nil {
		return err
	}
	if dupIndex < 0 || dupIndex >= count {
		return notFound(key)
	}
	_, err = t.InsertAt(key, data, Overwrite, dupIndex)
	return err
}

// InsertAt is Insert with an explicit duplicate index: the duplicate replaced
// by Overwrite, or the reference of DuplicateInsertBefore/After. It returns
// the duplicate index of the stored record.
func (t *BTree) InsertAt(key, data []byte, flags InsertFlags, dupIndex int) (int, error) {
	if err := t.checkInsert(key, data, flags); err != nil {
		return 0, err
	}
	t.version++
	root, err := t.loadNode(t.root)
	if err != nil {
		return 0, err
	}
	if t.isFull(root) { // Root is full
		newRoot, err := t.newNode(false)
		if err != nil {
			return 0, err
		}
		newRoot.children = []uint64{root.addr}
		if _, err := t.splitChild(newRoot, 0, root); err != nil {
			return 0, err
		}
		t.logger.Debug("btree root split", zap.Uint64("old_root", root.addr), zap.Uint64("new_root", newRoot.addr))
		t.root = newRoot.addr
		root = newRoot
	}
	return t.insertNonFull(root, key, data, flags, dupIndex)
}

// splitPoint returns the index dividing the encoded entries of n in half.
func (t *BTree) splitPoint(n *node) int {
	half := n.size() / 2
	acc := 0
	for i := range n.entries {
		acc += entrySize(n.isLeaf, &n.entries[i])
		if acc >= half {
			return i + 1
		}
	}
	return len(n.entries) / 2
}

// splitChild splits child, the i-th child of parent, and stores all three
// nodes. Leaf splits copy the first key of the new right node into parent;
// internal splits move their middle key up. It returns the new right node.
func (t *BTree) splitChild(parent *node, i int, child *node) (*node, error) {
	right, err := t.newNode(child.isLeaf)
	if err != nil {
		return nil, err
	}
	var sep entry
	if child.isLeaf {
		s := min(max(t.splitPoint(child), 1), len(child.entries)-1)
		right.entries = slices.Clone(child.entries[s:])
		child.entries = slices.Clip(child.entries[:s])
		if sep, err = t.copyKey(&right.entries[0]); err != nil {
			return nil, err
		}
		right.left, right.right = child.addr, child.right
		if child.right != pagemanager.InvalidAddress {
			neighbor, err := t.loadNode(child.right)
			if err != nil {
				return nil, err
			}
			neighbor.left = right.addr
			if err := t.storeNode(neighbor); err != nil {
				return nil, err
			}
		}
		child.right = right.addr
	} else {
		s := min(max(t.splitPoint(child), 1), len(child.entries)-2)
		sep = child.entries[s]
		right.entries = slices.Clone(child.entries[s+1:])
		right.children = slices.Clone(child.children[s+1:])
		child.entries = slices.Clip(child.entries[:s])
		child.children = slices.Clip(child.children[:s+1])
	}
	sep.rec = record{}
	parent.insertEntry(i, sep)
	parent.insertChild(i+1, right.addr)

	if err := t.storeNode(right); err != nil {
		return nil, err
	}
	if err := t.storeNode(child); err != nil {
		return nil, err
	}
	if err := t.storeNode(parent); err != nil {
		return nil, err
	}
	return right, nil
}

// insertNonFull descends from n, which has room for one more entry,
// splitting full children on the way down.
func (t *BTree) insertNonFull(n *node, key, data []byte, flags InsertFlags, dupIndex int) (int, error) {
	for depth := 0; !n.isLeaf; depth++ {
		if depth > maxDepth {
			return 0, fmt.Errorf("%w: tree deeper than %d levels", dberror.ErrCorruption, maxDepth)
		}
		i, err := t.childIndex(n, key)
		if err != nil {
			return 0, err
		}
		child, err := t.loadNode(n.children[i])
		if err != nil {
			return 0, err
		}
		if t.isFull(child) {
			right, err := t.splitChild(n, i, child)
			if err != nil {
				return 0, err
			}
			c, err := t.compareKey(key, &n.entries[i])
			if err != nil {
				return 0, err
			}
			if c >= 0 {
				child = right
			}
		}
		n = child
	}

	idx, found, err := t.lowerBound(n, key)
	if err != nil {
		return 0, err
	}
	if !found {
		e, err := t.makeKey(key)
		if err != nil {
			return 0, err
		}
		if e.rec, err = t.newRecord(data); err != nil {
			if e.extended() {
				_ = t.blobs.Free(e.keyBlob)
			}
			return 0, err
		}
		n.insertEntry(idx, e)
		return 0, t.storeNode(n)
	}

	e := &n.entries[idx]
	var pos int
	switch {
	case flags&Overwrite != 0:
		recs, err := t.records(e)
		if err != nil {
			return 0, err
		}
		pos = min(max(dupIndex, 0), len(recs)-1)
		nr, err := t.newRecord(data)
		if err != nil {
			return 0, err
		}
		old := recs[pos]
		recs[pos] = nr
		if err := t.setRecords(e, recs); err != nil {
			return 0, err
		}
		if err := t.freeRecord(old); err != nil {
			return 0, err
		}
	case flags&duplicateFlags != 0:
		recs, err := t.records(e)
		if err != nil {
			return 0, err
		}
		pos = DuplicatePosition(flags, dupIndex, len(recs))
		nr, err := t.newRecord(data)
		if err != nil {
			return 0, err
		}
		if err := t.setRecords(e, slices.Insert(recs, pos, nr)); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("%w: %q", dberror.ErrDuplicateKey, truncate(key))
	}
	return pos, t.storeNode(n)
}

// DuplicatePosition returns where a positional duplicate insert relative to
// duplicate ref lands among count existing duplicates.
func DuplicatePosition(flags InsertFlags, ref, count int) int {
	switch {
	case flags&DuplicateInsertFirst != 0:
		return 0
	case flags&DuplicateInsertBefore != 0:
		return min(max(ref, 0), count)
	case flags&DuplicateInsertAfter != 0:
		return min(max(ref+1, 0), count)
	}
	return count
}
