package btree

import (
	"slices"

	"github.com/sushant-115/stratadb/core/dberror"
)

// FindMode selects the key a cursor lands on in Cursor.Find.
type FindMode uint8

const (
	FindExact FindMode = iota
	// FindGEQ finds the smallest key greater than or equal to the search key.
	FindGEQ
	// FindLEQ finds the largest key less than or equal to the search key.
	FindLEQ
	FindGT
	FindLT
)

// Cursor is a position in the key space of a tree plus a duplicate index.
// It keeps a copy of its key and re-seeks when the tree changed under it.
type Cursor struct {
	t       *BTree
	leaf    *node
	slot    int
	dup     int
	key     []byte
	version uint64
	valid   bool
	// gap is set when the key under the cursor was erased; slot then refers
	// to its successor.
	gap bool
}

// NewCursor returns an unpositioned cursor.
func (t *BTree) NewCursor() *Cursor {
	return &Cursor{t: t}
}

// IsValid reports whether the cursor is positioned.
func (c *Cursor) IsValid() bool { return c.valid }

// Reset unpositions the cursor.
func (c *Cursor) Reset() {
	c.leaf, c.key, c.valid, c.gap, c.slot, c.dup = nil, nil, false, false, 0, 0
}

// Clone returns an independent cursor at the same position.
func (c *Cursor) Clone() *Cursor {
	cp := *c
	cp.key = slices.Clone(c.key)
	return &cp
}

func (c *Cursor) set(leaf *node, slot, dup int) error {
	key, err := c.t.fullKey(&leaf.entries[slot])
	if err != nil {
		return err
	}
	c.leaf, c.slot, c.dup = leaf, slot, dup
	c.key = slices.Clone(key)
	c.version = c.t.version
	c.valid, c.gap = true, false
	return nil
}

// resync re-seeks the cursor if the tree changed since it was positioned and
// reports whether its key still exists.
func (c *Cursor) resync() (bool, error) {
	if !c.valid {
		return false, dberror.ErrCursorIsNil
	}
	if c.version == c.t.version {
		return !c.gap, nil
	}
	leaf, err := c.t.findLeaf(c.key, nil)
	if err != nil {
		return false, err
	}
	idx, found, err := c.t.lowerBound(leaf, c.key)
	if err != nil {
		return false, err
	}
	c.leaf, c.slot, c.version, c.gap = leaf, idx, c.t.version, !found
	if found {
		c.dup = min(c.dup, recordCount(&leaf.entries[idx])-1)
	}
	return found, nil
}

// current returns the entry under the cursor.
func (c *Cursor) current() (*entry, error) {
	exists, err := c.resync()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, dberror.ErrCursorIsNil
	}
	return &c.leaf.entries[c.slot], nil
}

// edgeLeaf returns the leftmost or rightmost leaf.
func (t *BTree) edgeLeaf(rightmost bool) (*node, error) {
	n, err := t.loadNode(t.root)
	if err != nil {
		return nil, err
	}
	for depth := 0; !n.isLeaf; depth++ {
		if depth > maxDepth {
			return nil, dberror.ErrCorruption
		}
		next := n.children[0]
		if rightmost {
			next = n.children[len(n.children)-1]
		}
		if n, err = t.loadNode(next); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// seekForward returns the first entry at or after slot, following right
// sibling links past empty leaves.
func (t *BTree) seekForward(leaf *node, slot int) (*node, int, error) {
	var err error
	for slot >= len(leaf.entries) {
		if leaf.right == 0 {
			return nil, 0, dberror.ErrKeyNotFound
		}
		if leaf, err = t.loadNode(leaf.right); err != nil {
			return nil, 0, err
		}
		slot = 0
	}
	return leaf, slot, nil
}

// seekBackward returns the last entry at or before slot, following left
// sibling links past empty leaves.
func (t *BTree) seekBackward(leaf *node, slot int) (*node, int, error) {
	var err error
	for slot < 0 {
		if leaf.left == 0 {
			return nil, 0, dberror.ErrKeyNotFound
		}
		if leaf, err = t.loadNode(leaf.left); err != nil {
			return nil, 0, err
		}
		slot = len(leaf.entries) - 1
	}
	return leaf, slot, nil
}

// First moves to the first duplicate of the smallest key.
func (c *Cursor) First() error {
	leaf, err := c.t.edgeLeaf(false)
	if err != nil {
		return err
	}
	leaf, slot, err := c.t.seekForward(leaf, 0)
	if err != nil {
		return err
	}
	return c.set(leaf, slot, 0)
}

// Last moves to the last duplicate of the largest key.
func (c *Cursor) Last() error {
	leaf, err := c.t.edgeLeaf(true)
	if err != nil {
		return err
	}
	leaf, slot, err := c.t.seekBackward(leaf, len(leaf.entries)-1)
	if err != nil {
		return err
	}
	return c.set(leaf, slot, recordCount(&leaf.entries[slot])-1)
}

// Next moves to the next duplicate, or to the next key when skipDups is set
// or the duplicates are exhausted. An unpositioned cursor moves to First.
// At the end it fails with ErrKeyNotFound and keeps its position.
func (c *Cursor) Next(skipDups bool) error {
	if !c.valid {
		return c.First()
	}
	exists, err := c.resync()
	if err != nil {
		return err
	}
	slot := c.slot
	if exists {
		if !skipDups && c.dup+1 < recordCount(&c.leaf.entries[c.slot]) {
			c.dup++
			return nil
		}
		slot++
	}
	leaf, slot, err := c.t.seekForward(c.leaf, slot)
	if err != nil {
		return err
	}
	return c.set(leaf, slot, 0)
}

// Previous moves to the previous duplicate, or to the last duplicate of the
// previous key (its first one when skipDups is set). An unpositioned cursor
// moves to Last.
func (c *Cursor) Previous(skipDups bool) error {
	if !c.valid {
		return c.Last()
	}
	exists, err := c.resync()
	if err != nil {
		return err
	}
	if exists && !skipDups && c.dup > 0 {
		c.dup--
		return nil
	}
	leaf, slot, err := c.t.seekBackward(c.leaf, c.slot-1)
	if err != nil {
		return err
	}
	dup := 0
	if !skipDups {
		dup = recordCount(&leaf.entries[slot]) - 1
	}
	return c.set(leaf, slot, dup)
}

// NextDuplicate moves to the next duplicate of the current key only.
func (c *Cursor) NextDuplicate() error {
	e, err := c.current()
	if err != nil {
		return err
	}
	if c.dup+1 >= recordCount(e) {
		return dberror.ErrKeyNotFound
	}
	c.dup++
	return nil
}

// PreviousDuplicate moves to the previous duplicate of the current key only.
func (c *Cursor) PreviousDuplicate() error {
	if _, err := c.current(); err != nil {
		return err
	}
	if c.dup == 0 {
		return dberror.ErrKeyNotFound
	}
	c.dup--
	return nil
}

// Find positions the cursor on the first duplicate of the key selected by
// mode. On failure the cursor is unpositioned.
func (c *Cursor) Find(key []byte, mode FindMode) error {
	err := c.find(key, mode)
	if err != nil {
		c.Reset()
	}
	return err
}

func (c *Cursor) find(key []byte, mode FindMode) error {
	leaf, err := c.t.findLeaf(key, nil)
	if err != nil {
		return err
	}
	idx, found, err := c.t.lowerBound(leaf, key)
	if err != nil {
		return err
	}
	var slot int
	switch mode {
	case FindExact:
		if !found {
			return notFound(key)
		}
		slot = idx
	case FindGEQ, FindGT:
		if found && mode == FindGT {
			idx++
		}
		if leaf, slot, err = c.t.seekForward(leaf, idx); err != nil {
			return err
		}
	case FindLEQ, FindLT:
		if found && mode == FindLEQ {
			slot = idx
			break
		}
		if leaf, slot, err = c.t.seekBackward(leaf, idx-1); err != nil {
			return err
		}
	default:
		return dberror.ErrInvalidParameter
	}
	return c.set(leaf, slot, 0)
}

// Key returns a copy of the key under the cursor.
func (c *Cursor) Key() ([]byte, error) {
	if _, err := c.current(); err != nil {
		return nil, err
	}
	return slices.Clone(c.key), nil
}

// Record returns the record of the current duplicate.
func (c *Cursor) Record() ([]byte, error) {
	e, err := c.current()
	if err != nil {
		return nil, err
	}
	recs, err := c.t.records(e)
	if err != nil {
		return nil, err
	}
	return c.t.readRecord(recs[c.dup])
}

// DuplicateCount returns the number of records of the current key.
func (c *Cursor) DuplicateCount() (int, error) {
	e, err := c.current()
	if err != nil {
		return 0, err
	}
	return recordCount(e), nil
}

// DuplicateIndex returns the position of the cursor among the duplicates.
func (c *Cursor) DuplicateIndex() (int, error) {
	if _, err := c.current(); err != nil {
		return 0, err
	}
	return c.dup, nil
}

// Overwrite replaces the record of the current duplicate.
func (c *Cursor) Overwrite(data []byte) error {
	if _, err := c.current(); err != nil {
		return err
	}
	dup := c.dup
	if _, err := c.t.InsertAt(c.key, data, Overwrite, dup); err != nil {
		return err
	}
	if _, err := c.resync(); err != nil {
		return err
	}
	c.dup = dup
	return nil
}

// Erase removes the current duplicate and unpositions the cursor.
func (c *Cursor) Erase() error {
	if _, err := c.current(); err != nil {
		return err
	}
	if err := c.t.EraseDuplicate(c.key, c.dup); err != nil {
		return err
	}
	c.Reset()
	return nil
}

// Insert stores a record and moves the cursor onto it. Positional duplicate
// flags are relative to the current duplicate when the cursor is on key.
func (c *Cursor) Insert(key, data []byte, flags InsertFlags) error {
	ref := 0
	if c.valid && !c.gap && c.t.cmp.Compare(key, c.key) == 0 {
		ref = c.dup
	}
	pos, err := c.t.InsertAt(key, data, flags, ref)
	if err != nil {
		return err
	}
	if err := c.Find(key, FindExact); err != nil {
		return err
	}
	c.dup = pos
	return nil
}
