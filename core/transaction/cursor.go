package transaction

import (
	"errors"
	"slices"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
)

// Cursor walks the keys of one database as seen by a transaction: committed
// keys of the tree merged with the transaction's pending changes. Keys whose
// resolved record list is empty are skipped. Without a transaction it walks
// the tree alone.
type Cursor struct {
	txn  *Transaction
	db   uint16
	tree *btree.BTree

	key   []byte
	recs  [][]byte
	dup   int
	valid bool
	// versions the cached records were resolved at
	treeVersion, txnVersion uint64
}

// NewCursor creates an unpositioned cursor over database db. txn may be nil.
func NewCursor(txn *Transaction, db uint16, tree *btree.BTree) *Cursor {
	if txn != nil {
		txn.AttachCursor()
	}
	return &Cursor{txn: txn, db: db, tree: tree}
}

// Close detaches the cursor from its transaction.
func (c *Cursor) Close() {
	if c.txn != nil {
		c.txn.DetachCursor()
		c.txn = nil
	}
	c.Reset()
}

// Transaction returns the transaction the cursor is bound to, or nil.
func (c *Cursor) Transaction() *Transaction { return c.txn }

// Reset unpositions the cursor.
func (c *Cursor) Reset() {
	c.key, c.recs, c.dup, c.valid = nil, nil, 0, false
}

// IsValid reports whether the cursor is positioned.
func (c *Cursor) IsValid() bool { return c.valid }

func (c *Cursor) overlay() *overlay {
	if c.txn == nil || c.txn.State != TxnStateRunning {
		return nil
	}
	return c.txn.overlays[c.db]
}

// Lookup returns the records of key visible to the cursor's transaction.
func (c *Cursor) Lookup(key []byte) ([][]byte, error) {
	recs, err := c.tree.Records(key)
	if err != nil && !errors.Is(err, dberror.ErrKeyNotFound) {
		return nil, err
	}
	if c.overlay() == nil {
		return recs, nil
	}
	return c.txn.Resolve(c.db, key, recs), nil
}

func (c *Cursor) versions() (uint64, uint64) {
	var tv uint64
	if c.txn != nil {
		tv = c.txn.Version()
	}
	return c.tree.Version(), tv
}

func (c *Cursor) set(key []byte, recs [][]byte, dup int) {
	c.key, c.recs, c.dup, c.valid = slices.Clone(key), recs, dup, true
	c.treeVersion, c.txnVersion = c.versions()
}

// refresh re-resolves the current key if anything changed since it was read.
func (c *Cursor) refresh() error {
	if !c.valid {
		return dberror.ErrCursorIsNil
	}
	tv, xv := c.versions()
	if tv == c.treeVersion && xv == c.txnVersion {
		if len(c.recs) == 0 {
			return dberror.ErrCursorIsNil
		}
		return nil
	}
	recs, err := c.Lookup(c.key)
	if err != nil {
		return err
	}
	c.recs = recs
	c.treeVersion, c.txnVersion = tv, xv
	if len(recs) == 0 {
		return dberror.ErrCursorIsNil
	}
	c.dup = min(c.dup, len(recs)-1)
	return nil
}

func findMode(forward, inclusive bool) btree.FindMode {
	switch {
	case forward && inclusive:
		return btree.FindGEQ
	case forward:
		return btree.FindGT
	case inclusive:
		return btree.FindLEQ
	}
	return btree.FindLT
}

// treeNeighbor returns the committed key next to from.
func (c *Cursor) treeNeighbor(from []byte, forward, inclusive bool) ([]byte, bool, error) {
	tc := c.tree.NewCursor()
	var err error
	switch {
	case from == nil && forward:
		err = tc.First()
	case from == nil:
		err = tc.Last()
	default:
		err = tc.Find(from, findMode(forward, inclusive))
	}
	if errors.Is(err, dberror.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	k, err := tc.Key()
	return k, err == nil, err
}

// seek lands on the first visible key from from in the given direction.
// On failure the cursor is left unchanged.
func (c *Cursor) seek(from []byte, forward, inclusive, lastDup bool) error {
	cmp := c.tree.Comparator().Compare
	o := c.overlay()
	for {
		tk, tok, err := c.treeNeighbor(from, forward, inclusive)
		if err != nil {
			return err
		}
		var pk []byte
		var pok bool
		if o != nil {
			pk, pok = o.neighbor(from, forward, inclusive)
		}
		var next []byte
		switch {
		case tok && pok:
			next = tk
			if r := cmp(pk, tk); (forward && r < 0) || (!forward && r > 0) {
				next = pk
			}
		case tok:
			next = tk
		case pok:
			next = pk
		default:
			return dberror.ErrKeyNotFound
		}
		recs, err := c.Lookup(next)
		if err != nil {
			return err
		}
		if len(recs) > 0 {
			dup := 0
			if lastDup {
				dup = len(recs) - 1
			}
			c.set(next, recs, dup)
			return nil
		}
		from, inclusive = next, false
	}
}

// First moves to the first duplicate of the smallest visible key.
func (c *Cursor) First() error { return c.seek(nil, true, true, false) }

// Last moves to the last duplicate of the largest visible key.
func (c *Cursor) Last() error { return c.seek(nil, false, true, true) }

// Next moves to the next duplicate or key. At the end it fails with
// ErrKeyNotFound and keeps its position.
func (c *Cursor) Next(skipDups bool) error {
	if !c.valid {
		return c.First()
	}
	if err := c.refresh(); err == nil && !skipDups && c.dup+1 < len(c.recs) {
		c.dup++
		return nil
	} else if err != nil && !errors.Is(err, dberror.ErrCursorIsNil) {
		return err
	}
	return c.seek(c.key, true, false, false)
}

// Previous moves to the previous duplicate, or to the previous key (its
// last duplicate unless skipDups is set).
func (c *Cursor) Previous(skipDups bool) error {
	if !c.valid {
		return c.Last()
	}
	if err := c.refresh(); err == nil && !skipDups && c.dup > 0 {
		c.dup--
		return nil
	} else if err != nil && !errors.Is(err, dberror.ErrCursorIsNil) {
		return err
	}
	return c.seek(c.key, false, false, !skipDups)
}

// NextDuplicate moves to the next duplicate of the current key only.
func (c *Cursor) NextDuplicate() error {
	if err := c.refresh(); err != nil {
		return err
	}
	if c.dup+1 >= len(c.recs) {
		return dberror.ErrKeyNotFound
	}
	c.dup++
	return nil
}

// PreviousDuplicate moves to the previous duplicate of the current key only.
func (c *Cursor) PreviousDuplicate() error {
	if err := c.refresh(); err != nil {
		return err
	}
	if c.dup == 0 {
		return dberror.ErrKeyNotFound
	}
	c.dup--
	return nil
}

// Find positions the cursor on the key selected by mode. On failure the
// cursor is unpositioned.
func (c *Cursor) Find(key []byte, mode btree.FindMode) error {
	var err error
	switch mode {
	case btree.FindExact:
		var recs [][]byte
		if recs, err = c.Lookup(key); err == nil {
			if len(recs) == 0 {
				err = dberror.ErrKeyNotFound
			} else {
				c.set(key, recs, 0)
			}
		}
	case btree.FindGEQ:
		err = c.seek(key, true, true, false)
	case btree.FindGT:
		err = c.seek(key, true, false, false)
	case btree.FindLEQ:
		err = c.seek(key, false, true, false)
	case btree.FindLT:
		err = c.seek(key, false, false, false)
	default:
		err = dberror.ErrInvalidParameter
	}
	if err != nil {
		c.Reset()
	}
	return err
}

// Key returns a copy of the current key.
func (c *Cursor) Key() ([]byte, error) {
	if err := c.refresh(); err != nil {
		return nil, err
	}
	return slices.Clone(c.key), nil
}

// Record returns a copy of the current duplicate's record.
func (c *Cursor) Record() ([]byte, error) {
	if err := c.refresh(); err != nil {
		return nil, err
	}
	return slices.Clone(c.recs[c.dup]), nil
}

// DuplicateCount returns the number of records of the current key.
func (c *Cursor) DuplicateCount() (int, error) {
	if err := c.refresh(); err != nil {
		return 0, err
	}
	return len(c.recs), nil
}

// DuplicateIndex returns the position among the duplicates of the key.
func (c *Cursor) DuplicateIndex() (int, error) {
	if err := c.refresh(); err != nil {
		return 0, err
	}
	return c.dup, nil
}

// SetDuplicateIndex moves to duplicate i of the current key.
func (c *Cursor) SetDuplicateIndex(i int) error {
	if err := c.refresh(); err != nil {
		return err
	}
	if i < 0 || i >= len(c.recs) {
		return dberror.ErrKeyNotFound
	}
	c.dup = i
	return nil
}
