package environment

import (
	"bytes"
	"fmt"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/transaction"
)

// MoveFlags select a cursor movement.
type MoveFlags uint32

const (
	MoveFirst MoveFlags = 1 << iota
	MoveLast
	MoveNext
	MovePrevious
	// SkipDuplicates moves between keys only.
	SkipDuplicates
	// OnlyDuplicates moves within the duplicates of the current key only.
	OnlyDuplicates
)

// FindMode selects the key a cursor lands on.
type FindMode = btree.FindMode

const (
	FindExact = btree.FindExact
	FindGEQ   = btree.FindGEQ
	FindLEQ   = btree.FindLEQ
	FindGT    = btree.FindGT
	FindLT    = btree.FindLT
)

// Cursor walks a database in key order, as seen by its transaction.
type Cursor struct {
	db     *Database
	txn    *transaction.Transaction
	c      *transaction.Cursor
	closed bool
}

// NewCursor opens a cursor. txn may be nil. A transaction cannot finish
// while cursors bound to it are open.
func (d *Database) NewCursor(txn *transaction.Transaction) (*Cursor, error) {
	e := d.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := d.usable(); err != nil {
		return nil, err
	}
	if err := e.checkTxn(txn); err != nil {
		return nil, err
	}
	d.cursors++
	return &Cursor{db: d, txn: txn, c: transaction.NewCursor(txn, d.name, d.tree)}, nil
}

func (c *Cursor) usable() error {
	if c.closed {
		return dberror.ErrAlreadyClosed
	}
	return c.db.usable()
}

// read runs fn under the shared lock.
func (c *Cursor) read(fn func() error) error {
	e := c.db.env
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := c.usable(); err != nil {
		return err
	}
	return fn()
}

// Move moves the cursor as selected by flags. An unpositioned cursor moved
// with MoveNext or MovePrevious starts at the first or last key. Moving past
// either end fails with ErrKeyNotFound and keeps the position.
func (c *Cursor) Move(flags MoveFlags) error {
	return c.read(func() error {
		skip := flags&SkipDuplicates != 0
		only := flags&OnlyDuplicates != 0
		if skip && only {
			return fmt.Errorf("%w: skip and only duplicates are exclusive", dberror.ErrInvalidParameter)
		}
		switch {
		case flags&MoveFirst != 0:
			return c.c.First()
		case flags&MoveLast != 0:
			return c.c.Last()
		case flags&MoveNext != 0 && only:
			return c.c.NextDuplicate()
		case flags&MoveNext != 0:
			return c.c.Next(skip)
		case flags&MovePrevious != 0 && only:
			return c.c.PreviousDuplicate()
		case flags&MovePrevious != 0:
			return c.c.Previous(skip)
		}
		return fmt.Errorf("%w: no movement in flags 0x%x", dberror.ErrInvalidParameter, uint32(flags))
	})
}

// Find positions the cursor on the key selected by mode. On failure the
// cursor is unpositioned.
func (c *Cursor) Find(key []byte, mode FindMode) error {
	return c.read(func() error { return c.c.Find(key, mode) })
}

// Key returns the current key.
func (c *Cursor) Key() (key []byte, err error) {
	err = c.read(func() error {
		key, err = c.c.Key()
		return err
	})
	return key, err
}

// Record returns the record of the current duplicate.
func (c *Cursor) Record() (rec []byte, err error) {
	err = c.read(func() error {
		rec, err = c.c.Record()
		return err
	})
	return rec, err
}

// DuplicateCount returns the number of records of the current key.
func (c *Cursor) DuplicateCount() (n int, err error) {
	err = c.read(func() error {
		n, err = c.c.DuplicateCount()
		return err
	})
	return n, err
}

// DuplicatePosition returns the position of the cursor among the duplicates
// of its key.
func (c *Cursor) DuplicatePosition() (n int, err error) {
	err = c.read(func() error {
		n, err = c.c.DuplicateIndex()
		return err
	})
	return n, err
}

// position returns the current key and duplicate. It is called with the
// environment locked.
func (c *Cursor) position() ([]byte, int, error) {
	key, err := c.c.Key()
	if err != nil {
		return nil, 0, err
	}
	dup, err := c.c.DuplicateIndex()
	if err != nil {
		return nil, 0, err
	}
	return key, dup, nil
}

// Overwrite replaces the record the cursor points to.
func (c *Cursor) Overwrite(record []byte) error {
	e := c.db.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.db.writable(); err != nil {
		return err
	}
	key, dup, err := c.position()
	if err != nil {
		return err
	}
	op := transaction.TransactionOperation{Kind: transaction.OpInsert, DupIndex: dup, Record: record}
	return e.runLocked(c.txn, func(t *transaction.Transaction) {
		t.Record(c.db.name, c.db.tree.Comparator().Compare, key, op)
	})
}

// Erase removes the record the cursor points to and unpositions the cursor.
func (c *Cursor) Erase() error {
	e := c.db.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.db.writable(); err != nil {
		return err
	}
	key, dup, err := c.position()
	if err != nil {
		return err
	}
	op := transaction.TransactionOperation{Kind: transaction.OpErase, DupIndex: dup}
	if err := e.runLocked(c.txn, func(t *transaction.Transaction) {
		t.Record(c.db.name, c.db.tree.Comparator().Compare, key, op)
	}); err != nil {
		return err
	}
	c.c.Reset()
	return nil
}

// Insert stores record under key and moves the cursor onto it. Positional
// duplicate flags are relative to the current duplicate when the cursor is
// on key.
func (c *Cursor) Insert(key, record []byte, flags btree.InsertFlags) error {
	e := c.db.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := c.usable(); err != nil {
		return err
	}
	ref := 0
	if cur, dup, err := c.position(); err == nil && bytes.Equal(cur, key) {
		ref = dup
	}
	key, pos, err := c.db.insertLocked(c.txn, key, record, flags, ref)
	if err != nil {
		return err
	}
	if err := c.c.Find(key, FindExact); err != nil {
		return err
	}
	return c.c.SetDuplicateIndex(pos)
}

// Close releases the cursor.
func (c *Cursor) Close() error {
	e := c.db.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.closed {
		return dberror.ErrAlreadyClosed
	}
	c.closed = true
	c.c.Close()
	c.db.cursors--
	return nil
}
