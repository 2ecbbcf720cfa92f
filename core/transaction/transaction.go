// Package transaction buffers the pending changes of open transactions and
// applies them to the database trees at commit.
package transaction

import (
	"slices"
	"sync/atomic"
	"time"

	gbtree "github.com/google/btree"

	"github.com/sushant-115/stratadb/core/indexing/btree"
)

// TransactionState represents the in-memory state of a transaction.
type TransactionState int

const (
	TxnStateRunning   TransactionState = iota // Transaction is active, operations are being buffered
	TxnStateCommitted                         // Operations were logged and applied to the trees
	TxnStateAborted                           // Operations were discarded
	TxnStateFailed                            // Operations were logged but only partly applied
)

func (s TransactionState) String() string {
	switch s {
	case TxnStateRunning:
		return "running"
	case TxnStateCommitted:
		return "committed"
	case TxnStateAborted:
		return "aborted"
	case TxnStateFailed:
		return "failed"
	}
	return "unknown"
}

// OpKind identifies a buffered change.
type OpKind uint8

const (
	OpInsert          OpKind = iota + 1 // insert or overwrite a record
	OpInsertDuplicate                   // add a duplicate at a position
	OpErase                             // erase one duplicate
	OpEraseAll                          // erase a key with all its duplicates
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpInsertDuplicate:
		return "insert-duplicate"
	case OpErase:
		return "erase"
	case OpEraseAll:
		return "erase-all"
	}
	return "unknown"
}

// TransactionOperation represents a single change to one key.
type TransactionOperation struct {
	Kind OpKind
	// Flags carries the duplicate position flags of OpInsertDuplicate.
	Flags    btree.InsertFlags
	DupIndex int
	Record   []byte
}

// Op is an operation bound to a database and key, as logged and applied.
type Op struct {
	DB  uint16
	Key []byte
	TransactionOperation
}

// keyOps is an overlay item: one key plus its operations in issue order.
type keyOps struct {
	key []byte
	ops []TransactionOperation
}

type overlay struct {
	cmp   btree.CompareFunc
	items *gbtree.BTreeG[*keyOps]
}

const overlayDegree = 16

func newOverlay(cmp btree.CompareFunc) *overlay {
	return &overlay{
		cmp: cmp,
		items: gbtree.NewG(overlayDegree, func(a, b *keyOps) bool {
			return cmp(a.key, b.key) < 0
		}),
	}
}

// neighbor returns the overlay key next to from in the given direction. A
// nil from starts at the respective end.
func (o *overlay) neighbor(from []byte, forward, inclusive bool) ([]byte, bool) {
	var found []byte
	visit := func(it *keyOps) bool {
		if !inclusive && from != nil && o.cmp(it.key, from) == 0 {
			return true
		}
		found = it.key
		return false
	}
	switch {
	case from == nil && forward:
		o.items.Ascend(visit)
	case from == nil:
		o.items.Descend(visit)
	case forward:
		o.items.AscendGreaterOrEqual(&keyOps{key: from}, visit)
	default:
		o.items.DescendLessOrEqual(&keyOps{key: from}, visit)
	}
	return found, found != nil
}

// Transaction represents an in-memory record of an active transaction.
type Transaction struct {
	ID      uint64
	State   TransactionState
	Started time.Time

	ops      []Op
	overlays map[uint16]*overlay
	version  uint64
	cursors  atomic.Int32
}

func newTransaction(id uint64) *Transaction {
	return &Transaction{
		ID:       id,
		State:    TxnStateRunning,
		Started:  time.Now(),
		overlays: make(map[uint16]*overlay),
	}
}

// Record buffers op for key of database db. cmp must be the key order of
// the database. Key and record are copied.
func (t *Transaction) Record(db uint16, cmp btree.CompareFunc, key []byte, op TransactionOperation) {
	key = cloneBytes(key)
	op.Record = cloneBytes(op.Record)
	t.ops = append(t.ops, Op{DB: db, Key: key, TransactionOperation: op})

	o, ok := t.overlays[db]
	if !ok {
		o = newOverlay(cmp)
		t.overlays[db] = o
	}
	if it, ok := o.items.Get(&keyOps{key: key}); ok {
		it.ops = append(it.ops, op)
	} else {
		o.items.ReplaceOrInsert(&keyOps{key: key, ops: []TransactionOperation{op}})
	}
	t.version++
}

// Ops returns the buffered operations in issue order.
func (t *Transaction) Ops() []Op { return t.ops }

// Empty reports whether the transaction changed nothing.
func (t *Transaction) Empty() bool { return len(t.ops) == 0 }

// Version changes whenever an operation is buffered.
func (t *Transaction) Version() uint64 { return t.version }

// Touches reports whether the transaction changed key of database db.
func (t *Transaction) Touches(db uint16, key []byte) bool {
	o, ok := t.overlays[db]
	if !ok {
		return false
	}
	return o.items.Has(&keyOps{key: key})
}

// TouchesDatabase reports whether the transaction changed database db.
func (t *Transaction) TouchesDatabase(db uint16) bool {
	_, ok := t.overlays[db]
	return ok
}

// Resolve applies the buffered operations on key to its committed records.
func (t *Transaction) Resolve(db uint16, key []byte, committed [][]byte) [][]byte {
	o, ok := t.overlays[db]
	if !ok {
		return committed
	}
	it, ok := o.items.Get(&keyOps{key: key})
	if !ok {
		return committed
	}
	return ResolveOps(committed, it.ops)
}

// ResolveOps applies ops in order to recs, with the same lenient semantics
// ApplyOp uses against a tree.
func ResolveOps(recs [][]byte, ops []TransactionOperation) [][]byte {
	recs = slices.Clone(recs)
	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			if len(recs) == 0 {
				recs = [][]byte{op.Record}
				continue
			}
			recs[min(max(op.DupIndex, 0), len(recs)-1)] = op.Record
		case OpInsertDuplicate:
			pos := btree.DuplicatePosition(op.Flags, op.DupIndex, len(recs))
			recs = slices.Insert(recs, pos, op.Record)
		case OpErase:
			if op.DupIndex >= 0 && op.DupIndex < len(recs) {
				recs = slices.Delete(recs, op.DupIndex, op.DupIndex+1)
			}
		case OpEraseAll:
			recs = nil
		}
	}
	return recs
}

// AttachCursor and DetachCursor track cursors bound to the transaction; it
// cannot finish while any is open.
func (t *Transaction) AttachCursor() { t.cursors.Add(1) }

func (t *Transaction) DetachCursor() { t.cursors.Add(-1) }

// OpenCursors returns the number of cursors bound to the transaction.
func (t *Transaction) OpenCursors() int { return int(t.cursors.Load()) }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return slices.Clone(b)
}
