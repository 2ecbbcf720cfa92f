package environment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/transaction"
)

const duplicateFlags = btree.Duplicate | btree.DuplicateInsertBefore | btree.DuplicateInsertAfter |
	btree.DuplicateInsertFirst | btree.DuplicateInsertLast

// Database is an open handle to one database of an environment. All
// methods are safe for concurrent use; a transaction must only be used by
// one goroutine at a time.
type Database struct {
	env     *Environment
	name    uint16
	flags   DBFlags
	tree    *btree.BTree
	cursors int
	closed  bool
}

func (d *Database) Name() uint16   { return d.name }
func (d *Database) Flags() DBFlags { return d.flags }

func (d *Database) usable() error {
	if d.closed {
		return dberror.ErrAlreadyClosed
	}
	return d.env.usable()
}

func (d *Database) writable() error {
	if d.closed {
		return dberror.ErrAlreadyClosed
	}
	return d.env.writable()
}

// Close releases the handle. It fails while cursors are open or a running
// transaction has changed the database.
func (d *Database) Close() error {
	e := d.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if d.closed {
		return dberror.ErrAlreadyClosed
	}
	if d.cursors > 0 {
		return fmt.Errorf("%w: %d cursors", dberror.ErrCursorStillOpen, d.cursors)
	}
	if e.txns.Touching(d.name) {
		return fmt.Errorf("%w: database %d has pending changes", dberror.ErrTxnStillOpen, d.name)
	}
	d.closed = true
	if e.handles != nil {
		delete(e.handles, d.name)
	}
	return nil
}

// visibleLocked returns the records of key as seen by txn.
func (d *Database) visibleLocked(txn *transaction.Transaction, key []byte) ([][]byte, error) {
	recs, err := d.tree.Records(key)
	if err != nil && !errors.Is(err, dberror.ErrKeyNotFound) {
		return nil, d.env.note(err)
	}
	if txn != nil {
		recs = txn.Resolve(d.name, key, recs)
	}
	return recs, nil
}

// Find returns the record of key, the first one if it has duplicates.
func (d *Database) Find(txn *transaction.Transaction, key []byte) ([]byte, error) {
	recs, err := d.Records(txn, key)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// Records returns all records of key in duplicate order.
func (d *Database) Records(txn *transaction.Transaction, key []byte) ([][]byte, error) {
	e := d.env
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := d.usable(); err != nil {
		return nil, err
	}
	if err := e.checkTxn(txn); err != nil {
		return nil, err
	}
	recs, err := d.visibleLocked(txn, key)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %q", dberror.ErrKeyNotFound, key)
	}
	return recs, nil
}

// Insert stores record under key. Without btree.Overwrite or a duplicate
// flag an existing key fails with ErrDuplicateKey. Record number databases
// assign the key themselves unless Overwrite names an existing one; the
// stored key is returned.
func (d *Database) Insert(txn *transaction.Transaction, key, record []byte, flags btree.InsertFlags) ([]byte, error) {
	e := d.env
	e.mu.Lock()
	defer e.mu.Unlock()
	key, _, err := d.insertLocked(txn, key, record, flags, 0)
	return key, err
}

// insertLocked validates and records an insert, relative to duplicate ref
// for positional flags. It returns the key and the duplicate position the
// record lands on.
func (d *Database) insertLocked(txn *transaction.Transaction, key, record []byte, flags btree.InsertFlags, ref int) ([]byte, int, error) {
	e := d.env
	if err := d.writable(); err != nil {
		return nil, 0, err
	}
	if err := e.checkTxn(txn); err != nil {
		return nil, 0, err
	}
	if flags&btree.Overwrite != 0 && flags&duplicateFlags != 0 {
		return nil, 0, fmt.Errorf("%w: overwrite and duplicate flags are exclusive", dberror.ErrInvalidParameter)
	}
	if flags&duplicateFlags != 0 && d.flags&EnableDuplicates == 0 {
		return nil, 0, fmt.Errorf("%w: database %d does not allow duplicate keys", dberror.ErrInvalidParameter, d.name)
	}
	if len(key) > btree.MaxKeySize {
		return nil, 0, fmt.Errorf("%w: key of %d bytes", dberror.ErrInvalidParameter, len(key))
	}
	if uint64(len(record)) > 1<<32-1 {
		return nil, 0, fmt.Errorf("%w: record of %d bytes", dberror.ErrInvalidParameter, len(record))
	}
	// the counter only moves once the insert went through
	var recno uint64
	if d.flags&RecordNumber != 0 {
		switch {
		case flags&btree.Overwrite != 0 && len(key) == 8:
			recno = binary.BigEndian.Uint64(key)
		case flags&btree.Overwrite != 0:
			return nil, 0, fmt.Errorf("%w: record number keys are 8 bytes", dberror.ErrInvalidParameter)
		default:
			recno = e.slotLocked(d.name).RecordCounter + 1
			key = binary.BigEndian.AppendUint64(nil, recno)
		}
	}

	recs, err := d.visibleLocked(txn, key)
	if err != nil {
		return nil, 0, err
	}
	op := transaction.TransactionOperation{Kind: transaction.OpInsert, Record: record}
	pos := 0
	switch {
	case len(recs) == 0:
	case flags&btree.Overwrite != 0:
		op.DupIndex = ref
		pos = min(max(ref, 0), len(recs)-1)
	case flags&duplicateFlags != 0:
		op.Kind, op.Flags, op.DupIndex = transaction.OpInsertDuplicate, flags&duplicateFlags, ref
		pos = btree.DuplicatePosition(op.Flags, ref, len(recs))
	default:
		return nil, 0, fmt.Errorf("%w: %q", dberror.ErrDuplicateKey, key)
	}
	if err := e.runLocked(txn, func(t *transaction.Transaction) {
		t.Record(d.name, d.tree.Comparator().Compare, key, op)
	}); err != nil {
		return nil, 0, err
	}
	if recno != 0 {
		slot := e.slotLocked(d.name)
		slot.RecordCounter = max(slot.RecordCounter, recno)
	}
	return key, pos, nil
}

// Erase removes key with all its duplicates.
func (d *Database) Erase(txn *transaction.Transaction, key []byte) error {
	e := d.env
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := d.writable(); err != nil {
		return err
	}
	if err := e.checkTxn(txn); err != nil {
		return err
	}
	recs, err := d.visibleLocked(txn, key)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("%w: %q", dberror.ErrKeyNotFound, key)
	}
	return e.runLocked(txn, func(t *transaction.Transaction) {
		t.Record(d.name, d.tree.Comparator().Compare, key, transaction.TransactionOperation{Kind: transaction.OpEraseAll})
	})
}

// Count returns the number of records, or of keys when distinct is set, as
// seen by txn.
func (d *Database) Count(txn *transaction.Transaction, distinct bool) (uint64, error) {
	e := d.env
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := d.usable(); err != nil {
		return 0, err
	}
	if err := e.checkTxn(txn); err != nil {
		return 0, err
	}
	if txn == nil || !txn.TouchesDatabase(d.name) {
		n, err := d.tree.Count(distinct)
		return n, e.note(err)
	}
	c := transaction.NewCursor(txn, d.name, d.tree)
	defer c.Close()
	var n uint64
	for {
		err := c.Next(true)
		if errors.Is(err, dberror.ErrKeyNotFound) {
			return n, nil
		}
		if err != nil {
			return 0, e.note(err)
		}
		if distinct {
			n++
			continue
		}
		dups, err := c.DuplicateCount()
		if err != nil {
			return 0, err
		}
		n += uint64(dups)
	}
}

// --- transactions ---

// Begin starts a transaction.
func (e *Environment) Begin() (*transaction.Transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.usable(); err != nil {
		return nil, err
	}
	if e.cfg.Flags&EnableTransactions == 0 {
		return nil, fmt.Errorf("%w: transactions are not enabled", dberror.ErrInvalidParameter)
	}
	return e.txns.Begin(), nil
}

// Commit makes the changes of txn durable and visible to everyone.
func (e *Environment) Commit(ctx context.Context, txn *transaction.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	if err := e.checkTxn(txn); err != nil {
		return err
	}
	if !txn.Empty() && e.cfg.Flags&ReadOnly != 0 {
		return dberror.ErrReadOnly
	}
	return e.commitLocked(ctx, txn)
}

// Abort discards txn.
func (e *Environment) Abort(txn *transaction.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.txns.Abort(txn); err != nil {
		return err
	}
	e.metrics.AbortsCounter.Add(context.Background(), 1)
	return nil
}

func (e *Environment) journalOrNil() transaction.Journal {
	if e.journal == nil {
		return nil
	}
	return e.journal
}

func (e *Environment) applyLocked(op transaction.Op) error {
	t, ok := e.trees[op.DB]
	if !ok {
		return fmt.Errorf("%w: %d", dberror.ErrDatabaseNotFound, op.DB)
	}
	return transaction.ApplyOp(t, op)
}

func (e *Environment) commitLocked(ctx context.Context, txn *transaction.Transaction) error {
	ctx, span := e.tracer.Start(ctx, "environment.commit",
		trace.WithAttributes(attribute.Int64("txn_id", int64(txn.ID)), attribute.Int("ops", len(txn.Ops()))))
	defer span.End()
	if err := e.txns.Commit(ctx, txn, e.journalOrNil(), e.applyLocked); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return e.note(err)
	}
	e.metrics.CommitsCounter.Add(ctx, 1)
	e.reportJournalLocked(ctx)
	e.maybeCheckpointLocked(ctx)
	return nil
}

// runLocked records an operation in txn, or commits it on its own when txn
// is nil.
func (e *Environment) runLocked(txn *transaction.Transaction, record func(t *transaction.Transaction)) error {
	if txn != nil {
		record(txn)
		return nil
	}
	t := e.txns.Begin()
	record(t)
	if err := e.commitLocked(context.Background(), t); err != nil {
		// a failed txn is already in the journal and must not be discarded
		if t.State == transaction.TxnStateRunning {
			if aerr := e.txns.Abort(t); aerr != nil {
				e.logger.Warn("failed to discard implicit transaction", zap.Error(aerr))
			}
		}
		return err
	}
	return nil
}
