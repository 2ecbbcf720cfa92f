package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
)

// Journal makes a commit durable before it is applied.
type Journal interface {
	AppendTxn(ctx context.Context, txnID uint64, ops []Op) error
}

// ApplyFunc applies one operation to its database.
type ApplyFunc func(op Op) error

// Manager hands out transaction ids and tracks open transactions.
type Manager struct {
	mu     sync.Mutex
	nextID uint64
	active map[uint64]*Transaction
	logger *zap.Logger
}

// NewManager creates a manager whose first transaction gets id 1.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{nextID: 1, active: make(map[uint64]*Transaction), logger: logger}
}

// Begin starts a transaction.
func (m *Manager) Begin() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := newTransaction(m.nextID)
	m.nextID++
	m.active[txn.ID] = txn
	return txn
}

// EnsureNextID makes sure later transactions get ids above id, so ids found
// in a recovered log are never reused.
func (m *Manager) EnsureNextID(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id >= m.nextID {
		m.nextID = id + 1
	}
}

// Active returns the number of running transactions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Touching reports whether a running transaction changed database db.
func (m *Manager) Touching(db uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.active {
		if txn.TouchesDatabase(db) {
			return true
		}
	}
	return false
}

func (m *Manager) finish(txn *Transaction, state TransactionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn.State = state
	txn.ops, txn.overlays = nil, nil
	delete(m.active, txn.ID)
}

func checkRunning(txn *Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: nil transaction", dberror.ErrInvalidParameter)
	}
	if txn.State != TxnStateRunning {
		return fmt.Errorf("%w: transaction %d is %s", dberror.ErrAlreadyClosed, txn.ID, txn.State)
	}
	if n := txn.OpenCursors(); n > 0 {
		return fmt.Errorf("%w: transaction %d has %d open cursors", dberror.ErrCursorStillOpen, txn.ID, n)
	}
	return nil
}

// Commit logs the operations of txn as one group through journal (if any)
// and applies them in issue order. A failure that left neither the log nor
// the trees changed keeps txn running. Once the trees or the log hold part
// of txn, a failure ends it in TxnStateFailed with an error wrapping
// ErrCorruption: the owner must stop serving that state, and recovery
// replays the logged group.
func (m *Manager) Commit(ctx context.Context, txn *Transaction, journal Journal, apply ApplyFunc) error {
	if err := checkRunning(txn); err != nil {
		return err
	}
	start := time.Now()
	ops := txn.Ops()
	logged := len(ops) > 0 && journal != nil
	if logged {
		if err := journal.AppendTxn(ctx, txn.ID, ops); err != nil {
			return err
		}
	}
	for i, op := range ops {
		if err := apply(op); err != nil {
			if i == 0 && !logged {
				return fmt.Errorf("apply operation 0 of transaction %d: %w", txn.ID, err)
			}
			m.finish(txn, TxnStateFailed)
			m.logger.Error("transaction partly applied", zap.Uint64("txn_id", txn.ID),
				zap.Int("applied", i), zap.Int("ops", len(ops)), zap.Error(err))
			return fmt.Errorf("%w: apply operation %d of transaction %d: %w", dberror.ErrCorruption, i, txn.ID, err)
		}
	}
	m.finish(txn, TxnStateCommitted)
	m.logger.Debug("transaction committed", zap.Uint64("txn_id", txn.ID), zap.Int("ops", len(ops)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Abort discards txn without any I/O.
func (m *Manager) Abort(txn *Transaction) error {
	if err := checkRunning(txn); err != nil {
		return err
	}
	n := len(txn.ops)
	m.finish(txn, TxnStateAborted)
	m.logger.Debug("transaction aborted", zap.Uint64("txn_id", txn.ID), zap.Int("ops", n))
	return nil
}

// ApplyOp applies op to tree. It never fails on a missing key or duplicate,
// so replaying a logged group behaves exactly like its original commit.
func ApplyOp(tree *btree.BTree, op Op) error {
	var err error
	switch op.Kind {
	case OpInsert:
		_, err = tree.InsertAt(op.Key, op.Record, btree.Overwrite, op.DupIndex)
	case OpInsertDuplicate:
		flags := op.Flags
		if flags == 0 {
			flags = btree.Duplicate
		}
		_, err = tree.InsertAt(op.Key, op.Record, flags, op.DupIndex)
	case OpErase:
		err = tree.EraseDuplicate(op.Key, op.DupIndex)
	case OpEraseAll:
		err = tree.Erase(op.Key)
	default:
		return fmt.Errorf("%w: unknown operation kind %d", dberror.ErrInvalidParameter, op.Kind)
	}
	if errors.Is(err, dberror.ErrKeyNotFound) {
		return nil
	}
	return err
}
