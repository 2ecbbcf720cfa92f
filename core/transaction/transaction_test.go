package transaction

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/storage_engine/blob"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	"github.com/sushant-115/stratadb/core/storage_engine/freelist"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
)

const (
	testPageSize = 1024
	testDB       = 1
)

func newTree(t *testing.T, dups bool) *btree.BTree {
	t.Helper()
	dev, err := disk.NewMemoryDevice(testPageSize, 0)
	require.NoError(t, err)
	require.NoError(t, dev.Truncate(testPageSize))
	cache, err := pagecache.New(dev, testPageSize, pagecache.Options{}, zap.NewNop())
	require.NoError(t, err)
	cache.SetAllocator(freelist.New(testPageSize, 1, dev, nil))
	blobs, err := blob.New(cache, testPageSize, 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(blobs.Close)
	tree, err := btree.Create(cache, blobs, btree.Config{PageSize: testPageSize, EnableDuplicates: dups}, zap.NewNop())
	require.NoError(t, err)
	return tree
}

type recordingJournal struct {
	groups [][]Op
	err    error
}

func (j *recordingJournal) AppendTxn(_ context.Context, _ uint64, ops []Op) error {
	if j.err != nil {
		return j.err
	}
	j.groups = append(j.groups, ops)
	return nil
}

func applyTo(tree *btree.BTree) ApplyFunc {
	return func(op Op) error { return ApplyOp(tree, op) }
}

func insert(rec string) TransactionOperation {
	return TransactionOperation{Kind: OpInsert, Record: []byte(rec)}
}

func strs(recs [][]byte) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = string(r)
	}
	return out
}

func TestResolveOps(t *testing.T) {
	b := func(s ...string) [][]byte {
		out := make([][]byte, len(s))
		for i, v := range s {
			out[i] = []byte(v)
		}
		return out
	}
	cases := []struct {
		name      string
		committed [][]byte
		ops       []TransactionOperation
		want      []string
	}{
		{"insert new", nil, []TransactionOperation{insert("a")}, []string{"a"}},
		{"overwrite", b("x"), []TransactionOperation{insert("a")}, []string{"a"}},
		{"erase all then insert", b("x", "y"), []TransactionOperation{{Kind: OpEraseAll}, insert("z")}, []string{"z"}},
		{"append duplicates", b("x"), []TransactionOperation{
			{Kind: OpInsertDuplicate, Flags: btree.Duplicate, Record: []byte("y")},
			{Kind: OpInsertDuplicate, Flags: btree.DuplicateInsertFirst, Record: []byte("w")},
		}, []string{"w", "x", "y"}},
		{"erase one duplicate", b("x", "y", "z"), []TransactionOperation{{Kind: OpErase, DupIndex: 1}}, []string{"x", "z"}},
		{"erase missing duplicate", b("x"), []TransactionOperation{{Kind: OpErase, DupIndex: 3}}, []string{"x"}},
		{"overwrite selected duplicate", b("x", "y"), []TransactionOperation{{Kind: OpInsert, DupIndex: 1, Record: []byte("Y")}}, []string{"x", "Y"}},
		{"erase everything", b("x"), []TransactionOperation{{Kind: OpErase}}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveOps(tc.committed, tc.ops)
			require.Equal(t, tc.want, strs(got))
		})
	}
}

func TestCommitJournalsThenApplies(t *testing.T) {
	tree := newTree(t, true)
	require.NoError(t, tree.Insert([]byte("gone"), []byte("old"), 0))

	m := NewManager(zap.NewNop())
	txn := m.Begin()
	cmp := tree.Comparator().Compare
	txn.Record(testDB, cmp, []byte("k1"), insert("v1"))
	txn.Record(testDB, cmp, []byte("k1"), TransactionOperation{Kind: OpInsertDuplicate, Flags: btree.Duplicate, Record: []byte("v2")})
	txn.Record(testDB, cmp, []byte("gone"), TransactionOperation{Kind: OpEraseAll})
	require.Equal(t, 1, m.Active())

	// nothing reaches the tree before commit
	_, err := tree.Find([]byte("k1"))
	require.ErrorIs(t, err, dberror.ErrKeyNotFound)

	j := &recordingJournal{}
	require.NoError(t, m.Commit(context.Background(), txn, j, applyTo(tree)))
	require.Equal(t, TxnStateCommitted, txn.State)
	require.Zero(t, m.Active())
	require.Len(t, j.groups, 1)
	require.Len(t, j.groups[0], 3)
	require.Equal(t, OpEraseAll, j.groups[0][2].Kind)

	recs, err := tree.Records([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "v2"}, strs(recs))
	_, err = tree.Find([]byte("gone"))
	require.ErrorIs(t, err, dberror.ErrKeyNotFound)

	err = m.Commit(context.Background(), txn, j, applyTo(tree))
	require.ErrorIs(t, err, dberror.ErrAlreadyClosed)
}

func TestJournalFailureLeavesTreeUntouched(t *testing.T) {
	tree := newTree(t, false)
	m := NewManager(nil)
	txn := m.Begin()
	txn.Record(testDB, tree.Comparator().Compare, []byte("k"), insert("v"))

	boom := errors.New("disk full")
	err := m.Commit(context.Background(), txn, &recordingJournal{err: boom}, applyTo(tree))
	require.ErrorIs(t, err, boom)
	require.Equal(t, TxnStateRunning, txn.State)
	_, err = tree.Find([]byte("k"))
	require.ErrorIs(t, err, dberror.ErrKeyNotFound)

	require.NoError(t, m.Abort(txn))
	require.Equal(t, TxnStateAborted, txn.State)
	require.ErrorIs(t, m.Abort(txn), dberror.ErrAlreadyClosed)
}

func TestApplyFailureAfterFirstOperationFailsTransaction(t *testing.T) {
	boom := errors.New("cache full")
	failAt := func(tree *btree.BTree, n int) ApplyFunc {
		applied := 0
		return func(op Op) error {
			if applied == n {
				return boom
			}
			applied++
			return ApplyOp(tree, op)
		}
	}
	cases := []struct {
		name    string
		journal Journal
		failAt  int
		fatal   bool
	}{
		{"first op without journal", nil, 0, false},
		{"later op without journal", nil, 2, true},
		{"first op after journaling", &recordingJournal{}, 0, true},
		{"later op after journaling", &recordingJournal{}, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tree := newTree(t, false)
			m := NewManager(zap.NewNop())
			txn := m.Begin()
			for _, k := range []string{"a", "b", "c", "d"} {
				txn.Record(testDB, tree.Comparator().Compare, []byte(k), insert("v-"+k))
			}

			err := m.Commit(context.Background(), txn, tc.journal, failAt(tree, tc.failAt))
			require.ErrorIs(t, err, boom)
			if !tc.fatal {
				require.NotErrorIs(t, err, dberror.ErrCorruption)
				require.Equal(t, TxnStateRunning, txn.State)
				require.NoError(t, m.Abort(txn))
				return
			}
			require.ErrorIs(t, err, dberror.ErrCorruption)
			require.Equal(t, TxnStateFailed, txn.State)
			require.Zero(t, m.Active())
			// the partly applied group cannot be discarded
			require.ErrorIs(t, m.Abort(txn), dberror.ErrAlreadyClosed)
		})
	}
}

func TestOpenCursorBlocksCommit(t *testing.T) {
	tree := newTree(t, false)
	m := NewManager(nil)
	txn := m.Begin()
	c := NewCursor(txn, testDB, tree)

	err := m.Commit(context.Background(), txn, nil, applyTo(tree))
	require.ErrorIs(t, err, dberror.ErrCursorStillOpen)
	require.ErrorIs(t, m.Abort(txn), dberror.ErrCursorStillOpen)

	c.Close()
	require.NoError(t, m.Commit(context.Background(), txn, nil, applyTo(tree)))
}

func TestApplyOpIsLenient(t *testing.T) {
	tree := newTree(t, true)
	require.NoError(t, ApplyOp(tree, Op{DB: testDB, Key: []byte("k"), TransactionOperation: insert("a")}))
	require.NoError(t, ApplyOp(tree, Op{DB: testDB, Key: []byte("k"), TransactionOperation: insert("b")}))
	got, err := tree.Find([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("b"), got)

	require.NoError(t, ApplyOp(tree, Op{Key: []byte("missing"), TransactionOperation: TransactionOperation{Kind: OpEraseAll}}))
	require.NoError(t, ApplyOp(tree, Op{Key: []byte("k"), TransactionOperation: TransactionOperation{Kind: OpErase, DupIndex: 5}}))
	require.NoError(t, ApplyOp(tree, Op{Key: []byte("k"), TransactionOperation: TransactionOperation{Kind: OpInsertDuplicate, Record: []byte("c")}}))
	recs, err := tree.Records([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, strs(recs))

	err = ApplyOp(tree, Op{Key: []byte("k"), TransactionOperation: TransactionOperation{Kind: 99}})
	require.ErrorIs(t, err, dberror.ErrInvalidParameter)
}

func collect(t *testing.T, c *Cursor) []string {
	t.Helper()
	var out []string
	for {
		err := c.Next(false)
		if errors.Is(err, dberror.ErrKeyNotFound) {
			return out
		}
		require.NoError(t, err)
		k, err := c.Key()
		require.NoError(t, err)
		r, err := c.Record()
		require.NoError(t, err)
		out = append(out, string(k)+"="+string(r))
	}
}

func TestMergedCursor(t *testing.T) {
	tree := newTree(t, false)
	for _, k := range []string{"a", "c", "e", "g"} {
		require.NoError(t, tree.Insert([]byte(k), []byte(k), 0))
	}
	m := NewManager(nil)
	txn := m.Begin()
	cmp := tree.Comparator().Compare
	txn.Record(testDB, cmp, []byte("b"), insert("B"))
	txn.Record(testDB, cmp, []byte("c"), TransactionOperation{Kind: OpEraseAll})
	txn.Record(testDB, cmp, []byte("e"), insert("E"))
	txn.Record(testDB, cmp, []byte("h"), insert("H"))
	txn.Record(testDB, cmp, []byte("g"), TransactionOperation{Kind: OpEraseAll})
	// another database of the same transaction stays out of view
	txn.Record(testDB+1, cmp, []byte("d"), insert("D"))

	c := NewCursor(txn, testDB, tree)
	defer c.Close()
	require.Equal(t, []string{"a=a", "b=B", "e=E", "h=H"}, collect(t, c))

	require.NoError(t, c.Find([]byte("c"), btree.FindGEQ))
	k, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("e"), k)
	require.NoError(t, c.Previous(false))
	k, err = c.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("b"), k)
	require.ErrorIs(t, c.Find([]byte("c"), btree.FindExact), dberror.ErrKeyNotFound)
	require.NoError(t, c.Find([]byte("g"), btree.FindLEQ))
	k, err = c.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("e"), k)

	require.NoError(t, c.Last())
	k, err = c.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("h"), k)

	// a cursor without the transaction sees committed data only
	plain := NewCursor(nil, testDB, tree)
	require.Equal(t, []string{"a=a", "c=c", "e=e", "g=g"}, collect(t, plain))

	// a second transaction does not see the first one's changes
	other := NewCursor(m.Begin(), testDB, tree)
	defer other.Close()
	require.Equal(t, []string{"a=a", "c=c", "e=e", "g=g"}, collect(t, other))
}

func TestCursorFollowsLaterChanges(t *testing.T) {
	tree := newTree(t, true)
	require.NoError(t, tree.Insert([]byte("k"), []byte("1"), 0))
	m := NewManager(nil)
	txn := m.Begin()
	c := NewCursor(txn, testDB, tree)
	defer c.Close()

	require.NoError(t, c.Find([]byte("k"), btree.FindExact))
	txn.Record(testDB, tree.Comparator().Compare, []byte("k"),
		TransactionOperation{Kind: OpInsertDuplicate, Flags: btree.Duplicate, Record: []byte("2")})
	n, err := c.DuplicateCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, c.NextDuplicate())
	r, err := c.Record()
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("2"), r))

	txn.Record(testDB, tree.Comparator().Compare, []byte("k"), TransactionOperation{Kind: OpEraseAll})
	_, err = c.Record()
	require.ErrorIs(t, err, dberror.ErrCursorIsNil)
	require.ErrorIs(t, c.Next(false), dberror.ErrKeyNotFound)
}
