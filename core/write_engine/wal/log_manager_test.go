package wal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/security/encryption"
	"github.com/sushant-115/stratadb/core/transaction"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
)

// --- Test Helpers ---

func openLog(t *testing.T, opts Options) *LogManager {
	t.Helper()
	lm, err := Open(opts, zap.NewNop())
	require.NoError(t, err)
	return lm
}

func op(kind transaction.OpKind, key, rec string) transaction.Op {
	return transaction.Op{
		DB:                   1,
		Key:                  []byte(key),
		TransactionOperation: transaction.TransactionOperation{Kind: kind, Record: []byte(rec)},
	}
}

func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "log_*.log"))
	require.NoError(t, err)
	return matches
}

// --- Test Cases ---

func TestAppendAndRecoverGroups(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	sealer, err := encryption.NewRecordCipher(key)
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		opts Options
	}{
		{"plain", Options{}},
		{"snappy", Options{Compression: CompressionSnappy, CompressThreshold: 16}},
		{"lz4", Options{Compression: CompressionLZ4, CompressThreshold: 16}},
		{"sealed", Options{Compression: CompressionSnappy, Sealer: sealer}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Dir = t.TempDir()
			lm := openLog(t, tc.opts)
			big := string(bytes.Repeat([]byte("compressible "), 200))
			require.NoError(t, lm.AppendTxn(context.Background(), 5, []transaction.Op{
				op(transaction.OpInsert, "alpha", big),
				op(transaction.OpEraseAll, "beta", ""),
			}))
			lsn, err := lm.AppendChangeset(context.Background(), []pagecache.Image{
				{Addr: 4096, Data: bytes.Repeat([]byte{1}, 512)},
			})
			require.NoError(t, err)
			// records 1-2, commit marker 3, page image 4, changeset marker 5
			require.Equal(t, LSN(5), lsn)
			dup := op(transaction.OpInsertDuplicate, "alpha", "second")
			dup.Flags, dup.DupIndex = btree.DuplicateInsertBefore, 1
			require.NoError(t, lm.AppendTxn(context.Background(), 6, []transaction.Op{dup}))
			require.NoError(t, lm.Close())

			lm = openLog(t, tc.opts)
			defer lm.Close()
			groups := lm.RecoveredGroups()
			require.Len(t, groups, 3)

			require.Equal(t, GroupTxn, groups[0].Kind)
			require.Equal(t, uint64(5), groups[0].TxnID)
			require.Equal(t, LSN(3), groups[0].LSN)
			require.Len(t, groups[0].Records, 2)
			require.Equal(t, LogRecordTypeInsert, groups[0].Records[0].Type)
			require.Equal(t, []byte("alpha"), groups[0].Records[0].Key)
			require.Equal(t, big, string(groups[0].Records[0].Record))
			require.Equal(t, LogRecordTypeEraseAllDuplicates, groups[0].Records[1].Type)

			require.Equal(t, GroupChangeset, groups[1].Kind)
			require.Equal(t, LSN(5), groups[1].LSN)
			addr, err := groups[1].Records[0].PageAddress()
			require.NoError(t, err)
			require.Equal(t, uint64(4096), addr)
			require.Len(t, groups[1].Records[0].Record, 512)

			rec := groups[2].Records[0]
			require.Equal(t, LogRecordTypeInsertDuplicate, rec.Type)
			require.Equal(t, uint32(btree.DuplicateInsertBefore), rec.Flags)
			require.Equal(t, int32(1), rec.DupIndex)
			require.Equal(t, uint16(1), rec.DB)

			require.Equal(t, LSN(8), lm.NextLSN())
		})
	}
}

func TestSealedLogNeedsKey(t *testing.T) {
	dir := t.TempDir()
	sealer, err := encryption.NewRecordCipher(bytes.Repeat([]byte{3}, 16))
	require.NoError(t, err)
	lm := openLog(t, Options{Dir: dir, Sealer: sealer})
	require.NoError(t, lm.AppendTxn(context.Background(), 1, []transaction.Op{op(transaction.OpInsert, "k", "v")}))
	require.NoError(t, lm.Close())

	_, err = Open(Options{Dir: dir}, zap.NewNop())
	require.ErrorIs(t, err, dberror.ErrInvalidParameter)
}

func TestTornTailIsCutOff(t *testing.T) {
	dir := t.TempDir()
	lm := openLog(t, Options{Dir: dir})
	require.NoError(t, lm.AppendTxn(context.Background(), 1, []transaction.Op{op(transaction.OpInsert, "k1", "v1")}))
	size := lm.Size()
	require.NoError(t, lm.AppendTxn(context.Background(), 2, []transaction.Op{op(transaction.OpInsert, "k2", "v2")}))
	require.NoError(t, lm.Close())

	// lose the last byte of the second group's commit marker
	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	require.NoError(t, os.Truncate(files[0], info.Size()-1))

	lm = openLog(t, Options{Dir: dir})
	groups := lm.RecoveredGroups()
	require.Len(t, groups, 1)
	require.Equal(t, uint64(1), groups[0].TxnID)
	require.Equal(t, size, lm.Size())

	// LSNs continue after the surviving group
	require.NoError(t, lm.AppendTxn(context.Background(), 3, []transaction.Op{op(transaction.OpInsert, "k3", "v3")}))
	require.NoError(t, lm.Close())

	lm = openLog(t, Options{Dir: dir})
	defer lm.Close()
	groups = lm.RecoveredGroups()
	require.Len(t, groups, 2)
	require.Equal(t, LSN(4), groups[1].LSN)
}

func TestCorruptFrameEndsTheLog(t *testing.T) {
	dir := t.TempDir()
	lm := openLog(t, Options{Dir: dir})
	require.NoError(t, lm.AppendTxn(context.Background(), 1, []transaction.Op{op(transaction.OpInsert, "k1", "v1")}))
	offset := lm.Size()
	require.NoError(t, lm.AppendTxn(context.Background(), 2, []transaction.Op{op(transaction.OpInsert, "k2", "v2")}))
	require.NoError(t, lm.Close())

	files := segmentFiles(t, dir)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	data[offset+frameHeaderSize+20] ^= 0xff
	require.NoError(t, os.WriteFile(files[0], data, 0o644))

	lm = openLog(t, Options{Dir: dir})
	defer lm.Close()
	require.Len(t, lm.RecoveredGroups(), 1)
	require.Equal(t, offset, lm.Size())
}

func TestUncommittedRecordsAreIgnored(t *testing.T) {
	dir := t.TempDir()
	lm := openLog(t, Options{Dir: dir})
	require.NoError(t, lm.AppendTxn(context.Background(), 1, []transaction.Op{op(transaction.OpInsert, "k1", "v1")}))
	// a group whose marker never made it
	lm.mu.Lock()
	frame, err := lm.codec.encode(nil, &LogRecord{LSN: lm.nextLSN, TxnID: 2, Type: LogRecordTypeInsert, Key: []byte("k2")})
	require.NoError(t, err)
	lm.buffer.Write(frame)
	require.NoError(t, lm.flushInternal())
	lm.mu.Unlock()
	require.NoError(t, lm.Close())

	lm = openLog(t, Options{Dir: dir})
	defer lm.Close()
	groups := lm.RecoveredGroups()
	require.Len(t, groups, 1)
	require.Equal(t, LSN(3), lm.NextLSN())
}

func TestRollAndRotate(t *testing.T) {
	dir := t.TempDir()
	lm := openLog(t, Options{Dir: dir, SegmentSize: 256})
	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, lm.AppendTxn(context.Background(), i,
			[]transaction.Op{op(transaction.OpInsert, "key", string(bytes.Repeat([]byte("v"), 100)))}))
	}
	require.Greater(t, len(segmentFiles(t, dir)), 1)
	require.NoError(t, lm.Close())

	lm = openLog(t, Options{Dir: dir, SegmentSize: 256})
	groups := lm.RecoveredGroups()
	require.Len(t, groups, 20)
	for i, g := range groups {
		require.Equal(t, uint64(i+1), g.TxnID)
		require.Equal(t, LSN(2*(i+1)), g.LSN)
	}

	require.NoError(t, lm.Rotate())
	require.Len(t, segmentFiles(t, dir), 1)
	require.Zero(t, lm.Size())
	require.Empty(t, lm.RecoveredGroups())
	require.NoError(t, lm.Close())

	lm = openLog(t, Options{Dir: dir, StartLSN: 40})
	defer lm.Close()
	require.Empty(t, lm.RecoveredGroups())
	require.Equal(t, LSN(41), lm.NextLSN())
}

func TestDeferredFlush(t *testing.T) {
	dir := t.TempDir()
	lm := openLog(t, Options{Dir: dir, Durability: DeferredFlush})
	require.NoError(t, lm.AppendTxn(context.Background(), 1, []transaction.Op{op(transaction.OpInsert, "k", "v")}))
	require.NoError(t, lm.Sync())
	require.GreaterOrEqual(t, lm.Stats().Syncs, uint64(1))
	require.NoError(t, lm.Close())
	require.ErrorIs(t, lm.AppendTxn(context.Background(), 2, nil), dberror.ErrAlreadyClosed)

	lm = openLog(t, Options{Dir: dir})
	defer lm.Close()
	require.Len(t, lm.RecoveredGroups(), 1)
}

func TestCanceledContext(t *testing.T) {
	lm := openLog(t, Options{Dir: t.TempDir()})
	defer lm.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, lm.AppendTxn(ctx, 1, nil), context.Canceled)
	require.Equal(t, LSN(1), lm.NextLSN())
}
