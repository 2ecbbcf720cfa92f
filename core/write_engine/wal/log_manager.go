package wal

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/transaction"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
)

const (
	DefaultBufferSize        = 256 << 10
	DefaultSegmentSize       = 16 << 20
	DefaultFlushInterval     = 100 * time.Millisecond
	DefaultCompressThreshold = 256
)

// Durability selects when commits reach stable storage.
type Durability int

const (
	// SyncCommit fsyncs the log before a commit returns.
	SyncCommit Durability = iota
	// DeferredFlush leaves fsync to the background flusher.
	DeferredFlush
)

// Options configure a LogManager.
type Options struct {
	Dir string
	// BufferSize bounds the in-memory buffer before it is written out.
	BufferSize int
	// SegmentSize is the size after which the next group starts a new
	// segment. Groups never span segments.
	SegmentSize   int64
	Durability    Durability
	FlushInterval time.Duration
	Compression   Compression
	// CompressThreshold is the smallest payload that gets compressed.
	CompressThreshold int
	// Sealer encrypts record payloads when set.
	Sealer Sealer
	// StartLSN is the last LSN known to be used, typically the checkpoint
	// LSN of the database header. New records continue after it.
	StartLSN LSN
}

// Stats are cumulative counters of a LogManager.
type Stats struct {
	Records      uint64
	BytesWritten uint64
	Syncs        uint64
	Groups       uint64
}

// LogManager manages the Write-Ahead Log segments of one environment.
// It is responsible for appending commit groups and changesets, making
// them durable and handing complete groups to recovery.
type LogManager struct {
	opts   Options
	codec  codec
	logger *zap.Logger

	mu                       sync.Mutex    // Protects access to LogManager state (nextLSN, buffer, logFile, segmentID)
	logFile                  *os.File      // Current active log segment file handle
	currentSegmentID         uint64        // ID of the current active log segment
	currentSegmentFileOffset int64         // Bytes written to the active segment
	retained                 int64         // Bytes held by older segments not yet released by a checkpoint
	nextLSN                  LSN           // The next LSN to be assigned
	buffer                   *bytes.Buffer // In-memory buffer for log records before writing
	unsynced                 bool
	closed                   bool
	recovered                []Group

	stopChan chan struct{}
	wg       sync.WaitGroup

	records, bytesWritten, syncs, groups atomic.Uint64
}

// Open opens the log in opts.Dir, creating it if needed. Existing segments
// are scanned; everything after the last complete group is cut off and the
// complete groups are kept for RecoveredGroups.
func Open(opts Options, logger *zap.Logger) (*LogManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: log directory required", dberror.ErrInvalidParameter)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = DefaultSegmentSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.CompressThreshold <= 0 {
		opts.CompressThreshold = DefaultCompressThreshold
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create log directory %s: %v", dberror.ErrIO, opts.Dir, err)
	}

	lm := &LogManager{
		opts:     opts,
		codec:    codec{compression: opts.Compression, threshold: opts.CompressThreshold, sealer: opts.Sealer},
		logger:   logger.With(zap.String("component", "wal")),
		buffer:   bytes.NewBuffer(make([]byte, 0, opts.BufferSize)),
		stopChan: make(chan struct{}),
	}
	if err := lm.findOrCreateLatestLogSegment(); err != nil {
		return nil, err
	}
	if opts.Durability == DeferredFlush {
		lm.wg.Add(1)
		go lm.flusher()
	}
	lm.logger.Info("log manager opened", zap.String("dir", opts.Dir), zap.Uint64("segment", lm.currentSegmentID),
		zap.Uint64("next_lsn", uint64(lm.nextLSN)), zap.Int("recovered_groups", len(lm.recovered)))
	return lm, nil
}

type segment struct {
	id   uint64
	path string
	size int64
}

// getLogSegmentPath returns the full path for a log segment file.
func (lm *LogManager) getLogSegmentPath(segmentID uint64) string {
	return filepath.Join(lm.opts.Dir, fmt.Sprintf("log_%05d.log", segmentID))
}

func listSegments(dir string) ([]segment, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read log directory %s: %v", dberror.ErrIO, dir, err)
	}
	var segs []segment
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, "log_") || !strings.HasSuffix(name, ".log") {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "log_"), ".log"), 10, 64)
		if err != nil {
			continue
		}
		info, err := file.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", dberror.ErrIO, name, err)
		}
		segs = append(segs, segment{id: id, path: filepath.Join(dir, name), size: info.Size()})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}

// Pending reports whether the log in dir holds any data. It does not
// modify the directory.
func Pending(dir string) (bool, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return false, nil
	}
	segs, err := listSegments(dir)
	if err != nil {
		return false, err
	}
	for _, seg := range segs {
		if seg.size > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes every log segment in dir.
func Remove(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	segs, err := listSegments(dir)
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if err := os.Remove(seg.path); err != nil {
			return fmt.Errorf("%w: remove %s: %v", dberror.ErrIO, seg.path, err)
		}
	}
	return nil
}

// findOrCreateLatestLogSegment scans the existing segments, cuts off any
// incomplete tail and opens the last segment for appending.
func (lm *LogManager) findOrCreateLatestLogSegment() error {
	segs, err := listSegments(lm.opts.Dir)
	if err != nil {
		return err
	}
	res, err := lm.codec.scanSegments(segs)
	if err != nil {
		return err
	}
	if res.dropped > 0 || res.endSeg < len(segs)-1 {
		lm.logger.Warn("truncating incomplete log tail", zap.Int64("bytes", res.dropped),
			zap.Int("segments_removed", max(len(segs)-1-max(res.endSeg, 0), 0)))
	}
	keep := max(res.endSeg, 0)
	for i := range segs {
		switch {
		case i == keep:
			if segs[i].size != res.endOff {
				if err := os.Truncate(segs[i].path, res.endOff); err != nil {
					return fmt.Errorf("%w: truncate %s: %v", dberror.ErrIO, segs[i].path, err)
				}
				segs[i].size = res.endOff
			}
		case i > keep:
			if err := os.Remove(segs[i].path); err != nil {
				return fmt.Errorf("%w: remove %s: %v", dberror.ErrIO, segs[i].path, err)
			}
		default:
			lm.retained += segs[i].size
		}
	}

	lm.recovered = res.groups
	lm.nextLSN = max(lm.opts.StartLSN, res.lastLSN) + 1
	lm.currentSegmentID = 1
	if len(segs) > 0 {
		lm.currentSegmentID = segs[keep].id
		lm.currentSegmentFileOffset = segs[keep].size
	}
	logFile, err := os.OpenFile(lm.getLogSegmentPath(lm.currentSegmentID), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open log segment: %v", dberror.ErrIO, err)
	}
	lm.logFile = logFile
	return nil
}

// RecoveredGroups returns the complete groups found when the log was
// opened, in LSN order.
func (lm *LogManager) RecoveredGroups() []Group {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.recovered
}

// ReleaseRecovered drops the groups kept from opening.
func (lm *LogManager) ReleaseRecovered() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.recovered = nil
}

// NextLSN returns the LSN the next record will get.
func (lm *LogManager) NextLSN() LSN {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.nextLSN
}

// Size returns the number of bytes held by the log.
func (lm *LogManager) Size() int64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.retained + lm.currentSegmentFileOffset + int64(lm.buffer.Len())
}

// Stats returns cumulative counters.
func (lm *LogManager) Stats() Stats {
	return Stats{
		Records:      lm.records.Load(),
		BytesWritten: lm.bytesWritten.Load(),
		Syncs:        lm.syncs.Load(),
		Groups:       lm.groups.Load(),
	}
}

// appendGroupLocked encodes recs plus the terminating marker with gapless
// LSNs and writes them to the active segment. On failure nothing of the
// group remains in the log and no LSN is consumed.
func (lm *LogManager) appendGroupLocked(recs []LogRecord, marker LogRecord) (LSN, error) {
	if lm.closed {
		return InvalidLSN, dberror.ErrAlreadyClosed
	}
	if lm.currentSegmentFileOffset >= lm.opts.SegmentSize {
		if err := lm.rollLogSegment(); err != nil {
			return InvalidLSN, err
		}
	}
	startOffset := lm.currentSegmentFileOffset
	lsn := lm.nextLSN
	var frame []byte
	var err error
	for i := range recs {
		recs[i].LSN = lsn
		lsn++
		if frame, err = lm.codec.encode(frame[:0], &recs[i]); err != nil {
			return InvalidLSN, lm.rewindLocked(startOffset, err)
		}
		lm.buffer.Write(frame)
		if lm.buffer.Len() >= lm.opts.BufferSize {
			if err := lm.flushInternal(); err != nil {
				return InvalidLSN, lm.rewindLocked(startOffset, err)
			}
		}
	}
	marker.LSN = lsn
	if frame, err = lm.codec.encode(frame[:0], &marker); err != nil {
		return InvalidLSN, lm.rewindLocked(startOffset, err)
	}
	lm.buffer.Write(frame)
	if err := lm.flushInternal(); err != nil {
		return InvalidLSN, lm.rewindLocked(startOffset, err)
	}
	lm.nextLSN = lsn + 1
	lm.unsynced = true
	lm.records.Add(uint64(len(recs) + 1))
	lm.groups.Add(1)
	return lsn, nil
}

// rewindLocked removes a partially written group from the active segment.
func (lm *LogManager) rewindLocked(offset int64, cause error) error {
	lm.buffer.Reset()
	if lm.currentSegmentFileOffset == offset {
		return cause
	}
	if err := lm.logFile.Truncate(offset); err != nil {
		lm.logger.Error("failed to rewind log segment", zap.Error(err))
		return cause
	}
	lm.currentSegmentFileOffset = offset
	return cause
}

// flushInternal writes the buffered log records to the log file.
// This method MUST be called with lm.mu locked. It does NOT call Sync().
func (lm *LogManager) flushInternal() error {
	if lm.buffer.Len() == 0 {
		return nil
	}
	if lm.logFile == nil {
		return fmt.Errorf("%w: log file is not open", dberror.ErrIO)
	}
	n, err := lm.logFile.Write(lm.buffer.Bytes())
	lm.currentSegmentFileOffset += int64(n)
	lm.bytesWritten.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("%w: write log segment %d: %v", dberror.ErrIO, lm.currentSegmentID, err)
	}
	lm.buffer.Reset()
	return nil
}

func (lm *LogManager) syncLocked() error {
	if !lm.unsynced || lm.logFile == nil {
		return nil
	}
	if err := lm.logFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync log segment %d: %v", dberror.ErrIO, lm.currentSegmentID, err)
	}
	lm.unsynced = false
	lm.syncs.Add(1)
	return nil
}

// AppendTxn logs the operations of a transaction followed by its commit
// marker. With SyncCommit the group is durable when AppendTxn returns.
func (lm *LogManager) AppendTxn(ctx context.Context, txnID uint64, ops []transaction.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := make([]LogRecord, len(ops))
	for i, op := range ops {
		recs[i] = LogRecord{
			TxnID:    txnID,
			Type:     recordType(op.Kind),
			DB:       op.DB,
			Flags:    uint32(op.Flags),
			DupIndex: int32(op.DupIndex),
			Key:      op.Key,
			Record:   op.Record,
		}
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lsn, err := lm.appendGroupLocked(recs, LogRecord{TxnID: txnID, Type: LogRecordTypeTxnCommit})
	if err != nil {
		return err
	}
	if lm.opts.Durability == SyncCommit {
		if err := lm.syncLocked(); err != nil {
			return err
		}
	}
	lm.logger.Debug("transaction logged", zap.Uint64("txn_id", txnID), zap.Uint64("commit_lsn", uint64(lsn)),
		zap.Int("ops", len(ops)))
	return nil
}

// AppendChangeset logs full page images followed by a changeset marker and
// syncs the log. It returns the LSN of the marker.
func (lm *LogManager) AppendChangeset(ctx context.Context, images []pagecache.Image) (LSN, error) {
	if err := ctx.Err(); err != nil {
		return InvalidLSN, err
	}
	recs := make([]LogRecord, len(images))
	for i, img := range images {
		recs[i] = LogRecord{
			Type:   LogRecordTypePageImage,
			Key:    binary.BigEndian.AppendUint64(nil, img.Addr),
			Record: img.Data,
		}
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lsn, err := lm.appendGroupLocked(recs, LogRecord{Type: LogRecordTypeChangesetCommit})
	if err != nil {
		return InvalidLSN, err
	}
	if err := lm.syncLocked(); err != nil {
		return InvalidLSN, err
	}
	lm.logger.Debug("changeset logged", zap.Uint64("lsn", uint64(lsn)), zap.Int("pages", len(images)))
	return lsn, nil
}

// Sync makes every appended group durable.
func (lm *LogManager) Sync() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.flushInternal(); err != nil {
		return err
	}
	return lm.syncLocked()
}

// rollLogSegment closes the current log file and opens the next one. Older
// segments stay until Rotate releases them.
// This method MUST be called with lm.mu locked.
func (lm *LogManager) rollLogSegment() error {
	if err := lm.flushInternal(); err != nil {
		return err
	}
	lm.unsynced = true
	if err := lm.syncLocked(); err != nil {
		return err
	}
	if err := lm.logFile.Close(); err != nil {
		return fmt.Errorf("%w: close log segment %d: %v", dberror.ErrIO, lm.currentSegmentID, err)
	}
	lm.logFile = nil
	lm.retained += lm.currentSegmentFileOffset

	lm.currentSegmentID++
	newLogFile, err := os.OpenFile(lm.getLogSegmentPath(lm.currentSegmentID), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open log segment %d: %v", dberror.ErrIO, lm.currentSegmentID, err)
	}
	lm.logFile = newLogFile
	lm.currentSegmentFileOffset = 0
	lm.logger.Info("rolled log segment", zap.Uint64("segment", lm.currentSegmentID))
	return nil
}

// Rotate starts a fresh segment and deletes every older one. It is called
// once a checkpoint made the logged groups redundant, which leaves the log
// empty.
func (lm *LogManager) Rotate() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return dberror.ErrAlreadyClosed
	}
	if err := lm.rollLogSegment(); err != nil {
		return err
	}
	segs, err := listSegments(lm.opts.Dir)
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if seg.id >= lm.currentSegmentID {
			continue
		}
		if err := os.Remove(seg.path); err != nil {
			return fmt.Errorf("%w: remove %s: %v", dberror.ErrIO, seg.path, err)
		}
	}
	lm.retained = 0
	lm.recovered = nil
	return nil
}

// flusher is a goroutine that periodically syncs the log in DeferredFlush mode.
func (lm *LogManager) flusher() {
	defer lm.wg.Done()
	ticker := time.NewTicker(lm.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lm.stopChan:
			return
		case <-ticker.C:
			lm.mu.Lock()
			if err := lm.flushInternal(); err != nil {
				lm.logger.Error("periodic log flush failed", zap.Error(err))
			} else if err := lm.syncLocked(); err != nil {
				lm.logger.Error("periodic log sync failed", zap.Error(err))
			}
			lm.mu.Unlock()
		}
	}
}

// Close stops the flusher, syncs outstanding records and closes the active
// segment. Segments stay on disk.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	if lm.closed {
		lm.mu.Unlock()
		return nil
	}
	lm.closed = true
	lm.mu.Unlock()

	close(lm.stopChan)
	lm.wg.Wait()

	lm.mu.Lock()
	defer lm.mu.Unlock()
	err := lm.flushInternal()
	if err == nil {
		err = lm.syncLocked()
	}
	if cerr := lm.logFile.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: close log segment: %v", dberror.ErrIO, cerr)
	}
	lm.logFile = nil
	lm.logger.Info("log manager closed", zap.Uint64("next_lsn", uint64(lm.nextLSN)))
	return err
}

func recordType(k transaction.OpKind) LogRecordType {
	switch k {
	case transaction.OpInsertDuplicate:
		return LogRecordTypeInsertDuplicate
	case transaction.OpErase:
		return LogRecordTypeErase
	case transaction.OpEraseAll:
		return LogRecordTypeEraseAllDuplicates
	}
	return LogRecordTypeInsert
}
