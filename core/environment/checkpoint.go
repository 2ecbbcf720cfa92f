package environment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/storage_engine/common"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
)

// Flush checkpoints the environment: every dirty page reaches the file and
// the journal is emptied.
func (e *Environment) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	return e.note(e.checkpointLocked(ctx))
}

// syncRootsLocked copies the current tree roots into the header.
func (e *Environment) syncRootsLocked() {
	for name, t := range e.trees {
		if slot := e.slotLocked(name); slot != nil {
			slot.Root = t.Root()
		}
	}
}

// checkpointLocked writes all dirty pages in place. With a journal the pages
// are first logged as one changeset so a crash halfway through can be
// redone; afterwards the journal is rotated.
func (e *Environment) checkpointLocked(ctx context.Context) (err error) {
	if e.dev == nil || e.cfg.Flags&ReadOnly != 0 {
		return nil
	}
	ctx, span := e.tracer.Start(ctx, "environment.checkpoint")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	start := time.Now()

	e.syncRootsLocked()
	root, err := e.freelist.Persist(e.cache)
	if err != nil {
		return err
	}
	e.header.FreelistRoot = root

	var pages int
	if e.journal != nil {
		images, err := e.cache.DirtyImages()
		if err != nil {
			return err
		}
		// the changeset marker follows the page images and the header image
		e.header.CheckpointLSN = uint64(e.journal.NextLSN()) + uint64(len(images)) + 1
		hdr, err := e.header.Encode(e.cfg.PageSize)
		if err != nil {
			return err
		}
		images = append(images, pagecache.Image{Addr: disk.HeaderAddress, Data: hdr})
		if _, err := e.journal.AppendChangeset(ctx, images); err != nil {
			return err
		}
		pages = len(images)
	}
	if err := e.cache.FlushAll(ctx); err != nil {
		return err
	}
	if err := disk.WriteHeader(e.dev, e.header); err != nil {
		return err
	}
	if err := e.dev.Sync(); err != nil {
		return err
	}
	if e.journal != nil {
		if err := e.journal.Rotate(); err != nil {
			return err
		}
	}
	e.reportJournalLocked(ctx)

	elapsed := time.Since(start)
	e.metrics.CheckpointsCounter.Add(ctx, 1)
	e.metrics.CheckpointLatency.Record(ctx, float64(elapsed.Microseconds())/1000)
	span.SetAttributes(attribute.Int("pages", pages))
	e.logger.Debug("checkpoint complete", zap.Int("pages", pages), zap.Uint64("lsn", e.header.CheckpointLSN),
		zap.Duration("duration", elapsed))
	return nil
}

// maybeCheckpointLocked checkpoints when the cache is over its budget or the
// journal has grown past its limit.
func (e *Environment) maybeCheckpointLocked(ctx context.Context) {
	if e.journal == nil {
		return
	}
	if !e.cache.NeedsCheckpoint() && e.journal.Size() <= e.cfg.JournalSizeLimit {
		return
	}
	if err := e.note(e.checkpointLocked(ctx)); err != nil {
		e.logger.Error("checkpoint after commit failed", zap.Error(err))
	}
}

// reportJournalLocked adds the journal bytes written since the last call to
// the metrics.
func (e *Environment) reportJournalLocked(ctx context.Context) {
	if e.journal == nil {
		return
	}
	written := e.journal.Stats().BytesWritten
	if written > e.walBytes {
		e.metrics.WALBytesCounter.Add(ctx, int64(written-e.walBytes))
	}
	e.walBytes = written
}

// Backup checkpoints and copies the database file to dst at no more than
// the configured checkpoint rate. The journal is empty after the checkpoint,
// so the copy is complete on its own.
func (e *Environment) Backup(ctx context.Context, dst string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return 0, err
	}
	if e.dev == nil {
		return 0, fmt.Errorf("%w: in-memory environments cannot be backed up", dberror.ErrInvalidParameter)
	}
	if err := e.note(e.checkpointLocked(ctx)); err != nil {
		return 0, err
	}
	n, err := common.CopyThrottled(ctx, e.path, dst, e.throttle)
	if err != nil {
		return n, fmt.Errorf("%w: backup to %s: %v", dberror.ErrIO, dst, err)
	}
	e.logger.Info("backup complete", zap.String("dst", dst), zap.Int64("bytes", n))
	return n, nil
}
