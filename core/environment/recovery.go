package environment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	"github.com/sushant-115/stratadb/core/transaction"
	"github.com/sushant-115/stratadb/core/write_engine/wal"
)

// recover brings the file back to the state of the last complete group:
// the last changeset is redone page by page, the commit groups after it are
// replayed through the trees and the result is checkpointed.
func (e *Environment) recover(groups []wal.Group) error {
	ctx, span := e.tracer.Start(context.Background(), "environment.recover")
	defer span.End()
	start := time.Now()
	e.logger.Warn("unclean shutdown detected, recovering", zap.Int("groups", len(groups)))

	redo := -1
	for i, g := range groups {
		if g.Kind == wal.GroupChangeset {
			redo = i
		}
	}
	if redo >= 0 {
		if err := e.redoChangeset(groups[redo]); err != nil {
			return fmt.Errorf("redo changeset at lsn %d: %w", groups[redo].LSN, err)
		}
	}
	size, err := e.dev.Size()
	if err != nil {
		return err
	}
	if err := e.setupPages(e.dev, size/uint64(e.cfg.PageSize)); err != nil {
		return err
	}

	replayed := 0
	for _, g := range groups[redo+1:] {
		if g.Kind != wal.GroupTxn {
			continue
		}
		if err := e.replayGroup(g); err != nil {
			return fmt.Errorf("replay transaction %d at lsn %d: %w", g.TxnID, g.LSN, err)
		}
		replayed++
	}
	if err := e.checkpointLocked(ctx); err != nil {
		return err
	}

	e.metrics.RecoveriesCounter.Add(ctx, 1)
	e.metrics.ReplayedGroupsCounter.Add(ctx, int64(replayed))
	span.SetAttributes(attribute.Int("replayed", replayed), attribute.Bool("redo", redo >= 0))
	e.logger.Info("recovery complete", zap.Bool("changeset_redone", redo >= 0), zap.Int("replayed", replayed),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// redoChangeset writes the page images of g in place and reloads the header.
func (e *Environment) redoChangeset(g wal.Group) error {
	for i := range g.Records {
		lr := &g.Records[i]
		addr, err := lr.PageAddress()
		if err != nil {
			return err
		}
		if len(lr.Record) != e.cfg.PageSize {
			return fmt.Errorf("%w: page image of %d bytes at %d", dberror.ErrCorruption, len(lr.Record), addr)
		}
		if err := e.dev.WritePage(addr, lr.Record); err != nil {
			return err
		}
	}
	if err := e.dev.Sync(); err != nil {
		return err
	}
	dm, ok := e.dev.(*disk.DiskManager)
	if !ok {
		return nil
	}
	header, err := disk.ReadHeader(dm)
	if err != nil {
		return err
	}
	return e.adoptHeader(header)
}

// replayGroup applies one committed transaction exactly like its commit did.
func (e *Environment) replayGroup(g wal.Group) error {
	for _, lr := range g.Records {
		tree, slot, err := e.treeLocked(lr.DB)
		if errors.Is(err, dberror.ErrDatabaseNotFound) {
			e.logger.Warn("skipping logged change of unknown database", zap.Uint16("db", lr.DB),
				zap.Uint64("lsn", uint64(lr.LSN)))
			continue
		}
		if err != nil {
			return err
		}
		op, err := opFromRecord(lr)
		if err != nil {
			return err
		}
		if err := transaction.ApplyOp(tree, op); err != nil {
			return err
		}
		if DBFlags(slot.Flags)&RecordNumber != 0 && len(op.Key) == 8 {
			slot.RecordCounter = max(slot.RecordCounter, binary.BigEndian.Uint64(op.Key))
		}
	}
	e.txns.EnsureNextID(g.TxnID)
	return nil
}

func opFromRecord(lr wal.LogRecord) (transaction.Op, error) {
	op := transaction.Op{DB: lr.DB, Key: lr.Key}
	op.Flags = btree.InsertFlags(lr.Flags)
	op.DupIndex = int(lr.DupIndex)
	op.Record = lr.Record
	switch lr.Type {
	case wal.LogRecordTypeInsert:
		op.Kind = transaction.OpInsert
	case wal.LogRecordTypeInsertDuplicate:
		op.Kind = transaction.OpInsertDuplicate
	case wal.LogRecordTypeErase:
		op.Kind = transaction.OpErase
	case wal.LogRecordTypeEraseAllDuplicates:
		op.Kind = transaction.OpEraseAll
	default:
		return op, fmt.Errorf("%w: %s record inside a commit group", dberror.ErrCorruption, lr.Type)
	}
	return op, nil
}
