// Package environment ties the storage components together: a backing
// store, its page cache and space manager, the journal and the databases
// listed in the header page.
package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	internaltelemetry "github.com/sushant-115/stratadb/internal/telemetry"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/security/encryption"
	"github.com/sushant-115/stratadb/core/storage_engine/blob"
	"github.com/sushant-115/stratadb/core/storage_engine/common"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	"github.com/sushant-115/stratadb/core/storage_engine/freelist"
	"github.com/sushant-115/stratadb/core/transaction"
	pagecache "github.com/sushant-115/stratadb/core/write_engine/page_cache"
	"github.com/sushant-115/stratadb/core/write_engine/wal"
)

// Environment is an open database file (or in-memory store) with its
// databases.
type Environment struct {
	mu     sync.RWMutex
	cfg    Config
	path   string
	logDir string

	dev      disk.Device // nil in memory
	cache    *pagecache.PageCache
	freelist *freelist.Freelist
	blobs    *blob.Manager
	header   *disk.Header
	journal  *wal.LogManager // nil without journal
	txns     *transaction.Manager
	trees    map[uint16]*btree.BTree
	handles  map[uint16]*Database
	throttle *common.Throttle

	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *internaltelemetry.EngineMetrics
	unobserve func() error
	walBytes  uint64

	fatal  atomic.Pointer[error]
	closed bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newEnvironment(path string, cfg Config) *Environment {
	e := &Environment{
		cfg:      cfg,
		path:     path,
		logDir:   cfg.LogDir,
		txns:     transaction.NewManager(cfg.Logger),
		trees:    make(map[uint16]*btree.BTree),
		handles:  make(map[uint16]*Database),
		throttle: common.NewThrottle(cfg.CheckpointRate),
		logger:   cfg.Logger.With(zap.String("env", path)),
		tracer:   cfg.Tracer,
		metrics:  cfg.Metrics,
		stopChan: make(chan struct{}),
	}
	if e.logDir == "" && cfg.Flags&InMemory == 0 {
		e.logDir = path + ".wal"
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/sushant-115/stratadb/core/environment")
	}
	return e
}

// journaled reports whether changes go through the journal.
func (e *Environment) journaled() bool {
	return e.cfg.Flags&(InMemory|DisableRecovery) == 0
}

// Create creates a new environment at path. In-memory environments ignore
// path.
func Create(path string, cfg Config) (*Environment, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Flags&ReadOnly != 0 {
		return nil, fmt.Errorf("%w: cannot create a read-only environment", dberror.ErrInvalidParameter)
	}
	if cfg.KeyInlineMax == 0 {
		cfg.KeyInlineMax = btree.DefaultKeyInlineMax(cfg.PageSize)
	}
	var hflags uint32
	if cfg.Flags&EnableCRC32 != 0 {
		hflags |= headerCRC32
	}
	if cfg.EncryptionKey != nil {
		hflags |= headerEncrypted
	}
	header, err := disk.NewHeader(cfg.PageSize, cfg.MaxDatabases, cfg.KeyInlineMax, hflags)
	if err != nil {
		return nil, err
	}

	e := newEnvironment(path, cfg)
	e.header = header
	if cfg.Flags&InMemory != 0 {
		if err := e.setupPages(nil, 1); err != nil {
			return nil, err
		}
		e.start()
		e.logger.Info("in-memory environment created", zap.Int("page_size", cfg.PageSize))
		return e, nil
	}

	dm, err := disk.CreateFile(path, cfg.PageSize)
	if err != nil {
		return nil, err
	}
	e.dev = dm
	fail := func(err error) (*Environment, error) {
		e.release()
		os.Remove(path)
		return nil, err
	}
	if err := dm.Truncate(uint64(cfg.PageSize)); err != nil {
		return fail(err)
	}
	if err := disk.WriteHeader(dm, header); err != nil {
		return fail(err)
	}
	if err := e.setupPages(dm, 1); err != nil {
		return fail(err)
	}
	if e.journaled() {
		if err := wal.Remove(e.logDir); err != nil {
			return fail(err)
		}
		if err := e.openJournal(); err != nil {
			return fail(err)
		}
	}
	if err := e.checkpointLocked(context.Background()); err != nil {
		return fail(err)
	}
	e.start()
	e.logger.Info("environment created", zap.Int("page_size", cfg.PageSize),
		zap.Int("max_databases", cfg.MaxDatabases), zap.Bool("journal", e.journal != nil))
	return e, nil
}

// Open opens the environment at path. Page size, database limit and inline
// key limit come from the header. After an unclean shutdown the journal is
// replayed if AutoRecovery is set; otherwise Open fails with
// ErrRecoveryRequired.
func Open(path string, cfg Config) (*Environment, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Flags&InMemory != 0 {
		return nil, fmt.Errorf("%w: in-memory environments cannot be opened", dberror.ErrInvalidParameter)
	}
	readOnly := cfg.Flags&ReadOnly != 0
	dm, err := disk.OpenFile(path, disk.DefaultPageSize, readOnly)
	if err != nil {
		return nil, err
	}
	e := newEnvironment(path, cfg)
	e.dev = dm
	fail := func(err error) (*Environment, error) {
		e.release()
		return nil, err
	}

	header, err := disk.ReadHeader(dm)
	if err != nil {
		return fail(err)
	}
	if err := e.adoptHeader(header); err != nil {
		return fail(err)
	}

	var groups []wal.Group
	if e.journaled() {
		if readOnly {
			pending, err := wal.Pending(e.logDir)
			if err != nil {
				return fail(err)
			}
			if pending {
				return fail(fmt.Errorf("%w: journal of a read-only environment is not empty", dberror.ErrRecoveryRequired))
			}
		} else {
			if err := e.openJournal(); err != nil {
				return fail(err)
			}
			groups = e.journal.RecoveredGroups()
		}
	}
	if len(groups) > 0 && cfg.Flags&AutoRecovery == 0 {
		return fail(fmt.Errorf("%w: journal holds %d groups", dberror.ErrRecoveryRequired, len(groups)))
	}

	if len(groups) > 0 {
		if err := e.recover(groups); err != nil {
			return fail(err)
		}
	} else {
		size, err := dm.Size()
		if err != nil {
			return fail(err)
		}
		if err := e.setupPages(dm, size/uint64(e.cfg.PageSize)); err != nil {
			return fail(err)
		}
	}
	e.start()
	e.logger.Info("environment opened", zap.Int("page_size", e.cfg.PageSize),
		zap.Int("databases", len(e.namesLocked())), zap.Bool("journal", e.journal != nil),
		zap.Bool("recovered", len(groups) > 0))
	return e, nil
}

// adoptHeader takes the persistent parameters from h.
func (e *Environment) adoptHeader(h *disk.Header) error {
	encrypted := h.Flags&headerEncrypted != 0
	if encrypted != (e.cfg.EncryptionKey != nil) {
		return fmt.Errorf("%w: encryption key does not match the file", dberror.ErrInvalidParameter)
	}
	e.header = h
	e.cfg.PageSize = int(h.PageSize)
	e.cfg.MaxDatabases = int(h.MaxDatabases)
	e.cfg.KeyInlineMax = int(h.KeyInlineMax)
	if h.Flags&headerCRC32 != 0 {
		e.cfg.Flags |= EnableCRC32
	} else {
		e.cfg.Flags &^= EnableCRC32
	}
	return nil
}

// setupPages builds the page cache, space manager and blob manager over dev.
func (e *Environment) setupPages(dev disk.Device, blocks uint64) error {
	opts := pagecache.Options{
		CacheSize:   e.cfg.CacheSize,
		EnableCRC32: e.cfg.Flags&EnableCRC32 != 0,
		NoSteal:     e.journaled(),
		Throttle:    e.throttle,
	}
	if e.cfg.Flags&InMemory != 0 {
		opts.CacheOnly = true
		opts.Unlimited = e.cfg.Flags&CacheUnlimited != 0
	}
	if e.cfg.EncryptionKey != nil {
		cipher, err := encryption.NewPageCipher(e.cfg.EncryptionKey)
		if err != nil {
			return err
		}
		opts.Transform = cipher
	}
	cache, err := pagecache.New(dev, e.cfg.PageSize, opts, e.logger)
	if err != nil {
		return err
	}
	var grower freelist.Grower
	if dev != nil {
		grower = dev
	}
	fl, err := freelist.Load(cache, e.header.FreelistRoot, e.cfg.PageSize, blocks, grower, e.logger)
	if err != nil {
		return err
	}
	cache.SetAllocator(fl)
	blobs, err := blob.New(cache, e.cfg.PageSize, e.cfg.BlobCacheSize, e.logger)
	if err != nil {
		return err
	}
	e.cache, e.freelist, e.blobs = cache, fl, blobs
	return nil
}

func (e *Environment) openJournal() error {
	compression, err := wal.ParseCompression(e.cfg.JournalCompression)
	if err != nil {
		return err
	}
	opts := wal.Options{
		Dir:         e.logDir,
		Compression: compression,
		StartLSN:    wal.LSN(e.header.CheckpointLSN),
		Durability:  wal.DeferredFlush,
	}
	if e.cfg.Flags&EnableFsync != 0 {
		opts.Durability = wal.SyncCommit
	}
	if e.cfg.EncryptionKey != nil {
		sealer, err := encryption.NewRecordCipher(e.cfg.EncryptionKey)
		if err != nil {
			return err
		}
		opts.Sealer = sealer
	}
	lm, err := wal.Open(opts, e.logger)
	if err != nil {
		return err
	}
	e.journal = lm
	return nil
}

// start registers metrics and the periodic checkpoint.
func (e *Environment) start() {
	unobserve, err := e.metrics.ObserveCache(func() internaltelemetry.CacheSnapshot {
		s := e.cache.Stats()
		return internaltelemetry.CacheSnapshot{
			Hits:      int64(s.Hits),
			Misses:    int64(s.Misses),
			Evictions: int64(s.Evictions),
			Flushes:   int64(s.Flushes),
			Resident:  int64(s.Resident),
			Dirty:     int64(s.Dirty),
		}
	}, metric.WithAttributes(attribute.String("env", e.path)))
	if err != nil {
		e.logger.Warn("failed to register cache metrics", zap.Error(err))
	} else {
		e.unobserve = unobserve
	}
	if e.cfg.FlushInterval > 0 && e.dev != nil && e.cfg.Flags&ReadOnly == 0 {
		e.wg.Add(1)
		go e.flusher()
	}
}

// flusher checkpoints periodically.
func (e *Environment) flusher() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			if err := e.Flush(context.Background()); err != nil && !errors.Is(err, dberror.ErrAlreadyClosed) {
				e.logger.Error("periodic checkpoint failed", zap.Error(err))
			}
		}
	}
}

// release closes every component without flushing.
func (e *Environment) release() {
	if e.unobserve != nil {
		if err := e.unobserve(); err != nil {
			e.logger.Debug("failed to unregister cache metrics", zap.Error(err))
		}
		e.unobserve = nil
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.logger.Warn("failed to close journal", zap.Error(err))
		}
		e.journal = nil
	}
	if e.blobs != nil {
		e.blobs.Close()
	}
	if e.dev != nil {
		if err := e.dev.Close(); err != nil {
			e.logger.Warn("failed to close device", zap.Error(err))
		}
	}
}

// Close checkpoints and closes the environment. Open database handles are
// closed with it; open transactions or cursors make it fail.
func (e *Environment) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return dberror.ErrAlreadyClosed
	}
	if n := e.txns.Active(); n > 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d transactions", dberror.ErrTxnStillOpen, n)
	}
	for _, db := range e.handles {
		if db.cursors > 0 {
			e.mu.Unlock()
			return fmt.Errorf("%w: database %d has %d cursors", dberror.ErrCursorStillOpen, db.name, db.cursors)
		}
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopChan)
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, db := range e.handles {
		db.closed = true
	}
	e.handles = nil
	var err error
	if e.fatalErr() == nil {
		err = e.checkpointLocked(context.Background())
	}
	e.release()
	e.logger.Info("environment closed")
	return err
}

func (e *Environment) fatalErr() error {
	if p := e.fatal.Load(); p != nil {
		return *p
	}
	return nil
}

// note records err if it leaves the environment unusable.
func (e *Environment) note(err error) error {
	if err != nil && dberror.IsFatal(err) && e.fatal.CompareAndSwap(nil, &err) {
		e.logger.Error("environment marked unusable", zap.Error(err))
	}
	return err
}

func (e *Environment) usable() error {
	if e.closed {
		return dberror.ErrAlreadyClosed
	}
	return e.fatalErr()
}

func (e *Environment) writable() error {
	if err := e.usable(); err != nil {
		return err
	}
	if e.cfg.Flags&ReadOnly != 0 {
		return dberror.ErrReadOnly
	}
	return nil
}

func (e *Environment) checkTxn(txn *transaction.Transaction) error {
	if txn == nil {
		return nil
	}
	if e.cfg.Flags&EnableTransactions == 0 {
		return fmt.Errorf("%w: transactions are not enabled", dberror.ErrInvalidParameter)
	}
	if txn.State != transaction.TxnStateRunning {
		return fmt.Errorf("%w: transaction %d is %s", dberror.ErrAlreadyClosed, txn.ID, txn.State)
	}
	return nil
}

// --- databases ---

func validName(name uint16) error {
	if name == 0 || name > MaxDatabaseName {
		return fmt.Errorf("%w: database name %d outside [1, %d]", dberror.ErrInvalidParameter, name, MaxDatabaseName)
	}
	return nil
}

func (e *Environment) slotLocked(name uint16) *disk.DatabaseSlot {
	for i := range e.header.Databases {
		if e.header.Databases[i].Name == name {
			return &e.header.Databases[i]
		}
	}
	return nil
}

func (e *Environment) treeConfig(name uint16, flags DBFlags) btree.Config {
	return btree.Config{
		PageSize:         e.cfg.PageSize,
		KeyInlineMax:     e.cfg.KeyInlineMax,
		EnableDuplicates: flags&EnableDuplicates != 0,
		Comparator:       e.cfg.Comparators[name],
	}
}

// treeLocked returns the tree of database name, attaching it on first use.
func (e *Environment) treeLocked(name uint16) (*btree.BTree, *disk.DatabaseSlot, error) {
	slot := e.slotLocked(name)
	if slot == nil {
		return nil, nil, fmt.Errorf("%w: %d", dberror.ErrDatabaseNotFound, name)
	}
	if t, ok := e.trees[name]; ok {
		return t, slot, nil
	}
	t, err := btree.Open(e.cache, e.blobs, slot.Root, e.treeConfig(name, DBFlags(slot.Flags)), e.logger)
	if err != nil {
		return nil, nil, err
	}
	e.trees[name] = t
	return t, slot, nil
}

// CreateDatabase creates database name and returns an open handle to it.
func (e *Environment) CreateDatabase(name uint16, flags DBFlags) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	if flags&^(EnableDuplicates|RecordNumber) != 0 {
		return nil, fmt.Errorf("%w: database flags 0x%x", dberror.ErrInvalidParameter, uint32(flags))
	}
	if e.slotLocked(name) != nil {
		return nil, fmt.Errorf("%w: %d", dberror.ErrDatabaseAlreadyExists, name)
	}
	slot := e.slotLocked(0)
	if slot == nil {
		return nil, fmt.Errorf("%w: all %d database slots are in use", dberror.ErrLimitsReached, len(e.header.Databases))
	}
	t, err := btree.Create(e.cache, e.blobs, e.treeConfig(name, flags), e.logger)
	if err != nil {
		return nil, e.note(err)
	}
	*slot = disk.DatabaseSlot{Name: name, Flags: uint32(flags), Root: t.Root()}
	e.trees[name] = t
	if err := e.structuralChangeLocked(); err != nil {
		return nil, err
	}
	db := &Database{env: e, name: name, flags: flags, tree: t}
	e.handles[name] = db
	e.logger.Info("database created", zap.Uint16("db", name), zap.Uint32("flags", uint32(flags)))
	return db, nil
}

// OpenDatabase returns a handle to an existing database.
func (e *Environment) OpenDatabase(name uint16) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	if _, ok := e.handles[name]; ok {
		return nil, fmt.Errorf("%w: %d", dberror.ErrDatabaseAlreadyOpen, name)
	}
	t, slot, err := e.treeLocked(name)
	if err != nil {
		return nil, e.note(err)
	}
	db := &Database{env: e, name: name, flags: DBFlags(slot.Flags), tree: t}
	e.handles[name] = db
	return db, nil
}

// RenameDatabase renames a database that is not open.
func (e *Environment) RenameDatabase(oldName, newName uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	if err := validName(oldName); err != nil {
		return err
	}
	if err := validName(newName); err != nil {
		return err
	}
	slot := e.slotLocked(oldName)
	if slot == nil {
		return fmt.Errorf("%w: %d", dberror.ErrDatabaseNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if e.slotLocked(newName) != nil {
		return fmt.Errorf("%w: %d", dberror.ErrDatabaseAlreadyExists, newName)
	}
	if _, ok := e.handles[oldName]; ok {
		return fmt.Errorf("%w: %d", dberror.ErrDatabaseAlreadyOpen, oldName)
	}
	if e.txns.Touching(oldName) {
		return fmt.Errorf("%w: database %d has pending changes", dberror.ErrTxnStillOpen, oldName)
	}
	slot.Name = newName
	// trees are keyed by name and may carry a name specific comparator
	delete(e.trees, oldName)
	if err := e.structuralChangeLocked(); err != nil {
		return err
	}
	e.logger.Info("database renamed", zap.Uint16("from", oldName), zap.Uint16("to", newName))
	return nil
}

// EraseDatabase deletes a database that is not open and frees its pages.
func (e *Environment) EraseDatabase(name uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if _, ok := e.handles[name]; ok {
		return fmt.Errorf("%w: %d", dberror.ErrDatabaseAlreadyOpen, name)
	}
	if e.txns.Touching(name) {
		return fmt.Errorf("%w: database %d has pending changes", dberror.ErrTxnStillOpen, name)
	}
	t, slot, err := e.treeLocked(name)
	if err != nil {
		return e.note(err)
	}
	if err := t.Drop(); err != nil {
		return e.note(err)
	}
	*slot = disk.DatabaseSlot{}
	delete(e.trees, name)
	if err := e.structuralChangeLocked(); err != nil {
		return err
	}
	e.logger.Info("database erased", zap.Uint16("db", name))
	return nil
}

// structuralChangeLocked makes a change of the database directory durable.
// The directory is not journaled, so journaled environments checkpoint.
func (e *Environment) structuralChangeLocked() error {
	if e.journal == nil {
		return nil
	}
	return e.note(e.checkpointLocked(context.Background()))
}

// DatabaseNames returns the names of all databases in ascending order.
func (e *Environment) DatabaseNames() ([]uint16, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.usable(); err != nil {
		return nil, err
	}
	return e.namesLocked(), nil
}

func (e *Environment) namesLocked() []uint16 {
	var names []uint16
	for _, slot := range e.header.Databases {
		if slot.Name != 0 {
			names = append(names, slot.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// --- parameters ---

// GetParameters returns the requested parameters, or all of them when
// names is empty.
func (e *Environment) GetParameters(names ...Param) ([]Parameter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.usable(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		for p := ParamCacheSize; p <= ParamDatabaseCount; p++ {
			names = append(names, p)
		}
	}
	out := make([]Parameter, 0, len(names))
	for _, name := range names {
		p := Parameter{Name: name}
		switch name {
		case ParamCacheSize:
			p.Value = e.cache.Capacity()
		case ParamPageSize:
			p.Value = uint64(e.cfg.PageSize)
		case ParamMaxDatabases:
			p.Value = uint64(e.cfg.MaxDatabases)
		case ParamKeyInlineMax:
			p.Value = uint64(e.cfg.KeyInlineMax)
		case ParamFlags:
			p.Value = uint64(e.cfg.Flags)
			p.Text = e.cfg.Flags.String()
		case ParamJournalCompression:
			p.Text = e.cfg.JournalCompression
		case ParamFilename:
			p.Text = e.path
		case ParamLogDirectory:
			p.Text = e.logDir
		case ParamDatabaseCount:
			p.Value = uint64(len(e.namesLocked()))
		default:
			return nil, fmt.Errorf("%w: unknown parameter %d", dberror.ErrInvalidParameter, uint32(name))
		}
		out = append(out, p)
	}
	return out, nil
}

// SetParameter changes a parameter of the open environment. Only the cache
// size can change.
func (e *Environment) SetParameter(name Param, value uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	if name != ParamCacheSize {
		return fmt.Errorf("%w: parameter %s cannot change while open", dberror.ErrInvalidParameter, name)
	}
	if value < uint64(e.cfg.PageSize) {
		return fmt.Errorf("%w: cache size %d is below one page", dberror.ErrInvalidParameter, value)
	}
	e.cache.SetCapacity(value)
	e.cfg.CacheSize = value
	return nil
}

// Path returns the file of the environment, empty in memory.
func (e *Environment) Path() string { return e.path }
