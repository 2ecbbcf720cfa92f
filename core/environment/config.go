package environment

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	internaltelemetry "github.com/sushant-115/stratadb/internal/telemetry"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/security/encryption"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
	"github.com/sushant-115/stratadb/core/write_engine/wal"
)

// Flags select the behaviour of an environment.
type Flags uint32

const (
	// InMemory keeps the whole environment in the page cache.
	InMemory Flags = 1 << iota
	ReadOnly
	// EnableTransactions allows explicit transactions through Begin.
	EnableTransactions
	// AutoRecovery replays the journal when an unclean shutdown is detected.
	AutoRecovery
	// EnableFsync makes every commit durable before it returns.
	EnableFsync
	EnableCRC32
	// CacheUnlimited lifts the cache budget of an in-memory environment.
	CacheUnlimited
	// DisableRecovery runs a file environment without a journal.
	DisableRecovery
)

// header flag bits; they describe how pages were written
const (
	headerCRC32     uint32 = 1 << 0
	headerEncrypted uint32 = 1 << 1
)

const flagNames = "in-memory,read-only,transactions,auto-recovery,fsync,crc32,cache-unlimited,disable-recovery"

func (f Flags) String() string {
	var out []string
	for i, name := range strings.Split(flagNames, ",") {
		if f&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return strings.Join(out, "|")
}

// ParseFlags maps a comma separated list of flag names to Flags.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	names := strings.Split(flagNames, ",")
outer:
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for i, name := range names {
			if name == part {
				f |= 1 << i
				continue outer
			}
		}
		return 0, fmt.Errorf("%w: unknown environment flag %q", dberror.ErrInvalidParameter, part)
	}
	return f, nil
}

// DBFlags are the persistent flags of a database.
type DBFlags uint32

const (
	EnableDuplicates DBFlags = 1 << iota
	// RecordNumber databases assign 8-byte big-endian keys from a counter.
	RecordNumber
)

const (
	DefaultMaxDatabases     = 16
	DefaultJournalSizeLimit = 8 << 20

	// database names above this are reserved
	MaxDatabaseName = 0xEFFF
)

// Config configures an environment.
type Config struct {
	Flags    Flags
	PageSize int
	// CacheSize is the byte budget of the page cache.
	CacheSize uint64
	// MaxDatabases bounds the database directory of the header page.
	MaxDatabases int
	// KeyInlineMax is the longest key kept entirely inside a node. Zero
	// selects a page size dependent default.
	KeyInlineMax int
	// LogDir holds the journal segments. It defaults to the file path with
	// a ".wal" suffix.
	LogDir string
	// JournalCompression is one of "none", "snappy" and "lz4".
	JournalCompression string
	// JournalSizeLimit triggers a checkpoint once the journal grows past it.
	JournalSizeLimit int64
	// FlushInterval runs periodic checkpoints when positive.
	FlushInterval time.Duration
	// CheckpointRate bounds checkpoint writes in bytes per second.
	CheckpointRate int64
	// BlobCacheSize is the budget of the blob read cache.
	BlobCacheSize int64
	// EncryptionKey encrypts pages and journal records with AES.
	EncryptionKey []byte
	// Comparators assigns custom key orders to databases by name.
	Comparators map[uint16]btree.Comparator

	Logger  *zap.Logger
	Metrics *internaltelemetry.EngineMetrics
	Tracer  trace.Tracer
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		PageSize:           disk.DefaultPageSize,
		CacheSize:          1 << 20,
		MaxDatabases:       DefaultMaxDatabases,
		JournalCompression: "none",
		JournalSizeLimit:   DefaultJournalSizeLimit,
		BlobCacheSize:      256 << 10,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize == 0 {
		c.PageSize = d.PageSize
	}
	if c.CacheSize == 0 {
		c.CacheSize = d.CacheSize
	}
	if c.MaxDatabases == 0 {
		c.MaxDatabases = d.MaxDatabases
	}
	if c.JournalCompression == "" {
		c.JournalCompression = d.JournalCompression
	}
	if c.JournalSizeLimit == 0 {
		c.JournalSizeLimit = d.JournalSizeLimit
	}
	if c.BlobCacheSize == 0 {
		c.BlobCacheSize = d.BlobCacheSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = internaltelemetry.NoopEngineMetrics()
	}
	return c
}

func (c *Config) validate() error {
	if err := disk.ValidatePageSize(c.PageSize); err != nil {
		return err
	}
	if c.MaxDatabases <= 0 || c.MaxDatabases > disk.MaxDatabasesFor(c.PageSize) {
		return fmt.Errorf("%w: max databases %d for page size %d",
			dberror.ErrInvalidParameter, c.MaxDatabases, c.PageSize)
	}
	if c.KeyInlineMax != 0 && (c.KeyInlineMax < 8 || c.KeyInlineMax > c.PageSize/8) {
		return fmt.Errorf("%w: inline key limit %d for page size %d",
			dberror.ErrInvalidParameter, c.KeyInlineMax, c.PageSize)
	}
	if _, err := wal.ParseCompression(c.JournalCompression); err != nil {
		return err
	}
	if c.EncryptionKey != nil {
		if c.Flags&InMemory != 0 {
			return fmt.Errorf("%w: in-memory environments are not encrypted", dberror.ErrInvalidParameter)
		}
		if err := encryption.ValidateKey(c.EncryptionKey); err != nil {
			return fmt.Errorf("%w: %v", dberror.ErrInvalidParameter, err)
		}
	}
	if c.Flags&InMemory != 0 && c.Flags&ReadOnly != 0 {
		return fmt.Errorf("%w: in-memory environments cannot be read-only", dberror.ErrInvalidParameter)
	}
	if c.Flags&CacheUnlimited != 0 && c.Flags&InMemory == 0 {
		return fmt.Errorf("%w: unlimited cache requires an in-memory environment", dberror.ErrInvalidParameter)
	}
	return nil
}

// Param names an environment parameter.
type Param uint32

const (
	ParamCacheSize Param = iota + 1
	ParamPageSize
	ParamMaxDatabases
	ParamKeyInlineMax
	ParamFlags
	ParamJournalCompression
	ParamFilename
	ParamLogDirectory
	ParamDatabaseCount
)

var paramNames = map[Param]string{
	ParamCacheSize:          "cache_size",
	ParamPageSize:           "page_size",
	ParamMaxDatabases:       "max_databases",
	ParamKeyInlineMax:       "key_inline_max",
	ParamFlags:              "flags",
	ParamJournalCompression: "journal_compression",
	ParamFilename:           "filename",
	ParamLogDirectory:       "log_directory",
	ParamDatabaseCount:      "database_count",
}

func (p Param) String() string {
	if name, ok := paramNames[p]; ok {
		return name
	}
	return fmt.Sprintf("param(%d)", uint32(p))
}

// ParseParam maps a parameter name to its Param.
func ParseParam(s string) (Param, error) {
	for p, name := range paramNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown parameter %q", dberror.ErrInvalidParameter, s)
}

// Parameter is the value of one parameter. Text is set for the textual ones.
type Parameter struct {
	Name  Param
	Value uint64
	Text  string
}
