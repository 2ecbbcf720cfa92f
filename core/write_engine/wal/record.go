package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/sushant-115/stratadb/core/dberror"
)

// --- Write-Ahead Logging (WAL) Constants and Types ---

type LSN uint64 // Log Sequence Number
const InvalidLSN LSN = 0

// LogRecordType defines the type of operation logged.
type LogRecordType byte

const (
	LogRecordTypeInsert             LogRecordType = iota + 1 // Insert or overwrite a record
	LogRecordTypeInsertDuplicate                             // Insert a duplicate at a position
	LogRecordTypeErase                                       // Erase one duplicate
	LogRecordTypeEraseAllDuplicates                          // Erase a key with all duplicates
	LogRecordTypeTxnCommit                                   // Terminates a transaction group
	LogRecordTypePageImage                                   // Full image of one page, part of a changeset
	LogRecordTypeChangesetCommit                             // Terminates a changeset (checkpoint)
)

func (t LogRecordType) String() string {
	switch t {
	case LogRecordTypeInsert:
		return "insert"
	case LogRecordTypeInsertDuplicate:
		return "insert-duplicate"
	case LogRecordTypeErase:
		return "erase"
	case LogRecordTypeEraseAllDuplicates:
		return "erase-all-duplicates"
	case LogRecordTypeTxnCommit:
		return "txn-commit"
	case LogRecordTypePageImage:
		return "page-image"
	case LogRecordTypeChangesetCommit:
		return "changeset-commit"
	}
	return fmt.Sprintf("type(%d)", byte(t))
}

// isMarker reports whether records of type t terminate a group.
func (t LogRecordType) isMarker() bool {
	return t == LogRecordTypeTxnCommit || t == LogRecordTypeChangesetCommit
}

// Compression selects how record payloads are compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionLZ4
)

// ParseCompression maps a configuration value to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return 0, fmt.Errorf("%w: unknown journal compression %q", dberror.ErrInvalidParameter, s)
}

func (c Compression) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	}
	return "none"
}

// codecSealed marks an encrypted payload in the codec byte.
const codecSealed = 0x80

// LogRecord represents a single entry in the Write-Ahead Log.
type LogRecord struct {
	LSN      LSN
	TxnID    uint64 // Transaction ID (0 for changesets)
	Type     LogRecordType
	DB       uint16
	Flags    uint32
	DupIndex int32
	Key      []byte // page images carry their address here
	Record   []byte
}

// Sealer encrypts and authenticates record payloads.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// frame layout: length u32, xxhash64 of the body u64, body.
const (
	frameHeaderSize = 12
	// lsn, txn id, type, codec, db, flags, dup index, payload length
	bodyHeaderSize = 8 + 8 + 1 + 1 + 2 + 4 + 4 + 4
	maxFrameBody   = 1 << 30
)

// codec turns records into frames and back.
type codec struct {
	compression Compression
	threshold   int
	sealer      Sealer
}

func (c *codec) encodePayload(lr *LogRecord) ([]byte, byte, error) {
	payload := make([]byte, 4, 4+len(lr.Key)+len(lr.Record))
	binary.LittleEndian.PutUint32(payload, uint32(len(lr.Key)))
	payload = append(payload, lr.Key...)
	payload = append(payload, lr.Record...)

	var flags byte
	if c.compression != CompressionNone && len(payload) >= c.threshold {
		if out, ok := compress(c.compression, payload); ok {
			payload, flags = out, byte(c.compression)
		}
	}
	if c.sealer != nil {
		sealed, err := c.sealer.Seal(payload)
		if err != nil {
			return nil, 0, err
		}
		payload, flags = sealed, flags|codecSealed
	}
	return payload, flags, nil
}

func compress(c Compression, src []byte) ([]byte, bool) {
	switch c {
	case CompressionSnappy:
		out := snappy.Encode(nil, src)
		return out, len(out) < len(src)
	case CompressionLZ4:
		// original length u32, then the block
		out := make([]byte, 4+lz4.CompressBlockBound(len(src)))
		binary.LittleEndian.PutUint32(out, uint32(len(src)))
		n, err := lz4.CompressBlock(src, out[4:], nil)
		if err != nil || n == 0 || 4+n >= len(src) {
			return nil, false
		}
		return out[:4+n], true
	}
	return nil, false
}

func decompress(c Compression, src []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionSnappy:
		return snappy.Decode(nil, src)
	case CompressionLZ4:
		if len(src) < 4 {
			return nil, fmt.Errorf("short lz4 payload")
		}
		n := binary.LittleEndian.Uint32(src)
		if n > maxFrameBody {
			return nil, fmt.Errorf("lz4 payload claims %d bytes", n)
		}
		out := make([]byte, n)
		m, err := lz4.UncompressBlock(src[4:], out)
		if err != nil {
			return nil, err
		}
		if m != int(n) {
			return nil, fmt.Errorf("lz4 payload decoded to %d bytes, expected %d", m, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown compression %d", c)
}

// encode appends the frame of lr to dst.
func (c *codec) encode(dst []byte, lr *LogRecord) ([]byte, error) {
	payload, flags, err := c.encodePayload(lr)
	if err != nil {
		return nil, err
	}
	bodyLen := bodyHeaderSize + len(payload)
	if bodyLen > maxFrameBody {
		return nil, fmt.Errorf("%w: log record of %d bytes", dberror.ErrLimitsReached, bodyLen)
	}
	start := len(dst)
	dst = append(dst, make([]byte, frameHeaderSize+bodyHeaderSize)...)
	dst = append(dst, payload...)

	frame := dst[start:]
	body := frame[frameHeaderSize:]
	binary.LittleEndian.PutUint64(body[0:], uint64(lr.LSN))
	binary.LittleEndian.PutUint64(body[8:], lr.TxnID)
	body[16] = byte(lr.Type)
	body[17] = flags
	binary.LittleEndian.PutUint16(body[18:], lr.DB)
	binary.LittleEndian.PutUint32(body[20:], lr.Flags)
	binary.LittleEndian.PutUint32(body[24:], uint32(lr.DupIndex))
	binary.LittleEndian.PutUint32(body[28:], uint32(len(payload)))

	binary.LittleEndian.PutUint32(frame[0:], uint32(bodyLen))
	binary.LittleEndian.PutUint64(frame[4:], xxhash.Sum64(body))
	return dst, nil
}

// decodeBody parses a frame body whose checksum was already verified.
func (c *codec) decodeBody(body []byte, lr *LogRecord) error {
	if len(body) < bodyHeaderSize {
		return fmt.Errorf("short log record body of %d bytes", len(body))
	}
	lr.LSN = LSN(binary.LittleEndian.Uint64(body[0:]))
	lr.TxnID = binary.LittleEndian.Uint64(body[8:])
	lr.Type = LogRecordType(body[16])
	flags := body[17]
	lr.DB = binary.LittleEndian.Uint16(body[18:])
	lr.Flags = binary.LittleEndian.Uint32(body[20:])
	lr.DupIndex = int32(binary.LittleEndian.Uint32(body[24:]))
	n := int(binary.LittleEndian.Uint32(body[28:]))
	if n != len(body)-bodyHeaderSize {
		return fmt.Errorf("payload length %d does not match body", n)
	}
	if lr.Type < LogRecordTypeInsert || lr.Type > LogRecordTypeChangesetCommit {
		return fmt.Errorf("unknown log record type %d", body[16])
	}

	payload := body[bodyHeaderSize:]
	if flags&codecSealed != 0 {
		if c.sealer == nil {
			return fmt.Errorf("%w: log record is encrypted but no key is configured", dberror.ErrInvalidParameter)
		}
		opened, err := c.sealer.Open(payload)
		if err != nil {
			return err
		}
		payload = opened
	}
	payload, err := decompress(Compression(flags&^codecSealed), payload)
	if err != nil {
		return err
	}
	if len(payload) < 4 {
		return fmt.Errorf("short log record payload")
	}
	keyLen := int(binary.LittleEndian.Uint32(payload))
	if keyLen > len(payload)-4 {
		return fmt.Errorf("key length %d exceeds payload", keyLen)
	}
	lr.Key = append([]byte(nil), payload[4:4+keyLen]...)
	lr.Record = append([]byte(nil), payload[4+keyLen:]...)
	return nil
}
