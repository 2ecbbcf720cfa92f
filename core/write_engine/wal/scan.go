package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/sushant-115/stratadb/core/dberror"
)

// GroupKind tells commit groups and changesets apart.
type GroupKind int

const (
	GroupTxn GroupKind = iota + 1
	GroupChangeset
)

func (k GroupKind) String() string {
	if k == GroupChangeset {
		return "changeset"
	}
	return "txn"
}

// Group is a complete unit of the log: the records of one committed
// transaction, or the page images of one changeset. The terminating marker
// is not part of Records.
type Group struct {
	Kind    GroupKind
	TxnID   uint64
	LSN     LSN // LSN of the marker
	Records []LogRecord
}

// PageAddress returns the page address carried by a page image record.
func (lr *LogRecord) PageAddress() (uint64, error) {
	if lr.Type != LogRecordTypePageImage || len(lr.Key) != 8 {
		return 0, fmt.Errorf("%w: log record %d is not a page image", dberror.ErrCorruption, lr.LSN)
	}
	return binary.BigEndian.Uint64(lr.Key), nil
}

// errTorn marks a frame that is incomplete or fails its checksum. Everything
// from such a frame on is an unfinished tail.
var errTorn = errors.New("torn log frame")

type scanResult struct {
	groups  []Group
	lastLSN LSN
	// end of the last complete group
	endSeg  int
	endOff  int64
	dropped int64
}

// readFrame reads one frame from r and returns its size on disk.
func (c *codec) readFrame(r io.Reader, lr *LogRecord) (int64, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, errTorn
	}
	n := binary.LittleEndian.Uint32(hdr[0:])
	if n < bodyHeaderSize || n > maxFrameBody {
		return 0, errTorn
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, errTorn
	}
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(hdr[4:]) {
		return 0, errTorn
	}
	if err := c.decodeBody(body, lr); err != nil {
		if errors.Is(err, dberror.ErrInvalidParameter) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", errTorn, err)
	}
	return int64(frameHeaderSize + n), nil
}

// scanSegments reads segs in order and collects complete groups. Scanning
// stops at the first torn frame, LSN gap or foreign record inside a group.
func (c *codec) scanSegments(segs []segment) (*scanResult, error) {
	res := &scanResult{endSeg: -1}
	var pending []LogRecord
	var prev LSN
	stopped := false

	for i := 0; i < len(segs) && !stopped; i++ {
		f, err := os.Open(segs[i].path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", dberror.ErrIO, segs[i].path, err)
		}
		r := bufio.NewReaderSize(f, 64<<10)
		var off int64
		for {
			var lr LogRecord
			n, err := c.readFrame(r, &lr)
			if err == io.EOF {
				break
			}
			if err != nil && !errors.Is(err, errTorn) {
				f.Close()
				return nil, err
			}
			if err != nil || (prev != InvalidLSN && lr.LSN != prev+1) ||
				(len(pending) > 0 && lr.TxnID != pending[0].TxnID) {
				stopped = true
				break
			}
			prev = lr.LSN
			off += n
			if !lr.Type.isMarker() {
				pending = append(pending, lr)
				continue
			}
			g := Group{Kind: GroupTxn, TxnID: lr.TxnID, LSN: lr.LSN, Records: pending}
			if lr.Type == LogRecordTypeChangesetCommit {
				g.Kind = GroupChangeset
			}
			res.groups = append(res.groups, g)
			res.lastLSN = lr.LSN
			res.endSeg, res.endOff = i, off
			pending = nil
		}
		f.Close()
	}

	// Everything past the last complete group goes.
	for i, seg := range segs {
		switch {
		case i == max(res.endSeg, 0):
			res.dropped += seg.size - res.endOff
		case i > res.endSeg:
			res.dropped += seg.size
		}
	}
	if res.endSeg < 0 {
		res.endOff = 0
	}
	return res, nil
}
