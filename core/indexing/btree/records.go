package btree

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/sushant-115/stratadb/core/dberror"
)

// A duplicate table is a blob listing the records of one key in order:
// count u32, then per record kind u8 followed by either length u32 + bytes
// (inline) or blob u64 + size u32.

func encodeDupTable(recs []record) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(recs)))
	for _, r := range recs {
		buf = append(buf, byte(r.kind))
		if r.kind == recInline {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.inline)))
			buf = append(buf, r.inline...)
			continue
		}
		buf = binary.LittleEndian.AppendUint64(buf, r.blob)
		buf = binary.LittleEndian.AppendUint32(buf, r.size)
	}
	return buf
}

func decodeDupTable(id uint64, data []byte) ([]record, error) {
	corrupt := fmt.Errorf("%w: malformed duplicate table %d", dberror.ErrCorruption, id)
	if len(data) < 4 {
		return nil, corrupt
	}
	count := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if count < 2 || count > len(data) {
		return nil, corrupt
	}
	recs := make([]record, count)
	for i := range recs {
		if len(data) < 1 {
			return nil, corrupt
		}
		r := &recs[i]
		r.kind = recordKind(data[0])
		data = data[1:]
		switch r.kind {
		case recInline:
			if len(data) < 4 {
				return nil, corrupt
			}
			n := int(binary.LittleEndian.Uint32(data))
			if len(data) < 4+n {
				return nil, corrupt
			}
			r.inline = slices.Clone(data[4 : 4+n])
			if r.inline == nil {
				r.inline = []byte{}
			}
			data = data[4+n:]
		case recBlob:
			if len(data) < 12 {
				return nil, corrupt
			}
			r.blob = binary.LittleEndian.Uint64(data)
			r.size = binary.LittleEndian.Uint32(data[8:])
			data = data[12:]
		default:
			return nil, corrupt
		}
	}
	return recs, nil
}

// records returns the record references of a leaf entry in duplicate order.
func (t *BTree) records(e *entry) ([]record, error) {
	if e.rec.kind != recDups {
		return []record{e.rec}, nil
	}
	data, err := t.blobs.Read(e.rec.blob)
	if err != nil {
		return nil, err
	}
	recs, err := decodeDupTable(e.rec.blob, data)
	if err != nil {
		return nil, err
	}
	if len(recs) != int(e.rec.size) {
		return nil, fmt.Errorf("%w: duplicate table %d lists %d records, node says %d",
			dberror.ErrCorruption, e.rec.blob, len(recs), e.rec.size)
	}
	return recs, nil
}

// setRecords stores recs as the records of e, switching between a single
// record and a duplicate table as needed. recs must not be empty.
func (t *BTree) setRecords(e *entry, recs []record) error {
	if len(recs) == 1 {
		if e.rec.kind == recDups {
			if err := t.blobs.Free(e.rec.blob); err != nil {
				return err
			}
		}
		e.rec = recs[0]
		return nil
	}
	table := encodeDupTable(recs)
	if e.rec.kind == recDups {
		if err := t.blobs.Overwrite(e.rec.blob, table); err != nil {
			return err
		}
		e.rec.size = uint32(len(recs))
		return nil
	}
	id, err := t.blobs.Allocate(table)
	if err != nil {
		return err
	}
	e.rec = record{kind: recDups, blob: id, size: uint32(len(recs))}
	return nil
}

func (t *BTree) newRecord(data []byte) (record, error) {
	if len(data) <= t.recInline {
		inline := slices.Clone(data)
		if inline == nil {
			inline = []byte{}
		}
		return record{kind: recInline, inline: inline}, nil
	}
	id, err := t.blobs.Allocate(data)
	if err != nil {
		return record{}, err
	}
	return record{kind: recBlob, blob: id, size: uint32(len(data))}, nil
}

func (t *BTree) readRecord(r record) ([]byte, error) {
	if r.kind == recInline {
		out := make([]byte, len(r.inline))
		copy(out, r.inline)
		return out, nil
	}
	data, err := t.blobs.Read(r.blob)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) != r.size {
		return nil, fmt.Errorf("%w: record blob %d holds %d bytes, expected %d",
			dberror.ErrCorruption, r.blob, len(data), r.size)
	}
	return data, nil
}

func (t *BTree) freeRecord(r record) error {
	if r.kind == recBlob {
		return t.blobs.Free(r.blob)
	}
	return nil
}

// freeEntry releases every blob owned by e.
func (t *BTree) freeEntry(e *entry, leaf bool) error {
	if e.extended() {
		if err := t.blobs.Free(e.keyBlob); err != nil {
			return err
		}
	}
	if !leaf {
		return nil
	}
	recs, err := t.records(e)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := t.freeRecord(r); err != nil {
			return err
		}
	}
	if e.rec.kind == recDups {
		return t.blobs.Free(e.rec.blob)
	}
	return nil
}
