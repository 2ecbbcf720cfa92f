package freelist

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/sushant-115/stratadb/core/dberror"
)

// SparseMap is a compressed, mutable bitmap. Bits are grouped into miniMaps
// with their own start offsets; runs of all-zero or all-one vectors cost two
// bits each and bits outside every miniMap read as zero.
type SparseMap struct {
	maps []*miniMap
}

// NewSparseMap returns an empty bitmap.
func NewSparseMap() *SparseMap {
	return &SparseMap{}
}

// locate returns the index of the miniMap covering idx. If none covers it,
// the second result is false and the first is the insertion position.
func (s *SparseMap) locate(idx uint64) (int, bool) {
	i := sort.Search(len(s.maps), func(j int) bool { return s.maps[j].start > idx }) - 1
	if i >= 0 && idx < s.maps[i].end() {
		return i, true
	}
	return i + 1, false
}

// IsSet returns the value of bit idx.
func (s *SparseMap) IsSet(idx uint64) bool {
	i, ok := s.locate(idx)
	if !ok {
		return false
	}
	m := s.maps[i]
	return m.isSet(idx - m.start)
}

// Set sets bit idx to value.
func (s *SparseMap) Set(idx uint64, value bool) {
	i, ok := s.locate(idx)
	if !ok {
		if !value {
			return
		}
		lo := idx / miniMapCapacity * miniMapCapacity
		if i > 0 && s.maps[i-1].end() > lo {
			lo = s.maps[i-1].end()
		}
		hi := lo + miniMapCapacity
		if i < len(s.maps) && s.maps[i].start < hi {
			hi = s.maps[i].start
		}
		m := &miniMap{start: lo}
		m.setCapacity(hi - lo)
		s.maps = append(s.maps, nil)
		copy(s.maps[i+1:], s.maps[i:])
		s.maps[i] = m
	}
	m := s.maps[i]
	m.set(idx-m.start, value)
	if !value && m.isEmpty() {
		s.maps = append(s.maps[:i], s.maps[i+1:]...)
	}
}

// Clear removes every bit.
func (s *SparseMap) Clear() {
	s.maps = nil
}

// Start returns the offset of the first miniMap, or 0 if the map is empty.
func (s *SparseMap) Start() uint64 {
	if len(s.maps) == 0 {
		return 0
	}
	return s.maps[0].start
}

// End returns the offset just past the last miniMap, or 0 if the map is empty.
func (s *SparseMap) End() uint64 {
	if len(s.maps) == 0 {
		return 0
	}
	return s.maps[len(s.maps)-1].end()
}

// MiniMapCount returns the number of materialized miniMaps.
func (s *SparseMap) MiniMapCount() int { return len(s.maps) }

// Popcount returns the number of set bits.
func (s *SparseMap) Popcount() uint64 {
	var n uint64
	for _, m := range s.maps {
		n += m.popcount()
	}
	return n
}

// PopcountRange counts the set bits in [lo, hi).
func (s *SparseMap) PopcountRange(lo, hi uint64) uint64 {
	if hi <= lo {
		return 0
	}
	return s.popcountBelow(hi) - s.popcountBelow(lo)
}

func (s *SparseMap) popcountBelow(idx uint64) uint64 {
	var n uint64
	for _, m := range s.maps {
		if m.start >= idx {
			break
		}
		if m.end() <= idx {
			n += m.popcount()
			continue
		}
		n += m.popcountBelow(idx - m.start)
	}
	return n
}

// Select returns the index of the n-th (0-based) set bit.
func (s *SparseMap) Select(n uint64) (uint64, bool) {
	for _, m := range s.maps {
		idx, rest, ok := m.selectBit(n)
		if ok {
			return m.start + idx, true
		}
		n = rest
	}
	return 0, false
}

// NextClear returns the first clear bit in [from, limit).
func (s *SparseMap) NextClear(from, limit uint64) (uint64, bool) {
	pos := from
	for pos < limit {
		i, ok := s.locate(pos)
		if !ok {
			return pos, true
		}
		m := s.maps[i]
		if rel, found := m.nextClear(pos - m.start); found {
			if idx := m.start + rel; idx < limit {
				return idx, true
			}
			return 0, false
		}
		pos = m.end()
	}
	return 0, false
}

// NextSet returns the first set bit at or after from.
func (s *SparseMap) NextSet(from uint64) (uint64, bool) {
	i, ok := s.locate(from)
	for ; i < len(s.maps); i++ {
		m := s.maps[i]
		rel := uint64(0)
		if ok {
			rel = from - m.start
			ok = false
		}
		if r, found := m.nextSet(rel); found {
			return m.start + r, true
		}
	}
	return 0, false
}

// Scan calls fn for every set bit in ascending order until fn returns false.
func (s *SparseMap) Scan(fn func(idx uint64) bool) {
	for _, m := range s.maps {
		rel := uint64(0)
		for {
			r, ok := m.nextSet(rel)
			if !ok {
				break
			}
			if !fn(m.start + r) {
				return
			}
			rel = r + 1
			if rel >= m.capacity() {
				break
			}
		}
	}
}

// Split moves every bit at or beyond at into other. at must be aligned to a
// BitVector; splitting inside a miniMap reduces the capacity of both halves.
// other must not hold bits at or beyond at.
func (s *SparseMap) Split(at uint64, other *SparseMap) error {
	if at%bitsPerVector != 0 {
		return fmt.Errorf("%w: split offset %d is not aligned to %d bits", dberror.ErrInvalidParameter, at, bitsPerVector)
	}
	if other.End() > at {
		return fmt.Errorf("%w: split target already covers offset %d", dberror.ErrInvalidParameter, other.End())
	}
	keep := s.maps[:0:0]
	for _, m := range s.maps {
		switch {
		case m.end() <= at:
			keep = append(keep, m)
		case m.start >= at:
			other.maps = append(other.maps, m)
		default:
			moved := m.tail(at - m.start)
			m.setCapacity(at - m.start)
			if !m.isEmpty() {
				keep = append(keep, m)
			}
			if !moved.isEmpty() {
				other.maps = append(other.maps, moved)
			}
		}
	}
	s.maps = keep
	return nil
}

// Merge appends every bit of other to s and empties other. other must start
// at or after the end of s. Two reduced miniMaps meeting at the boundary are
// fused back into one.
func (s *SparseMap) Merge(other *SparseMap) error {
	if len(other.maps) == 0 {
		return nil
	}
	if len(s.maps) > 0 && other.Start() < s.End() {
		return fmt.Errorf("%w: merge source starts at %d before end %d", dberror.ErrInvalidParameter, other.Start(), s.End())
	}
	maps := other.maps
	if len(s.maps) > 0 {
		last, first := s.maps[len(s.maps)-1], maps[0]
		if last.end() == first.start && last.capacity()+first.capacity() <= miniMapCapacity {
			last.fuse(first)
			maps = maps[1:]
		}
	}
	s.maps = append(s.maps, maps...)
	other.maps = nil
	return nil
}

// SplitPoint suggests a vector aligned offset strictly above lo that divides
// the encoded size of the map roughly in half.
func (s *SparseMap) SplitPoint(lo uint64) (uint64, bool) {
	total := s.EncodedSize()
	acc := 4
	for i, m := range s.maps {
		if acc+m.encodedSize() > total/2 && i > 0 && m.start > lo {
			return m.start, true
		}
		acc += m.encodedSize()
	}
	for _, m := range s.maps {
		mid := m.start + m.capacity()/2/bitsPerVector*bitsPerVector
		if mid > lo && mid > m.start && mid < m.end() {
			return mid, true
		}
	}
	return 0, false
}

// Clone returns a deep copy.
func (s *SparseMap) Clone() *SparseMap {
	c := &SparseMap{maps: make([]*miniMap, len(s.maps))}
	for i, m := range s.maps {
		c.maps[i] = m.clone()
	}
	return c
}

// EncodedSize returns the length of MarshalBinary's output.
func (s *SparseMap) EncodedSize() int {
	n := 4
	for _, m := range s.maps {
		n += m.encodedSize()
	}
	return n
}

// MarshalBinary encodes the map as a miniMap count followed by
// {start, flags, mixed vectors} per miniMap.
func (s *SparseMap) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, s.EncodedSize())
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.maps)))
	for _, m := range s.maps {
		buf = binary.LittleEndian.AppendUint64(buf, m.start)
		buf = binary.LittleEndian.AppendUint64(buf, m.flags)
		for _, w := range m.vectors {
			buf = binary.LittleEndian.AppendUint64(buf, w)
		}
	}
	return buf, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (s *SparseMap) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: sparse map too short", dberror.ErrCorruption)
	}
	count := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	maps := make([]*miniMap, 0, count)
	var prevEnd uint64
	for i := 0; i < count; i++ {
		if len(data) < miniMapHeaderSize {
			return fmt.Errorf("%w: truncated miniMap %d", dberror.ErrCorruption, i)
		}
		m := &miniMap{
			start: binary.LittleEndian.Uint64(data),
			flags: binary.LittleEndian.Uint64(data[8:]),
		}
		data = data[miniMapHeaderSize:]
		n := m.mixedBelow(vectorsPerMiniMap)
		if len(data) < 8*n {
			return fmt.Errorf("%w: truncated vectors of miniMap %d", dberror.ErrCorruption, i)
		}
		if m.start%bitsPerVector != 0 || (i > 0 && m.start < prevEnd) {
			return fmt.Errorf("%w: miniMap %d starts at %d", dberror.ErrCorruption, i, m.start)
		}
		m.vectors = make([]uint64, n)
		for j := range m.vectors {
			m.vectors[j] = binary.LittleEndian.Uint64(data[8*j:])
		}
		data = data[8*n:]
		prevEnd = m.end()
		maps = append(maps, m)
	}
	s.maps = maps
	return nil
}
