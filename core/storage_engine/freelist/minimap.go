package freelist

import "math/bits"

// A miniMap manages up to 2048 bits as 32 BitVectors. Each vector is
// summarized by two bits in the flags word:
//
//	00  all zeroes, not stored
//	11  all ones, not stored
//	10  mixed, stored in vectors
//	01  not used (reduced capacity)
//
// Unused vectors are always at the tail of the map.
const (
	bitsPerVector     = 64
	vectorsPerMiniMap = 32
	miniMapCapacity   = bitsPerVector * vectorsPerMiniMap

	flagZeroes uint64 = 0
	flagNone   uint64 = 1
	flagMixed  uint64 = 2
	flagOnes   uint64 = 3
	flagMask   uint64 = 3

	hiFlagBits uint64 = 0xAAAAAAAAAAAAAAAA
	loFlagBits uint64 = 0x5555555555555555

	miniMapHeaderSize = 16
)

type miniMap struct {
	start   uint64
	flags   uint64
	vectors []uint64
}

func (m *miniMap) flag(bv int) uint64 {
	return (m.flags >> (uint(bv) * 2)) & flagMask
}

func (m *miniMap) setFlag(bv int, f uint64) {
	shift := uint(bv) * 2
	m.flags = m.flags&^(flagMask<<shift) | f<<shift
}

// mixedBelow returns the index in vectors of BitVector bv.
func (m *miniMap) mixedBelow(bv int) int {
	mixed := (m.flags & hiFlagBits) &^ ((m.flags & loFlagBits) << 1)
	if bv < vectorsPerMiniMap {
		mixed &= (uint64(1) << (uint(bv) * 2)) - 1
	}
	return bits.OnesCount64(mixed)
}

func (m *miniMap) capacity() uint64 {
	none := (m.flags & loFlagBits) &^ ((m.flags & hiFlagBits) >> 1)
	return miniMapCapacity - uint64(bits.OnesCount64(none))*bitsPerVector
}

func (m *miniMap) end() uint64 { return m.start + m.capacity() }

// setCapacity marks every vector at or beyond capacity as unused.
func (m *miniMap) setCapacity(capacity uint64) {
	first := int(capacity / bitsPerVector)
	for bv := vectorsPerMiniMap - 1; bv >= first; bv-- {
		if m.flag(bv) == flagMixed {
			pos := m.mixedBelow(bv)
			m.vectors = append(m.vectors[:pos], m.vectors[pos+1:]...)
		}
		m.setFlag(bv, flagNone)
	}
}

func (m *miniMap) isEmpty() bool {
	for bv := 0; bv < vectorsPerMiniMap; bv++ {
		if f := m.flag(bv); f != flagZeroes && f != flagNone {
			return false
		}
	}
	return true
}

func (m *miniMap) encodedSize() int {
	return miniMapHeaderSize + 8*len(m.vectors)
}

func (m *miniMap) isSet(idx uint64) bool {
	bv := int(idx / bitsPerVector)
	switch m.flag(bv) {
	case flagOnes:
		return true
	case flagMixed:
		return m.vectors[m.mixedBelow(bv)]&(uint64(1)<<(idx%bitsPerVector)) != 0
	default:
		return false
	}
}

// set updates one bit. idx must be below capacity.
func (m *miniMap) set(idx uint64, value bool) {
	bv := int(idx / bitsPerVector)
	pos := m.mixedBelow(bv)
	switch m.flag(bv) {
	case flagZeroes:
		if !value {
			return
		}
		m.insertVector(pos, 0)
		m.setFlag(bv, flagMixed)
	case flagOnes:
		if value {
			return
		}
		m.insertVector(pos, ^uint64(0))
		m.setFlag(bv, flagMixed)
	case flagNone:
		return
	}

	w := m.vectors[pos]
	if value {
		w |= uint64(1) << (idx % bitsPerVector)
	} else {
		w &^= uint64(1) << (idx % bitsPerVector)
	}
	switch w {
	case 0:
		m.setFlag(bv, flagZeroes)
		m.removeVector(pos)
	case ^uint64(0):
		m.setFlag(bv, flagOnes)
		m.removeVector(pos)
	default:
		m.vectors[pos] = w
	}
}

func (m *miniMap) insertVector(pos int, w uint64) {
	m.vectors = append(m.vectors, 0)
	copy(m.vectors[pos+1:], m.vectors[pos:])
	m.vectors[pos] = w
}

func (m *miniMap) removeVector(pos int) {
	m.vectors = append(m.vectors[:pos], m.vectors[pos+1:]...)
}

func (m *miniMap) popcount() uint64 {
	var n uint64
	for bv := 0; bv < vectorsPerMiniMap; bv++ {
		if m.flag(bv) == flagOnes {
			n += bitsPerVector
		}
	}
	for _, w := range m.vectors {
		n += uint64(bits.OnesCount64(w))
	}
	return n
}

// popcountBelow counts the set bits in [0, idx).
func (m *miniMap) popcountBelow(idx uint64) uint64 {
	var n uint64
	for bv := 0; bv < vectorsPerMiniMap && uint64(bv)*bitsPerVector < idx; bv++ {
		rest := idx - uint64(bv)*bitsPerVector
		switch m.flag(bv) {
		case flagOnes:
			if rest >= bitsPerVector {
				n += bitsPerVector
			} else {
				n += rest
			}
		case flagMixed:
			w := m.vectors[m.mixedBelow(bv)]
			if rest < bitsPerVector {
				w &= (uint64(1) << rest) - 1
			}
			n += uint64(bits.OnesCount64(w))
		}
	}
	return n
}

// selectBit returns the position of the n-th (0-based) set bit. If this map
// holds fewer than n+1 set bits it returns false and the remaining n.
func (m *miniMap) selectBit(n uint64) (uint64, uint64, bool) {
	for bv := 0; bv < vectorsPerMiniMap; bv++ {
		base := uint64(bv) * bitsPerVector
		switch m.flag(bv) {
		case flagOnes:
			if n < bitsPerVector {
				return base + n, 0, true
			}
			n -= bitsPerVector
		case flagMixed:
			w := m.vectors[m.mixedBelow(bv)]
			c := uint64(bits.OnesCount64(w))
			if n < c {
				for ; n > 0; n-- {
					w &= w - 1
				}
				return base + uint64(bits.TrailingZeros64(w)), 0, true
			}
			n -= c
		}
	}
	return 0, n, false
}

// nextClear returns the first clear bit at or after from, below capacity.
func (m *miniMap) nextClear(from uint64) (uint64, bool) {
	for bv := int(from / bitsPerVector); bv < vectorsPerMiniMap; bv++ {
		base := uint64(bv) * bitsPerVector
		var lowest uint64
		if from > base {
			lowest = from - base
		}
		switch m.flag(bv) {
		case flagNone:
			return 0, false
		case flagZeroes:
			return base + lowest, true
		case flagMixed:
			free := ^m.vectors[m.mixedBelow(bv)] &^ ((uint64(1) << lowest) - 1)
			if free != 0 {
				return base + uint64(bits.TrailingZeros64(free)), true
			}
		}
	}
	return 0, false
}

// nextSet returns the first set bit at or after from.
func (m *miniMap) nextSet(from uint64) (uint64, bool) {
	for bv := int(from / bitsPerVector); bv < vectorsPerMiniMap; bv++ {
		base := uint64(bv) * bitsPerVector
		var lowest uint64
		if from > base {
			lowest = from - base
		}
		switch m.flag(bv) {
		case flagNone:
			return 0, false
		case flagOnes:
			return base + lowest, true
		case flagMixed:
			set := m.vectors[m.mixedBelow(bv)] &^ ((uint64(1) << lowest) - 1)
			if set != 0 {
				return base + uint64(bits.TrailingZeros64(set)), true
			}
		}
	}
	return 0, false
}

// tail returns a new miniMap holding the bits of m at and beyond rel,
// starting at m.start+rel. rel must be vector aligned.
func (m *miniMap) tail(rel uint64) *miniMap {
	first := int(rel / bitsPerVector)
	last := int(m.capacity() / bitsPerVector)
	d := &miniMap{start: m.start + rel}
	for bv := first; bv < last; bv++ {
		f := m.flag(bv)
		d.setFlag(bv-first, f)
		if f == flagMixed {
			d.vectors = append(d.vectors, m.vectors[m.mixedBelow(bv)])
		}
	}
	d.setCapacity(m.capacity() - rel)
	return d
}

// fuse appends the vectors of n to m. The caller ensures they are adjacent
// and fit into one miniMap.
func (m *miniMap) fuse(n *miniMap) {
	offset := int(m.capacity() / bitsPerVector)
	count := int(n.capacity() / bitsPerVector)
	for bv := 0; bv < count; bv++ {
		f := n.flag(bv)
		m.setFlag(offset+bv, f)
		if f == flagMixed {
			m.vectors = append(m.vectors, n.vectors[n.mixedBelow(bv)])
		}
	}
	for bv := offset + count; bv < vectorsPerMiniMap; bv++ {
		m.setFlag(bv, flagNone)
	}
}

func (m *miniMap) clone() *miniMap {
	return &miniMap{start: m.start, flags: m.flags, vectors: append([]uint64(nil), m.vectors...)}
}
