package btree

import (
	"bytes"
	"errors"
)

// ErrNeedFullKey is returned by a PrefixCompareFunc that cannot order two
// keys from their stored prefixes alone.
var ErrNeedFullKey = errors.New("btree: full key required for comparison")

// CompareFunc orders two complete keys.
type CompareFunc func(a, b []byte) int

// PrefixCompareFunc orders two keys given a prefix of each and their real
// sizes. It returns ErrNeedFullKey when the prefixes do not decide the order.
type PrefixCompareFunc func(a []byte, aSize int, b []byte, bSize int) (int, error)

// Comparator defines the key order of a database.
type Comparator struct {
	Compare CompareFunc
	// PrefixCompare is optional. Without it extended keys are always loaded
	// before comparing.
	PrefixCompare PrefixCompareFunc
}

// DefaultComparator orders keys byte-wise; a proper prefix sorts first.
func DefaultComparator() Comparator {
	return Comparator{Compare: bytes.Compare, PrefixCompare: BytewisePrefixCompare}
}

// BytewisePrefixCompare is the prefix comparison matching bytes.Compare.
func BytewisePrefixCompare(a []byte, aSize int, b []byte, bSize int) (int, error) {
	n := min(len(a), len(b))
	if c := bytes.Compare(a[:n], b[:n]); c != 0 {
		return c, nil
	}
	aComplete, bComplete := len(a) == aSize, len(b) == bSize
	switch {
	case aComplete && bComplete:
		return cmpInt(aSize, bSize), nil
	case aComplete && len(a) <= len(b):
		return -1, nil
	case bComplete && len(b) <= len(a):
		return 1, nil
	}
	return 0, ErrNeedFullKey
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
