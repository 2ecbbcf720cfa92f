package btree

import (
	"slices"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
)

// Erase removes key together with all of its duplicates.
func (t *BTree) Erase(key []byte) error {
	var path []step
	leaf, err := t.findLeaf(key, &path)
	if err != nil {
		return err
	}
	idx, found, err := t.lowerBound(leaf, key)
	if err != nil {
		return err
	}
	if !found {
		return notFound(key)
	}
	t.version++
	return t.removeAt(path, leaf, idx)
}

// EraseDuplicate removes the dupIndex-th record of key. Removing the last
// record removes the key.
func (t *BTree) EraseDuplicate(key []byte, dupIndex int) error {
	var path []step
	leaf, err := t.findLeaf(key, &path)
	if err != nil {
		return err
	}
	idx, found, err := t.lowerBound(leaf, key)
	if err != nil {
		return err
	}
	if !found {
		return notFound(key)
	}
	e := &leaf.entries[idx]
	recs, err := t.records(e)
	if err != nil {
		return err
	}
	if dupIndex < 0 || dupIndex >= len(recs) {
		return notFound(key)
	}
	t.version++
	if len(recs) == 1 {
		return t.removeAt(path, leaf, idx)
	}
	old := recs[dupIndex]
	if err := t.setRecords(e, slices.Delete(recs, dupIndex, dupIndex+1)); err != nil {
		return err
	}
	if err := t.freeRecord(old); err != nil {
		return err
	}
	// a lone inline record can take more room than the duplicate table did
	if leaf.size() > t.usable && e.rec.kind == recInline {
		id, err := t.blobs.Allocate(e.rec.inline)
		if err != nil {
			return err
		}
		e.rec = record{kind: recBlob, blob: id, size: uint32(len(e.rec.inline))}
	}
	if err := t.storeNode(leaf); err != nil {
		return err
	}
	return t.rebalance(path, leaf)
}

func (t *BTree) removeAt(path []step, leaf *node, idx int) error {
	e := leaf.removeEntry(idx)
	if err := t.freeEntry(&e, true); err != nil {
		return err
	}
	if err := t.storeNode(leaf); err != nil {
		return err
	}
	return t.rebalance(path, leaf)
}

// rebalance restores the minimum fill bottom-up along path after n shrank,
// borrowing from or merging with a sibling, and collapses an empty root.
func (t *BTree) rebalance(path []step, n *node) error {
	for level := len(path) - 1; level >= 0; level-- {
		if n.size() >= t.minFill {
			return nil
		}
		parent, ci := path[level].n, path[level].child
		merged, err := t.fixUnderflow(parent, ci, n)
		if err != nil {
			return err
		}
		if !merged {
			return nil
		}
		n = parent
	}
	if n.isLeaf || len(n.entries) > 0 || n.addr != t.root {
		return nil
	}
	t.logger.Debug("btree root collapsed", zap.Uint64("old_root", n.addr), zap.Uint64("new_root", n.children[0]))
	t.root = n.children[0]
	return t.pager.FreePage(n.addr)
}

// fixUnderflow repairs n, the ci-th child of parent. It reports whether n
// was merged with a sibling, which removes an entry from parent.
func (t *BTree) fixUnderflow(parent *node, ci int, n *node) (bool, error) {
	var left, right *node
	var li int
	if ci > 0 {
		sibling, err := t.loadNode(parent.children[ci-1])
		if err != nil {
			return false, err
		}
		left, right, li = sibling, n, ci-1
	} else {
		if len(parent.children) < 2 {
			return false, nil
		}
		sibling, err := t.loadNode(parent.children[1])
		if err != nil {
			return false, err
		}
		left, right, li = n, sibling, 0
	}
	if left.isLeaf != right.isLeaf {
		return false, dberror.ErrCorruption
	}

	combined := left.size() + right.size()
	if !n.isLeaf {
		combined += entrySize(false, &parent.entries[li])
	}
	if combined+t.maxEntry <= t.usable {
		return true, t.merge(parent, li, left, right)
	}
	moved, err := t.borrow(parent, li, left, right, n == right)
	if err != nil || moved {
		return false, err
	}
	if combined <= t.usable {
		return true, t.merge(parent, li, left, right)
	}
	return false, nil
}

// merge folds right into left and removes their separator from parent.
func (t *BTree) merge(parent *node, li int, left, right *node) error {
	sep := parent.removeEntry(li)
	parent.removeChild(li + 1)
	if left.isLeaf {
		left.entries = append(left.entries, right.entries...)
		left.right = right.right
		if right.right != 0 {
			neighbor, err := t.loadNode(right.right)
			if err != nil {
				return err
			}
			neighbor.left = left.addr
			if err := t.storeNode(neighbor); err != nil {
				return err
			}
		}
		if err := t.freeEntry(&sep, false); err != nil {
			return err
		}
	} else {
		sep.rec = record{}
		left.entries = append(left.entries, sep)
		left.entries = append(left.entries, right.entries...)
		left.children = append(left.children, right.children...)
	}
	if err := t.storeNode(left); err != nil {
		return err
	}
	if err := t.pager.FreePage(right.addr); err != nil {
		return err
	}
	t.logger.Debug("btree nodes merged", zap.Uint64("left", left.addr), zap.Uint64("right", right.addr),
		zap.Bool("leaf", left.isLeaf))
	return t.storeNode(parent)
}

// borrow moves entries from the fuller sibling into the underfilled one
// until it reaches the minimum fill. fillRight selects right as the receiver.
func (t *BTree) borrow(parent *node, li int, left, right *node, fillRight bool) (bool, error) {
	moved := false
	for {
		receiver, donor := left, right
		if fillRight {
			receiver, donor = right, left
		}
		if receiver.size() >= t.minFill || len(donor.entries) < 2 {
			break
		}
		di := 0
		if fillRight {
			di = len(donor.entries) - 1
		}
		if donor.size()-entrySize(donor.isLeaf, &donor.entries[di]) < t.minFill {
			break
		}
		var ok bool
		var err error
		if left.isLeaf {
			ok, err = t.rotateLeaf(parent, li, left, right, fillRight)
		} else {
			ok, err = t.rotateInternal(parent, li, left, right, fillRight)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		moved = true
	}
	if !moved {
		return false, nil
	}
	if err := t.storeNode(left); err != nil {
		return false, err
	}
	if err := t.storeNode(right); err != nil {
		return false, err
	}
	return true, t.storeNode(parent)
}

// fitsAfterReplace reports whether parent still fits its page after its
// li-th separator is replaced by one of newSize bytes.
func (t *BTree) fitsAfterReplace(parent *node, li, newSize int) bool {
	return parent.size()-entrySize(false, &parent.entries[li])+newSize <= t.usable
}

func (t *BTree) rotateLeaf(parent *node, li int, left, right *node, fillRight bool) (bool, error) {
	// the new first key of right becomes the separator
	first := &left.entries[len(left.entries)-1]
	if !fillRight {
		first = &right.entries[1]
	}
	sep, err := t.copyKey(first)
	if err != nil {
		return false, err
	}
	if !t.fitsAfterReplace(parent, li, entrySize(false, &sep)) {
		return false, t.freeEntry(&sep, false)
	}
	if fillRight {
		e := left.removeEntry(len(left.entries) - 1)
		right.insertEntry(0, e)
	} else {
		e := right.removeEntry(0)
		left.entries = append(left.entries, e)
	}
	old := parent.entries[li]
	parent.entries[li] = sep
	return true, t.freeEntry(&old, false)
}

func (t *BTree) rotateInternal(parent *node, li int, left, right *node, fillRight bool) (bool, error) {
	down := parent.entries[li]
	if fillRight {
		up := left.entries[len(left.entries)-1]
		if !t.fitsAfterReplace(parent, li, entrySize(false, &up)) {
			return false, nil
		}
		child := left.children[len(left.children)-1]
		left.removeEntry(len(left.entries) - 1)
		left.removeChild(len(left.children) - 1)
		right.insertEntry(0, down)
		right.insertChild(0, child)
		parent.entries[li] = up
		return true, nil
	}
	up := right.entries[0]
	if !t.fitsAfterReplace(parent, li, entrySize(false, &up)) {
		return false, nil
	}
	child := right.children[0]
	right.removeEntry(0)
	right.removeChild(0)
	left.entries = append(left.entries, down)
	left.children = append(left.children, child)
	parent.entries[li] = up
	return true, nil
}
