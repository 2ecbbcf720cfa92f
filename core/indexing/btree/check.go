package btree

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{dberror.ErrCorruption}, args...)...)
}

type checker struct {
	t         *BTree
	leafDepth int
	leaves    []*node
}

// Check verifies the structure of the tree: key order within and across
// nodes, separator bounds, equal leaf depth and the sibling chain. Any
// violation is reported as ErrCorruption.
func (t *BTree) Check() error {
	c := &checker{t: t, leafDepth: -1}
	if err := c.walk(t.root, 0, nil, nil); err != nil {
		return err
	}
	for i, leaf := range c.leaves {
		var wantLeft, wantRight uint64
		if i > 0 {
			wantLeft = c.leaves[i-1].addr
		}
		if i+1 < len(c.leaves) {
			wantRight = c.leaves[i+1].addr
		}
		if leaf.left != wantLeft || leaf.right != wantRight {
			return corruptf("leaf %d links (%d, %d), expected (%d, %d)",
				leaf.addr, leaf.left, leaf.right, wantLeft, wantRight)
		}
	}
	return nil
}

// walk checks the subtree at addr whose keys must lie in [lo, hi). A nil
// bound is open.
func (c *checker) walk(addr uint64, depth int, lo, hi []byte) error {
	if depth > maxDepth {
		return corruptf("tree deeper than %d levels", maxDepth)
	}
	n, err := c.t.loadNode(addr)
	if err != nil {
		return err
	}
	keys := make([][]byte, len(n.entries))
	for i := range n.entries {
		e := &n.entries[i]
		if keys[i], err = c.t.fullKey(e); err != nil {
			return err
		}
		if i > 0 && c.t.cmp.Compare(keys[i-1], keys[i]) >= 0 {
			return corruptf("node %d keys %d and %d out of order", addr, i-1, i)
		}
		if lo != nil && c.t.cmp.Compare(keys[i], lo) < 0 {
			return corruptf("node %d key %d below its separator", addr, i)
		}
		if hi != nil && c.t.cmp.Compare(keys[i], hi) >= 0 {
			return corruptf("node %d key %d above its separator", addr, i)
		}
		if n.isLeaf {
			if _, err := c.t.records(e); err != nil {
				return err
			}
		}
	}

	if n.isLeaf {
		if c.leafDepth >= 0 && depth != c.leafDepth {
			return corruptf("leaf %d at depth %d, expected %d", addr, depth, c.leafDepth)
		}
		c.leafDepth = depth
		c.leaves = append(c.leaves, n)
		return nil
	}
	if len(n.children) != len(n.entries)+1 {
		return corruptf("internal node %d has %d children for %d keys", addr, len(n.children), len(n.entries))
	}
	for i, child := range n.children {
		clo, chi := lo, hi
		if i > 0 {
			clo = keys[i-1]
		}
		if i < len(keys) {
			chi = keys[i]
		}
		if err := c.walk(child, depth+1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records in the tree, or the number of keys
// when distinct is set.
func (t *BTree) Count(distinct bool) (uint64, error) {
	leaf, err := t.edgeLeaf(false)
	if err != nil {
		return 0, err
	}
	var total uint64
	for {
		for i := range leaf.entries {
			if distinct {
				total++
			} else {
				total += uint64(recordCount(&leaf.entries[i]))
			}
		}
		if leaf.right == 0 {
			return total, nil
		}
		if leaf, err = t.loadNode(leaf.right); err != nil {
			return 0, err
		}
	}
}

// OwnedPages calls fn for every page of the tree: its nodes and the pages of
// all blobs referenced from them.
func (t *BTree) OwnedPages(fn func(addr uint64) error) error {
	return t.visit(t.root, 0, func(n *node) error {
		if err := fn(n.addr); err != nil {
			return err
		}
		for i := range n.entries {
			ids, err := t.blobIDs(&n.entries[i], n.isLeaf)
			if err != nil {
				return err
			}
			for _, id := range ids {
				pages, err := t.blobs.Pages(id)
				if err != nil {
					return err
				}
				for _, p := range pages {
					if err := fn(p); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// Drop frees every node and blob of the tree. The tree is unusable afterwards.
func (t *BTree) Drop() error {
	var freed int
	err := t.visit(t.root, 0, func(n *node) error {
		for i := range n.entries {
			if err := t.freeEntry(&n.entries[i], n.isLeaf); err != nil {
				return err
			}
		}
		freed++
		return t.pager.FreePage(n.addr)
	})
	if err != nil {
		return err
	}
	t.logger.Debug("btree dropped", zap.Uint64("root", t.root), zap.Int("nodes", freed))
	t.root = 0
	t.version++
	return nil
}

// visit calls fn for every node below addr, children before their parent.
func (t *BTree) visit(addr uint64, depth int, fn func(n *node) error) error {
	if depth > maxDepth {
		return corruptf("tree deeper than %d levels", maxDepth)
	}
	n, err := t.loadNode(addr)
	if err != nil {
		return err
	}
	for _, child := range n.children {
		if err := t.visit(child, depth+1, fn); err != nil {
			return err
		}
	}
	return fn(n)
}

func (t *BTree) blobIDs(e *entry, leaf bool) ([]uint64, error) {
	var ids []uint64
	if e.extended() {
		ids = append(ids, e.keyBlob)
	}
	if !leaf {
		return ids, nil
	}
	recs, err := t.records(e)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.kind == recBlob {
			ids = append(ids, r.blob)
		}
	}
	if e.rec.kind == recDups {
		ids = append(ids, e.rec.blob)
	}
	return ids, nil
}
