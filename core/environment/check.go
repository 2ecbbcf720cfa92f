package environment

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/storage_engine/disk"
)

// Check verifies every database tree and cross-checks page ownership with the
// space manager: no page may belong to two owners, every owned page must be
// allocated and every allocated page must be owned. Violations are reported
// as ErrCorruption and make the environment unusable.
func (e *Environment) Check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	return e.note(e.checkLocked())
}

func (e *Environment) checkLocked() error {
	owners := map[uint64]string{disk.HeaderAddress: "header"}
	claim := func(addr uint64, owner string) error {
		if prev, ok := owners[addr]; ok {
			return fmt.Errorf("%w: page %d belongs to %s and %s", dberror.ErrCorruption, addr, prev, owner)
		}
		if !e.freelist.IsAllocated(addr) {
			return fmt.Errorf("%w: page %d of %s is not allocated", dberror.ErrCorruption, addr, owner)
		}
		owners[addr] = owner
		return nil
	}
	for _, addr := range e.freelist.ChainPages() {
		if err := claim(addr, "freelist"); err != nil {
			return err
		}
	}
	for _, name := range e.namesLocked() {
		t, _, err := e.treeLocked(name)
		if err != nil {
			return err
		}
		if err := t.Check(); err != nil {
			return fmt.Errorf("database %d: %w", name, err)
		}
		owner := fmt.Sprintf("database %d", name)
		if err := t.OwnedPages(func(addr uint64) error { return claim(addr, owner) }); err != nil {
			return err
		}
	}

	var leaked []uint64
	e.freelist.Scan(func(addr uint64) bool {
		if _, ok := owners[addr]; !ok {
			leaked = append(leaked, addr)
		}
		return true
	})
	if len(leaked) > 0 {
		return fmt.Errorf("%w: %d allocated pages have no owner, first at %d", dberror.ErrCorruption, len(leaked), leaked[0])
	}
	e.logger.Debug("integrity check passed", zap.Int("pages", len(owners)))
	return nil
}
