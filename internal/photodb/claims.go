package photodb

import (
	"sync"

	"photodb/internal/model"
)

// claimTable deduplicates fingerprints within one import batch.
// The first worker to claim a fingerprint processes it; later workers wait
// for its outcome instead of racing it to the archive path and the ledger.
type claimTable struct {
	mu     sync.Mutex
	claims map[model.Fingerprint]*claim
}

type claim struct {
	done   chan struct{}
	placed bool // written once, before done is closed
}

func newClaimTable() *claimTable {
	return &claimTable{claims: make(map[model.Fingerprint]*claim)}
}

// acquire returns the claim for fp and whether the caller now owns it.
// A non-owner must wait on c.done and then read c.placed.
func (t *claimTable) acquire(fp model.Fingerprint) (*claim, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.claims[fp]; ok {
		return c, false
	}
	c := &claim{done: make(chan struct{})}
	t.claims[fp] = c
	return c, true
}

// release publishes the owner's outcome. A failed claim is forgotten so a
// waiter can take over the fingerprint with its own copy of the file.
func (t *claimTable) release(fp model.Fingerprint, c *claim, placed bool) {
	t.mu.Lock()
	c.placed = placed
	if !placed {
		delete(t.claims, fp)
	}
	t.mu.Unlock()
	close(c.done)
}
