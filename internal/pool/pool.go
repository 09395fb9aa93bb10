// Package pool remembers which upstream pool is serving and reports switches.
package pool

import "github.com/atikulmunna/loomwatch/internal/model"

// Tracker holds the last non-empty pool seen. The zero value is ready to use.
type Tracker struct {
	current string
}

func New() *Tracker { return &Tracker{} }

// Observe records a pool seen on a request. It returns a Failover when a
// known pool is replaced by a different non-empty one. The first pool seen
// is stored silently; empty pools are ignored.
func (t *Tracker) Observe(pool string) (model.Failover, bool) {
	if pool == "" {
		return model.Failover{}, false
	}
	prev := t.current
	t.current = pool
	if prev == "" || prev == pool {
		return model.Failover{}, false
	}
	return model.Failover{From: prev, To: pool}, true
}

// Current returns the last observed pool, or "" before any was seen.
func (t *Tracker) Current() string { return t.current }
