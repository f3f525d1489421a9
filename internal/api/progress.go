package api

import (
	"sync"

	"loadplan/internal/opt"
)

// ProgressCache stores the latest search progress per tenant/plan so the
// progress endpoint answers without touching the optimizer goroutine.
type ProgressCache struct {
	mu sync.Mutex
	// key: tenant|planId
	m map[string]opt.Progress
}

// NewProgressCache constructs a ProgressCache.
func NewProgressCache() *ProgressCache { return &ProgressCache{m: map[string]opt.Progress{}} }

func (c *ProgressCache) key(tenant, planID string) string {
	return tenant + "|" + planID
}

// Upsert stores or updates the latest progress snapshot for a plan.
func (c *ProgressCache) Upsert(tenant, planID string, p opt.Progress) {
	if tenant == "" || planID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(tenant, planID)] = p
}

// Latest returns the most recent progress snapshot for a plan.
func (c *ProgressCache) Latest(tenant, planID string) (opt.Progress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[c.key(tenant, planID)]
	return p, ok
}

// Drop removes a plan's snapshot once the run reaches a terminal state.
func (c *ProgressCache) Drop(tenant, planID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, c.key(tenant, planID))
}
