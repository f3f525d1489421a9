package api

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// tenantLimiter applies a token bucket per tenant to the optimize endpoints.
// RATE_RPS and RATE_BURST tune it; a burst of parallel optimize calls from one
// tenant must not starve the others.
type tenantLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	return &tenantLimiter{rps: rate.Limit(rps), burst: burst, m: map[string]*rate.Limiter{}}
}

func newTenantLimiterFromEnv() *tenantLimiter {
	rps := 5.0
	if v := os.Getenv("RATE_RPS"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil && f > 0 {
			rps = f
		}
	}
	burst := 10
	if v := os.Getenv("RATE_BURST"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			burst = n
		}
	}
	return newTenantLimiter(rps, burst)
}

func (l *tenantLimiter) Allow(tenant string) bool {
	l.mu.Lock()
	lim := l.m[tenant]
	if lim == nil {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.m[tenant] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
