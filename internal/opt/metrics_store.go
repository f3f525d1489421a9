package opt

import "sync"

type metricsKey struct {
	Tenant string
	PlanID string
}

var (
	mu           sync.Mutex
	metricsStore = map[metricsKey]Metrics{}
)

// RecordMetrics keeps the metrics of a finished genetic run for later
// inspection through the admin surface.
func RecordMetrics(tenant, planID string, m Metrics) {
	mu.Lock()
	metricsStore[metricsKey{Tenant: tenant, PlanID: planID}] = m
	mu.Unlock()
}

// GetMetrics returns recorded run metrics for a tenant, keyed by plan id.
func GetMetrics(tenant string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range metricsStore {
		if k.Tenant == tenant {
			out[k.PlanID] = v
		}
	}
	return out
}
