/*
Package metrics provides Prometheus metrics collection and exposition
for cascade.

The metrics package defines and registers cascade's metrics using the
Prometheus client library: node liveness, allocation counts by status,
claim latency, dispatch/reclaim cycle timing, and API request counts.
Metrics are exposed over HTTP for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  Prometheus Registry              Metric Categories       │
	│  - MustRegister at package init   - Nodes: count by kind/  │
	│                                      status, online gauge │
	│                                    - Allocations: count by │
	│                                      status, claim latency │
	│                                    - Dispatch/Reclaim:     │
	│                                      cycle duration, count │
	│                                    - API: request count,   │
	│                                      duration              │
	│                                                            │
	│  HTTP Metrics Endpoint                                    │
	│  - Path: /metrics                                         │
	│  - Handler: promhttp.Handler()                            │
	└────────────────────────────────────────────────────────────┘

# Collector

Collector periodically snapshots gauge-style metrics (node and
allocation counts) from the Store on a timer, since those require a
full bucket scan; counters and histograms (claim latency, dispatch
duration) are incremented inline by the components that own them.

# Health

health.go exposes a separate, lightweight component-registry health
check (not Prometheus-based): HealthHandler, which pkg/api serves at
/healthz, and ReadyHandler, following
the same pattern as the rest of this package: package-level state
guarded by a mutex, read through small accessor functions.
*/
package metrics
