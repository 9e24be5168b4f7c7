package metrics

import (
	"time"

	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
)

// Collector periodically snapshots gauge metrics from the Store
// (node counts by kind/status and allocation counts by status), since
// those are cheap full-bucket scans best amortized on a timer rather
// than recomputed per-request.
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over the given store.
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s ticker.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectAllocationMetrics()
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.store.ListNodes("")
	if err != nil {
		return
	}

	counts := make(map[string]map[string]int)
	online := 0
	for _, node := range nodes {
		kind := string(node.Kind)
		status := statusLabel(node.ReportedStatus)
		if counts[kind] == nil {
			counts[kind] = make(map[string]int)
		}
		counts[kind][status]++
		if node.Kind == types.NodeKindWorker && isOnline(node) {
			online++
		}
	}

	for kind, statuses := range counts {
		for status, count := range statuses {
			NodesTotal.WithLabelValues(kind, status).Set(float64(count))
		}
	}
	NodesOnline.Set(float64(online))
}

func (c *Collector) collectAllocationMetrics() {
	allocs, err := c.store.ListAllocations(storage.AllocationFilter{})
	if err != nil {
		return
	}

	counts := make(map[types.AllocationStatus]int)
	for _, a := range allocs {
		counts[a.Status]++
	}
	for _, status := range []types.AllocationStatus{
		types.AllocationPending, types.AllocationClaimed, types.AllocationExecuting,
		types.AllocationCompleted, types.AllocationFailed, types.AllocationTimeout,
	} {
		AllocationsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func statusLabel(s types.NodeStatus) string {
	switch s {
	case types.NodeStatusOnline:
		return "online"
	case types.NodeStatusDisabled:
		return "disabled"
	default:
		return "offline"
	}
}

func isOnline(n *types.Node) bool {
	const heartbeatWindow = 180 * time.Second
	return n.Active && n.ReportedStatus == types.NodeStatusOnline &&
		time.Since(n.LastHeartbeatAt) <= heartbeatWindow
}
