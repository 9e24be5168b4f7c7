// Package registry implements node creation, heartbeat bookkeeping,
// and liveness classification.
package registry

import (
	"fmt"
	"time"

	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/google/uuid"
)

// HeartbeatWindow is the staleness threshold past which a silent
// worker is classified offline.
const HeartbeatWindow = 180 * time.Second

// Registry tracks node registration and liveness over a Store.
type Registry struct {
	store storage.Store
}

// New builds a Registry over the given persistence layer.
func New(s storage.Store) *Registry {
	return &Registry{store: s}
}

// CreateNode inserts a node with a fresh ID. Workers start offline
// (reported_status=0) until their first successful heartbeat/claim.
func (r *Registry) CreateNode(kind types.NodeKind, name, apiURL string) (*types.Node, error) {
	now := time.Now().UTC()
	node := &types.Node{
		ID:             uuid.NewString(),
		Kind:           kind,
		DisplayName:    name,
		APIURL:         apiURL,
		ReportedStatus: types.NodeStatusOffline,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.CreateNode(node); err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	return node, nil
}

// UpdateHeartbeat marks a node reported_status=1 and refreshes
// last_heartbeat_at. It never writes reported_status=0; only Classify
// derives offline, on read.
func (r *Registry) UpdateHeartbeat(nodeID string) (*types.Node, error) {
	node, err := r.store.GetNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("update heartbeat: %w", err)
	}
	node.ReportedStatus = types.NodeStatusOnline
	node.LastHeartbeatAt = time.Now().UTC()
	node.UpdatedAt = node.LastHeartbeatAt
	if err := r.store.UpdateNode(node); err != nil {
		return nil, fmt.Errorf("update heartbeat: %w", err)
	}
	return node, nil
}

// Classify reports a node's derived liveness: online iff active, last
// reported online, and heartbeating within the window.
func Classify(node *types.Node) types.NodeStatus {
	if node.Active &&
		node.ReportedStatus == types.NodeStatusOnline &&
		time.Since(node.LastHeartbeatAt) <= HeartbeatWindow {
		return types.NodeStatusOnline
	}
	return types.NodeStatusOffline
}

// NodeView is a node enriched with its derived liveness and current
// claimed capacity, as returned by RefreshStatuses.
type NodeView struct {
	Node              *types.Node
	Online            bool
	CurrentTasks      int
	AvailableCapacity int
}

// RefreshStatuses loads every worker, derives its liveness and current
// task load, and computes available capacity from sync_config. It
// never mutates reported_status; classification is read-only.
func (r *Registry) RefreshStatuses() ([]NodeView, int, error) {
	nodes, err := r.store.ListNodes(types.NodeKindWorker)
	if err != nil {
		return nil, 0, fmt.Errorf("refresh statuses: %w", err)
	}

	inFlight := []types.AllocationStatus{
		types.AllocationPending, types.AllocationClaimed, types.AllocationExecuting,
	}

	views := make([]NodeView, 0, len(nodes))
	onlineCount := 0
	for _, n := range nodes {
		online := Classify(n) == types.NodeStatusOnline
		if online {
			onlineCount++
		}
		current, err := r.store.CountAllocationsByNode(n.ID, inFlight)
		if err != nil {
			return nil, 0, fmt.Errorf("refresh statuses: %w", err)
		}
		available := int(n.SyncConfig.MaxCapacity) - current
		if available < 0 {
			available = 0
		}
		views = append(views, NodeView{
			Node:              n,
			Online:            online,
			CurrentTasks:      current,
			AvailableCapacity: available,
		})
	}
	return views, onlineCount, nil
}
