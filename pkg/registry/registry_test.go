package registry

import (
	"testing"
	"time"

	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestClassifyHeartbeatWindow checks the online/offline boundary at
// the heartbeat staleness threshold.
func TestClassifyHeartbeatWindow(t *testing.T) {
	cases := []struct {
		name   string
		node   types.Node
		online bool
	}{
		{"fresh heartbeat", types.Node{Active: true, ReportedStatus: types.NodeStatusOnline, LastHeartbeatAt: time.Now()}, true},
		{"stale heartbeat", types.Node{Active: true, ReportedStatus: types.NodeStatusOnline, LastHeartbeatAt: time.Now().Add(-200 * time.Second)}, false},
		{"inactive", types.Node{Active: false, ReportedStatus: types.NodeStatusOnline, LastHeartbeatAt: time.Now()}, false},
		{"never reported online", types.Node{Active: true, ReportedStatus: types.NodeStatusOffline, LastHeartbeatAt: time.Now()}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(&c.node) == types.NodeStatusOnline
			require.Equal(t, c.online, got)
		})
	}
}

func TestUpdateHeartbeatNeverWritesOffline(t *testing.T) {
	s := newTestStore(t)
	r := New(s)

	node, err := r.CreateNode(types.NodeKindWorker, "w1", "")
	require.NoError(t, err)
	require.Equal(t, types.NodeStatusOffline, node.ReportedStatus)

	updated, err := r.UpdateHeartbeat(node.ID)
	require.NoError(t, err)
	require.Equal(t, types.NodeStatusOnline, updated.ReportedStatus)
}

func TestRefreshStatusesComputesCapacity(t *testing.T) {
	s := newTestStore(t)
	r := New(s)

	node, err := r.CreateNode(types.NodeKindWorker, "w1", "")
	require.NoError(t, err)
	node.SyncConfig.MaxCapacity = 5
	require.NoError(t, s.UpdateNode(node))
	_, err = r.UpdateHeartbeat(node.ID)
	require.NoError(t, err)

	require.NoError(t, s.CreateTask(&types.Task{ID: "t1", Enabled: true}))
	nodeID := node.ID
	require.NoError(t, s.CreatePendingAllocation(&types.Allocation{
		ID: "a1", TaskID: "t1", Status: types.AllocationClaimed, NodeID: &nodeID, DispatchedAt: time.Now(),
	}))

	views, online, err := r.RefreshStatuses()
	require.NoError(t, err)
	require.Equal(t, 1, online)
	require.Len(t, views, 1)
	require.Equal(t, 1, views[0].CurrentTasks)
	require.Equal(t, 4, views[0].AvailableCapacity)
}
