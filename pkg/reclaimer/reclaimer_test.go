package reclaimer

import (
	"testing"
	"time"

	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustTask(t *testing.T, s *storage.BoltStore) {
	t.Helper()
	require.NoError(t, s.CreateTask(&types.Task{ID: "t1", Name: "t1", Enabled: true, FeedIDs: []string{"f1"}}))
}

func mustPendingAllocation(t *testing.T, s *storage.BoltStore, id string, dispatchedAt time.Time) *types.Allocation {
	t.Helper()
	alloc := &types.Allocation{
		ID: id, TaskID: "t1", Status: types.AllocationPending,
		DispatchedAt: dispatchedAt, ScheduleRunID: "run-1",
	}
	require.NoError(t, s.CreatePendingAllocation(alloc))
	return alloc
}

func TestReclaimLeavesFreshAllocationsAlone(t *testing.T) {
	s := newTestStore(t)
	r := New(s).WithThreshold(30 * time.Minute)

	mustPendingAllocation(t, s, "a1", time.Now().UTC())

	n, err := r.Reclaim()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	alloc, err := s.GetAllocation("a1")
	require.NoError(t, err)
	require.Equal(t, types.AllocationPending, alloc.Status)
}

func TestReclaimTimesOutStaleNonTerminalAllocations(t *testing.T) {
	s := newTestStore(t)
	r := New(s).WithThreshold(time.Minute)
	mustTask(t, s)

	mustPendingAllocation(t, s, "stale-pending", time.Now().UTC().Add(-time.Hour))
	mustPendingAllocation(t, s, "stale-claimed", time.Now().UTC().Add(-time.Hour))
	// claim whichever of the two pending rows sorts first; either way
	// both should come back reclaimed below since both are stale.
	_, err := s.ClaimAllocation("node-1")
	require.NoError(t, err)

	n, err := r.Reclaim()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, id := range []string{"stale-pending", "stale-claimed"} {
		alloc, err := s.GetAllocation(id)
		require.NoError(t, err)
		require.Equal(t, types.AllocationTimeout, alloc.Status)
	}
}

func TestReclaimIgnoresTerminalAllocations(t *testing.T) {
	s := newTestStore(t)
	r := New(s).WithThreshold(time.Minute)
	mustTask(t, s)

	mustPendingAllocation(t, s, "a1", time.Now().UTC().Add(-time.Hour))
	claimed, err := s.ClaimAllocation("node-1")
	require.NoError(t, err)
	require.NoError(t, s.UpdateAllocationStatus(claimed.ID, types.AllocationExecuting, storage.AllocationUpdate{}))
	count := 3
	require.NoError(t, s.UpdateAllocationStatus(claimed.ID, types.AllocationCompleted, storage.AllocationUpdate{ArticleCount: &count}))

	n, err := r.Reclaim()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	alloc, err := s.GetAllocation(claimed.ID)
	require.NoError(t, err)
	require.Equal(t, types.AllocationCompleted, alloc.Status)
}

func TestWithThresholdAndIntervalAreChainable(t *testing.T) {
	s := newTestStore(t)
	r := New(s).WithThreshold(5 * time.Minute).WithInterval(10 * time.Second)
	require.Equal(t, 5*time.Minute, r.threshold)
	require.Equal(t, 10*time.Second, r.interval)
}

func TestStartStopDoesNotPanic(t *testing.T) {
	s := newTestStore(t)
	r := New(s).WithInterval(10 * time.Millisecond)
	r.Start()
	time.Sleep(25 * time.Millisecond)
	r.Stop()
}
