package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/cascade/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateTask(t *testing.T, s *BoltStore, id string) {
	t.Helper()
	require.NoError(t, s.CreateTask(&types.Task{
		ID: id, Name: id, CronExpression: "* * * * *", Enabled: true,
	}))
}

func mustCreatePending(t *testing.T, s *BoltStore, taskID string, dispatchedAt time.Time) *types.Allocation {
	t.Helper()
	alloc := &types.Allocation{
		ID:            uuid.NewString(),
		TaskID:        taskID,
		Status:        types.AllocationPending,
		DispatchedAt:  dispatchedAt,
		ScheduleRunID: uuid.NewString(),
	}
	require.NoError(t, s.CreatePendingAllocation(alloc))
	return alloc
}

// TestClaimMutualExclusion checks that for K pending allocations
// claimed by W > K concurrent workers, exactly K calls succeed and
// every returned allocation id is distinct.
func TestClaimMutualExclusion(t *testing.T) {
	s := newTestStore(t)
	mustCreateTask(t, s, "t1")

	const pending = 10
	const workers = 50

	base := time.Now().UTC()
	for i := 0; i < pending; i++ {
		mustCreatePending(t, s, "t1", base.Add(time.Duration(i)*time.Millisecond))
	}

	results := make(chan *types.Allocation, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			alloc, err := s.ClaimAllocation(fmt.Sprintf("worker-%d", n))
			require.NoError(t, err)
			results <- alloc
		}(i)
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	claimedCount := 0
	for alloc := range results {
		if alloc == nil {
			continue
		}
		claimedCount++
		require.False(t, seen[alloc.ID], "allocation claimed twice: %s", alloc.ID)
		seen[alloc.ID] = true
	}
	require.Equal(t, pending, claimedCount)
}

// TestClaimFIFO checks that the earliest-dispatched pending row is
// claimed first.
func TestClaimFIFO(t *testing.T) {
	s := newTestStore(t)
	mustCreateTask(t, s, "t1")

	base := time.Now().UTC()
	a := mustCreatePending(t, s, "t1", base)
	b := mustCreatePending(t, s, "t1", base.Add(time.Second))

	first, err := s.ClaimAllocation("w1")
	require.NoError(t, err)
	require.Equal(t, a.ID, first.ID)

	second, err := s.ClaimAllocation("w2")
	require.NoError(t, err)
	require.Equal(t, b.ID, second.ID)

	third, err := s.ClaimAllocation("w3")
	require.NoError(t, err)
	require.Nil(t, third)
}

// TestClaimTaskMissingFailsAllocation checks that a deleted task at
// claim time fails the allocation instead of handing it to a worker.
func TestClaimTaskMissingFailsAllocation(t *testing.T) {
	s := newTestStore(t)
	mustCreateTask(t, s, "t1")
	alloc := mustCreatePending(t, s, "t1", time.Now().UTC())
	require.NoError(t, s.DeleteTask("t1"))

	got, err := s.ClaimAllocation("w1")
	require.NoError(t, err)
	require.Nil(t, got)

	stored, err := s.GetAllocation(alloc.ID)
	require.NoError(t, err)
	require.Equal(t, types.AllocationFailed, stored.Status)
	require.Equal(t, "task missing", stored.ErrorMessage)
}

// TestUpdateAllocationStatusEnforcesStateMachine checks the allowed
// status transitions and that completing an already-completed
// allocation is rejected with ErrConflict and leaves article_count
// unchanged.
func TestUpdateAllocationStatusEnforcesStateMachine(t *testing.T) {
	s := newTestStore(t)
	mustCreateTask(t, s, "t1")
	mustCreatePending(t, s, "t1", time.Now().UTC())

	alloc, err := s.ClaimAllocation("w1")
	require.NoError(t, err)
	require.NotNil(t, alloc)

	require.NoError(t, s.UpdateAllocationStatus(alloc.ID, types.AllocationExecuting, AllocationUpdate{}))

	count := 2
	require.NoError(t, s.UpdateAllocationStatus(alloc.ID, types.AllocationCompleted, AllocationUpdate{ArticleCount: &count}))

	err = s.UpdateAllocationStatus(alloc.ID, types.AllocationCompleted, AllocationUpdate{ArticleCount: &count})
	require.ErrorIs(t, err, ErrConflict)

	stored, err := s.GetAllocation(alloc.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.ArticleCount)
}

// TestReclaimStaleBoundary checks that after reclaiming with
// threshold T, no non-terminal row remains with dispatched_at < now-T.
func TestReclaimStaleBoundary(t *testing.T) {
	s := newTestStore(t)
	mustCreateTask(t, s, "t1")
	stale := mustCreatePending(t, s, "t1", time.Now().UTC().Add(-time.Hour))
	fresh := mustCreatePending(t, s, "t1", time.Now().UTC())

	n, err := s.ReclaimStale(30 * time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetAllocation(stale.ID)
	require.NoError(t, err)
	require.Equal(t, types.AllocationTimeout, got.Status)

	got, err = s.GetAllocation(fresh.ID)
	require.NoError(t, err)
	require.Equal(t, types.AllocationPending, got.Status)
}

func TestGetNodeByAccessKey(t *testing.T) {
	s := newTestStore(t)
	node := &types.Node{ID: uuid.NewString(), Kind: types.NodeKindWorker, AccessKey: "AK-abc"}
	require.NoError(t, s.CreateNode(node))

	got, err := s.GetNodeByAccessKey("AK-abc")
	require.NoError(t, err)
	require.Equal(t, node.ID, got.ID)

	_, err = s.GetNodeByAccessKey("AK-unknown")
	require.ErrorIs(t, err, ErrNotFound)
}
