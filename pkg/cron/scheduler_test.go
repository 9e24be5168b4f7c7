package cron

import (
	"testing"
	"time"

	"github.com/cuemby/cascade/pkg/dispatcher"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, *storage.BoltStore) {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	d := dispatcher.New(s, nil, zerolog.Nop())
	return New(s, d), s
}

func mustCreateTask(t *testing.T, s *storage.BoltStore, id, expr string) {
	t.Helper()
	require.NoError(t, s.CreateTask(&types.Task{
		ID: id, Name: id, CronExpression: expr, Enabled: true,
		FeedIDs: []string{"f1"},
	}))
}

func TestStartRegistersEnabledTasksOnly(t *testing.T) {
	sch, s := newTestScheduler(t)
	mustCreateTask(t, s, "t1", "* * * * * *")
	require.NoError(t, s.CreateTask(&types.Task{ID: "t2", Name: "t2", CronExpression: "* * * * * *", Enabled: false}))

	require.NoError(t, sch.Start())
	defer sch.Stop()

	sch.mu.Lock()
	defer sch.mu.Unlock()
	require.Len(t, sch.entries, 1)
	_, ok := sch.entries["t1"]
	require.True(t, ok)
}

func TestEagerTaskIDBindingDispatchesCorrectTask(t *testing.T) {
	sch, s := newTestScheduler(t)
	mustCreateTask(t, s, "alpha", "* * * * * *")
	mustCreateTask(t, s, "beta", "* * * * * *")
	mustCreateTask(t, s, "gamma", "* * * * * *")

	require.NoError(t, sch.Start())
	defer sch.Stop()

	time.Sleep(1200 * time.Millisecond)

	allocs, err := s.ListAllocations(storage.AllocationFilter{})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, a := range allocs {
		seen[a.TaskID] = true
	}
	// every registered task must have fired at least once; a
	// late-bound closure bug would have collapsed all firings onto
	// whichever task id was registered last.
	require.True(t, seen["alpha"])
	require.True(t, seen["beta"])
	require.True(t, seen["gamma"])
}

func TestStopClearsEntries(t *testing.T) {
	sch, s := newTestScheduler(t)
	mustCreateTask(t, s, "t1", "* * * * * *")

	require.NoError(t, sch.Start())
	sch.Stop()

	sch.mu.Lock()
	defer sch.mu.Unlock()
	require.Empty(t, sch.entries)
	require.False(t, sch.running)
}

func TestReloadPicksUpNewAndDisabledTasks(t *testing.T) {
	sch, s := newTestScheduler(t)
	mustCreateTask(t, s, "t1", "* * * * * *")
	require.NoError(t, sch.Start())
	defer sch.Stop()

	mustCreateTask(t, s, "t2", "* * * * * *")
	task1, err := s.GetTask("t1")
	require.NoError(t, err)
	task1.Enabled = false
	require.NoError(t, s.UpdateTask(task1))

	require.NoError(t, sch.Reload())

	sch.mu.Lock()
	defer sch.mu.Unlock()
	_, hasT1 := sch.entries["t1"]
	_, hasT2 := sch.entries["t2"]
	require.False(t, hasT1)
	require.True(t, hasT2)
}

func TestReloadNoopWhenNotRunning(t *testing.T) {
	sch, s := newTestScheduler(t)
	mustCreateTask(t, s, "t1", "* * * * * *")
	require.NoError(t, sch.Reload())

	sch.mu.Lock()
	defer sch.mu.Unlock()
	require.Empty(t, sch.entries)
}
