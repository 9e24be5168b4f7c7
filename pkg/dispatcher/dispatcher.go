// Package dispatcher materializes one pending allocation per task
// instance.
package dispatcher

import (
	"fmt"
	"time"

	"github.com/cuemby/cascade/pkg/metrics"
	"github.com/cuemby/cascade/pkg/reclaimer"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher turns enabled tasks into pending allocations.
type Dispatcher struct {
	store     storage.Store
	reclaimer *reclaimer.Reclaimer
	logger    zerolog.Logger
}

// New builds a Dispatcher over the given store, logging with the
// provided logger and invoking the given Reclaimer after each
// ExecuteDispatch.
func New(s storage.Store, r *reclaimer.Reclaimer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: s, reclaimer: r, logger: logger}
}

// DispatchTask reads a task's feed list and creates exactly one
// pending allocation snapshotting the task and its feeds. A disabled
// task or one with no feeds produces no row and is not an error.
func (d *Dispatcher) DispatchTask(task *types.Task, scheduleRunID string) (*types.Allocation, error) {
	if !task.Enabled || len(task.FeedIDs) == 0 {
		return nil, nil
	}

	alloc := &types.Allocation{
		ID:               uuid.NewString(),
		TaskID:           task.ID,
		TaskNameSnapshot: task.Name,
		CronSnapshot:     task.CronExpression,
		FeedIDs:          append([]string(nil), task.FeedIDs...),
		Status:           types.AllocationPending,
		DispatchedAt:     time.Now().UTC(),
		ScheduleRunID:    scheduleRunID,
	}
	if err := d.store.CreatePendingAllocation(alloc); err != nil {
		return nil, fmt.Errorf("dispatch task %s: %w", task.ID, err)
	}
	d.logger.Info().Str("task_id", task.ID).Str("allocation_id", alloc.ID).
		Str("schedule_run_id", scheduleRunID).Msg("dispatched allocation")
	return alloc, nil
}

// ExecuteDispatch fires dispatch_task for every enabled task (or a
// single task if taskID is non-empty), tagging every allocation from
// this firing with one fresh schedule_run_id, then invokes the
// Reclaimer. Tasks are processed in id order (ListTasks sorts by id).
func (d *Dispatcher) ExecuteDispatch(taskID string) ([]*types.Allocation, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchDuration)
	metrics.DispatchCyclesTotal.Inc()

	var tasks []*types.Task
	if taskID != "" {
		t, err := d.store.GetTask(taskID)
		if err != nil {
			return nil, fmt.Errorf("execute dispatch: %w", err)
		}
		tasks = []*types.Task{t}
	} else {
		var err error
		tasks, err = d.store.ListEnabledTasks()
		if err != nil {
			return nil, fmt.Errorf("execute dispatch: %w", err)
		}
	}

	scheduleRunID := uuid.NewString()
	var created []*types.Allocation
	for _, t := range tasks {
		alloc, err := d.DispatchTask(t, scheduleRunID)
		if err != nil {
			d.logger.Error().Err(err).Str("task_id", t.ID).Msg("dispatch failed")
			continue
		}
		if alloc != nil {
			created = append(created, alloc)
		}
	}
	metrics.AllocationsDispatchedTotal.Add(float64(len(created)))

	if d.reclaimer != nil {
		if n, err := d.reclaimer.Reclaim(); err != nil {
			d.logger.Error().Err(err).Msg("reclaim after dispatch failed")
		} else if n > 0 {
			d.logger.Info().Int("count", n).Msg("reclaimed stale allocations")
		}
	}

	return created, nil
}
