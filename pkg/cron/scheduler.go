package cron

import (
	"fmt"
	"sync"

	"github.com/cuemby/cascade/pkg/dispatcher"
	"github.com/cuemby/cascade/pkg/log"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler owns the robfig/cron engine and keeps its registered
// entries in sync with the enabled tasks in storage.
type Scheduler struct {
	cron       *cron.Cron
	store      storage.Store
	dispatcher *dispatcher.Dispatcher
	logger     zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // task id -> registered entry
	running bool
}

// New builds a Scheduler. The cron engine accepts an optional leading
// seconds field and wraps every job with SkipIfStillRunning so a slow
// dispatch never overlaps with its own next firing.
func New(store storage.Store, d *dispatcher.Dispatcher) *Scheduler {
	logger := log.WithComponent("cron")
	engine := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{
		cron:       engine,
		store:      store,
		dispatcher: d,
		logger:     logger,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start loads every enabled task from storage, registers it, and
// begins firing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	tasks, err := s.store.ListTasks()
	if err != nil {
		return fmt.Errorf("cron: list tasks: %w", err)
	}
	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		if err := s.registerLocked(t.ID, t.CronExpression); err != nil {
			s.logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to register task")
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Int("tasks", len(s.entries)).Msg("cron scheduler started")
	return nil
}

// Stop clears every registered entry and halts the engine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.running = false
	s.logger.Info().Msg("cron scheduler stopped")
}

// Reload clears all registered jobs and reloads from storage, picking
// up new, removed, re-enabled, or disabled tasks and any
// cron_expression edits.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	wasRunning := s.running
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}

	tasks, err := s.store.ListTasks()
	if err != nil {
		return fmt.Errorf("cron: reload: list tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		if err := s.registerLocked(t.ID, t.CronExpression); err != nil {
			s.logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to register task on reload")
		}
	}
	s.logger.Info().Int("tasks", len(s.entries)).Msg("cron scheduler reloaded")
	return nil
}

// IsRunning reports whether the engine is currently firing entries.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// registerLocked adds one entry to the cron engine. The task id is
// captured eagerly in taskID below, never read from a shared loop
// variable inside the closure, since a late-bound capture would cause
// every entry to dispatch whichever task happened to be last
// registered.
func (s *Scheduler) registerLocked(taskID, expr string) error {
	id := taskID
	entryID, err := s.cron.AddFunc(expr, func() {
		s.fire(id)
	})
	if err != nil {
		return fmt.Errorf("cron: invalid expression %q for task %s: %w", expr, taskID, err)
	}
	s.entries[id] = entryID
	return nil
}

func (s *Scheduler) fire(taskID string) {
	logger := s.logger.With().Str("task_id", taskID).Logger()
	logger.Debug().Msg("cron fire")

	allocs, err := s.dispatcher.ExecuteDispatch(taskID)
	if err != nil {
		logger.Error().Err(err).Msg("dispatch failed")
		return
	}
	if len(allocs) > 0 {
		logger.Info().Int("allocations", len(allocs)).Msg("dispatched")
	}
}
