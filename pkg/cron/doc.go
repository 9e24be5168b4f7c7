// Package cron loads enabled tasks from storage, registers one
// robfig/cron entry per task's cron_expression, and fires the
// dispatcher on each tick.
//
// Registration eagerly binds the task id per entry: a closure over a
// loop variable would dispatch the last task on every firing.
// SkipIfStillRunning wraps every job so two
// firings of the same task never overlap; a fire that lands while a
// dispatch is still in flight is skipped, not queued.
package cron
