package api

import (
	"net/http"
	"time"

	"github.com/cuemby/cascade/pkg/apierr"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
)

type dispatchTaskRequest struct {
	TaskID string `json:"task_id,omitempty"`
}

// handleDispatchTask implements POST /cascade/dispatch-task:
// manual fire of execute_dispatch, for an optional single task.
func (s *Server) handleDispatchTask(w http.ResponseWriter, r *http.Request) {
	var req dispatchTaskRequest
	if r.ContentLength > 0 {
		if apiErr := decodeJSON(r, &req); apiErr != nil {
			apierr.WriteError(w, apiErr)
			return
		}
	}

	allocs, err := s.dispatcher.ExecuteDispatch(req.TaskID)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, allocs)
}

// handleListAllocations implements GET
// /cascade/allocations: filtered list ordered by dispatched_at DESC.
func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AllocationFilter{
		TaskID:        q.Get("task_id"),
		NodeID:        q.Get("node_id"),
		Status:        types.AllocationStatus(q.Get("status")),
		ScheduleRunID: q.Get("schedule_run_id"),
	}
	allocs, err := s.store.ListAllocations(filter)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, allocs)
}

// handlePendingAllocations implements GET
// /cascade/pending-allocations: the aggregate counters block.
func (s *Server) handlePendingAllocations(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, stats)
}

func (s *Server) handleStartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Start(); err != nil {
		apierr.WriteError(w, apierr.Internal(err))
		return
	}
	apierr.WriteOK(w, nil)
}

func (s *Server) handleStopScheduler(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Stop()
	apierr.WriteOK(w, nil)
}

func (s *Server) handleReloadScheduler(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Reload(); err != nil {
		apierr.WriteError(w, apierr.Internal(err))
		return
	}
	apierr.WriteOK(w, nil)
}

// feedStatusView is one row of the per-feed freshness view: the
// latest allocation (if any) that included this feed, alongside the
// feed's catalog row.
type feedStatusView struct {
	Feed              *types.Feed `json:"feed"`
	LastAllocationID  string      `json:"last_allocation_id,omitempty"`
	LastStatus        string      `json:"last_status,omitempty"`
	LastDispatchedAt  time.Time   `json:"last_dispatched_at,omitempty"`
	LastCompletedAt   time.Time   `json:"last_completed_at,omitempty"`
	LastArticleCount  int         `json:"last_article_count,omitempty"`
}

// handleFeedStatus implements GET /cascade/feed-status: per-feed
// freshness, derived by scanning allocations for the most recent one
// naming each feed. This is an operator convenience view, not a
// stored projection.
func (s *Server) handleFeedStatus(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.ListFeeds()
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	allocs, err := s.store.ListAllocations(storage.AllocationFilter{})
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	latest := make(map[string]*types.Allocation, len(feeds))
	for _, a := range allocs {
		for _, fid := range a.FeedIDs {
			if existing, ok := latest[fid]; !ok || a.DispatchedAt.After(existing.DispatchedAt) {
				latest[fid] = a
			}
		}
	}

	views := make([]feedStatusView, 0, len(feeds))
	for _, f := range feeds {
		v := feedStatusView{Feed: f}
		if a, ok := latest[f.ID]; ok {
			v.LastAllocationID = a.ID
			v.LastStatus = string(a.Status)
			v.LastDispatchedAt = a.DispatchedAt
			v.LastCompletedAt = a.CompletedAt
			v.LastArticleCount = a.ArticleCount
		}
		views = append(views, v)
	}
	apierr.WriteOK(w, views)
}

// handleListSyncLogs implements GET /cascade/sync-logs: at most 100
// rows of the SyncLog audit trail. There is no paging parameter.
func (s *Server) handleListSyncLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	logs, err := s.store.ListSyncLogs(limit)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, logs)
}
