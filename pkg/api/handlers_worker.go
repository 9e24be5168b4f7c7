package api

import (
	"net/http"
	"time"

	"github.com/cuemby/cascade/pkg/apierr"
	"github.com/cuemby/cascade/pkg/events"
	"github.com/cuemby/cascade/pkg/metrics"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/google/uuid"
)

// handleHeartbeat implements POST /cascade/heartbeat. Verify already
// touched last_heartbeat_at during auth; this handler exists as an
// explicit liveness ping for workers that otherwise sit idle between
// claim cycles.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	node := nodeFromContext(r)
	updated, err := s.registry.UpdateHeartbeat(node.ID)
	if err != nil {
		metrics.WorkerHeartbeatsTotal.WithLabelValues("error").Inc()
		apierr.WriteError(w, err)
		return
	}
	metrics.WorkerHeartbeatsTotal.WithLabelValues("ok").Inc()
	apierr.WriteOK(w, updated)
}

// handleClaimTask implements POST /cascade/claim-task: the
// atomic claim, enriched into a task package. 200 with empty data is
// returned when there is no pending work.
func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	node := nodeFromContext(r)
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ClaimLatency)

	alloc, err := s.store.ClaimAllocation(node.ID)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	if alloc == nil {
		metrics.ClaimEmptyTotal.Inc()
		apierr.WriteOK(w, nil)
		return
	}

	syncLog := &types.SyncLog{
		ID: uuid.NewString(), NodeID: node.ID, Operation: "claim-task",
		Direction: types.SyncDirectionPull, Status: types.SyncStatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	_ = s.store.CreateSyncLog(syncLog)

	task, err := s.store.GetTask(alloc.TaskID)
	if err != nil {
		// The store's own ClaimAllocation fails the row with "task
		// missing" when the task is already gone at claim time. A task
		// that vanishes between that check and this read is only
		// recorded in the sync log: the allocation stays claimed until
		// the reclaimer times it out.
		syncLog.Status = types.SyncStatusError
		syncLog.ErrorMessage = "task missing"
		syncLog.CompletedAt = time.Now().UTC()
		_ = s.store.UpdateSyncLog(syncLog)
		apierr.WriteOK(w, nil)
		return
	}

	feeds, err := s.store.GetFeeds(alloc.FeedIDs)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	active := make([]types.Feed, 0, len(feeds))
	for _, f := range feeds {
		if f.Status == types.FeedStatusActive {
			active = append(active, *f)
		}
	}

	pkg := types.TaskPackage{
		AllocationID:    alloc.ID,
		TaskID:          task.ID,
		TaskName:        task.Name,
		MessageType:     task.MessageType,
		MessageTemplate: task.MessageTemplate,
		WebHookURL:      task.WebHookURL,
		CronExp:         task.CronExpression,
		Headers:         task.Headers,
		Cookies:         task.Cookies,
		Feeds:           active,
		DispatchedAt:    alloc.DispatchedAt,
	}

	syncLog.Status = types.SyncStatusOK
	syncLog.DataCount = len(active)
	syncLog.CompletedAt = time.Now().UTC()
	_ = s.store.UpdateSyncLog(syncLog)

	s.broker.PublishAllocation(events.EventAllocationClaimed, alloc.ID, alloc.TaskID, map[string]string{"node_id": node.ID})
	apierr.WriteOK(w, pkg)
}

type taskStatusRequest struct {
	AllocationID string `json:"allocation_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// handleTaskStatus implements PUT /cascade/task-status: the
// worker-driven status transitions (executing, failed). completed is
// only ever set via report-completion, which alone owns article_count.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	node := nodeFromContext(r)
	var req taskStatusRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.AllocationID == "" || req.Status == "" {
		apierr.WriteError(w, apierr.Validation("allocation_id and status are required"))
		return
	}
	if req.Status != string(types.AllocationExecuting) && req.Status != string(types.AllocationFailed) {
		apierr.WriteError(w, apierr.Validation("status must be executing or failed"))
		return
	}

	alloc, err := s.requireOwnedAllocation(w, req.AllocationID, node)
	if err != nil {
		return
	}

	newStatus := types.AllocationStatus(req.Status)
	upd := storage.AllocationUpdate{}
	if req.ErrorMessage != "" {
		upd.ErrorMessage = &req.ErrorMessage
	}
	if err := s.store.UpdateAllocationStatus(alloc.ID, newStatus, upd); err != nil {
		apierr.WriteError(w, err)
		return
	}

	var evt events.EventType
	switch newStatus {
	case types.AllocationExecuting:
		evt = events.EventAllocationExecuting
	case types.AllocationFailed:
		evt = events.EventAllocationFailed
		metrics.WorkerTasksExecutedTotal.WithLabelValues("failed").Inc()
	default:
		evt = events.EventAllocationExecuting
	}
	s.broker.PublishAllocation(evt, alloc.ID, alloc.TaskID, map[string]string{"node_id": node.ID})
	apierr.WriteOK(w, nil)
}

type uploadArticlesRequest struct {
	AllocationID string          `json:"allocation_id"`
	Articles     []types.Article `json:"articles"`
}

// handleUploadArticles implements POST /cascade/upload-articles.
// Uploads only ever update new_article_count; article_count is owned
// exclusively by report-completion.
func (s *Server) handleUploadArticles(w http.ResponseWriter, r *http.Request) {
	node := nodeFromContext(r)
	var req uploadArticlesRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.AllocationID == "" {
		apierr.WriteError(w, apierr.Validation("allocation_id is required"))
		return
	}

	alloc, err := s.requireOwnedAllocation(w, req.AllocationID, node)
	if err != nil {
		return
	}

	syncLog := &types.SyncLog{
		ID: uuid.NewString(), NodeID: node.ID, Operation: "upload-articles",
		Direction: types.SyncDirectionPush, Status: types.SyncStatusInProgress,
		DataCount: len(req.Articles), StartedAt: time.Now().UTC(),
	}
	_ = s.store.CreateSyncLog(syncLog)

	if err := s.store.AddNewArticleCount(alloc.ID, len(req.Articles)); err != nil {
		syncLog.Status = types.SyncStatusError
		syncLog.ErrorMessage = err.Error()
		syncLog.CompletedAt = time.Now().UTC()
		_ = s.store.UpdateSyncLog(syncLog)
		apierr.WriteError(w, err)
		return
	}

	syncLog.Status = types.SyncStatusOK
	syncLog.CompletedAt = time.Now().UTC()
	_ = s.store.UpdateSyncLog(syncLog)
	apierr.WriteOK(w, nil)
}

type reportCompletionRequest struct {
	AllocationID string             `json:"allocation_id"`
	TaskID       string             `json:"task_id"`
	Results      []types.FeedResult `json:"results"`
	ArticleCount int                `json:"article_count"`
}

// handleReportCompletion implements POST /cascade/report-completion:
// the terminal transition, to completed when every feed result reports
// success and to failed otherwise. article_count is set only here.
// Calling this twice for the same allocation is rejected by the
// state-machine guard, making completion idempotent.
func (s *Server) handleReportCompletion(w http.ResponseWriter, r *http.Request) {
	node := nodeFromContext(r)
	var req reportCompletionRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.AllocationID == "" {
		apierr.WriteError(w, apierr.Validation("allocation_id is required"))
		return
	}

	alloc, err := s.requireOwnedAllocation(w, req.AllocationID, node)
	if err != nil {
		return
	}

	status := types.AllocationCompleted
	for _, res := range req.Results {
		if res.Status != "success" {
			status = types.AllocationFailed
			break
		}
	}

	count := req.ArticleCount
	upd := storage.AllocationUpdate{
		ResultSummary: req.Results,
		ArticleCount:  &count,
	}
	if err := s.store.UpdateAllocationStatus(alloc.ID, status, upd); err != nil {
		apierr.WriteError(w, err)
		return
	}

	evt := events.EventAllocationCompleted
	outcome := "completed"
	if status == types.AllocationFailed {
		evt = events.EventAllocationFailed
		outcome = "failed"
	}
	metrics.WorkerTasksExecutedTotal.WithLabelValues(outcome).Inc()
	s.broker.PublishAllocation(evt, alloc.ID, alloc.TaskID, map[string]string{"node_id": node.ID})
	apierr.WriteOK(w, nil)
}

// requireOwnedAllocation loads an allocation and rejects the request
// (writing the response itself) if it does not exist or is not bound
// to the calling node: a worker must never act on another node's
// allocation_id.
func (s *Server) requireOwnedAllocation(w http.ResponseWriter, id string, node *types.Node) (*types.Allocation, error) {
	alloc, err := s.store.GetAllocation(id)
	if err != nil {
		apierr.WriteError(w, err)
		return nil, err
	}
	if alloc.NodeID == nil || *alloc.NodeID != node.ID {
		apierr.WriteError(w, apierr.NotFound("allocation"))
		return nil, storage.ErrNotFound
	}
	return alloc, nil
}
