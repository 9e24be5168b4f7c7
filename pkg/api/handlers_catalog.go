package api

import (
	"net/http"
	"time"

	"github.com/cuemby/cascade/pkg/apierr"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type createFeedRequest struct {
	FakerID string `json:"faker_id,omitempty"`
	MPName  string `json:"mp_name"`
	MPCover string `json:"mp_cover,omitempty"`
	MPIntro string `json:"mp_intro,omitempty"`
}

// handleCreateFeed implements the catalog surface backing the Feed
// type: operators register feeds out of band, then attach them to
// tasks by id.
func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.MPName == "" {
		apierr.WriteError(w, apierr.Validation("mp_name is required"))
		return
	}

	feed := &types.Feed{
		ID:      uuid.NewString(),
		FakerID: req.FakerID,
		MPName:  req.MPName,
		MPCover: req.MPCover,
		MPIntro: req.MPIntro,
		Status:  types.FeedStatusActive,
	}
	if err := s.store.CreateFeed(feed); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteCreated(w, feed)
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.ListFeeds()
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, feeds)
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	feed, err := s.store.GetFeed(id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, feed)
}

type updateFeedRequest struct {
	MPName  *string           `json:"mp_name,omitempty"`
	MPCover *string           `json:"mp_cover,omitempty"`
	MPIntro *string           `json:"mp_intro,omitempty"`
	Status  *types.FeedStatus `json:"status,omitempty"`
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	feed, err := s.store.GetFeed(id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	var req updateFeedRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.MPName != nil {
		feed.MPName = *req.MPName
	}
	if req.MPCover != nil {
		feed.MPCover = *req.MPCover
	}
	if req.MPIntro != nil {
		feed.MPIntro = *req.MPIntro
	}
	if req.Status != nil {
		feed.Status = *req.Status
	}

	if err := s.store.UpdateFeed(feed); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, feed)
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetFeed(id); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if err := s.store.DeleteFeed(id); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, nil)
}

type createTaskRequest struct {
	Name            string   `json:"name"`
	CronExpression  string   `json:"cron_expression"`
	MessageType     string   `json:"message_type,omitempty"`
	MessageTemplate string   `json:"message_template,omitempty"`
	WebHookURL      string   `json:"web_hook_url,omitempty"`
	Headers         string   `json:"headers,omitempty"`
	Cookies         string   `json:"cookies,omitempty"`
	FeedIDs         []string `json:"feed_ids,omitempty"`
	Enabled         bool     `json:"enabled"`
}

// handleCreateTask implements the catalog surface backing the Task
// type. Creating a task does not touch the scheduler; operators call
// reload-scheduler to pick it up.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.Name == "" || req.CronExpression == "" {
		apierr.WriteError(w, apierr.Validation("name and cron_expression are required"))
		return
	}

	now := time.Now().UTC()
	task := &types.Task{
		ID:              uuid.NewString(),
		Name:            req.Name,
		CronExpression:  req.CronExpression,
		MessageType:     req.MessageType,
		MessageTemplate: req.MessageTemplate,
		WebHookURL:      req.WebHookURL,
		Headers:         req.Headers,
		Cookies:         req.Cookies,
		FeedIDs:         req.FeedIDs,
		Enabled:         req.Enabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateTask(task); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteCreated(w, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks()
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.store.GetTask(id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, task)
}

type updateTaskRequest struct {
	Name            *string  `json:"name,omitempty"`
	CronExpression  *string  `json:"cron_expression,omitempty"`
	MessageType     *string  `json:"message_type,omitempty"`
	MessageTemplate *string  `json:"message_template,omitempty"`
	WebHookURL      *string  `json:"web_hook_url,omitempty"`
	Headers         *string  `json:"headers,omitempty"`
	Cookies         *string  `json:"cookies,omitempty"`
	FeedIDs         []string `json:"feed_ids,omitempty"`
	Enabled         *bool    `json:"enabled,omitempty"`
}

// handleUpdateTask implements PUT /cascade/tasks/{id}. A new
// cron_expression, or enabling a task that was disabled when the
// scheduler last loaded, takes effect only after reload-scheduler is
// called. Disabling takes effect at the task's next firing, since
// dispatch reads task state fresh from storage and skips disabled tasks.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.store.GetTask(id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	var req updateTaskRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.CronExpression != nil {
		task.CronExpression = *req.CronExpression
	}
	if req.MessageType != nil {
		task.MessageType = *req.MessageType
	}
	if req.MessageTemplate != nil {
		task.MessageTemplate = *req.MessageTemplate
	}
	if req.WebHookURL != nil {
		task.WebHookURL = *req.WebHookURL
	}
	if req.Headers != nil {
		task.Headers = *req.Headers
	}
	if req.Cookies != nil {
		task.Cookies = *req.Cookies
	}
	if req.FeedIDs != nil {
		task.FeedIDs = req.FeedIDs
	}
	if req.Enabled != nil {
		task.Enabled = *req.Enabled
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateTask(task); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetTask(id); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if err := s.store.DeleteTask(id); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, nil)
}
