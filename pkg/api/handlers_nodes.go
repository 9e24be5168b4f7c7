package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/cuemby/cascade/pkg/apierr"
	"github.com/cuemby/cascade/pkg/events"
	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/gorilla/mux"
)

type createNodeRequest struct {
	Kind        types.NodeKind `json:"kind"`
	DisplayName string         `json:"display_name"`
	APIURL      string         `json:"api_url,omitempty"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.DisplayName == "" {
		apierr.WriteError(w, apierr.Validation("display_name is required"))
		return
	}
	if req.Kind != types.NodeKindCoordinator && req.Kind != types.NodeKindWorker {
		apierr.WriteError(w, apierr.Validation("kind must be coordinator or worker"))
		return
	}

	node, err := s.registry.CreateNode(req.Kind, req.DisplayName, req.APIURL)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	s.broker.PublishNode(events.EventNodeRegistered, node.ID)
	apierr.WriteCreated(w, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	kind := types.NodeKind(r.URL.Query().Get("kind"))
	nodes, err := s.store.ListNodes(kind)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, nodes)
}

type updateNodeRequest struct {
	DisplayName *string           `json:"display_name,omitempty"`
	APIURL      *string           `json:"api_url,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	SyncConfig  *types.SyncConfig `json:"sync_config,omitempty"`
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	node, err := s.store.GetNode(id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	var req updateNodeRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		apierr.WriteError(w, apiErr)
		return
	}
	if req.DisplayName != nil {
		node.DisplayName = *req.DisplayName
	}
	if req.APIURL != nil {
		node.APIURL = *req.APIURL
	}
	if req.Active != nil {
		node.Active = *req.Active
	}
	if req.SyncConfig != nil {
		node.SyncConfig = *req.SyncConfig
	}
	node.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateNode(node); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetNode(id); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if err := s.store.DeleteNode(id); err != nil {
		apierr.WriteError(w, err)
		return
	}
	apierr.WriteOK(w, nil)
}

type issueCredentialsResponse struct {
	AccessKey string `json:"access_key"`
	Secret    string `json:"secret"`
}

func (s *Server) handleIssueCredentials(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	accessKey, secret, err := s.cred.Issue(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apierr.WriteError(w, err)
			return
		}
		apierr.WriteError(w, apierr.Validation(err.Error()))
		return
	}
	apierr.WriteOK(w, issueCredentialsResponse{AccessKey: accessKey, Secret: secret})
}
