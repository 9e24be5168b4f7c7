package storage

import (
	"errors"
	"time"

	"github.com/cuemby/cascade/pkg/types"
)

// ErrNotFound is returned when a lookup by ID finds no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would violate the allocation
// state machine or a uniqueness invariant.
var ErrConflict = errors.New("conflict")

// AllocationFilter narrows ListAllocations. Zero-value fields are not
// applied as filters.
type AllocationFilter struct {
	TaskID        string
	NodeID        string
	Status        types.AllocationStatus
	ScheduleRunID string
	Limit         int
}

// AllocationUpdate carries the optional fields update_status may set,
// here Nil pointers leave the corresponding row field untouched.
type AllocationUpdate struct {
	ErrorMessage    *string
	ResultSummary   []types.FeedResult
	ArticleCount    *int
	NewArticleCount *int
}

// Store defines the interface for cascade's persisted state: nodes,
// feeds, tasks, allocations, and the sync log. Implemented by BoltStore.
type Store interface {
	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	GetNodeByAccessKey(accessKey string) (*types.Node, error)
	ListNodes(kind types.NodeKind) ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// Feeds
	CreateFeed(feed *types.Feed) error
	GetFeed(id string) (*types.Feed, error)
	GetFeeds(ids []string) ([]*types.Feed, error)
	ListFeeds() ([]*types.Feed, error)
	UpdateFeed(feed *types.Feed) error
	DeleteFeed(id string) error

	// Tasks
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	ListEnabledTasks() ([]*types.Task, error)
	UpdateTask(task *types.Task) error
	DeleteTask(id string) error

	// Allocations: the atomic claim lives here.
	CreatePendingAllocation(alloc *types.Allocation) error
	ClaimAllocation(nodeID string) (*types.Allocation, error)
	GetAllocation(id string) (*types.Allocation, error)
	UpdateAllocationStatus(id string, newStatus types.AllocationStatus, upd AllocationUpdate) error
	// AddNewArticleCount increments new_article_count by delta without
	// touching status; mid-execution article uploads only ever bump
	// this counter.
	AddNewArticleCount(id string, delta int) error
	ListAllocations(filter AllocationFilter) ([]*types.Allocation, error)
	CountAllocationsByNode(nodeID string, statuses []types.AllocationStatus) (int, error)
	Stats() (types.Stats, error)
	ReclaimStale(threshold time.Duration) (int, error)

	// Sync log
	CreateSyncLog(log *types.SyncLog) error
	UpdateSyncLog(log *types.SyncLog) error
	ListSyncLogs(limit int) ([]*types.SyncLog, error)

	Close() error
}
