package types

import "time"

// NodeKind distinguishes the single coordinator from its worker fleet.
type NodeKind string

const (
	NodeKindCoordinator NodeKind = "coordinator"
	NodeKindWorker      NodeKind = "worker"
)

// NodeStatus is the reported liveness flag written by heartbeat and
// credential verification. It is never flipped to offline by a timeout
// check; only classify() derives offline from the heartbeat window.
type NodeStatus int

const (
	NodeStatusOffline  NodeStatus = 0
	NodeStatusOnline   NodeStatus = 1
	NodeStatusDisabled NodeStatus = 2
)

// SyncConfig is the closed schema for a node's dynamic configuration.
// Writes with unknown keys must be rejected at the API boundary.
type SyncConfig struct {
	MaxCapacity uint16         `json:"max_capacity"`
	FeedQuota   map[string]int `json:"feed_quota,omitempty"`
}

// Node is a registered participant: the one coordinator, or one of many
// workers. access_key is unique across active nodes; secret_hash is
// written only by the credential store's issue operation and is never
// serialized back out over the API.
type Node struct {
	ID              string     `json:"id"`
	Kind            NodeKind   `json:"kind"`
	DisplayName     string     `json:"display_name"`
	APIURL          string     `json:"api_url,omitempty"`
	AccessKey       string     `json:"access_key,omitempty"`
	SecretHash      string     `json:"-"`
	ReportedStatus  NodeStatus `json:"reported_status"`
	Active          bool       `json:"active"`
	LastHeartbeatAt time.Time  `json:"last_heartbeat_at,omitempty"`
	SyncConfig      SyncConfig `json:"sync_config"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FeedStatus governs whether claim-task includes a feed in a task
// package: only active feeds are assembled into it. The dispatcher
// copies every feed id of a task into an allocation regardless of status.
type FeedStatus string

const (
	FeedStatusActive   FeedStatus = "active"
	FeedStatusPaused   FeedStatus = "paused"
	FeedStatusArchived FeedStatus = "archived"
)

// Feed is a curated unit of work. It is immutable from the dispatcher's
// viewpoint, which only copies its ID into an allocation's feed_ids;
// claim-task reads the row itself when it builds the task package.
// FakerID, MPName, MPCover, and MPIntro are opaque
// pass-through metadata the coordinator never interprets.
type Feed struct {
	ID      string     `json:"id"`
	FakerID string     `json:"faker_id,omitempty"`
	MPName  string     `json:"mp_name,omitempty"`
	MPCover string     `json:"mp_cover,omitempty"`
	MPIntro string     `json:"mp_intro,omitempty"`
	Status  FeedStatus `json:"status"`
}

// Task is a schedulable job definition. The cron scheduler only ever
// registers enabled tasks; MessageType, MessageTemplate, WebHookURL,
// Headers, and Cookies are opaque delivery-formatting hints forwarded
// verbatim to the worker inside the claim-task package.
type Task struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CronExpression  string    `json:"cron_expression"`
	FeedIDs         []string  `json:"feed_ids"`
	Enabled         bool      `json:"enabled"`
	MessageType     string    `json:"message_type,omitempty"`
	MessageTemplate string    `json:"message_template,omitempty"`
	WebHookURL      string    `json:"web_hook_url,omitempty"`
	Headers         string    `json:"headers,omitempty"`
	Cookies         string    `json:"cookies,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AllocationStatus is the allocation's monotonic state machine.
// Transitions flow pending -> claimed -> executing -> {completed|failed},
// with timeout reachable from any non-terminal status via the reclaimer.
type AllocationStatus string

const (
	AllocationPending   AllocationStatus = "pending"
	AllocationClaimed   AllocationStatus = "claimed"
	AllocationExecuting AllocationStatus = "executing"
	AllocationCompleted AllocationStatus = "completed"
	AllocationFailed    AllocationStatus = "failed"
	AllocationTimeout   AllocationStatus = "timeout"
)

// IsTerminal reports whether no further transition is permitted.
func (s AllocationStatus) IsTerminal() bool {
	switch s {
	case AllocationCompleted, AllocationFailed, AllocationTimeout:
		return true
	default:
		return false
	}
}

// Allocation is the central object: one dispatched instance of a task,
// and the unit of claim, execution, and completion. NodeID is nil iff
// Status is pending; every non-pending row has a bound node.
type Allocation struct {
	ID               string           `json:"id"`
	TaskID           string           `json:"task_id"`
	TaskNameSnapshot string           `json:"task_name_snapshot"`
	CronSnapshot     string           `json:"cron_snapshot"`
	NodeID           *string          `json:"node_id"`
	FeedIDs          []string         `json:"feed_ids"`
	Status           AllocationStatus `json:"status"`
	ResultSummary    []FeedResult     `json:"result_summary,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	DispatchedAt     time.Time        `json:"dispatched_at"`
	ClaimedAt        time.Time        `json:"claimed_at,omitempty"`
	StartedAt        time.Time        `json:"started_at,omitempty"`
	CompletedAt      time.Time        `json:"completed_at,omitempty"`
	ScheduleRunID    string           `json:"schedule_run_id"`
	ArticleCount     int              `json:"article_count"`
	NewArticleCount  int              `json:"new_article_count"`
}

// Article is one scraped record uploaded by a worker mid-execution.
// The coordinator forwards it verbatim; it interprets none of the
// fields beyond what is needed for the upload/count bookkeeping.
type Article struct {
	ID          string    `json:"id"`
	MPID        string    `json:"mp_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	PublishTime time.Time `json:"publish_time,omitempty"`
}

// FeedResult is one feed's outcome within a task's execution, reported
// at completion time. The coordinator stores it verbatim in an
// allocation's ResultSummary without interpreting status or error.
type FeedResult struct {
	MPID         string `json:"mp_id"`
	MPName       string `json:"mp_name,omitempty"`
	Status       string `json:"status"`
	ArticleCount int    `json:"article_count"`
	Error        string `json:"error,omitempty"`
}

// SyncDirection distinguishes a worker-initiated pull from a
// coordinator-initiated push within a SyncLog entry.
type SyncDirection string

const (
	SyncDirectionPull SyncDirection = "pull"
	SyncDirectionPush SyncDirection = "push"
)

// SyncStatus is the lifecycle of one SyncLog entry: written in-progress
// before the operation is attempted, finalized on return.
type SyncStatus string

const (
	SyncStatusInProgress SyncStatus = "in-progress"
	SyncStatusOK         SyncStatus = "ok"
	SyncStatusError      SyncStatus = "error"
)

// SyncLog is an append-only audit record of one boundary-crossing
// operation (claim, upload, complete). It is not load-bearing for
// correctness; it exists for operator inspection.
type SyncLog struct {
	ID           string         `json:"id"`
	NodeID       string         `json:"node_id"`
	Operation    string         `json:"operation"`
	Direction    SyncDirection  `json:"direction"`
	Status       SyncStatus     `json:"status"`
	DataCount    int            `json:"data_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
}

// TaskPackage is the JSON bundle returned by claim-task: everything a
// worker needs to execute one claimed allocation.
type TaskPackage struct {
	AllocationID    string    `json:"allocation_id"`
	TaskID          string    `json:"task_id"`
	TaskName        string    `json:"task_name"`
	MessageType     string    `json:"message_type,omitempty"`
	MessageTemplate string    `json:"message_template,omitempty"`
	WebHookURL      string    `json:"web_hook_url,omitempty"`
	CronExp         string    `json:"cron_exp"`
	Headers         string    `json:"headers,omitempty"`
	Cookies         string    `json:"cookies,omitempty"`
	Feeds           []Feed    `json:"feeds"`
	DispatchedAt    time.Time `json:"dispatched_at"`
}

// Stats is the aggregate counters surfaced on pending-allocations.
type Stats struct {
	Pending        int `json:"pending"`
	InFlight       int `json:"in_flight"`
	CompletedToday int `json:"completed_today"`
	FailedToday    int `json:"failed_today"`
	OnlineNodes    int `json:"online_nodes"`
}
