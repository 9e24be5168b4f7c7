package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/cascade/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes        = []byte("nodes")
	bucketFeeds        = []byte("feeds")
	bucketTasks        = []byte("tasks")
	bucketAllocations  = []byte("allocations")
	bucketSyncLogs     = []byte("sync_logs")
	bucketIdxAccessKey = []byte("idx_node_access_key")
	bucketIdxAllocScan = []byte("idx_alloc_status_dispatched")
)

// BoltStore implements Store on top of a single embedded bbolt file.
// Every write goes through bolt's serialized Update transaction, which
// is what makes ClaimAllocation atomic without a SKIP LOCKED-equivalent
// (see DESIGN.md).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a cascade.db file under
// dataDir and ensures every bucket this store needs exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cascade.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNodes, bucketFeeds, bucketTasks, bucketAllocations,
			bucketSyncLogs, bucketIdxAccessKey, bucketIdxAllocScan,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Nodes ---

func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.putNode(tx, node)
	})
}

func (s *BoltStore) putNode(tx *bolt.Tx, node *types.Node) error {
	b := tx.Bucket(bucketNodes)
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(node.ID), data); err != nil {
		return err
	}
	if node.AccessKey != "" {
		return tx.Bucket(bucketIdxAccessKey).Put([]byte(node.AccessKey), []byte(node.ID))
	}
	return nil
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) GetNodeByAccessKey(accessKey string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketIdxAccessKey).Get([]byte(accessKey))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketNodes).Get(id)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes(kind types.NodeKind) ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if kind == "" || node.Kind == kind {
				nodes = append(nodes, &node)
			}
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.putNode(tx, node)
	})
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(id))
		if data != nil {
			var node types.Node
			if err := json.Unmarshal(data, &node); err == nil && node.AccessKey != "" {
				if err := tx.Bucket(bucketIdxAccessKey).Delete([]byte(node.AccessKey)); err != nil {
					return err
				}
			}
		}
		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
}

// --- Feeds ---

func (s *BoltStore) CreateFeed(feed *types.Feed) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(feed)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFeeds).Put([]byte(feed.ID), data)
	})
}

func (s *BoltStore) GetFeed(id string) (*types.Feed, error) {
	var feed types.Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFeeds).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &feed)
	})
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

func (s *BoltStore) GetFeeds(ids []string) ([]*types.Feed, error) {
	feeds := make([]*types.Feed, 0, len(ids))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFeeds)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var feed types.Feed
			if err := json.Unmarshal(data, &feed); err != nil {
				return err
			}
			feeds = append(feeds, &feed)
		}
		return nil
	})
	return feeds, err
}

func (s *BoltStore) ListFeeds() ([]*types.Feed, error) {
	var feeds []*types.Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFeeds).ForEach(func(_, v []byte) error {
			var feed types.Feed
			if err := json.Unmarshal(v, &feed); err != nil {
				return err
			}
			feeds = append(feeds, &feed)
			return nil
		})
	})
	return feeds, err
}

func (s *BoltStore) UpdateFeed(feed *types.Feed) error {
	return s.CreateFeed(feed)
}

func (s *BoltStore) DeleteFeed(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFeeds).Delete([]byte(id))
	})
}

// --- Tasks ---

func (s *BoltStore) CreateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTasks() ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(_, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, err
}

func (s *BoltStore) ListEnabledTasks() ([]*types.Task, error) {
	all, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	enabled := make([]*types.Task, 0, len(all))
	for _, t := range all {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

func (s *BoltStore) UpdateTask(task *types.Task) error {
	return s.CreateTask(task)
}

func (s *BoltStore) DeleteTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).Delete([]byte(id))
	})
}

// --- Allocations ---

// allocIndexKey builds the sortable composite key that backs the claim
// scan: status|dispatched_at_unixnano|id. Bolt's cursor iterates keys
// in byte order, so fixed-width zero-padded nanoseconds keep rows
// within a status ordered by dispatch time.
func allocIndexKey(status types.AllocationStatus, dispatchedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s|%019d|%s", status, dispatchedAt.UnixNano(), id))
}

func (s *BoltStore) putAllocation(tx *bolt.Tx, alloc *types.Allocation, oldIndexKey []byte) error {
	data, err := json.Marshal(alloc)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketAllocations).Put([]byte(alloc.ID), data); err != nil {
		return err
	}
	idx := tx.Bucket(bucketIdxAllocScan)
	if oldIndexKey != nil {
		if err := idx.Delete(oldIndexKey); err != nil {
			return err
		}
	}
	return idx.Put(allocIndexKey(alloc.Status, alloc.DispatchedAt, alloc.ID), []byte(alloc.ID))
}

func (s *BoltStore) CreatePendingAllocation(alloc *types.Allocation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.putAllocation(tx, alloc, nil)
	})
}

// ClaimAllocation is the atomic claim primitive described : a
// single bbolt Update transaction scans the status index in
// dispatched_at order, takes the first pending row, and rewrites it
// in place. Because bbolt never admits a second concurrent writer,
// no worker can observe a row another worker is mid-transitioning.
func (s *BoltStore) ClaimAllocation(nodeID string) (*types.Allocation, error) {
	var claimed *types.Allocation
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketIdxAllocScan)
		c := idx.Cursor()
		prefix := []byte(string(types.AllocationPending) + "|")
		k, v := c.Seek(prefix)
		if k == nil || !strings.HasPrefix(string(k), string(prefix)) {
			return nil // no pending work
		}

		allocID := string(v)
		allocBucket := tx.Bucket(bucketAllocations)
		data := allocBucket.Get([]byte(allocID))
		if data == nil {
			return idx.Delete(k) // index pointed at a deleted row; drop it
		}
		var alloc types.Allocation
		if err := json.Unmarshal(data, &alloc); err != nil {
			return err
		}
		if alloc.Status != types.AllocationPending {
			return idx.Delete(k) // stale index entry
		}

		task := tx.Bucket(bucketTasks).Get([]byte(alloc.TaskID))
		var taskMissing bool
		if task == nil {
			taskMissing = true
		} else {
			var t types.Task
			if err := json.Unmarshal(task, &t); err != nil {
				return err
			}
			if !t.Enabled {
				taskMissing = true
			}
		}

		if taskMissing {
			alloc.Status = types.AllocationFailed
			alloc.ErrorMessage = "task missing"
			alloc.CompletedAt = time.Now().UTC()
			return s.putAllocation(tx, &alloc, k)
		}

		id := nodeID
		alloc.NodeID = &id
		alloc.Status = types.AllocationClaimed
		alloc.ClaimedAt = time.Now().UTC()
		if err := s.putAllocation(tx, &alloc, k); err != nil {
			return err
		}
		claimed = &alloc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *BoltStore) GetAllocation(id string) (*types.Allocation, error) {
	var alloc types.Allocation
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAllocations).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &alloc)
	})
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

// allowedTransitions enforces the allocation state machine: no
// transition outside this table is permitted, and timeout is reached
// only through ReclaimStale, never through this path.
var allowedTransitions = map[types.AllocationStatus][]types.AllocationStatus{
	types.AllocationClaimed:   {types.AllocationExecuting},
	types.AllocationExecuting: {types.AllocationCompleted, types.AllocationFailed},
}

func isAllowedTransition(from, to types.AllocationStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s *BoltStore) UpdateAllocationStatus(id string, newStatus types.AllocationStatus, upd AllocationUpdate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAllocations)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var alloc types.Allocation
		if err := json.Unmarshal(data, &alloc); err != nil {
			return err
		}

		if !isAllowedTransition(alloc.Status, newStatus) {
			return ErrConflict
		}

		oldKey := allocIndexKey(alloc.Status, alloc.DispatchedAt, alloc.ID)
		now := time.Now().UTC()
		alloc.Status = newStatus
		switch newStatus {
		case types.AllocationExecuting:
			alloc.StartedAt = now
		case types.AllocationCompleted, types.AllocationFailed:
			alloc.CompletedAt = now
		}
		if upd.ErrorMessage != nil {
			alloc.ErrorMessage = *upd.ErrorMessage
		}
		if upd.ResultSummary != nil {
			alloc.ResultSummary = upd.ResultSummary
		}
		if upd.ArticleCount != nil {
			alloc.ArticleCount = *upd.ArticleCount
		}
		if upd.NewArticleCount != nil {
			alloc.NewArticleCount = *upd.NewArticleCount
		}

		return s.putAllocation(tx, &alloc, oldKey)
	})
}

// AddNewArticleCount increments new_article_count in place. It does
// not go through isAllowedTransition since it is not a status change;
// an upload may land at any point between claimed and completion.
func (s *BoltStore) AddNewArticleCount(id string, delta int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAllocations)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var alloc types.Allocation
		if err := json.Unmarshal(data, &alloc); err != nil {
			return err
		}
		alloc.NewArticleCount += delta
		out, err := json.Marshal(&alloc)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
}

func (s *BoltStore) ListAllocations(filter AllocationFilter) ([]*types.Allocation, error) {
	var all []*types.Allocation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAllocations).ForEach(func(_, v []byte) error {
			var a types.Allocation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if filter.TaskID != "" && a.TaskID != filter.TaskID {
				return nil
			}
			if filter.NodeID != "" && (a.NodeID == nil || *a.NodeID != filter.NodeID) {
				return nil
			}
			if filter.Status != "" && a.Status != filter.Status {
				return nil
			}
			if filter.ScheduleRunID != "" && a.ScheduleRunID != filter.ScheduleRunID {
				return nil
			}
			all = append(all, &a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DispatchedAt.After(all[j].DispatchedAt) })
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (s *BoltStore) CountAllocationsByNode(nodeID string, statuses []types.AllocationStatus) (int, error) {
	want := make(map[types.AllocationStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAllocations).ForEach(func(_, v []byte) error {
			var a types.Allocation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.NodeID != nil && *a.NodeID == nodeID && want[a.Status] {
				count++
			}
			return nil
		})
	})
	return count, err
}

func (s *BoltStore) Stats() (types.Stats, error) {
	var stats types.Stats
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketAllocations).ForEach(func(_, v []byte) error {
			var a types.Allocation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			switch a.Status {
			case types.AllocationPending:
				stats.Pending++
			case types.AllocationClaimed, types.AllocationExecuting:
				stats.InFlight++
			case types.AllocationCompleted:
				if !a.CompletedAt.Before(midnight) {
					stats.CompletedToday++
				}
			case types.AllocationFailed:
				if !a.CompletedAt.Before(midnight) {
					stats.FailedToday++
				}
			}
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n types.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.Kind == types.NodeKindWorker && classifyOnline(&n) {
				stats.OnlineNodes++
			}
			return nil
		})
	})
	return stats, err
}

// classifyOnline mirrors pkg/registry.Classify without importing it
// (storage must not depend on registry); keep the two in lockstep.
func classifyOnline(n *types.Node) bool {
	const heartbeatWindow = 180 * time.Second
	return n.Active &&
		n.ReportedStatus == types.NodeStatusOnline &&
		time.Since(n.LastHeartbeatAt) <= heartbeatWindow
}

// ReclaimStale transitions any non-terminal allocation dispatched more
// than threshold ago to timeout, in one transaction.
func (s *BoltStore) ReclaimStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	reclaimed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAllocations)
		var stale []types.Allocation
		if err := b.ForEach(func(_, v []byte) error {
			var a types.Allocation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if !a.Status.IsTerminal() && a.DispatchedAt.Before(cutoff) {
				stale = append(stale, a)
			}
			return nil
		}); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, a := range stale {
			oldKey := allocIndexKey(a.Status, a.DispatchedAt, a.ID)
			a.Status = types.AllocationTimeout
			a.ErrorMessage = fmt.Sprintf("timeout (>%s)", threshold)
			a.CompletedAt = now
			if err := s.putAllocation(tx, &a, oldKey); err != nil {
				return err
			}
			reclaimed++
		}
		return nil
	})
	return reclaimed, err
}

// --- Sync log ---

func (s *BoltStore) CreateSyncLog(log *types.SyncLog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(log)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSyncLogs).Put([]byte(log.ID), data)
	})
}

func (s *BoltStore) UpdateSyncLog(log *types.SyncLog) error {
	return s.CreateSyncLog(log)
}

func (s *BoltStore) ListSyncLogs(limit int) ([]*types.SyncLog, error) {
	var logs []*types.SyncLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncLogs).ForEach(func(_, v []byte) error {
			var l types.SyncLog
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			logs = append(logs, &l)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].StartedAt.After(logs[j].StartedAt) })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
