package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/cascade/pkg/job"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	mu           sync.Mutex
	heartbeats   int
	claims       int
	statuses     []string
	uploaded     []types.Article
	completed    *reportCompletionPayload
	claimPackage *types.TaskPackage
	authHeader   string
}

func (f *fakeCoordinator) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.authHeader = r.Header.Get("Authorization")

		switch r.URL.Path {
		case "/cascade/heartbeat":
			f.heartbeats++
			writeEnvelope(w, nil)
		case "/cascade/claim-task":
			f.claims++
			writeEnvelope(w, f.claimPackage)
			f.claimPackage = nil
		case "/cascade/task-status":
			var req taskStatusPayload
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.statuses = append(f.statuses, req.Status)
			writeEnvelope(w, nil)
		case "/cascade/upload-articles":
			var req uploadArticlesPayload
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.uploaded = append(f.uploaded, req.Articles...)
			writeEnvelope(w, nil)
		case "/cascade/report-completion":
			var req reportCompletionPayload
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.completed = &req
			writeEnvelope(w, nil)
		default:
			http.NotFound(w, r)
		}
	}
}

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	raw, _ := json.Marshal(data)
	env := envelope{Code: 0, Message: "ok", Data: raw}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}

type countingExecutor struct {
	calls int
}

func (c *countingExecutor) Execute(ctx context.Context, pkg *types.TaskPackage) ([]types.Article, []types.FeedResult, error) {
	c.calls++
	articles := []types.Article{{ID: "art-1", Title: "hello"}}
	results := []types.FeedResult{{MPID: "feed-1", Status: "success", ArticleCount: 1}}
	return articles, results, nil
}

func TestWorkerHeartbeat(t *testing.T) {
	fake := &fakeCoordinator{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	w := New(Config{
		GatewayURL: srv.URL, AccessKey: "AK-test", SecretKey: "SK-test",
		HeartbeatInterval: 10 * time.Millisecond, PollInterval: time.Hour,
	}, job.NoopExecutor{})

	require.NoError(t, w.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.GreaterOrEqual(t, fake.heartbeats, 1)
	require.Equal(t, "AK-SK AK-test:SK-test", fake.authHeader)
}

func TestWorkerClaimExecutesAndReportsCompletion(t *testing.T) {
	fake := &fakeCoordinator{
		claimPackage: &types.TaskPackage{
			AllocationID: "alloc-1",
			TaskID:       "task-1",
			Feeds:        []types.Feed{{ID: "feed-1", FakerID: "feed-1", MPName: "feed-1"}},
		},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	exec := &countingExecutor{}
	w := New(Config{
		GatewayURL: srv.URL, AccessKey: "AK-test", SecretKey: "SK-test",
		HeartbeatInterval: time.Hour, PollInterval: 10 * time.Millisecond,
	}, exec)

	require.NoError(t, w.Start())
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.completed != nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, 1, exec.calls)
	require.Contains(t, fake.statuses, string(types.AllocationExecuting))
	require.Len(t, fake.uploaded, 1)
	require.Equal(t, "alloc-1", fake.completed.AllocationID)
	require.Equal(t, 1, fake.completed.ArticleCount)
}

func TestWorkerClaimWithNoWorkIsNotAnError(t *testing.T) {
	fake := &fakeCoordinator{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	exec := &countingExecutor{}
	w := New(Config{
		GatewayURL: srv.URL, AccessKey: "AK-test", SecretKey: "SK-test",
		HeartbeatInterval: time.Hour, PollInterval: 10 * time.Millisecond,
	}, exec)

	require.NoError(t, w.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())

	require.Equal(t, 0, exec.calls)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.GreaterOrEqual(t, fake.claims, 1)
}
