// Package worker implements the cascade agent's pull loop: heartbeat,
// claim, execute, upload, and report-completion against the
// coordinator's HTTP API.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/cascade/pkg/job"
	"github.com/cuemby/cascade/pkg/log"
	"github.com/cuemby/cascade/pkg/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// perFeedTimeout is the reference per-feed wall-clock budget. The
// worker derives an overall allocation timeout from it (one slot per
// feed plus a fixed slot for executor overhead) so a stuck scrape
// can't hold a claim indefinitely.
const perFeedTimeout = 120 * time.Second

// Config holds everything a Worker needs to reach and authenticate
// against a coordinator.
type Config struct {
	GatewayURL        string
	AccessKey         string
	SecretKey         string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	// Concurrency is the worker's max_capacity: the number of
	// independent claimLoop goroutines it runs. Each loop is itself
	// sequential, so raising Concurrency adds parallel loops rather
	// than parallelizing one claim's execution. Defaults to 1.
	Concurrency int
}

// Worker runs the agent-side pull loop against one coordinator. It
// owns no storage of its own; every allocation it claims is forgotten
// once report-completion succeeds.
type Worker struct {
	cfg      Config
	client   *http.Client
	executor job.Executor
	logger   zerolog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New builds a Worker with a bounded-retry HTTP client over cfg, that
// invokes executor on every claimed task package.
func New(cfg Config, executor job.Executor) *Worker {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	if executor == nil {
		executor = job.NoopExecutor{}
	}

	return &Worker{
		cfg:      cfg,
		client:   retryClient.StandardClient(),
		executor: executor,
		logger:   log.WithComponent("worker"),
	}
}

// Start begins the heartbeat loop and the claim/execute loop as
// background goroutines. It returns immediately.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})

	concurrency := w.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	w.wg.Add(1 + concurrency)
	go w.heartbeatLoop()
	for i := 0; i < concurrency; i++ {
		go w.claimLoop()
	}

	w.logger.Info().Str("gateway_url", w.cfg.GatewayURL).Int("concurrency", concurrency).Msg("worker started")
	return nil
}

// Stop signals both loops to exit and waits for them to return.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info().Msg("worker stopped")
	return nil
}

func (w *Worker) heartbeatLoop() {
	defer w.wg.Done()
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.heartbeat(); err != nil {
				w.logger.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

func (w *Worker) claimLoop() {
	defer w.wg.Done()
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.claimAndExecute()
		}
	}
}

// claimAndExecute runs one iteration of the loop: claim a package,
// transition to executing, run the executor, upload articles, then
// report completion. A claim that returns no package is not an error.
func (w *Worker) claimAndExecute() {
	ctx := context.Background()

	var pkg types.TaskPackage
	found, err := w.doRequest(ctx, http.MethodPost, "/cascade/claim-task", nil, &pkg)
	if err != nil {
		w.logger.Warn().Err(err).Msg("claim-task failed")
		return
	}
	if !found {
		return
	}

	logger := w.logger.With().Str("allocation_id", pkg.AllocationID).Str("task_id", pkg.TaskID).Logger()
	logger.Info().Int("feed_count", len(pkg.Feeds)).Msg("claimed allocation")

	if err := w.setStatus(ctx, pkg.AllocationID, types.AllocationExecuting, ""); err != nil {
		logger.Error().Err(err).Msg("failed to mark allocation executing")
		return
	}

	// : the worker bounds the executor by a per-feed wall-clock
	// budget (120s/feed, reference value) rather than letting a stuck
	// scrape hold the allocation forever; an Executor that honors ctx
	// cancellation fails only the feeds it hadn't reached.
	execCtx, cancel := context.WithTimeout(ctx, perFeedTimeout*time.Duration(len(pkg.Feeds)+1))
	articles, results, err := w.executor.Execute(execCtx, &pkg)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("executor failed")
		if statusErr := w.setStatus(ctx, pkg.AllocationID, types.AllocationFailed, err.Error()); statusErr != nil {
			logger.Error().Err(statusErr).Msg("failed to mark allocation failed")
		}
		return
	}

	if len(articles) > 0 {
		if err := w.uploadArticles(ctx, pkg.AllocationID, articles); err != nil {
			logger.Error().Err(err).Msg("upload-articles failed")
		}
	}

	if err := w.reportCompletion(ctx, pkg.AllocationID, pkg.TaskID, results, len(articles)); err != nil {
		logger.Error().Err(err).Msg("report-completion failed")
		return
	}
	logger.Info().Int("article_count", len(articles)).Msg("allocation completed")
}

func (w *Worker) heartbeat() error {
	ctx := context.Background()
	_, err := w.doRequest(ctx, http.MethodPost, "/cascade/heartbeat", nil, nil)
	return err
}

type taskStatusPayload struct {
	AllocationID string `json:"allocation_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (w *Worker) setStatus(ctx context.Context, allocationID string, status types.AllocationStatus, errMsg string) error {
	payload := taskStatusPayload{AllocationID: allocationID, Status: string(status), ErrorMessage: errMsg}
	_, err := w.doRequest(ctx, http.MethodPut, "/cascade/task-status", payload, nil)
	return err
}

type uploadArticlesPayload struct {
	AllocationID string          `json:"allocation_id"`
	Articles     []types.Article `json:"articles"`
}

func (w *Worker) uploadArticles(ctx context.Context, allocationID string, articles []types.Article) error {
	payload := uploadArticlesPayload{AllocationID: allocationID, Articles: articles}
	_, err := w.doRequest(ctx, http.MethodPost, "/cascade/upload-articles", payload, nil)
	return err
}

type reportCompletionPayload struct {
	AllocationID string             `json:"allocation_id"`
	TaskID       string             `json:"task_id"`
	Results      []types.FeedResult `json:"results"`
	ArticleCount int                `json:"article_count"`
}

func (w *Worker) reportCompletion(ctx context.Context, allocationID, taskID string, results []types.FeedResult, articleCount int) error {
	payload := reportCompletionPayload{
		AllocationID: allocationID,
		TaskID:       taskID,
		Results:      results,
		ArticleCount: articleCount,
	}
	_, err := w.doRequest(ctx, http.MethodPost, "/cascade/report-completion", payload, nil)
	return err
}

// envelope mirrors pkg/apierr.Envelope on the reading side, since the
// worker has no dependency on the coordinator's internal packages.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// doRequest issues one JSON request against the coordinator,
// authenticating with the AK/SK header, and decodes the
// envelope's data field into response if non-nil. found reports
// whether the envelope carried a non-null data payload, distinguishing
// "claimed nothing" from an error.
func (w *Worker) doRequest(ctx context.Context, method, path string, payload interface{}, response interface{}) (found bool, err error) {
	url := w.cfg.GatewayURL + path

	var body io.Reader
	if payload != nil {
		raw, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return false, fmt.Errorf("marshal payload: %w", marshalErr)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "AK-SK "+w.cfg.AccessKey+":"+w.cfg.SecretKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, fmt.Errorf("decode envelope from %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("%s: %s (code %d)", path, env.Message, env.Code)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return false, nil
	}
	if response != nil {
		if err := json.Unmarshal(env.Data, response); err != nil {
			return false, fmt.Errorf("decode data from %s: %w", path, err)
		}
	}
	return true, nil
}
