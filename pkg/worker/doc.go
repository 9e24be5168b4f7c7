/*
Package worker implements the cascade agent: the process that runs on
every worker node, polling the coordinator for work and reporting
results back.

# Architecture

	┌──────────────────────── WORKER AGENT ─────────────────────────┐
	│                                                                 │
	│  heartbeatLoop (ticker)          claimLoop x Concurrency        │
	│  - POST /cascade/heartbeat        (ticker, one goroutine per    │
	│                                    unit of max_capacity)        │
	│                                    - POST /cascade/claim-task   │
	│                                    - PUT  /cascade/task-status  │
	│                                    - job.Executor.Execute       │
	│                                      (bounded by a per-feed     │
	│                                      wall-clock timeout)        │
	│                                    - POST /cascade/upload-*     │
	│                                    - POST /cascade/report-*     │
	│                                                                 │
	│  All loops share one retryablehttp-backed *http.Client and      │
	│  authenticate every request with the AK/SK header. Each         │
	│  claimLoop is independently sequential; raising Concurrency     │
	│  adds parallel loops rather than parallelizing one claim.       │
	└─────────────────────────────────────────────────────────────────┘

# Usage

	w := worker.New(worker.Config{
		GatewayURL:        cfg.GatewayURL,
		AccessKey:         cfg.AccessKey,
		SecretKey:         cfg.SecretKey,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Concurrency:       cfg.MaxCapacity,
	}, myExecutor)
	if err := w.Start(); err != nil {
		log.Fatal(err.Error())
	}
	defer w.Stop()

# Executor

The worker never interprets a task's feeds itself; it delegates to a
job.Executor supplied by the caller. cmd/cascade-worker links
job.NoopExecutor by default so the binary runs end-to-end without a
real scraping backend.

# Failure handling

A claim-task or task-status failure is logged and the current cycle
abandoned; an upload-articles failure is logged and the cycle still
goes on to report-completion. An abandoned allocation is not handed
out again: pkg/reclaimer moves it to timeout once its threshold
elapses, and the task's next dispatch creates a new allocation.
go-retryablehttp
handles transient network failures beneath that, retrying up to 3
times before surfacing an error to the loop.
*/
package worker
