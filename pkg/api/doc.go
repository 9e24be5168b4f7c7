/*
Package api implements the coordinator's JSON/HTTP surface: the
worker-facing claim/report endpoints, and the operator-facing
node/catalog/dispatch management endpoints.

# Architecture

	┌─────────────────────── COORDINATOR API ───────────────────────┐
	│                                                                  │
	│  gorilla/mux Router                                             │
	│  - requestMetricsMiddleware wraps every route                   │
	│                                                                  │
	│  Worker-facing (AK/SK auth via requireWorkerAuth)                │
	│  - POST /cascade/heartbeat                                       │
	│  - POST /cascade/claim-task                                      │
	│  - PUT  /cascade/task-status                                     │
	│  - POST /cascade/upload-articles                                 │
	│  - POST /cascade/report-completion                               │
	│                                                                  │
	│  Operator-facing (bearer token via requireOperatorAuth)          │
	│  - /cascade/nodes[/{id}[/credentials]]                           │
	│  - /cascade/dispatch-task, /cascade/allocations                  │
	│  - /cascade/pending-allocations, /cascade/feed-status            │
	│  - /cascade/{start,stop,reload}-scheduler                        │
	│  - /cascade/feeds[/{id}], /cascade/tasks[/{id}]                  │
	│  - /cascade/sync-logs                                            │
	│                                                                  │
	│  Unauthenticated                                                 │
	│  - GET /healthz, GET /metrics                                    │
	└────────────────────────────────────────────────────────────────┘

# Response envelope

Every endpoint returns pkg/apierr.Envelope: {code, message, data}.
Handlers never write raw JSON themselves; they call apierr.WriteOK,
apierr.WriteCreated, or apierr.WriteError so the envelope shape and
HTTP status stay consistent across the whole surface.

# Authentication

Worker routes read the "Authorization: AK-SK <access_key>:<secret>"
header (pkg/credential.ParseAuthHeader) and resolve it to a *types.Node
stored in the request context. Operator routes compare a static bearer
token in constant time; there is no session state, matching the
"no interactive login" scope.

# Errors

Handlers translate storage/credential sentinel errors into the
envelope's stable integer codes via apierr.Translate; a handler never
writes an ad hoc error body.
*/
package api
