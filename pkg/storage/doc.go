/*
Package storage provides BoltDB-backed persistence for cascade's nodes,
feeds, tasks, allocations, and sync log.

The storage package implements the Store interface on top of bbolt, an
embedded, single-file, transactional key/value store with zero external
dependencies. All rows are serialized as JSON and stored in per-table
buckets; secondary-index buckets keep the hot-path claim scan and the
access-key lookup off a full table scan.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  BoltStore                                                │
	│  - File: <dataDir>/cascade.db                             │
	│  - Transactions: one writer, many concurrent readers      │
	│                                                            │
	│  Primary buckets            Secondary-index buckets       │
	│  ┌────────────────────┐     ┌──────────────────────────┐  │
	│  │ nodes         (ID) │     │ idx_node_access_key      │  │
	│  │ feeds         (ID) │     │   access_key → node id   │  │
	│  │ tasks         (ID) │     │ idx_alloc_status_        │  │
	│  │ allocations   (ID) │     │   dispatched             │  │
	│  │ sync_logs     (ID) │     │   status|ts|id → alloc id│  │
	│  └────────────────────┘     └──────────────────────────┘  │
	└────────────────────────────────────────────────────────────┘

# Atomic claim

ClaimAllocation is the one place this package needs strong
coordination. bbolt serializes every Update transaction through a
single writer, so scanning idx_alloc_status_dispatched for the
earliest pending row and rewriting it happens inside one transaction
with no other writer able to observe the row mid-transition. No SKIP
LOCKED or retry loop is needed; bbolt's own write lock supplies it.

# Thread safety

All exported BoltStore methods are safe for concurrent use; bbolt
handles the locking. Callers must not mutate a *types.Node/Allocation/
etc. returned from a Get/List call and expect it reflected in storage
without an explicit Update/Create call.
*/
package storage
