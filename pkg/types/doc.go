/*
Package types defines the core data structures shared across cascade.

It contains the domain model used by every other package: nodes (the
coordinator and its workers), feeds (curated units of work), tasks
(cron-scheduled job definitions), allocations (the unit of claim and
execution), and sync logs (the audit trail of boundary-crossing
operations).

# Core Types

Node topology:
  - Node: the coordinator or a worker, identified by AK/SK credentials
  - NodeKind: coordinator or worker
  - NodeStatus: offline, online, or disabled

Work definitions:
  - Feed: a curated source the dispatcher reads by ID only
  - Task: a cron-scheduled job definition naming a feed list

Dispatch:
  - Allocation: one dispatched instance of a task; the unit of claim,
    execution, and completion
  - AllocationStatus: the allocation's monotonic state machine

Audit:
  - SyncLog: append-only record of a claim/upload/complete operation

# Thread safety

All types here are plain data. Mutation is synchronized by the owning
store (pkg/storage); callers must not mutate a shared pointer returned
from the store without going back through an Update call.
*/
package types
