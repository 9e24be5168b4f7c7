/*
Package events provides an in-memory broker for cascade's allocation
and node lifecycle events.

The coordinator API publishes an event when a node is registered and
when an allocation is claimed, moves to executing, completes, or
fails. The dispatched, timeout, node-up and node-down event types are
defined but nothing in the coordinator publishes them, and the gateway
registers no subscriber of its own. Subscribers receive events
asynchronously over a buffered channel; a full subscriber buffer drops
the event rather than blocking the publisher, since nothing in the
allocation state machine may stall on a slow subscriber.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			fmt.Printf("%s %s\n", ev.Type, ev.Metadata["allocation_id"])
		}
	}()

	broker.PublishAllocation(events.EventAllocationClaimed, allocID, taskID, map[string]string{"node_id": nodeID})

# Limitations

In-memory only, best-effort delivery, no replay. Anything needing a
durable record of what happened belongs in the SyncLog (pkg/storage),
not this broker.
*/
package events
