/*
Package events provides an in-memory event broker for rem's internal
pub/sub signaling.

The events package implements a lightweight, non-blocking event bus used to
decouple components that need to react to engine activity without polling:
the replication server wakes a blocked live-tail as soon as the WAL gets a
new entry, and the worker signals embedding failures for anyone watching.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│  Publisher → Event Channel (buffer: 100)                  │
	│       ↓                                                    │
	│  Broadcast Loop                                            │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                     │
	└────────────────────────────────────────────────────────┘

# Event Types

Entity: created, updated, deleted (schema-scoped, tenant-scoped).
Schema: changed (new version registered).
WAL: appended (new sequence number durable), compacted.
Replication: peer_connected, peer_disconnected.
Worker: embedding_failed.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			if event.Type == events.EventWalAppended {
				wakeReplicationTail(event.Tenant)
			}
		}
	}()

	broker.Publish(&events.Event{Type: events.EventWalAppended, Tenant: "acct_9f2"})

# Design Patterns

Non-blocking publish and fan-out delivery: a full subscriber buffer skips
that subscriber rather than stalling the publisher, so a slow replication
peer can never back-pressure a local write. This is fire-and-forget —
nothing here is on the durability path; the WAL itself is durable, the
broker only wakes up waiters faster than a poll loop would.
*/
package events
