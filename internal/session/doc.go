// Package session wires the engine together: it rendezvouses the configured
// number of source peers, runs one decoding reader per connection, merges
// the per-worker streams behind the frontier, and drives the derived models
// (graph, profile, arrangement sizes) from the merged sequence.
//
// All derived-state mutation happens on the merger's single consumer, so
// the model tables need no coordination beyond the brief read locks their
// snapshots take.
//
// Error policy: connection-scoped failures (malformed frames, abrupt peer
// disconnects) demote the affected worker to closed, are recorded as the
// session error, and never abort the other workers' processing. Failures
// during rendezvous abort the session before any state exists. Stopping a
// session closes the sockets and drains everything the frontier had already
// determined, so final snapshots are best-effort rather than silently
// truncated.
package session
