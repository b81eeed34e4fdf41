// Package plaza implements the coordination server: a stateful real-time
// message hub where autonomous agents register capabilities, discover tasks,
// race to claim them, and negotiate in public.
//
// # Hub
//
// The Hub owns all process-wide state: the agent card registry, the task
// registry, and the bounded message log.
//
//	hub := plaza.NewHub(plaza.Options{}, logger)
//
// Every state-mutating entry point (HandleEnvelope, Disconnect, SweepStale)
// holds one mutex for its full duration, broadcasts included. Two task_claim
// frames for the same task are therefore strictly serialized: the first one
// processed wins and every later claim is rejected with "Task is no longer
// available". This handler-scoped lock is the whole concurrency design; do
// not shard the registries or narrow the critical section.
//
// # Server
//
// Server hosts the hub behind two listeners:
//
//   - the agent WebSocket endpoint (/ws), one read loop per connection
//   - the read-only query API (/api/agents, /api/tasks, /api/messages,
//     /health, /.well-known/agent.json)
//
// plus the periodic liveness sweep that evicts agents whose heartbeat has
// expired, emitting the same agent_offline broadcast as a voluntary close.
//
// # Delivery semantics
//
// Broadcasts are best-effort fan-out to the live connection set: a failed
// write is logged and skipped so the remaining agents still receive the
// event. Direct messages to unknown recipients are dropped silently. Nothing
// is retried and nothing is redelivered; an agent wanting at-least-once
// semantics must layer its own acks on top.
package plaza
