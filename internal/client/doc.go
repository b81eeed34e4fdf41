// Package client is the reusable agent-side envelope for the plaza
// protocol: connect, register, heartbeat, and a typed receive loop.
//
// A concrete agent supplies a Hooks implementation (the six extension
// points where a decision policy plugs in) and uses the convenience
// senders (ClaimTask, SayInPlaza, MessageAgent, UpdateProgress,
// RequestCoordination) to act. The client contains no decision logic.
//
// Connect blocks until the server's registered confirmation arrives;
// socket-open alone is not readiness. Hooks run on the read loop goroutine,
// so long-running decisions must be handed off asynchronously.
package client
