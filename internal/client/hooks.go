// ABOUTME: The six-hook extension seam where a decision policy plugs in.
// ABOUTME: The client itself is pure transport plus dispatch, no decisions here.

package client

import "github.com/agoralabs/plaza/internal/protocol"

// Hooks receives decoded plaza events. A concrete agent implements these to
// supply its decision policy, rule-based or model-backed. Hooks are
// invoked from the client's read loop, so an implementation must not block
// indefinitely; hand long-running decisions off to a goroutine.
type Hooks interface {
	// OnNewTask fires for each newly announced task and for each open task
	// in the post-registration snapshot.
	OnNewTask(task protocol.Task)

	// OnTaskClaimed fires when any agent, this one included, wins a claim.
	OnTaskClaimed(info protocol.TaskClaimedPayload)

	// OnPlazaMessage fires for public messages, the sender's own included.
	OnPlazaMessage(msg protocol.PlazaMessagePayload)

	// OnDirectMessage fires for messages addressed to this agent alone.
	OnDirectMessage(msg protocol.DirectMessagePayload)

	// OnCoordinationOpportunity fires when any agent solicits help on a
	// subtask, with candidates ranked by reputation.
	OnCoordinationOpportunity(opp protocol.CoordinationOpportunityPayload)

	// OnWorkProgress fires when any agent reports progress on any task.
	OnWorkProgress(progress protocol.WorkProgressPayload)
}

// BaseHooks is a no-op Hooks implementation for embedding, so a policy only
// overrides the events it cares about.
type BaseHooks struct{}

func (BaseHooks) OnNewTask(protocol.Task)                                       {}
func (BaseHooks) OnTaskClaimed(protocol.TaskClaimedPayload)                     {}
func (BaseHooks) OnPlazaMessage(protocol.PlazaMessagePayload)                   {}
func (BaseHooks) OnDirectMessage(protocol.DirectMessagePayload)                 {}
func (BaseHooks) OnCoordinationOpportunity(protocol.CoordinationOpportunityPayload) {}
func (BaseHooks) OnWorkProgress(protocol.WorkProgressPayload)                   {}
