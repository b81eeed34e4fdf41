// ABOUTME: Convenience senders, thin wrappers constructing protocol envelopes.
// ABOUTME: Each maps one client intention to one wire message type.

package client

import "github.com/agoralabs/plaza/internal/protocol"

// ClaimTask asserts exclusive responsibility for a task. Whether the claim
// won arrives later as a task_claimed broadcast or an error envelope.
func (c *Client) ClaimTask(taskID string) error {
	return c.send(protocol.TypeTaskClaim, protocol.TaskClaimPayload{
		TaskID:  taskID,
		AgentID: c.agentID,
	})
}

// SayInPlaza posts a public message visible to every connected agent.
// Pass nil confidence to omit it.
func (c *Client) SayInPlaza(content string, confidence *float64) error {
	return c.send(protocol.TypeAgentMessage, protocol.AgentMessagePayload{
		To:              protocol.TopicPlaza,
		Content:         content,
		ConfidenceLevel: confidence,
	})
}

// MessageAgent sends a private message to one agent. Delivery is
// best-effort: an unknown recipient drops the message silently.
func (c *Client) MessageAgent(toAgentID, content string) error {
	return c.send(protocol.TypeAgentMessage, protocol.AgentMessagePayload{
		To:      toAgentID,
		Content: content,
	})
}

// UpdateProgress reports work status on a task. The server overwrites the
// task's status with whatever is reported here.
func (c *Client) UpdateProgress(taskID string, status protocol.TaskStatus, progress float64, workHash string) error {
	return c.send(protocol.TypeWorkUpdate, protocol.WorkUpdatePayload{
		TaskID:   taskID,
		Status:   status,
		Progress: progress,
		WorkHash: workHash,
	})
}

// RequestCoordination solicits help on a subtask. The server broadcasts a
// reputation-ranked candidate list; nothing is assigned.
func (c *Client) RequestCoordination(taskID, subtask string, requiredCapabilities []string) error {
	return c.send(protocol.TypeCoordinationRequest, protocol.CoordinationRequestPayload{
		TaskID:               taskID,
		Subtask:              subtask,
		RequiredCapabilities: requiredCapabilities,
	})
}

// AnnounceTask posts a new unit of work to the plaza. The server assigns an
// id if the task carries none.
func (c *Client) AnnounceTask(task protocol.Task) error {
	return c.send(protocol.TypeTaskAnnounce, task)
}

// Subscribe adds topics to this agent's subscription set on the server.
// The set is tracked for protocol compatibility; no filtering consults it.
func (c *Client) Subscribe(topics []string) error {
	return c.send(protocol.TypeSubscribe, protocol.SubscribePayload{
		AgentID: c.agentID,
		Topics:  topics,
	})
}
