// ABOUTME: The Hub owns all plaza state: agent registry, task registry, message log.
// ABOUTME: Dispatch is serialized under one mutex so claim arbitration is race-free.

package plaza

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agoralabs/plaza/internal/protocol"
)

// Sentinel errors for rejected frames. The read loop maps these onto error
// envelopes; the capitalized wording is part of the wire contract, so
// clients can match on it.
var (
	ErrMissingCardFields  = errors.New("Missing required agent card fields")
	ErrTaskNotFound       = errors.New("Task not found")
	ErrTaskNotAvailable   = errors.New("Task is no longer available")
	ErrAgentNotRegistered = errors.New("Agent not registered")
)

// Conn is the transport seam between the hub and one connected socket.
// Implementations must be safe for concurrent Send calls.
type Conn interface {
	Send(env *protocol.Envelope) error
	Close() error
}

// session pairs a registered agent card with its live connection.
type session struct {
	conn          Conn
	card          protocol.AgentCard
	subscriptions map[string]struct{}
	lastHeartbeat time.Time
}

// Hub is the coordination core. One Hub instance owns every agent, task, and
// logged message in the process.
//
// Every state-mutating entry point (HandleEnvelope, Disconnect, SweepStale)
// takes mu for its full duration, including the broadcasts it performs.
// That serialization is what makes "first claim processed wins" well-defined:
// two task_claim frames are never interleaved, however close their arrival.
// Do not replace the handler-scoped lock with per-field atomics; the
// claim-then-broadcast sequence must be atomic as a unit.
type Hub struct {
	mu     sync.Mutex
	agents map[string]*session
	tasks  map[string]*protocol.Task
	log    *messageRing

	heartbeatTimeout time.Duration
	logger           *slog.Logger
	now              func() time.Time
}

// Options tune the hub. Zero values fall back to production defaults.
type Options struct {
	HeartbeatTimeout   time.Duration
	MessageLogCapacity int

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewHub creates an empty hub.
func NewHub(opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HeartbeatTimeout == 0 {
		opts.HeartbeatTimeout = 60 * time.Second
	}
	if opts.MessageLogCapacity == 0 {
		opts.MessageLogCapacity = 10000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hub{
		agents:           make(map[string]*session),
		tasks:            make(map[string]*protocol.Task),
		log:              newMessageRing(opts.MessageLogCapacity),
		heartbeatTimeout: opts.HeartbeatTimeout,
		logger:           logger.With("component", "hub"),
		now:              opts.Now,
	}
}

// HandleEnvelope processes one inbound frame to completion. Returns an error
// only for frames the sender should be told about; the read loop converts it
// into an error envelope on the originating connection.
func (h *Hub) HandleEnvelope(c Conn, env *protocol.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Every inbound envelope is logged before dispatch; this is the
	// transparency record the query surface serves.
	h.log.append(env)

	payload, err := env.Decode()
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			return fmt.Errorf("unknown message type: %s", env.Type)
		}
		return errors.New("Invalid message format")
	}

	switch p := payload.(type) {
	case protocol.AgentCard:
		return h.handleRegister(c, p)
	case protocol.HeartbeatPayload:
		h.handleHeartbeat(env.From, p)
		return nil
	case protocol.Task:
		h.handleTaskAnnounce(p)
		return nil
	case protocol.TaskClaimPayload:
		return h.handleTaskClaim(p)
	case protocol.AgentMessagePayload:
		h.handleAgentMessage(env.From, p)
		return nil
	case protocol.WorkUpdatePayload:
		h.handleWorkUpdate(env.From, p)
		return nil
	case protocol.CoordinationRequestPayload:
		h.handleCoordinationRequest(env.From, p)
		return nil
	case protocol.SubscribePayload:
		h.handleSubscribe(c, p)
		return nil
	default:
		// Server-to-client types arriving inbound are not served.
		return fmt.Errorf("unknown message type: %s", env.Type)
	}
}

// handleRegister validates the card, installs the session, confirms to the
// registrant, announces it to everyone else, and unicasts the open-task
// snapshot. Re-registration with a used id silently overwrites the prior
// entry; the old connection keeps reading but is no longer addressable.
func (h *Hub) handleRegister(c Conn, card protocol.AgentCard) error {
	if card.ID == "" || card.Name == "" || card.Wallet == "" {
		return ErrMissingCardFields
	}

	now := h.now()
	card.Status = protocol.StatusAvailable
	card.RegisteredAt = now.UnixMilli()

	h.agents[card.ID] = &session{
		conn:          c,
		card:          card,
		subscriptions: make(map[string]struct{}),
		lastHeartbeat: now,
	}

	h.logger.Info("agent registered",
		"agent_id", card.ID,
		"name", card.Name,
		"capabilities", card.Capabilities,
		"total_agents", len(h.agents),
	)

	h.send(c, protocol.NewEnvelope(protocol.TypeRegistered, protocol.RegisteredPayload{
		AgentID: card.ID,
	}))

	// Everyone but the registrant learns about the arrival.
	h.broadcast(protocol.NewEnvelope(protocol.TypeAgentOnline, protocol.AgentOnlinePayload{
		Agent: card,
	}), card.ID)

	// The registrant alone gets the retroactive open-task snapshot.
	open := make([]protocol.Task, 0)
	for _, t := range h.tasks {
		if t.Status == protocol.TaskOpen {
			open = append(open, *t)
		}
	}
	h.send(c, protocol.NewEnvelope(protocol.TypeOpenTasks, protocol.OpenTasksPayload{
		Tasks: open,
	}))

	return nil
}

// handleHeartbeat refreshes liveness for a known sender. Heartbeats from
// unknown ids are dropped so an evicted agent cannot resurrect its entry.
func (h *Hub) handleHeartbeat(from string, p protocol.HeartbeatPayload) {
	sess, ok := h.agents[from]
	if !ok {
		return
	}
	sess.lastHeartbeat = h.now()
	if p.Status != "" {
		sess.card.Status = p.Status
	} else {
		sess.card.Status = protocol.StatusAvailable
	}
}

// handleTaskAnnounce opens a task and broadcasts it to every connection,
// the poster's included. Agents connecting later only see it through the
// registration snapshot.
func (h *Hub) handleTaskAnnounce(task protocol.Task) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.Status = protocol.TaskOpen
	task.CreatedAt = h.now().UnixMilli()
	task.AssignedAgent = ""

	h.tasks[task.ID] = &task

	h.logger.Info("task announced",
		"task_id", task.ID,
		"title", task.Title,
		"bounty", task.BountyAmount,
	)

	h.broadcast(protocol.NewEnvelope(protocol.TypeNewTask, protocol.NewTaskPayload{
		Task: task,
	}), "")
}

// handleTaskClaim arbitrates a claim. Preconditions are checked in order,
// each with its own error; the first claim dispatched for an open task wins
// and every later one fails, even a re-claim by the winner.
func (h *Hub) handleTaskClaim(p protocol.TaskClaimPayload) error {
	task, ok := h.tasks[p.TaskID]
	if !ok {
		return ErrTaskNotFound
	}
	if task.Status != protocol.TaskOpen {
		return ErrTaskNotAvailable
	}
	sess, ok := h.agents[p.AgentID]
	if !ok {
		return ErrAgentNotRegistered
	}

	task.Status = protocol.TaskClaimed
	task.AssignedAgent = p.AgentID
	sess.card.Status = protocol.StatusBusy

	h.logger.Info("task claimed",
		"task_id", task.ID,
		"title", task.Title,
		"agent_id", p.AgentID,
		"agent_name", sess.card.Name,
	)

	h.broadcast(protocol.NewEnvelope(protocol.TypeTaskClaimed, protocol.TaskClaimedPayload{
		TaskID:    p.TaskID,
		AgentID:   p.AgentID,
		AgentName: sess.card.Name,
	}), "")

	return nil
}

// handleAgentMessage relays chat. Addressed to nobody or to the plaza topic,
// it is broadcast to every connection so negotiation happens in the open.
// Addressed to a known agent it is delivered to that agent only; addressed
// to an unknown one it is silently dropped.
func (h *Hub) handleAgentMessage(from string, p protocol.AgentMessagePayload) {
	if p.To == "" || p.To == protocol.TopicPlaza {
		h.logger.Debug("plaza message", "from", from, "content", p.Content)
		h.broadcast(protocol.NewEnvelope(protocol.TypePlazaMessage, protocol.PlazaMessagePayload{
			From:            from,
			Content:         p.Content,
			ConfidenceLevel: p.ConfidenceLevel,
			Timestamp:       h.now().UnixMilli(),
		}), "")
		return
	}

	target, ok := h.agents[p.To]
	if !ok {
		// Best-effort delivery: no error back to the sender.
		return
	}
	h.send(target.conn, protocol.NewEnvelope(protocol.TypeDirectMessage, protocol.DirectMessagePayload{
		From:            from,
		Content:         p.Content,
		ConfidenceLevel: p.ConfidenceLevel,
	}))
}

// handleWorkUpdate overwrites the task's status with whatever the worker
// reports, with no transition validation, and fans progress out to everyone.
func (h *Hub) handleWorkUpdate(from string, p protocol.WorkUpdatePayload) {
	task, ok := h.tasks[p.TaskID]
	if !ok {
		return
	}
	task.Status = p.Status

	h.broadcast(protocol.NewEnvelope(protocol.TypeWorkProgress, protocol.WorkProgressPayload{
		TaskID:   p.TaskID,
		AgentID:  from,
		Status:   p.Status,
		Progress: p.Progress,
		WorkHash: p.WorkHash,
	}), "")
}

// handleCoordinationRequest ranks available agents whose capability or
// specialization sets intersect the request and broadcasts the candidate
// list. Advisory only: nothing is assigned.
func (h *Hub) handleCoordinationRequest(from string, p protocol.CoordinationRequestPayload) {
	candidates := h.rankCandidates(p.RequiredCapabilities)

	h.broadcast(protocol.NewEnvelope(protocol.TypeCoordinationOpportunity, protocol.CoordinationOpportunityPayload{
		TaskID:               p.TaskID,
		RequestingAgent:      from,
		Subtask:              p.Subtask,
		RequiredCapabilities: p.RequiredCapabilities,
		Candidates:           candidates,
	}), "")
}

// rankCandidates filters to available agents with a capability intersection,
// sorted descending by success rate. Caller holds h.mu.
func (h *Hub) rankCandidates(required []string) []protocol.Candidate {
	matching := make([]*session, 0)
	for _, sess := range h.agents {
		if sess.card.Status != protocol.StatusAvailable {
			continue
		}
		if capabilityIntersects(sess.card, required) {
			matching = append(matching, sess)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].card.Reputation.SuccessRate > matching[j].card.Reputation.SuccessRate
	})

	candidates := make([]protocol.Candidate, 0, len(matching))
	for _, sess := range matching {
		candidates = append(candidates, protocol.Candidate{
			ID:           sess.card.ID,
			Name:         sess.card.Name,
			Capabilities: sess.card.Capabilities,
			Reputation:   sess.card.Reputation,
		})
	}
	return candidates
}

func capabilityIntersects(card protocol.AgentCard, required []string) bool {
	for _, want := range required {
		for _, have := range card.Capabilities {
			if have == want {
				return true
			}
		}
		for _, have := range card.Specializations {
			if have == want {
				return true
			}
		}
	}
	return false
}

// handleSubscribe records topic subscriptions. The set is tracked for
// protocol compatibility but no broadcast path consults it.
func (h *Hub) handleSubscribe(c Conn, p protocol.SubscribePayload) {
	sess, ok := h.agents[p.AgentID]
	if !ok {
		return
	}
	for _, topic := range p.Topics {
		sess.subscriptions[topic] = struct{}{}
	}
	h.send(c, protocol.NewEnvelope(protocol.TypeSubscribed, protocol.SubscribedPayload{
		Topics: p.Topics,
	}))
}

// Disconnect removes the agent owning the given connection and announces the
// departure. A task claimed by the departing agent stays claimed; there is
// no automatic reclaim. Whether abandoned tasks should reopen is a product
// decision this server does not take.
func (h *Hub) Disconnect(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sess := range h.agents {
		if sess.conn == c {
			h.removeAgent(id, sess)
			break
		}
	}
}

// removeAgent drops the session and broadcasts agent_offline. Caller holds
// h.mu.
func (h *Hub) removeAgent(id string, sess *session) {
	delete(h.agents, id)
	h.logger.Info("agent left the plaza",
		"agent_id", id,
		"name", sess.card.Name,
		"total_agents", len(h.agents),
	)
	h.broadcast(protocol.NewEnvelope(protocol.TypeAgentOffline, protocol.AgentOfflinePayload{
		AgentID: id,
	}), "")
}

// SweepStale evicts agents whose last heartbeat is older than the timeout,
// closing their connections and taking the same cleanup path as a voluntary
// disconnect. Returns the number of agents evicted. The sweep shares the
// dispatch mutex, so it never interleaves with a message handler.
func (h *Hub) SweepStale() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	evicted := 0
	for id, sess := range h.agents {
		if now.Sub(sess.lastHeartbeat) > h.heartbeatTimeout {
			h.logger.Warn("agent timed out",
				"agent_id", id,
				"name", sess.card.Name,
				"last_heartbeat", sess.lastHeartbeat,
			)
			if err := sess.conn.Close(); err != nil {
				h.logger.Debug("closing timed-out connection", "agent_id", id, "error", err)
			}
			h.removeAgent(id, sess)
			evicted++
		}
	}
	return evicted
}

// broadcast sends the envelope to every connected agent except excludeID.
// A connection that errors is logged and skipped; delivery to the rest
// continues and the failed socket is reaped by its own close handler.
// Caller holds h.mu.
func (h *Hub) broadcast(env *protocol.Envelope, excludeID string) {
	for id, sess := range h.agents {
		if id == excludeID {
			continue
		}
		if err := sess.conn.Send(env); err != nil {
			h.logger.Warn("broadcast send failed",
				"agent_id", id,
				"type", env.Type,
				"error", err,
			)
		}
	}
}

// send writes to one connection, logging failures. Caller holds h.mu.
func (h *Hub) send(c Conn, env *protocol.Envelope) {
	if err := c.Send(env); err != nil {
		h.logger.Warn("send failed", "type", env.Type, "error", err)
	}
}
