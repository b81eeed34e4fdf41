// ABOUTME: Wire protocol for The Plaza: envelope format, message types, payloads.
// ABOUTME: Every frame on the socket is an Envelope; payloads form a closed union.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates the payload carried by an Envelope.
type MessageType string

// Client-to-server message types.
const (
	TypeRegister            MessageType = "register"
	TypeHeartbeat           MessageType = "heartbeat"
	TypeTaskAnnounce        MessageType = "task_announce"
	TypeTaskClaim           MessageType = "task_claim"
	TypeAgentMessage        MessageType = "agent_message"
	TypeWorkUpdate          MessageType = "work_update"
	TypeCoordinationRequest MessageType = "coordination_request"
	TypeSubscribe           MessageType = "subscribe"

	// TypeUnsubscribe is named by the protocol but has no server handler;
	// the hub answers it with an unknown-type error.
	TypeUnsubscribe MessageType = "unsubscribe"
)

// Server-to-client message types.
const (
	TypeRegistered              MessageType = "registered"
	TypeNewTask                 MessageType = "new_task"
	TypeOpenTasks               MessageType = "open_tasks"
	TypeTaskClaimed             MessageType = "task_claimed"
	TypeAgentOnline             MessageType = "agent_online"
	TypeAgentOffline            MessageType = "agent_offline"
	TypePlazaMessage            MessageType = "plaza_message"
	TypeDirectMessage           MessageType = "direct_message"
	TypeWorkProgress            MessageType = "work_progress"
	TypeCoordinationOpportunity MessageType = "coordination_opportunity"
	TypeSubscribed              MessageType = "subscribed"
	TypeError                   MessageType = "error"
)

// TopicPlaza is the reserved recipient meaning "everyone": an agent_message
// addressed to it (or to nobody) is broadcast rather than delivered directly.
const TopicPlaza = "plaza"

// AgentStatus is the advertised availability of a registered agent.
type AgentStatus string

const (
	StatusAvailable AgentStatus = "available"
	StatusBusy      AgentStatus = "busy"
	StatusOffline   AgentStatus = "offline"
)

// TaskStatus tracks a task through its lifecycle. Forward-only in the claim
// path; work_update overwrites it with whatever the worker reports.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskClaimed    TaskStatus = "claimed"
	TaskInProgress TaskStatus = "in_progress"
	TaskSubmitted  TaskStatus = "submitted"
	TaskCompleted  TaskStatus = "completed"
)

// Reputation is client-reported at registration and never verified.
type Reputation struct {
	TasksCompleted int     `json:"tasksCompleted"`
	SuccessRate    float64 `json:"successRate"`
	AvgRating      float64 `json:"avgRating"`
}

// AgentCard advertises an agent's identity and capabilities to the Plaza.
type AgentCard struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Capabilities    []string    `json:"capabilities"`
	Specializations []string    `json:"specializations"`
	Reputation      Reputation  `json:"reputation"`
	Wallet          string      `json:"wallet"`
	Status          AgentStatus `json:"status,omitempty"`
	RegisteredAt    int64       `json:"registeredAt,omitempty"`
}

// Task is one announced unit of work. BountyAmount is in the smallest
// currency unit (USDC has 6 decimals).
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Requirements  []string   `json:"requirements"`
	BountyAmount  int64      `json:"bountyAmount"`
	Poster        string     `json:"poster"`
	TaskHash      string     `json:"taskHash"`
	Status        TaskStatus `json:"status"`
	AssignedAgent string     `json:"assignedAgent,omitempty"`
	CreatedAt     int64      `json:"createdAt"`
	Deadline      int64      `json:"deadline,omitempty"`
}

// Envelope is the single frame format on the wire. Timestamps are Unix
// milliseconds.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId"`
}

// NewEnvelope builds an envelope with a fresh message ID and current
// timestamp. Panics only if the payload itself cannot be marshaled, which
// for the closed payload set cannot happen.
func NewEnvelope(t MessageType, payload any) *Envelope {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("protocol: marshaling %s payload: %v", t, err))
		}
		raw = data
	}
	return &Envelope{
		Type:      t,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
		MessageID: uuid.New().String(),
	}
}

// HeartbeatPayload carries an optional status override.
type HeartbeatPayload struct {
	Status AgentStatus `json:"status,omitempty"`
}

// TaskClaimPayload asserts exclusive responsibility for a task.
type TaskClaimPayload struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

// AgentMessagePayload is a chat message: public when To is empty or
// TopicPlaza, direct otherwise.
type AgentMessagePayload struct {
	To              string   `json:"to,omitempty"`
	Content         string   `json:"content"`
	ConfidenceLevel *float64 `json:"confidenceLevel,omitempty"`
}

// WorkUpdatePayload reports progress on a claimed task.
type WorkUpdatePayload struct {
	TaskID   string     `json:"taskId"`
	Status   TaskStatus `json:"status"`
	Progress float64    `json:"progress"`
	WorkHash string     `json:"workHash,omitempty"`
}

// CoordinationRequestPayload solicits help on a subtask.
type CoordinationRequestPayload struct {
	TaskID               string   `json:"taskId"`
	Subtask              string   `json:"subtask"`
	RequiredCapabilities []string `json:"requiredCapabilities"`
}

// SubscribePayload adds topics to an agent's subscription set.
type SubscribePayload struct {
	AgentID string   `json:"agentId"`
	Topics  []string `json:"topics"`
}

// RegisteredPayload confirms a successful registration.
type RegisteredPayload struct {
	AgentID string `json:"agentId"`
}

// NewTaskPayload announces a freshly opened task.
type NewTaskPayload struct {
	Task Task `json:"task"`
}

// OpenTasksPayload is the retroactive snapshot unicast to a new registrant.
type OpenTasksPayload struct {
	Tasks []Task `json:"tasks"`
}

// TaskClaimedPayload announces the winner of a claim.
type TaskClaimedPayload struct {
	TaskID    string `json:"taskId"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

// AgentOnlinePayload announces a new arrival to everyone else.
type AgentOnlinePayload struct {
	Agent AgentCard `json:"agent"`
}

// AgentOfflinePayload announces a departure.
type AgentOfflinePayload struct {
	AgentID string `json:"agentId"`
}

// PlazaMessagePayload is a public message relayed to every connected agent.
type PlazaMessagePayload struct {
	From            string   `json:"from"`
	Content         string   `json:"content"`
	ConfidenceLevel *float64 `json:"confidenceLevel,omitempty"`
	Timestamp       int64    `json:"timestamp"`
}

// DirectMessagePayload is a private message delivered to one agent.
type DirectMessagePayload struct {
	From            string   `json:"from"`
	Content         string   `json:"content"`
	ConfidenceLevel *float64 `json:"confidenceLevel,omitempty"`
}

// WorkProgressPayload fans a work_update out to all connected agents.
type WorkProgressPayload struct {
	TaskID   string     `json:"taskId"`
	AgentID  string     `json:"agentId"`
	Status   TaskStatus `json:"status"`
	Progress float64    `json:"progress"`
	WorkHash string     `json:"workHash,omitempty"`
}

// Candidate is an available agent matching a coordination request.
type Candidate struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Capabilities []string   `json:"capabilities"`
	Reputation   Reputation `json:"reputation"`
}

// CoordinationOpportunityPayload advertises ranked candidates for a subtask.
// Advisory only: nothing is assigned.
type CoordinationOpportunityPayload struct {
	TaskID               string      `json:"taskId"`
	RequestingAgent      string      `json:"requestingAgent"`
	Subtask              string      `json:"subtask"`
	RequiredCapabilities []string    `json:"requiredCapabilities"`
	Candidates           []Candidate `json:"candidates"`
}

// SubscribedPayload confirms a subscription.
type SubscribedPayload struct {
	Topics []string `json:"topics"`
}

// ErrorPayload is sent on the originating connection for malformed or
// rejected frames.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ErrUnknownType is returned by Decode for types outside the closed union,
// including unsubscribe, which the protocol names but no handler serves.
var ErrUnknownType = errors.New("unknown message type")

// Payload is the closed union of envelope payloads. Only types in this
// package implement it.
type Payload interface {
	payload()
}

func (AgentCard) payload()                      {}
func (Task) payload()                           {}
func (HeartbeatPayload) payload()               {}
func (TaskClaimPayload) payload()               {}
func (AgentMessagePayload) payload()            {}
func (WorkUpdatePayload) payload()              {}
func (CoordinationRequestPayload) payload()     {}
func (SubscribePayload) payload()               {}
func (RegisteredPayload) payload()              {}
func (NewTaskPayload) payload()                 {}
func (OpenTasksPayload) payload()               {}
func (TaskClaimedPayload) payload()             {}
func (AgentOnlinePayload) payload()             {}
func (AgentOfflinePayload) payload()            {}
func (PlazaMessagePayload) payload()            {}
func (DirectMessagePayload) payload()           {}
func (WorkProgressPayload) payload()            {}
func (CoordinationOpportunityPayload) payload() {}
func (SubscribedPayload) payload()              {}
func (ErrorPayload) payload()                   {}

// Decode unmarshals the envelope's payload into its typed form based on the
// type tag. The switch is the single place the tag is interpreted; callers
// type-switch on the result.
func (e *Envelope) Decode() (Payload, error) {
	switch e.Type {
	case TypeRegister:
		return decodeAs[AgentCard](e)
	case TypeHeartbeat:
		return decodeAs[HeartbeatPayload](e)
	case TypeTaskAnnounce:
		return decodeAs[Task](e)
	case TypeTaskClaim:
		return decodeAs[TaskClaimPayload](e)
	case TypeAgentMessage:
		return decodeAs[AgentMessagePayload](e)
	case TypeWorkUpdate:
		return decodeAs[WorkUpdatePayload](e)
	case TypeCoordinationRequest:
		return decodeAs[CoordinationRequestPayload](e)
	case TypeSubscribe:
		return decodeAs[SubscribePayload](e)
	case TypeRegistered:
		return decodeAs[RegisteredPayload](e)
	case TypeNewTask:
		return decodeAs[NewTaskPayload](e)
	case TypeOpenTasks:
		return decodeAs[OpenTasksPayload](e)
	case TypeTaskClaimed:
		return decodeAs[TaskClaimedPayload](e)
	case TypeAgentOnline:
		return decodeAs[AgentOnlinePayload](e)
	case TypeAgentOffline:
		return decodeAs[AgentOfflinePayload](e)
	case TypePlazaMessage:
		return decodeAs[PlazaMessagePayload](e)
	case TypeDirectMessage:
		return decodeAs[DirectMessagePayload](e)
	case TypeWorkProgress:
		return decodeAs[WorkProgressPayload](e)
	case TypeCoordinationOpportunity:
		return decodeAs[CoordinationOpportunityPayload](e)
	case TypeSubscribed:
		return decodeAs[SubscribedPayload](e)
	case TypeError:
		return decodeAs[ErrorPayload](e)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, e.Type)
	}
}

func decodeAs[T Payload](e *Envelope) (Payload, error) {
	var p T
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Type, err)
		}
	}
	return p, nil
}
