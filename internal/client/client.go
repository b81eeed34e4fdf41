// ABOUTME: Agent protocol client: connect, register, heartbeat, receive loop.
// ABOUTME: Reusable envelope any concrete agent builds on; hooks carry the policy.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agoralabs/plaza/internal/protocol"
)

// ErrNotRegistered is returned by senders used before the server has
// confirmed registration. Socket-open is not "ready"; only the registered
// confirmation is.
var ErrNotRegistered = errors.New("client: not registered with the plaza")

// State tracks the connection lifecycle:
// disconnected → connecting → registered → disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
)

// Config describes the agent presenting itself to the plaza.
type Config struct {
	Name            string
	Description     string
	Capabilities    []string
	Specializations []string
	Wallet          string
	Reputation      protocol.Reputation

	// PlazaURL defaults to ws://localhost:8080/ws.
	PlazaURL string

	// HeartbeatInterval defaults to 15s, a quarter of the server's default
	// eviction window.
	HeartbeatInterval time.Duration

	// RegisterTimeout bounds the wait for the registered confirmation.
	// Defaults to 10s.
	RegisterTimeout time.Duration
}

// Client maintains one agent connection to the plaza. It decodes every
// inbound frame and dispatches it to the Hooks; it takes no decisions of
// its own.
type Client struct {
	cfg     Config
	hooks   Hooks
	logger  *slog.Logger
	agentID string

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	currentTask *protocol.Task

	registered chan struct{}
	regOnce    sync.Once
	stopped    chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// New creates a client with a freshly generated agent id.
func New(cfg Config, hooks Hooks, logger *slog.Logger) *Client {
	if cfg.PlazaURL == "" {
		cfg.PlazaURL = "ws://localhost:8080/ws"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.RegisterTimeout == 0 {
		cfg.RegisterTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Client{
		cfg:        cfg,
		hooks:      hooks,
		logger:     logger.With("component", "plaza-client", "agent", cfg.Name),
		agentID:    id,
		registered: make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// ID returns the locally generated agent id.
func (c *Client) ID() string {
	return c.agentID
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the plaza, sends the register frame, and blocks until the
// server confirms registration or the timeout elapses. On success the
// heartbeat timer is running and hooks begin receiving events.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return errors.New("client: already connected")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.PlazaURL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dialing plaza: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()

	if err := c.sendRegister(); err != nil {
		_ = c.Close()
		return err
	}

	select {
	case <-c.registered:
	case <-time.After(c.cfg.RegisterTimeout):
		_ = c.Close()
		return errors.New("client: timed out waiting for registration confirmation")
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}

	c.wg.Add(1)
	go c.heartbeatLoop()

	c.logger.Info("connected to the plaza", "agent_id", c.agentID, "url", c.cfg.PlazaURL)
	return nil
}

// Close stops the heartbeat timer and releases the connection.
func (c *Client) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopped)
		c.mu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		c.wg.Wait()
	})
	return err
}

// CurrentTask returns the task this agent considers itself working on, if
// any. Purely client-side bookkeeping used to derive heartbeat status.
func (c *Client) CurrentTask() *protocol.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTask
}

// SetCurrentTask records (or clears, with nil) the task in progress.
func (c *Client) SetCurrentTask(task *protocol.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTask = task
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// sendRegister presents the agent card. From is empty on this first frame;
// identity rides in the card itself.
func (c *Client) sendRegister() error {
	env := protocol.NewEnvelope(protocol.TypeRegister, protocol.AgentCard{
		ID:              c.agentID,
		Name:            c.cfg.Name,
		Description:     c.cfg.Description,
		Capabilities:    c.cfg.Capabilities,
		Specializations: c.cfg.Specializations,
		Wallet:          c.cfg.Wallet,
		Reputation:      c.cfg.Reputation,
	})
	return c.write(env)
}

// write marshals and sends one envelope. gorilla allows a single concurrent
// writer, so writes share the client mutex.
func (c *Client) write(env *protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("client: no connection")
	}
	return c.conn.WriteJSON(env)
}

// send is the sender-path write: it stamps From and requires registration.
func (c *Client) send(t protocol.MessageType, payload any) error {
	c.mu.Lock()
	if c.state != StateRegistered {
		c.mu.Unlock()
		return ErrNotRegistered
	}
	c.mu.Unlock()

	env := protocol.NewEnvelope(t, payload)
	env.From = c.agentID
	return c.write(env)
}

// heartbeatLoop reports liveness on the configured interval. Status is busy
// while a current task is held, available otherwise.
func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopped:
			return
		case <-ticker.C:
			status := protocol.StatusAvailable
			if c.CurrentTask() != nil {
				status = protocol.StatusBusy
			}
			if err := c.send(protocol.TypeHeartbeat, protocol.HeartbeatPayload{Status: status}); err != nil {
				c.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// readLoop decodes inbound frames and dispatches them to the hooks until
// the connection closes.
func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopped:
			default:
				c.logger.Debug("disconnected from the plaza", "error", err)
				c.setState(StateDisconnected)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("unparseable frame from server", "error", err)
			continue
		}
		c.dispatch(&env)
	}
}

// dispatch routes one decoded server event to the matching hook.
func (c *Client) dispatch(env *protocol.Envelope) {
	payload, err := env.Decode()
	if err != nil {
		c.logger.Debug("ignoring frame", "type", env.Type, "error", err)
		return
	}

	switch p := payload.(type) {
	case protocol.RegisteredPayload:
		c.setState(StateRegistered)
		c.regOnce.Do(func() { close(c.registered) })
		c.logger.Info("registered with the plaza", "agent_id", p.AgentID)
	case protocol.NewTaskPayload:
		c.hooks.OnNewTask(p.Task)
	case protocol.OpenTasksPayload:
		for _, task := range p.Tasks {
			c.hooks.OnNewTask(task)
		}
	case protocol.TaskClaimedPayload:
		c.hooks.OnTaskClaimed(p)
	case protocol.PlazaMessagePayload:
		c.hooks.OnPlazaMessage(p)
	case protocol.DirectMessagePayload:
		c.hooks.OnDirectMessage(p)
	case protocol.CoordinationOpportunityPayload:
		c.hooks.OnCoordinationOpportunity(p)
	case protocol.WorkProgressPayload:
		c.hooks.OnWorkProgress(p)
	case protocol.ErrorPayload:
		c.logger.Warn("error from the plaza", "error", p.Error)
	case protocol.AgentOnlinePayload, protocol.AgentOfflinePayload, protocol.SubscribedPayload:
		// Presence and subscription acks are informational.
		c.logger.Debug("plaza event", "type", env.Type)
	default:
	}
}
