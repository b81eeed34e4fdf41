// ABOUTME: End-to-end tests over real WebSocket connections and the HTTP API.
// ABOUTME: Exercises the wire contract: upgrade, envelopes, error frames, queries.

package plaza

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoralabs/plaza/internal/config"
	"github.com/agoralabs/plaza/internal/protocol"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(cfg, logger)

	ws := httptest.NewServer(srv.WSHandler())
	t.Cleanup(ws.Close)
	api := httptest.NewServer(srv.APIHandler())
	t.Cleanup(api.Close)
	return srv, ws, api
}

func dialPlaza(t *testing.T, ws *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ws.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, typ protocol.MessageType, payload any, from string) {
	t.Helper()
	env := protocol.NewEnvelope(typ, payload)
	env.From = from
	require.NoError(t, conn.WriteJSON(env))
}

// readEnvelope reads the next frame with a deadline so a missing reply fails
// the test instead of hanging it.
func readEnvelope(t *testing.T, conn *websocket.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return &env
}

// expectType reads frames until one of the wanted type arrives.
func expectType(t *testing.T, conn *websocket.Conn, typ protocol.MessageType) *protocol.Envelope {
	t.Helper()
	for {
		env := readEnvelope(t, conn)
		if env.Type == typ {
			return env
		}
	}
}

func registerOverWire(t *testing.T, conn *websocket.Conn, id, name string) {
	t.Helper()
	sendEnvelope(t, conn, protocol.TypeRegister, protocol.AgentCard{
		ID: id, Name: name, Wallet: "0x" + id,
	}, "")
	env := expectType(t, conn, protocol.TypeRegistered)
	p, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, id, p.(protocol.RegisteredPayload).AgentID)
}

func TestServer_RegisterOverWire(t *testing.T) {
	_, ws, _ := newTestServer(t)
	conn := dialPlaza(t, ws)

	registerOverWire(t, conn, "wire-1", "Wire Agent")

	// The snapshot follows the confirmation.
	env := expectType(t, conn, protocol.TypeOpenTasks)
	p, err := env.Decode()
	require.NoError(t, err)
	assert.Empty(t, p.(protocol.OpenTasksPayload).Tasks)
}

func TestServer_MalformedJSONGetsErrorEnvelope(t *testing.T) {
	_, ws, _ := newTestServer(t)
	conn := dialPlaza(t, ws)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	env := expectType(t, conn, protocol.TypeError)
	p, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "Invalid message format", p.(protocol.ErrorPayload).Error)

	// The connection survives a rejected frame.
	registerOverWire(t, conn, "survivor", "Survivor")
}

func TestServer_UnknownTypeGetsErrorEnvelope(t *testing.T) {
	_, ws, _ := newTestServer(t)
	conn := dialPlaza(t, ws)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":      "unsubscribe",
		"payload":   map[string]any{},
		"messageId": "m-1",
		"timestamp": time.Now().UnixMilli(),
	}))

	env := expectType(t, conn, protocol.TypeError)
	p, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "unknown message type: unsubscribe", p.(protocol.ErrorPayload).Error)
}

func TestServer_ClaimConflictOverWire(t *testing.T) {
	_, ws, _ := newTestServer(t)
	first := dialPlaza(t, ws)
	second := dialPlaza(t, ws)
	registerOverWire(t, first, "first", "First")
	registerOverWire(t, second, "second", "Second")

	sendEnvelope(t, first, protocol.TypeTaskAnnounce, protocol.Task{Title: "wire task"}, "first")

	env := expectType(t, second, protocol.TypeNewTask)
	p, err := env.Decode()
	require.NoError(t, err)
	taskID := p.(protocol.NewTaskPayload).Task.ID

	// First claim wins and both sides see the broadcast.
	sendEnvelope(t, first, protocol.TypeTaskClaim, protocol.TaskClaimPayload{TaskID: taskID, AgentID: "first"}, "first")
	claim := expectType(t, second, protocol.TypeTaskClaimed)
	cp, err := claim.Decode()
	require.NoError(t, err)
	assert.Equal(t, "first", cp.(protocol.TaskClaimedPayload).AgentID)

	// The loser gets an error envelope with the canonical wording.
	sendEnvelope(t, second, protocol.TypeTaskClaim, protocol.TaskClaimPayload{TaskID: taskID, AgentID: "second"}, "second")
	errEnv := expectType(t, second, protocol.TypeError)
	ep, err := errEnv.Decode()
	require.NoError(t, err)
	assert.Equal(t, "Task is no longer available", ep.(protocol.ErrorPayload).Error)
}

func TestServer_DisconnectBroadcastsOffline(t *testing.T) {
	srv, ws, _ := newTestServer(t)
	leaver := dialPlaza(t, ws)
	watcher := dialPlaza(t, ws)
	registerOverWire(t, leaver, "leaver", "Leaver")
	registerOverWire(t, watcher, "watcher", "Watcher")

	require.NoError(t, leaver.Close())

	env := expectType(t, watcher, protocol.TypeAgentOffline)
	p, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "leaver", p.(protocol.AgentOfflinePayload).AgentID)

	require.Eventually(t, func() bool {
		return len(srv.Hub().Agents()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_QueryAPI(t *testing.T) {
	srv, ws, api := newTestServer(t)

	get := func(path string) (*http.Response, []byte) {
		t.Helper()
		resp, err := http.Get(api.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		return resp, body
	}

	t.Run("health", func(t *testing.T) {
		resp, body := get("/health")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK", string(body))
	})

	t.Run("ready requires an agent", func(t *testing.T) {
		resp, _ := get("/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	conn := dialPlaza(t, ws)
	registerOverWire(t, conn, "api-1", "API Agent")
	sendEnvelope(t, conn, protocol.TypeTaskAnnounce, protocol.Task{Title: "visible task"}, "api-1")
	require.Eventually(t, func() bool {
		return len(srv.Hub().Tasks()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("ready with an agent", func(t *testing.T) {
		resp, _ := get("/health/ready")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("agents", func(t *testing.T) {
		resp, body := get("/api/agents")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		var agents []protocol.AgentCard
		require.NoError(t, json.Unmarshal(body, &agents))
		require.Len(t, agents, 1)
		assert.Equal(t, "api-1", agents[0].ID)
	})

	t.Run("tasks", func(t *testing.T) {
		_, body := get("/api/tasks")
		var tasks []protocol.Task
		require.NoError(t, json.Unmarshal(body, &tasks))
		require.Len(t, tasks, 1)
		assert.Equal(t, "visible task", tasks[0].Title)
	})

	t.Run("messages", func(t *testing.T) {
		_, body := get("/api/messages?limit=1")
		var msgs []*protocol.Envelope
		require.NoError(t, json.Unmarshal(body, &msgs))
		require.Len(t, msgs, 1)
		assert.Equal(t, protocol.TypeTaskAnnounce, msgs[0].Type)
	})

	t.Run("messages rejects a bad limit", func(t *testing.T) {
		resp, _ := get("/api/messages?limit=banana")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("well-known card", func(t *testing.T) {
		_, body := get("/.well-known/agent.json")
		var card map[string]any
		require.NoError(t, json.Unmarshal(body, &card))
		assert.Equal(t, "The Plaza", card["name"])
		assert.Equal(t, "websocket", card["protocol"])
	})

	t.Run("mutating methods rejected", func(t *testing.T) {
		resp, err := http.Post(api.URL+"/api/agents", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
