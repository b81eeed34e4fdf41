// ABOUTME: Read-only HTTP query surface for dashboards and external viewers.
// ABOUTME: Serves agent/task/message snapshots plus health and the plaza's own card.

package plaza

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// registerAPIRoutes mounts the query surface. Every route is read-only; the
// snapshots come from the hub under its dispatch mutex.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.HandleFunc("/api/agents", s.handleListAgents)
	mux.HandleFunc("/api/tasks", s.handleListTasks)
	mux.HandleFunc("/api/messages", s.handleListMessages)
	mux.HandleFunc("/.well-known/agent.json", s.handleAgentCard)
}

// writeJSON writes a JSON response with the permissive CORS header the
// dashboard relies on.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encoding response", "error", err)
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.hub.Agents())
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.hub.Tasks())
}

// handleListMessages serves the bounded transparency log, most recent first.
// The limit query parameter is clamped to the ring's contents.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := DefaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.hub.Messages(limit))
}

// handleAgentCard serves a self-describing card for the plaza itself, in the
// A2A .well-known convention.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":         "The Plaza",
		"description":  "Task marketplace coordination server for autonomous agents",
		"url":          "ws://" + s.cfg.Server.WSAddr + "/ws",
		"capabilities": []string{"task_discovery", "agent_coordination", "reputation_tracking"},
		"protocol":     "websocket",
	})
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once at least one agent is registered.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	agents := s.hub.Agents()
	if len(agents) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", len(agents))
}
