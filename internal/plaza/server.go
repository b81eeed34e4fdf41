// ABOUTME: WebSocket transport and server orchestration for the plaza.
// ABOUTME: Runs the agent socket listener, the query API, and the liveness sweep.

package plaza

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agoralabs/plaza/internal/config"
	"github.com/agoralabs/plaza/internal/protocol"
)

// writeWait bounds how long a single socket write may block a dispatch.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket connection to the hub's Conn seam. gorilla
// permits one concurrent writer, so sends are serialized here.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) Send(env *protocol.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteJSON(env)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

// Server hosts the plaza: the agent WebSocket listener, the read-only query
// API, and the periodic liveness sweep.
type Server struct {
	cfg    *config.Config
	hub    *Hub
	logger *slog.Logger

	wsServer  *http.Server
	apiServer *http.Server
}

// NewServer wires a hub and its listeners from configuration.
func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	hub := NewHub(Options{
		HeartbeatTimeout:   cfg.Plaza.HeartbeatTimeout,
		MessageLogCapacity: cfg.Plaza.MessageLogCapacity,
	}, logger)

	s := &Server{
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "server"),
	}

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", s.handleSocket)
	s.wsServer = &http.Server{
		Addr:              cfg.Server.WSAddr,
		Handler:           wsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	s.apiServer = &http.Server{
		Addr:              cfg.Server.APIAddr,
		Handler:           apiMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Hub exposes the coordination core, mainly for tests and embedding.
func (s *Server) Hub() *Hub {
	return s.hub
}

// WSHandler exposes the agent socket endpoint for embedding in another mux.
func (s *Server) WSHandler() http.Handler {
	return http.HandlerFunc(s.handleSocket)
}

// APIHandler exposes the query API for embedding in another mux.
func (s *Server) APIHandler() http.Handler {
	return s.apiServer.Handler
}

// handleSocket upgrades the connection and runs its read loop. Frame
// handling is sequential per connection; state mutation is serialized
// process-wide by the hub.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.logger.Debug("new connection to the plaza", "remote", r.RemoteAddr)

	wc := &wsConn{c: conn}
	defer func() {
		_ = wc.Close()
		s.hub.Disconnect(wc)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.writeError(wc, "Invalid message format")
			continue
		}

		if err := s.hub.HandleEnvelope(wc, &env); err != nil {
			s.writeError(wc, err.Error())
		}
	}
}

// writeError sends an error envelope on the originating connection. The
// connection stays open; rejection is per-message.
func (s *Server) writeError(c Conn, msg string) {
	env := protocol.NewEnvelope(protocol.TypeError, protocol.ErrorPayload{Error: msg})
	if err := c.Send(env); err != nil {
		s.logger.Debug("writing error envelope", "error", err)
	}
}

// Run starts both listeners and the liveness sweep, blocking until the
// context is canceled or a server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	wsLn, err := net.Listen("tcp", s.cfg.Server.WSAddr)
	if err != nil {
		return fmt.Errorf("listening on ws address: %w", err)
	}
	apiLn, err := net.Listen("tcp", s.cfg.Server.APIAddr)
	if err != nil {
		_ = wsLn.Close()
		return fmt.Errorf("listening on api address: %w", err)
	}

	errCh := s.startServers(wsLn, apiLn)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.runSweep(sweepCtx)

	serverErr := s.waitForShutdownSignal(ctx, errCh)
	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServers starts the socket and API servers in goroutines.
func (s *Server) startServers(wsLn, apiLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("the plaza is open", "addr", wsLn.Addr().String())
		if err := s.wsServer.Serve(wsLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ws server: %w", err)
		}
	}()

	go func() {
		s.logger.Info("query API listening", "addr", apiLn.Addr().String())
		if err := s.apiServer.Serve(apiLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	return errCh
}

// runSweep evicts stale agents on the configured interval until ctx ends.
func (s *Server) runSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Plaza.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.hub.SweepStale(); n > 0 {
				s.logger.Info("liveness sweep evicted agents", "count", n)
			}
		}
	}
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// gracefulShutdown stops both servers with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down the plaza")

	var errs []error
	if err := s.wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ws shutdown: %w", err))
	}
	if err := s.apiServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
