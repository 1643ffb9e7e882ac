// Package api provides the HTTP and websocket control server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"linuxmacro/internal/engine"
	"linuxmacro/internal/macrofile"
	"linuxmacro/internal/protocol"
)

// Controller runs command lines against the recorder.
type Controller interface {
	ExecuteLine(ctx context.Context, line string) (protocol.Status, error)
}

// Server provides HTTP API for remote control
type Server struct {
	ctrl  Controller
	token string
	log   *logrus.Entry
	wsMgr *WSManager
}

// NewServer creates a new API server. An empty token disables auth.
func NewServer(ctrl Controller, token string, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.WithField("component", "api")
	}
	s := &Server{
		ctrl:  ctrl,
		token: token,
		log:   log,
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Handler returns the routed handler with auth and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start serves on port until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.wsMgr.start(ctx)

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Infof("Listening on %s", ln.Addr())
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "serve")
	}
	return nil
}

// BroadcastStatus pushes st to every websocket client. It never blocks.
func (s *Server) BroadcastStatus(st protocol.Status) {
	msg, err := protocol.NewMessage(protocol.TypeStatus, st)
	if err != nil {
		s.log.WithError(err).Error("Failed to encode status")
		return
	}
	s.wsMgr.Broadcast(msg)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Errorf("Recovered panic: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debugf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		// Skip auth for health check
		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Browsers cannot set headers on websocket upgrades
		if r.Header.Get("Authorization") != "Bearer "+s.token && r.URL.Query().Get("token") != s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.ctrl.ExecuteLine(r.Context(), protocol.CmdStatus)
	if err != nil {
		s.writeError(w, st, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCommand handles POST /api/command with a CommandPayload body
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload protocol.CommandPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&payload); err != nil {
		http.Error(w, "Invalid command payload", http.StatusBadRequest)
		return
	}

	s.log.Infof("Command %q from %s", payload.Line, r.RemoteAddr)
	st, err := s.ctrl.ExecuteLine(r.Context(), payload.Line)
	if err != nil {
		s.writeError(w, st, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, st protocol.Status, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.log.WithError(err).Error("Command failed")
	}
	writeJSON(w, code, protocol.ErrorPayload{Message: err.Error(), Status: st})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, protocol.ErrBadCommand), errors.Is(err, macrofile.ErrInvalidFile):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrDeviceUnavailable):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
