// Package webhook provides the HTTP ingress for Drive push
// notifications, plus liveness and readiness probes.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driving"
	"github.com/celalgokce/gdrive-sync-clean/internal/logger"
)

// Google push-notification headers.
const (
	headerChannelID     = "X-Goog-Channel-ID"
	headerChannelToken  = "X-Goog-Channel-Token"
	headerResourceID    = "X-Goog-Resource-ID"
	headerResourceState = "X-Goog-Resource-State"
	headerMessageNumber = "X-Goog-Message-Number"
)

// Server receives push notifications and hands them to the notifier.
type Server struct {
	mu       sync.Mutex
	addr     string
	notifier driving.Notifier
	queue    driven.IntentQueue
	store    driven.StateStore
	server   *http.Server
	listener net.Listener
}

// NewServer creates the webhook server. The queue and state store are
// only used by the readiness probe.
func NewServer(addr string, notifier driving.Notifier, queue driven.IntentQueue, store driven.StateStore) *Server {
	return &Server{
		addr:     addr,
		notifier: notifier,
		queue:    queue,
		store:    store,
	}
}

// Handler returns the HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleNotification)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	return mux
}

// Start begins listening. Returns once the listener is bound, so a
// caller can register the webhook channel immediately after.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("webhook server: %v", err)
		}
	}()

	logger.Info("webhook server listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop drains and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleNotification extracts the push headers and delegates. The
// response code is all Google looks at: 2xx acknowledges, anything
// else triggers redelivery.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	messageNumber, _ := strconv.ParseInt(r.Header.Get(headerMessageNumber), 10, 64)
	note := driving.Notification{
		ChannelID:     r.Header.Get(headerChannelID),
		ResourceID:    r.Header.Get(headerResourceID),
		ResourceState: r.Header.Get(headerResourceState),
		Token:         r.Header.Get(headerChannelToken),
		MessageNumber: messageNumber,
	}

	result, err := s.notifier.HandleNotification(r.Context(), note)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAuthentication):
			http.Error(w, "invalid verification token", http.StatusUnauthorized)
		case errors.Is(err, domain.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			// Enqueue failure: let Google redeliver.
			logger.Error("handle notification: %v", err)
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accepted":  result.Accepted,
		"duplicate": result.Duplicate,
	})
}

// handleHealth is the shallow liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReady reports whether the pipeline behind the webhook can
// actually absorb a notification.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"queue": "ok", "state": "ok"}
	status := http.StatusOK

	if err := s.queue.Ping(r.Context()); err != nil {
		checks["queue"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := s.store.Ping(r.Context()); err != nil {
		checks["state"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{"checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("write response: %v", err)
	}
}
