// Package server exposes the daemon's HTTP surface: the peer task
// endpoint, the discovery descriptor, and the operator API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Ghazalehdelfi/secretary-agent/internal/directory"
	"github.com/Ghazalehdelfi/secretary-agent/internal/discovery"
	"github.com/Ghazalehdelfi/secretary-agent/internal/logbuf"
	"github.com/Ghazalehdelfi/secretary-agent/internal/task"
	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// Negotiator handles one conversation turn. Both coordinator roles
// satisfy it.
type Negotiator interface {
	HandleTurn(ctx context.Context, sessionID, message string) (string, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth on /api routes
}

// Server routes inbound tasks to the right coordinator and serves the
// operator API.
type Server struct {
	tasks     *task.Store
	initiator Negotiator
	responder Negotiator
	card      protocol.AgentCard
	contacts  *directory.Store
	peers     *discovery.Registry
	cfg       Config
	logger    *slog.Logger
	logs      LogQuerier
	srv       *http.Server
}

// NewServer creates the HTTP server. logs may be nil.
func NewServer(tasks *task.Store, initiator, responder Negotiator, card protocol.AgentCard, contacts *directory.Store, peers *discovery.Registry, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tasks:     tasks,
		initiator: initiator,
		responder: responder,
		card:      card,
		contacts:  contacts,
		peers:     peers,
		cfg:       cfg,
		logger:    logger,
		logs:      logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /a2a", s.handleTask)
	mux.HandleFunc("GET "+protocol.WellKnownPath, s.handleCard)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/agents", s.requireAuth(s.handleListAgents))
	mux.HandleFunc("GET /api/contacts", s.requireAuth(s.handleListContacts))
	mux.HandleFunc("POST /api/contacts", s.requireAuth(s.handleAddContact))
	mux.HandleFunc("DELETE /api/contacts/{id}", s.requireAuth(s.handleRemoveContact))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Task endpoint ---

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	switch req.Method {
	case protocol.MethodSendTask:
		s.handleSendTask(w, r, req)
	case protocol.MethodGetTask:
		s.handleGetTask(w, req)
	default:
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: http.StatusBadRequest, Message: fmt.Sprintf("unknown method %q", req.Method)},
		})
	}
}

func (s *Server) handleSendTask(w http.ResponseWriter, r *http.Request, req protocol.Request) {
	var params protocol.TaskSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: http.StatusBadRequest, Message: "invalid tasks/send params"},
		})
		return
	}
	if params.ID == "" || params.Message.Text() == "" {
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: http.StatusBadRequest, Message: "task id and message are required"},
		})
		return
	}
	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = params.ID
	}

	s.tasks.Upsert(params.ID, params.Message)

	// Messages tagged by a peer's initiator are answered by our
	// responder; everything else is a local request and drives the
	// initiator.
	coord := s.initiator
	if params.Role() == protocol.RoleInitiator {
		coord = s.responder
	}

	s.logger.Info("task received", "task", params.ID, "session", sessionID, "role", params.Role())

	reply, err := coord.HandleTurn(r.Context(), sessionID, params.Message.Text())
	if err != nil {
		s.logger.Error("task turn failed", "task", params.ID, "error", err)
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: http.StatusInternalServerError, Message: err.Error()},
		})
		return
	}

	if err := s.tasks.Complete(params.ID, protocol.Message{
		Role:  "agent",
		Parts: []protocol.TextPart{protocol.NewTextPart(reply)},
	}); err != nil {
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: http.StatusInternalServerError, Message: err.Error()},
		})
		return
	}

	t, err := s.tasks.Get(params.ID, 0)
	if err != nil {
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: http.StatusInternalServerError, Message: err.Error()},
		})
		return
	}
	writeResponse(w, protocol.Response{ID: req.ID, Result: t})
}

func (s *Server) handleGetTask(w http.ResponseWriter, req protocol.Request) {
	var params protocol.TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: http.StatusBadRequest, Message: "invalid tasks/get params"},
		})
		return
	}

	t, err := s.tasks.Get(params.ID, params.HistoryLength)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, task.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeResponse(w, protocol.Response{
			ID:    req.ID,
			Error: &protocol.ErrorBody{Code: code, Message: err.Error()},
		})
		return
	}
	writeResponse(w, protocol.Response{ID: req.ID, Result: t})
}

// --- Discovery and operator API ---

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	cards := s.peers.ListCards(r.Context())
	if cards == nil {
		cards = []protocol.AgentCard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleListContacts(w http.ResponseWriter, _ *http.Request) {
	contacts, err := s.contacts.All()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

type addContactRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AgentName string `json:"agent_name,omitempty"`
	AgentURL  string `json:"agent_url,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.FirstName == "" && req.LastName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a name is required"})
		return
	}

	id, err := s.contacts.Add(directory.Contact{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AgentName: req.AgentName,
		AgentURL:  req.AgentURL,
		Email:     req.Email,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := s.contacts.Remove(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		switch strings.ToLower(lvl) {
		case "info":
			minLevel = slog.LevelInfo
		case "warn":
			minLevel = slog.LevelWarn
		case "error":
			minLevel = slog.LevelError
		}
	}

	var since time.Time
	if q := r.URL.Query().Get("since"); q != "" {
		if ms, err := strconv.ParseInt(q, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeResponse(w http.ResponseWriter, resp protocol.Response) {
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
