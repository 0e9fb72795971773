package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/eventlog"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/session"
)

// QueryProcessor answers one natural language query
type QueryProcessor interface {
	Process(ctx context.Context, query, customerID, sessionID string) string
}

// TurnSource reads persisted turn history for a session
type TurnSource interface {
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]eventlog.TurnRow, error)
}

// GraphReader runs read-only queries for the stats endpoints
type GraphReader interface {
	Execute(ctx context.Context, query string, params map[string]interface{}) ([]graph.Row, error)
}

// Handler serves the public query and session API
type Handler struct {
	processor QueryProcessor
	sessions  *session.Store
	turns     TurnSource
	store     GraphReader
	logger    *zap.Logger
}

func NewHandler(processor QueryProcessor, sessions *session.Store, store GraphReader, logger *zap.Logger) *Handler {
	return &Handler{
		processor: processor,
		sessions:  sessions,
		store:     store,
		logger:    logger,
	}
}

// SetTurnSource wires the persisted turn history endpoint. Without it
// the endpoint reports the feature as unavailable.
func (h *Handler) SetTurnSource(ts TurnSource) {
	h.turns = ts
}

// RegisterRoutes registers API endpoints with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.handleQuery)
	mux.HandleFunc("GET /api/sessions/{id}/history", h.handleSessionHistory)
	mux.HandleFunc("GET /api/sessions/{id}/context", h.handleSessionContext)
	mux.HandleFunc("GET /api/sessions/{id}/turns", h.handleSessionTurns)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.handleClearSession)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /api/customers", h.handleCustomers)
}

type queryRequest struct {
	Query      string `json:"query"`
	CustomerID string `json:"customer_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Query      string `json:"query"`
	CustomerID string `json:"customer_id,omitempty"`
	SessionID  string `json:"session_id"`
	Response   string `json:"response"`
	Timestamp  string `json:"timestamp"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request must be JSON")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	// A fresh session id keeps follow-up questions conversational even
	// when the caller doesn't manage sessions itself.
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
		h.sessions.CreateSession(sessionID, req.CustomerID)
	} else if req.CustomerID != "" {
		h.sessions.UpdateCustomerID(sessionID, req.CustomerID)
	}

	h.logger.Info("Processing query",
		zap.String("session_id", sessionID),
		zap.String("customer_id", req.CustomerID),
	)

	response := h.processor.Process(r.Context(), req.Query, req.CustomerID, sessionID)

	h.writeJSON(w, http.StatusOK, queryResponse{
		Query:      req.Query,
		CustomerID: req.CustomerID,
		SessionID:  sessionID,
		Response:   response,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := h.sessions.GetSession(sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			h.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	lastN := queryInt(r, "last_n", 0)
	history := h.sessions.GetHistory(sessionID, lastN)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   history,
		"count":      len(history),
	})
}

func (h *Handler) handleSessionContext(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := h.sessions.GetSession(sessionID); err != nil {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	lastN := queryInt(r, "last_n", 10)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"context":    h.sessions.GetContextString(sessionID, lastN),
	})
}

func (h *Handler) handleSessionTurns(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		h.writeError(w, http.StatusNotFound, "turn history not enabled")
		return
	}

	sessionID := r.PathValue("id")
	limit := queryInt(r, "limit", 20)

	turns, err := h.turns.RecentTurns(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to load turn history", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load turn history")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"turns":      turns,
		"count":      len(turns),
	})
}

func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !h.sessions.ClearSession(sessionID) {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"cleared":    true,
	})
}

var statsNodeLabels = []string{"Customer", "Policy", "Hospital", "Treatment", "Medication", "Claim"}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	sessionStats := h.sessions.Stats()
	stats["active_sessions"] = sessionStats.ActiveSessions
	stats["session_messages"] = sessionStats.TotalMessages

	if h.store != nil {
		for _, label := range statsNodeLabels {
			count, err := h.countQuery(r.Context(), fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", label))
			if err != nil {
				h.logger.Warn("Stats query failed", zap.String("label", label), zap.Error(err))
				continue
			}
			stats[strings.ToLower(label)+"_count"] = count
		}
		if count, err := h.countQuery(r.Context(), "MATCH ()-[r]->() RETURN count(r) AS count"); err == nil {
			stats["total_relationships"] = count
		}
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "graph store not available")
		return
	}

	rows, err := h.store.Execute(r.Context(), `
        MATCH (c:Customer)
        RETURN c.id AS id, c.name AS name, c.city AS city, c.age AS age
        ORDER BY c.id
        LIMIT 20`, nil)
	if err != nil {
		h.logger.Error("Failed to list customers", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}

	customers := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, row.Values)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
		"count":     len(customers),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) countQuery(ctx context.Context, query string) (interface{}, error) {
	rows, err := h.store.Execute(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Values["count"], nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Server wraps the API handler in an http.Server with sane timeouts
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(port int, handler *Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until the listener closes
func (s *Server) Start() error {
	s.logger.Info("API server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
