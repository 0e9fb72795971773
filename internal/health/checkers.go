package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/session"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/vectordb"
)

// GraphChecker verifies the graph store answers queries. The graph
// store is the source of structured answers, so its failure is
// critical.
type GraphChecker struct {
	client *graph.Client
}

func NewGraphChecker(client *graph.Client) *GraphChecker {
	return &GraphChecker{client: client}
}

func (g *GraphChecker) Name() string           { return "graph" }
func (g *GraphChecker) IsCritical() bool       { return true }
func (g *GraphChecker) Timeout() time.Duration { return 5 * time.Second }

func (g *GraphChecker) Check(ctx context.Context) CheckResult {
	if err := g.client.Ping(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "graph store reachable"}
}

// VectorStoreChecker verifies the vector store readiness endpoint.
// Semantic fallback degrades to pure generation without it, so it is
// not critical.
type VectorStoreChecker struct {
	client *vectordb.Client
}

func NewVectorStoreChecker(client *vectordb.Client) *VectorStoreChecker {
	return &VectorStoreChecker{client: client}
}

func (v *VectorStoreChecker) Name() string           { return "vectordb" }
func (v *VectorStoreChecker) IsCritical() bool       { return false }
func (v *VectorStoreChecker) Timeout() time.Duration { return 5 * time.Second }

func (v *VectorStoreChecker) Check(ctx context.Context) CheckResult {
	if !v.client.Enabled() {
		return CheckResult{Status: StatusHealthy, Message: "vector search disabled"}
	}
	if !v.client.Healthy(ctx) {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "vector store not ready",
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "vector store ready"}
}

// HTTPServiceChecker probes an HTTP dependency's health endpoint
type HTTPServiceChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewHTTPServiceChecker(name, url string, critical bool) *HTTPServiceChecker {
	return &HTTPServiceChecker{
		name:     name,
		url:      url,
		critical: critical,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPServiceChecker) Name() string           { return h.name }
func (h *HTTPServiceChecker) IsCritical() bool       { return h.critical }
func (h *HTTPServiceChecker) Timeout() time.Duration { return 5 * time.Second }

func (h *HTTPServiceChecker) Check(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("%s returned %d", h.name, resp.StatusCode),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%s reachable", h.name)}
}

// SessionStoreChecker reports session store occupancy. In-memory, so
// it only ever degrades when the store grows past the expected bound.
type SessionStoreChecker struct {
	store       *session.Store
	maxSessions int
}

func NewSessionStoreChecker(store *session.Store, maxSessions int) *SessionStoreChecker {
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	return &SessionStoreChecker{store: store, maxSessions: maxSessions}
}

func (s *SessionStoreChecker) Name() string           { return "sessions" }
func (s *SessionStoreChecker) IsCritical() bool       { return false }
func (s *SessionStoreChecker) Timeout() time.Duration { return time.Second }

func (s *SessionStoreChecker) Check(ctx context.Context) CheckResult {
	stats := s.store.Stats()
	result := CheckResult{
		Status:  StatusHealthy,
		Message: "session store within bounds",
		Details: map[string]interface{}{
			"active_sessions": stats.ActiveSessions,
			"total_messages":  stats.TotalMessages,
		},
	}
	if stats.ActiveSessions > s.maxSessions {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("session count %d exceeds expected bound %d", stats.ActiveSessions, s.maxSessions)
	}
	return result
}
