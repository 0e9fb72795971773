package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/circuitbreaker"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/config"
	ometrics "github.com/Brohammad/Insurance-Graph-Analysis/internal/metrics"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/tracing"
)

// Point is one scored search hit with its payload
type Point struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg   config.VectorDBConfig
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient creates a vector store client
func NewClient(cfg config.VectorDBConfig, logger *zap.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vector-store", logger)

	return &Client{
		cfg:   cfg,
		base:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpw: httpw,
		log:   logger,
	}
}

// Collection returns the configured default collection name
func (c *Client) Collection() string { return c.cfg.Collection }

// Enabled reports whether searches should be attempted at all
func (c *Client) Enabled() bool { return c != nil && c.cfg.Enabled }

type queryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []Point `json:"result"`
	Status string  `json:"status"`
}

// queryResponse for the /points/query endpoint which nests its points
type queryResponse struct {
	Result struct {
		Points []Point `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search runs a vector similarity query against a collection.
// Prefers the modern /points/query endpoint, falling back to
// /points/search for older servers.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, limit int) ([]Point, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("vectordb: search called while disabled")
	}
	if collection == "" {
		collection = c.cfg.Collection
	}
	if limit <= 0 {
		limit = c.cfg.TopK
	}
	start := time.Now()

	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", urlQuery)
	defer span.End()

	var thr *float64
	if c.cfg.ScoreThreshold > 0 {
		t := c.cfg.ScoreThreshold
		thr = &t
	}
	body, _ := json.Marshal(queryRequest{Query: vec, Limit: limit, ScoreThreshold: thr, WithPayload: true})

	call := func(url string, payload []byte) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectTraceparent(ctx, req)
		return c.httpw.Do(req)
	}

	resp, err := call(urlQuery, body)
	if err != nil {
		ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Fall back to /points/search
		legacy := map[string]interface{}{"vector": vec, "limit": limit, "with_payload": true}
		if c.cfg.ScoreThreshold > 0 {
			legacy["score_threshold"] = c.cfg.ScoreThreshold
		}
		body2, _ := json.Marshal(legacy)
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
		resp2, err2 := call(urlSearch, body2)
		if err2 != nil {
			ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant query/search failed: %w", err2)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant status %d", resp2.StatusCode)
		}
		var sr searchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
			ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
			return nil, err
		}
		ometrics.RecordVectorSearch(collection, "ok", time.Since(start).Seconds())
		return sr.Result, nil
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordVectorSearch(collection, "ok", time.Since(start).Seconds())
	return qr.Result.Points, nil
}

// Healthy reports whether the vector store answers its readiness probe
func (c *Client) Healthy(ctx context.Context) bool {
	if !c.Enabled() {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/readyz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
