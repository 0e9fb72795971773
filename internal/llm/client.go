package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/circuitbreaker"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/config"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/metrics"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/ratecontrol"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/tracing"
)

// Client talks to the LLM completion service over HTTP. Calls are paced
// by the model's configured rate limits and protected by a circuit
// breaker so a degraded LLM service fails fast instead of piling up.
type Client struct {
	base        string
	model       string
	temperature float64
	maxTokens   int
	httpw       *circuitbreaker.HTTPWrapper
	logger      *zap.Logger
}

func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}
	return &Client{
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpw:       circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: timeout}, "llm", "llm-service", logger),
		logger:      logger,
	}
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Generate produces completion text for the prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "generate", prompt)
}

// Model returns the configured model name
func (c *Client) Model() string { return c.model }

func (c *Client) complete(ctx context.Context, operation, prompt string) (string, error) {
	// Rough 4-chars-per-token estimate is enough for pacing
	if delay := ratecontrol.DelayForRequest(c.model, len(prompt)/4); delay > 0 {
		c.logger.Debug("Pacing LLM request",
			zap.String("model", c.model),
			zap.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	url := c.base + "/completions"
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	start := time.Now()
	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.RecordLLMRequest(operation, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMRequest(operation, "error", time.Since(start).Seconds())
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordLLMRequest(operation, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		metrics.RecordLLMRequest(operation, "empty", time.Since(start).Seconds())
		return "", fmt.Errorf("llm service returned empty completion")
	}

	metrics.RecordLLMRequest(operation, "ok", time.Since(start).Seconds())
	return text, nil
}
