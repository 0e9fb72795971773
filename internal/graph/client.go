package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/circuitbreaker"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/config"
	ometrics "github.com/Brohammad/Insurance-Graph-Analysis/internal/metrics"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/tracing"
)

// Row is one result record. Columns preserves the RETURN clause order;
// Values maps column name to value.
type Row struct {
	Columns []string
	Values  map[string]interface{}
}

// Client talks to the graph store over its HTTP transaction API
type Client struct {
	base     string
	database string
	username string
	password string
	httpw    *circuitbreaker.HTTPWrapper
	logger   *zap.Logger
}

// NewClient creates a graph store client
func NewClient(cfg config.GraphConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "neo4j", "graph-store", logger)

	return &Client{
		base:     strings.TrimRight(cfg.URL, "/"),
		database: cfg.Database,
		username: cfg.Username,
		password: cfg.Password,
		httpw:    httpw,
		logger:   logger,
	}
}

// Transaction API wire types
type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txStatement struct {
	Statement  string                 `json:"statement"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []interface{} `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Execute runs one query in an auto-commit transaction and returns its rows
func (c *Client) Execute(ctx context.Context, query string, params map[string]interface{}) ([]Row, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/db/%s/tx/commit", c.base, c.database)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body, err := json.Marshal(txRequest{
		Statements: []txStatement{{Statement: query, Parameters: params}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		ometrics.RecordGraphQuery("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("graph store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ometrics.RecordGraphQuery("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("graph store status %d", resp.StatusCode)
	}

	var tr txResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		ometrics.RecordGraphQuery("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode graph response: %w", err)
	}

	if len(tr.Errors) > 0 {
		ometrics.RecordGraphQuery("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("graph store error %s: %s", tr.Errors[0].Code, tr.Errors[0].Message)
	}

	var rows []Row
	for _, result := range tr.Results {
		for _, d := range result.Data {
			values := make(map[string]interface{}, len(result.Columns))
			for i, col := range result.Columns {
				if i < len(d.Row) {
					values[col] = d.Row[i]
				}
			}
			rows = append(rows, Row{Columns: result.Columns, Values: values})
		}
	}

	ometrics.RecordGraphQuery("ok", time.Since(start).Seconds())
	c.logger.Debug("Graph query executed",
		zap.Int("rows", len(rows)),
		zap.Duration("took", time.Since(start)),
	)
	return rows, nil
}

// Ping verifies connectivity with a trivial query
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Execute(ctx, "RETURN 1 AS ok", nil)
	return err
}
