// Package rerank scores candidates against the query with a cross-encoder
// service and selects a final, diversity-aware top slice. The service is
// optional; without it, selection falls back to fused-score order.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clearlaw/lexengine/internal/errors"
)

// availabilityRecheck is how long a failed probe suppresses further probes.
// Keeps a down model service from adding a probe round-trip to every query.
const availabilityRecheck = 30 * time.Second

// Scorer abstracts the cross-encoder service for tests.
type Scorer interface {
	// Score returns one relevance score per passage, in passage order.
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
	// Available reports whether the service can be reached.
	Available(ctx context.Context) bool
}

// Config configures the cross-encoder client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration // per-call (default: 10s)
}

// Client calls the cross-encoder scoring service over HTTP. Availability is
// probed lazily on first use and cached; a failed probe is retried only
// after availabilityRecheck elapses.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	probed    bool
	available bool
	lastProbe time.Time
}

// NewClient validates configuration and builds the client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeCredentialMissing, "rerank service base URL is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Available reports whether the scoring service is reachable, probing at
// most once per recheck window.
func (c *Client) Available(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.probed && (c.available || time.Since(c.lastProbe) < availabilityRecheck) {
		return c.available
	}

	c.probed = true
	c.lastProbe = time.Now()
	c.available = c.probe(ctx)
	if !c.available {
		c.logger.Warn("rerank service unavailable, selection will use fused order")
	}
	return c.available
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

type scoreRequest struct {
	Model    string   `json:"model,omitempty"`
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns a relevance score per passage. Not retried: the caller has
// a deterministic fallback, so a second multi-second model call is worse
// than degrading immediately.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(scoreRequest{Model: c.cfg.Model, Query: query, Passages: passages})
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "marshal rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "create rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.markUnavailable()
		return nil, errors.NetworkError("rerank service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.New(errors.ErrCodeRerankFailed,
			fmt.Sprintf("rerank service status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.New(errors.ErrCodeRerankFailed, "decode rerank response", err)
	}
	if len(decoded.Scores) != len(passages) {
		return nil, errors.New(errors.ErrCodeRerankFailed,
			fmt.Sprintf("rerank score count mismatch: want %d, got %d", len(passages), len(decoded.Scores)), nil)
	}
	return decoded.Scores, nil
}

func (c *Client) markUnavailable() {
	c.mu.Lock()
	c.probed = true
	c.available = false
	c.lastProbe = time.Now()
	c.mu.Unlock()
}

var _ Scorer = (*Client)(nil)
