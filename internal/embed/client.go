// Package embed is the client for the external embedding service: a batch
// of strings in, one fixed-dimension float vector per string out, in order.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/clearlaw/lexengine/internal/errors"
)

// Embedder abstracts the embedding service so the vector provider and the
// semantic cache can be tested with a stub.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector dimension the service produces.
	Dimensions() int
}

// Config configures the embedding client.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration // per-call (default: 5s)
}

// Client calls the embedding service over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	retry  errors.RetryConfig
	logger *slog.Logger
}

// NewClient validates configuration and builds the client. A missing base
// URL is a configuration error, detected here and never retried per-request.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeCredentialMissing, "embedding service base URL is required", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.ConfigError("embedding dimensions must be positive", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		retry:  errors.DefaultRetryConfig(),
		logger: logger,
	}, nil
}

// Dimensions returns the configured vector dimension.
func (c *Client) Dimensions() int { return c.cfg.Dimensions }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests vectors for all texts in one batched call, retrying
// transient failures with bounded backoff.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	var vectors [][]float32

	err := errors.Retry(ctx, c.retry, func() error {
		v, err := c.embedOnce(ctx, texts)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		c.logger.Warn("embedding failed",
			slog.Int("texts", len(texts)),
			slog.Duration("latency", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "embed batch", err)
	}

	return vectors, nil
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "create embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NetworkError("embedding service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.New(errors.ErrCodeServiceStatus,
			fmt.Sprintf("embedding service status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.DataError("decode embed response", err)
	}

	if len(decoded.Data) != len(texts) {
		return nil, errors.DataError(
			fmt.Sprintf("embedding count mismatch: want %d, got %d", len(texts), len(decoded.Data)), nil)
	}

	vectors := make([][]float32, len(decoded.Data))
	for i, d := range decoded.Data {
		if len(d.Embedding) != c.cfg.Dimensions {
			return nil, errors.DataError(
				fmt.Sprintf("embedding dimension mismatch: want %d, got %d", c.cfg.Dimensions, len(d.Embedding)), nil)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

var _ Embedder = (*Client)(nil)
