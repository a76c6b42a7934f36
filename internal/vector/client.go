// Package vector queries the managed vector index service over HTTP and
// converts nearest-neighbor hits into retrieval results.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/errors"
)

// outputFields is the fixed field set requested from the index service.
var outputFields = []string{
	"chunk_id", "parent_doc_id", "doc_type", "text",
	"chapter", "section", "year", "section_path", "metadata",
}

// Config configures the vector index client.
type Config struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration // per-call (default: 5s)
}

// Client speaks the vector index service's HTTP API. Connections are
// per-request; no long-lived session is assumed valid across requests.
type Client struct {
	cfg    Config
	http   *http.Client
	retry  errors.RetryConfig
	logger *slog.Logger
}

// NewClient validates configuration and builds the client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeCredentialMissing, "vector service base URL is required", nil)
	}
	if cfg.Collection == "" {
		return nil, errors.ConfigError("vector collection name is required", nil)
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

// Healthy probes the service by listing collections. Gates whether the
// provider is usable for this request.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/collections", nil)
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

type searchRequest struct {
	Collection   string    `json:"collection"`
	Vector       []float32 `json:"vector"`
	Limit        int       `json:"limit"`
	Filter       string    `json:"filter,omitempty"`
	OutputFields []string  `json:"output_fields"`
}

// searchHit is one nearest-neighbor hit. Fields is raw because the service
// returns heterogeneous field types depending on index schema version.
type searchHit struct {
	ID       string                     `json:"id"`
	Distance float64                    `json:"distance"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

type searchResponse struct {
	Data []searchHit `json:"data"`
}

// Search runs one nearest-neighbor query, retrying transient failures.
// Results carry confidence derived from the reported distance, clipped to
// [0,1].
func (c *Client) Search(ctx context.Context, vec []float32, limit int, docTypes []corpus.DocType) ([]*corpus.RetrievalResult, error) {
	reqBody := searchRequest{
		Collection:   c.cfg.Collection,
		Vector:       vec,
		Limit:        limit,
		Filter:       typeFilter(docTypes),
		OutputFields: outputFields,
	}

	var hits []searchHit
	err := errors.Retry(ctx, c.retry, func() error {
		h, err := c.searchOnce(ctx, reqBody)
		if err != nil {
			return err
		}
		hits = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]*corpus.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		chunk := c.parseHit(h)
		if chunk == nil {
			continue
		}
		r := corpus.NewResult(chunk, distanceToConfidence(h.Distance), "vector")
		r.SetProv(corpus.ProvVectorScore, strconv.FormatFloat(distanceToConfidence(h.Distance), 'f', 4, 64))
		results = append(results, r)
	}
	return results, nil
}

func (c *Client) searchOnce(ctx context.Context, reqBody searchRequest) ([]searchHit, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "marshal search request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "create search request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NetworkError("vector service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.New(errors.ErrCodeServiceStatus,
			fmt.Sprintf("vector service status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.DataError("decode search response", err)
	}
	return decoded.Data, nil
}

// parseHit converts a hit into a chunk, tolerating missing or malformed
// fields. Returns nil only when the hit has no usable identifier.
func (c *Client) parseHit(h searchHit) *corpus.Chunk {
	chunk := &corpus.Chunk{ID: h.ID}

	if id := stringField(h.Fields, "chunk_id"); id != "" {
		chunk.ID = id
	}
	if chunk.ID == "" {
		c.logger.Warn("vector hit without identifier dropped")
		return nil
	}

	chunk.ParentDocID = stringField(h.Fields, "parent_doc_id")
	chunk.Text = stringField(h.Fields, "text")
	chunk.DocType = corpus.DocType(stringField(h.Fields, "doc_type"))
	chunk.Chapter = stringField(h.Fields, "chapter")
	chunk.Section = stringField(h.Fields, "section")

	if raw, ok := h.Fields["year"]; ok {
		var year int
		if err := json.Unmarshal(raw, &year); err == nil {
			chunk.Year = year
		}
	}
	if raw, ok := h.Fields["section_path"]; ok {
		var path []string
		if err := json.Unmarshal(raw, &path); err == nil {
			chunk.SectionPath = path
		}
	}

	chunk.Metadata = parseMetadata(h.Fields["metadata"])
	return chunk
}

// parseMetadata handles the metadata field arriving either as a structured
// map or as a serialized JSON string, depending on how the chunk was
// ingested. Malformed metadata degrades to an empty map.
func parseMetadata(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var direct map[string]string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	// Map with non-string values: stringify each.
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err == nil {
		out := make(map[string]string, len(loose))
		for k, v := range loose {
			out[k] = fmt.Sprint(v)
		}
		return out
	}

	// Serialized string form: unwrap and recurse once.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return parseMetadata(json.RawMessage(s))
	}

	return nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// typeFilter builds the service's filter expression for allowed doc types.
func typeFilter(docTypes []corpus.DocType) string {
	if len(docTypes) == 0 {
		docTypes = corpus.AllDocTypes
	}
	buf := bytes.NewBufferString(`doc_type in [`)
	for i, t := range docTypes {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(`"` + string(t) + `"`)
	}
	buf.WriteString("]")
	return buf.String()
}

// distanceToConfidence maps a cosine distance in [0,2] to a confidence in
// [0,1].
func distanceToConfidence(distance float64) float64 {
	conf := 1 - distance/2
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}
