package xhs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
	"github.com/MARYCOMPLEX/food-agent/internal/metrics"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultSort        = "most_comments"
	defaultMaxComments = 30
)

// Config holds the spider sidecar connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client is the document-source client over the spider sidecar's HTTP API.
// Zero search hits are an empty result, not an error; transport and
// sidecar failures are errors so the orchestrator can tell them apart.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a document-source client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Search runs one keyword query against the source.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SourceDocument, error) {
	q := url.Values{}
	q.Set("keyword", query)
	q.Set("count", strconv.Itoa(limit))
	q.Set("sort", defaultSort)

	var resp struct {
		Status  string    `json:"status"`
		Message string    `json:"message,omitempty"`
		Notes   []noteDTO `json:"notes"`
	}
	if err := c.get(ctx, "/api/v1/search", q, &resp); err != nil {
		metrics.SourceRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("%w: search %q: %w", domain.ErrSourceUnavailable, query, err)
	}
	if resp.Status != "success" {
		metrics.SourceRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("%w: search %q: %s", domain.ErrSourceUnavailable, query, resp.Message)
	}
	metrics.SourceRequestsTotal.WithLabelValues("search", "success").Inc()

	docs := make([]domain.SourceDocument, 0, len(resp.Notes))
	for _, n := range resp.Notes {
		docs = append(docs, n.toDomain())
	}
	return docs, nil
}

// Fetch returns one note with its comments.
func (c *Client) Fetch(ctx context.Context, id string) (domain.SourceDocument, error) {
	q := url.Values{}
	q.Set("max_comments", strconv.Itoa(defaultMaxComments))

	var resp struct {
		Status  string  `json:"status"`
		Message string  `json:"message,omitempty"`
		Note    noteDTO `json:"note"`
	}
	if err := c.get(ctx, "/api/v1/note/"+url.PathEscape(id), q, &resp); err != nil {
		metrics.SourceRequestsTotal.WithLabelValues("fetch", "error").Inc()
		return domain.SourceDocument{}, fmt.Errorf("%w: fetch %s: %w", domain.ErrSourceUnavailable, id, err)
	}
	if resp.Status != "success" {
		metrics.SourceRequestsTotal.WithLabelValues("fetch", "error").Inc()
		return domain.SourceDocument{}, fmt.Errorf("%w: fetch %s: %s", domain.ErrSourceUnavailable, id, resp.Message)
	}
	metrics.SourceRequestsTotal.WithLabelValues("fetch", "success").Inc()

	return resp.Note.toDomain(), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
