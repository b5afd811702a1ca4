package otx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pulse_etl/internal/domain"
)

const (
	SourceID   = "otx"
	SourceName = "AlienVault OTX"

	DefaultBaseURL = "https://otx.alienvault.com/api/v1/pulses/subscribed"

	apiKeyHeader = "X-OTX-API-KEY"
	maxErrorBody = 200
)

// Config holds OTX source configuration.
type Config struct {
	BaseURL       string
	APIKey        string
	PageSize      int
	ModifiedSince string
	Timeout       time.Duration
}

// Client fetches single pages from the OTX pulses API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	pageSize      int
	modifiedSince string
	logger        *slog.Logger
}

// New creates a new OTX client.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		pageSize:      cfg.PageSize,
		modifiedSince: cfg.ModifiedSince,
		logger:        logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (c *Client) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (c *Client) Name() string {
	return SourceName
}

// StartURL returns the URL of the first page.
func (c *Client) StartURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	if c.pageSize > 0 {
		q.Set("limit", strconv.Itoa(c.pageSize))
	}
	if c.modifiedSince != "" {
		q.Set("modified_since", c.modifiedSince)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// FetchPage performs one authenticated GET against pageURL and decodes the
// page envelope. It does not retry.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*domain.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "PulseETL/1.0")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: execute request: %w", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrTransientNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       snippet(body),
			Kind:       classifyStatus(resp.StatusCode),
		}
	}

	page, err := decodePage(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched page",
		"url", pageURL,
		"results", len(page.Results),
		"has_next", page.Next != "",
	)

	return page, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return domain.ErrAuth
	case code == http.StatusTooManyRequests, code >= 500:
		return domain.ErrTransientNetwork
	default:
		return domain.ErrMalformedResponse
	}
}

func decodePage(body []byte) (*domain.Page, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrMalformedResponse, err)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: response is null", domain.ErrMalformedResponse)
	}

	rawResults, ok := env["results"]
	if !ok {
		return nil, fmt.Errorf("%w: missing results", domain.ErrMalformedResponse)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawResults, &items); err != nil || items == nil {
		return nil, fmt.Errorf("%w: results is not a list", domain.ErrMalformedResponse)
	}

	rawNext, ok := env["next"]
	if !ok {
		return nil, fmt.Errorf("%w: missing next", domain.ErrMalformedResponse)
	}
	var next *string
	if err := json.Unmarshal(rawNext, &next); err != nil {
		return nil, fmt.Errorf("%w: next is not a string or null", domain.ErrMalformedResponse)
	}

	page := &domain.Page{Results: make([]domain.RawPulse, 0, len(items))}
	if next != nil {
		page.Next = *next
	}
	if rawCount, ok := env["count"]; ok {
		_ = json.Unmarshal(rawCount, &page.Count)
	}

	for i, item := range items {
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()

		var rec domain.RawPulse
		if err := dec.Decode(&rec); err != nil || rec == nil {
			return nil, fmt.Errorf("%w: result %d is not an object", domain.ErrMalformedResponse, i)
		}
		page.Results = append(page.Results, rec)
	}

	return page, nil
}

func snippet(body []byte) string {
	s := string(bytes.TrimSpace(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
