// ABOUTME: HTTP client for the compose server: stream requests, draft saves and history
// ABOUTME: Every request carries the bearer token from the configured token source

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389/coven-compose/internal/auth"
	"github.com/2389/coven-compose/internal/config"
)

// APIError reports a non-2xx response from a non-streaming endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to one compose server.
type Client struct {
	baseURL string
	paths   config.ServerConfig
	http    *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
}

// New creates a client for the server described by cfg. A nil httpClient
// uses http.DefaultClient; a nil tokens sends no Authorization header.
func New(cfg config.ServerConfig, tokens auth.TokenSource, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		paths:   cfg,
		http:    httpClient,
		tokens:  tokens,
		logger:  logger.With("component", "client"),
	}
}

// HTTPClient returns the underlying HTTP client, shared with stream transports.
func (c *Client) HTTPClient() *http.Client { return c.http }

// endpoint joins the base URL with path, substituting {id}.
func (c *Client) endpoint(path, id string) string {
	if strings.Contains(path, "{id}") {
		path = strings.ReplaceAll(path, "{id}", url.PathEscape(id))
	}
	return c.baseURL + path
}

// header builds the common request headers.
func (c *Client) header() (http.Header, error) {
	h := http.Header{}
	if err := auth.SetBearer(h, c.tokens); err != nil {
		return nil, fmt.Errorf("resolving token: %w", err)
	}
	return h, nil
}

// decodeError turns a failed response into an APIError.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(bytes.TrimSpace(data))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
