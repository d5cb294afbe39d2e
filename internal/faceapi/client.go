package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIVersion is the REST API version used for every route.
const DefaultAPIVersion = "v1.2"

// Client talks to the face service over REST. A single Client satisfies both
// Operational and Administrative.
type Client struct {
	endpoint   string
	apiVersion string
	auth       Authorizer
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIVersion overrides the REST API version segment.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// NewClient builds a client for endpoint. No request is made.
func NewClient(endpoint string, auth Authorizer, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiVersion: DefaultAPIVersion,
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the normalised service endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type serviceErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, query, body, "application/json", out)
}

func (c *Client) doBinary(ctx context.Context, method, path string, query url.Values, data []byte, out any) error {
	return c.do(ctx, method, path, query, bytes.NewReader(data), "application/octet-stream", out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	target := fmt.Sprintf("%s/face/%s%s", c.endpoint, c.apiVersion, path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &ServiceRequestError{Message: fmt.Sprintf("failed to create request: %v", err), Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			return err
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("face service unreachable", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &ServiceRequestError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("face service call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeServiceError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ServiceRequestError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err), Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeServiceError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	reqErr := &ServiceRequestError{StatusCode: resp.StatusCode}

	var parsed serviceErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil && (parsed.Error.Code != "" || parsed.Error.Message != "") {
		reqErr.Code = parsed.Error.Code
		reqErr.Message = parsed.Error.Message
		return reqErr
	}

	reqErr.Message = strings.TrimSpace(string(raw))
	if reqErr.Message == "" {
		reqErr.Message = http.StatusText(resp.StatusCode)
	}
	return reqErr
}

func groupPath(groupID string, rest ...string) string {
	parts := append([]string{"/largepersongroups", url.PathEscape(groupID)}, rest...)
	return strings.Join(parts, "/")
}
