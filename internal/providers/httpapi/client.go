// Package httpapi is the REST core shared by the Chronicle and Bitbucket
// clients. It owns bearer authentication, the request timeout, status
// checking, and body handling so the service clients only describe
// endpoints and payloads.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response is carried in errors
// and log lines.
const maxErrorBody = 2048

// Client is a minimal bearer-authenticated JSON client bound to one
// upstream service. One Client per service, shared by all its calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// New builds a Client for the service at baseURL. A nil logger discards
// all output.
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger,
	}
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Body is the response body, truncated for logging.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// GetJSON issues a GET and decodes the JSON response into out. pathOrURL
// is either a path under the base URL or an absolute URL, as handed out
// by paginated listings.
func (c *Client) GetJSON(ctx context.Context, pathOrURL string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, pathOrURL, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", pathOrURL, err)
	}
	return nil
}

// PostJSON issues a POST carrying payload as JSON. When out is non-nil
// the response body is decoded into it; otherwise any 2xx body is
// discarded.
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, path, nil, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// GetBytes issues a GET and returns the raw response body. Used for file
// content, which is not JSON.
func (c *Client) GetBytes(ctx context.Context, pathOrURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, pathOrURL, nil, nil)
}

func (c *Client) do(ctx context.Context, method, pathOrURL string, query url.Values, payload []byte) ([]byte, error) {
	reqURL := c.resolve(pathOrURL)
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed", "method", method, "url", reqURL, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, reqURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("read response failed", "method", method, "url", reqURL, "error", err)
		return nil, fmt.Errorf("read response from %s: %w", reqURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{Method: method, URL: reqURL, StatusCode: resp.StatusCode, Body: truncateBody(body)}
		c.logger.Error("unexpected status",
			"method", method, "url", reqURL, "status", resp.StatusCode, "body", serr.Body)
		return nil, serr
	}
	return body, nil
}

// resolve passes absolute URLs through and joins everything else onto
// the base URL.
func (c *Client) resolve(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	return c.baseURL + "/" + strings.TrimLeft(pathOrURL, "/")
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
