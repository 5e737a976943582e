package api

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

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/zombor/expense-tracker/internal/apperr"
)

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 4 << 20

// Client talks to the expense backend REST API
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.client.Timeout = d
	}
}

// WithRateLimit limits outgoing requests to r per second with the given burst
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(cl *Client) {
		if r > 0 {
			cl.limiter = rate.NewLimiter(r, burst)
		}
	}
}

// NewClient creates a new Client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http or https: %s", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request describes one API call
type request struct {
	method string
	path   string
	token  string
	query  url.Values
	body   any

	// raw bodies (multipart uploads) bypass JSON encoding
	rawBody     io.Reader
	contentType string
}

// do performs the call and classifies the outcome: transport failures and
// 5xx responses are network errors, 401 is an auth error and any other
// non-2xx response is a server rejection.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	op := r.method + " " + r.path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	body := r.rawBody
	contentType := r.contentType
	if body == nil && r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &apperr.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &apperr.NetworkError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &apperr.AuthError{Reason: reason(data, resp.StatusCode)}
	case resp.StatusCode >= 500:
		return nil, &apperr.NetworkError{
			Op:  op,
			Err: fmt.Errorf("server unavailable (status %d): %s", resp.StatusCode, reason(data, resp.StatusCode)),
		}
	default:
		return nil, &apperr.ServerRejection{StatusCode: resp.StatusCode, Reason: reason(data, resp.StatusCode)}
	}
}

// reason extracts the server's explanation from an error body
func reason(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message", "detail", "reason"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		return text
	}
	return http.StatusText(status)
}

// decodeList decodes a JSON array that is either the whole body or held
// under key in an envelope object.
func decodeList(body []byte, key string, out any) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("decoding %s: invalid JSON", key)
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		res = res.Get(key)
	}
	if !res.IsArray() {
		return fmt.Errorf("decoding %s: expected a list", key)
	}
	if err := json.Unmarshal([]byte(res.Raw), out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// decodeObject decodes body into out; an empty body leaves out untouched and
// reports false.
func decodeObject(body []byte, out any) (bool, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
