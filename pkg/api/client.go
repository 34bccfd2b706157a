package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cognivoice/cognivoice-go/pkg/errorsx"
	"github.com/cognivoice/cognivoice-go/pkg/logging"
	"github.com/cognivoice/cognivoice-go/pkg/resilience"
	"github.com/cognivoice/cognivoice-go/pkg/session"
)

const defaultTimeout = 30 * time.Second

// APIError is the normalized failure shape for every backend call.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string { return e.Message }

// Config configures the API gateway.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Retry applies to GET requests only; writes are never replayed.
	// Zero MaxRetries disables it.
	Retry resilience.RetryPolicy

	// Breaker, when set, short-circuits requests after repeated 429s.
	Breaker *resilience.CircuitBreaker
}

// Client issues authenticated requests against the backend. The session
// is passed in explicitly; the client never consults global state for
// credentials. Reads retry on network failure; writes do not.
type Client struct {
	baseURL string
	http    *http.Client
	sess    *session.Session
	logger  *slog.Logger
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

// New creates a gateway client. A nil session yields unauthenticated
// requests, which is valid for public endpoints.
func New(cfg Config, sess *session.Session) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		sess:    sess,
		logger:  logging.NewComponentLogger(base, "api_gateway"),
		retry:   cfg.Retry,
		breaker: cfg.Breaker,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Do issues a JSON request. A nil body sends no payload; a nil out
// discards the response body. A 2xx response with an empty or non-JSON
// body leaves out untouched.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if method == http.MethodGet && c.retry.MaxRetries > 0 {
		return c.retry.Do(ctx, func() error {
			err := c.send(req.Clone(ctx), out)
			if err != nil && errorsx.Reason(err) != errorsx.ReasonGatewayRequest {
				return resilience.Permanent(err)
			}
			return err
		})
	}
	return c.send(req, out)
}

// DoMultipart issues a multipart POST carrying one file part plus plain
// form fields. The multipart writer sets its own boundary content type.
func (c *Client) DoMultipart(ctx context.Context, path string, fields map[string]string, fileField, fileName string, file io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
		}
	}
	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	if _, err := io.Copy(part, file); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	if err := mw.Close(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, out)
}

// Download streams a raw (non-JSON) response body into w, used for the
// CSV export endpoints.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	c.attachHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorsx.Wrap(c.statusError(resp), errorsx.ReasonGatewayStatus)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	return nil
}

func (c *Client) send(req *http.Request, out any) error {
	if c.breaker != nil && !c.breaker.Allow() {
		return errorsx.Wrap(&APIError{
			Message:    "too many requests, backing off",
			StatusCode: http.StatusTooManyRequests,
		}, errorsx.ReasonGatewayStatus)
	}
	c.attachHeaders(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request_failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()))
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	defer resp.Body.Close()

	c.logger.Debug("request_completed",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := c.statusError(resp)
		if c.breaker != nil && resp.StatusCode == http.StatusTooManyRequests {
			c.breaker.OnError(resilience.RateLimitError{Message: apiErr.Message})
		}
		return errorsx.Wrap(apiErr, errorsx.ReasonGatewayStatus)
	}
	if c.breaker != nil {
		c.breaker.OnSuccess()
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayRequest)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonGatewayDecode)
	}
	return nil
}

func (c *Client) attachHeaders(req *http.Request) {
	if c.sess != nil {
		if token := c.sess.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// statusError parses a structured {"message": ...} error body, falling
// back to a generic status message when the body is not JSON.
func (c *Client) statusError(resp *http.Response) *APIError {
	apiErr := &APIError{
		Message:    fmt.Sprintf("server responded with status %d", resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return apiErr
	}
	switch {
	case body.Message != "":
		apiErr.Message = body.Message
	case body.Error != "":
		apiErr.Message = body.Error
	}
	return apiErr
}
