// Package lmsclient is a typed client for the LMS assignment REST API.
package lmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
	maxResponseBytes  = 10 << 20
)

var (
	// ErrMissingCredential is returned when a call is made without a token.
	ErrMissingCredential = errors.New("lmsclient: credential token is required")
	// ErrMissingBaseURL is returned by New when no base URL is configured.
	ErrMissingBaseURL = errors.New("lmsclient: base url is required")
)

// Credential authenticates a call. The token is sent as a bearer token.
type Credential struct {
	Token string
}

func (c Credential) header() (string, error) {
	token := strings.TrimSpace(c.Token)
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return "", ErrMissingCredential
	}
	return "Bearer " + token, nil
}

// APIError is a non-2xx response from the LMS.
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("lms api: %d %s (field %s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("lms api: %d %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// SchemaError is returned when a response body does not match its schema.
type SchemaError struct {
	Schema string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("lms response does not match %s: %v", e.Schema, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls the LMS REST API.
type Client struct {
	baseURL    string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	schemas    schemaSet
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds a client. Requests are traced through an otelhttp transport
// unless a custom HTTPClient is supplied.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    base,
		http:       httpClient,
		retries:    retries,
		retryDelay: delay,
		schemas:    schemas,
		logger:     cfg.Logger.With().Str("component", "lms_client").Logger(),
		sleep:      sleepContext,
	}, nil
}

// do sends a request and returns the body of a 2xx response. GET and DELETE
// are retried on network errors, 5xx and 429. POST and PUT are only retried
// on 429.
func (c *Client) do(ctx context.Context, cred Credential, method, path string, payload interface{}) ([]byte, error) {
	auth, err := cred.header()
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	idempotent := method == http.MethodGet || method == http.MethodDelete
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt, lastErr)
			c.logger.Debug().
				Err(lastErr).
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("retrying lms request")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		raw, retryAfter, err := c.once(ctx, auth, method, path, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if retryAfter > 0 {
			lastErr = &retryAfterError{err: err, after: retryAfter}
		}
		if !c.retryable(ctx, err, idempotent) {
			return nil, err
		}
	}

	var wrapped *retryAfterError
	if errors.As(lastErr, &wrapped) {
		return nil, wrapped.err
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, auth, method, path string, body []byte) ([]byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), decodeAPIError(resp.StatusCode, raw)
	}
	return raw, 0, nil
}

func (c *Client) retryable(ctx context.Context, err error, idempotent bool) bool {
	if ctx.Err() != nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return idempotent && apiErr.Temporary()
	}

	if !idempotent {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var withAfter *retryAfterError
	if errors.As(lastErr, &withAfter) && withAfter.after > 0 {
		if withAfter.after > maxRetryDelay {
			return maxRetryDelay
		}
		return withAfter.after
	}

	// retryDelay, 2*retryDelay, 4*retryDelay, ... capped at maxRetryDelay.
	wait := c.retryDelay
	for i := 1; i < attempt && wait < maxRetryDelay; i++ {
		wait <<= 1
	}
	if wait > maxRetryDelay {
		wait = maxRetryDelay
	}
	return wait
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Message != "":
			apiErr.Message = body.Message
		}
		apiErr.Field = body.Field
	}
	return apiErr
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
