// Package tuition is the HTTP client for the external Tuition API and the
// cache for its admin bearer token.
package tuition

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/tuitionchat/tuition-chat-go/internal/errors"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointTuition  = "tuition"
	EndpointUnpaid   = "unpaid"
	EndpointPayments = "payments"
	EndpointLogin    = "login"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// Options configures a Client.
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool

	// HTTPClient overrides the client built from Timeout and InsecureSkipVerify.
	HTTPClient *http.Client

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Client calls the Tuition API. Calls are never retried: a failure is
// reported to the caller as-is.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client for baseURL (scheme and host, no trailing slash).
func NewClient(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed dev certificates
		}
		httpClient = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  log.WithModule("tuition"),
		metrics: opts.Metrics,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tuition fetches GET /api/v1/tuition/{studentNo}.
func (c *Client) Tuition(ctx context.Context, studentNo string) (Result, error) {
	return c.do(ctx, EndpointTuition, http.MethodGet, "/api/v1/tuition/"+url.PathEscape(studentNo), nil, "")
}

// Unpaid fetches GET /api/v1/Admin/unpaid with the admin token.
func (c *Client) Unpaid(ctx context.Context, token string) (Result, error) {
	return c.do(ctx, EndpointUnpaid, http.MethodGet, "/api/v1/Admin/unpaid", nil, token)
}

// Pay posts a payment to /api/v1/Payments with the admin token.
func (c *Client) Pay(ctx context.Context, token string, req PaymentRequest) (Result, error) {
	return c.do(ctx, EndpointPayments, http.MethodPost, "/api/v1/Payments", req, token)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login posts /api/v1/Auth/login. The caller interprets the result.
func (c *Client) Login(ctx context.Context, username, password string) (Result, error) {
	return c.do(ctx, EndpointLogin, http.MethodPost, "/api/v1/Auth/login", loginRequest{Username: username, Password: password}, "")
}

// Ping checks that the API answers at all; any HTTP status counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return apperrors.NewTransportError("ping", c.baseURL, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewTransportError("ping", c.baseURL, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body any, token string) (Result, error) {
	target := c.baseURL + path

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("%s: encode body: %w", endpoint, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Result{}, apperrors.NewTransportError(endpoint, target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordTuitionAPI(endpoint, "transport_error", time.Since(start).Seconds())
		c.logger.WithError(err).WarnContext(ctx, "Tuition API request failed",
			"endpoint", endpoint, "method", method, "path", path)
		return Result{}, apperrors.NewTransportError(endpoint, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	duration := time.Since(start)
	if err != nil {
		c.metrics.RecordTuitionAPI(endpoint, "transport_error", duration.Seconds())
		return Result{}, apperrors.NewTransportError(endpoint, target, err)
	}
	c.metrics.RecordTuitionAPI(endpoint, strconv.Itoa(resp.StatusCode), duration.Seconds())

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.logger.DebugContext(ctx, "Tuition API call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"ok", ok,
		"duration_ms", duration.Milliseconds(),
	)

	return Result{OK: ok, Status: resp.StatusCode, Data: decodeBody(raw)}, nil
}
