package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/glintbooks/glint-backend/pkg/config"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/logger"
	"github.com/glintbooks/glint-backend/pkg/metrics"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"

	// Pinned API version; GoCardless requires it on every call.
	apiVersion = "2015-07-06"
)

var (
	errClientIDRequired      = errors.New("gocardless client id is required")
	errClientSecretRequired  = errors.New("gocardless client secret is required")
	errWebhookSecretRequired = errors.New("gocardless webhook secret is required")
	errInvalidEnv            = fmt.Errorf("gocardless environment must be %q or %q", sandboxEnv, liveEnv)
	errLoggerRequired        = errors.New("gocardless logger is required")
)

var apiBaseURLs = map[string]string{
	sandboxEnv: "https://api-sandbox.gocardless.com",
	liveEnv:    "https://api.gocardless.com",
}

var connectBaseURLs = map[string]string{
	sandboxEnv: "https://connect-sandbox.gocardless.com",
	liveEnv:    "https://connect.gocardless.com",
}

var retryableStatuses = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// RetryOptions bounds the backoff loop around a single logical call.
type RetryOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration
}

// DefaultRetryOptions returns the production retry budget.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Timeout:      30 * time.Second,
	}
}

// APIError is a non-2xx provider response. Retryable is decided by the status
// code alone, never by sniffing the body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gocardless returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt. Client errors
// other than 429 are final.
func (e *APIError) Retryable() bool {
	_, ok := retryableStatuses[e.StatusCode]
	return ok
}

// IsTokenInvalid reports whether the error means the access token was rejected.
func IsTokenInvalid(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// Client exposes GoCardless primitives with centralized auth, retry, logging,
// idempotency keys, and error mapping. Stateless per call and safe for
// concurrent use.
type Client struct {
	httpClient     *http.Client
	clientID       string
	clientSecret   string
	environment    string
	webhookSecret  string
	apiBaseURL     string
	connectBaseURL string
	retryOpts      RetryOptions
	logger         *logger.Logger
	metrics        *metrics.PaymentMetrics
}

// NewClient initializes the GoCardless wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.GoCardlessConfig, logg *logger.Logger, pm *metrics.PaymentMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientSecret == "" {
		return nil, errClientSecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	retryOpts := DefaultRetryOptions()
	if cfg.MaxRetries > 0 {
		retryOpts.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialDelay > 0 {
		retryOpts.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		retryOpts.MaxDelay = cfg.MaxDelay
	}
	if cfg.Timeout > 0 {
		retryOpts.Timeout = cfg.Timeout
	}

	c := &Client{
		httpClient:     &http.Client{},
		clientID:       clientID,
		clientSecret:   clientSecret,
		environment:    env,
		webhookSecret:  webhookSecret,
		apiBaseURL:     apiBaseURLs[env],
		connectBaseURL: connectBaseURLs[env],
		retryOpts:      retryOpts,
		logger:         logg,
		metrics:        pm,
	}

	logg.Info(ctx, "gocardless client initialized")
	return c, nil
}

// Environment reports the normalized GoCardless environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// request runs one logical API call with the configured timeout and backoff.
// Mutating calls carry a stable Idempotency-Key across retries. The last error
// is propagated unchanged on exhaustion or non-retryable failure.
func (c *Client) request(ctx context.Context, operation, method, path string, body any, token string, opts RetryOptions) ([]byte, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", operation, err)
		}
		payload = encoded
	}

	idempotencyKey := ""
	if method == http.MethodPost {
		idempotencyKey = uuid.NewString()
	}

	backoff := retry.WithMaxRetries(
		uint64(opts.MaxRetries),
		retry.WithCappedDuration(opts.MaxDelay, retry.NewExponential(opts.InitialDelay)),
	)

	start := time.Now()
	var out []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, attemptErr := c.doOnce(ctx, method, c.apiBaseURL+path, payload, token, idempotencyKey, opts.Timeout)
		if attemptErr != nil {
			if isRetryableAttempt(attemptErr) {
				c.metrics.IncProviderRetry(operation)
				return retry.RetryableError(attemptErr)
			}
			return attemptErr
		}
		out = resp
		return nil
	})

	if err != nil {
		c.metrics.ObserveProviderCall(operation, "error", time.Since(start))
		c.log(ctx, "error", operation, map[string]any{"error": err.Error()})
		return nil, err
	}
	c.metrics.ObserveProviderCall(operation, "success", time.Since(start))
	return out, nil
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte, token, idempotencyKey string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("GoCardless-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

// transportError marks network-level failures (including timeouts), which are
// always retryable.
type transportError struct {
	cause error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("gocardless transport: %v", e.cause)
}

func (e *transportError) Unwrap() error {
	return e.cause
}

func isRetryableAttempt(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var transport *transportError
	return errors.As(err, &transport)
}

// MapError translates a client error into the domain taxonomy for callers that
// surface it over HTTP.
func MapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if IsTokenInvalid(err) {
		return pkgerrors.Wrap(pkgerrors.CodeReconnect, err, fmt.Sprintf("gocardless %s rejected the access token", operation)).
			WithDetails(map[string]any{"requires_reconnect": true})
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Retryable() {
			return pkgerrors.Wrap(pkgerrors.CodeProviderTimeout, err, fmt.Sprintf("gocardless %s unavailable", operation))
		}
		if apiErr.StatusCode == http.StatusNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, fmt.Sprintf("gocardless %s: resource not found", operation))
		}
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, fmt.Sprintf("gocardless %s failed", operation)).
			WithDetails(map[string]any{"provider_status": apiErr.StatusCode})
	}
	return pkgerrors.Wrap(pkgerrors.CodeProviderTimeout, err, fmt.Sprintf("gocardless %s failed", operation))
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("gocardless %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("gocardless %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "email", "code", "signature"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidEnv
	}
}
