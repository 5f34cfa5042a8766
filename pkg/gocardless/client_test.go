package gocardless

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glintbooks/glint-backend/pkg/config"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

func testClient(t *testing.T, serverURL string, opts RetryOptions) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test"})
	client, err := NewClient(context.Background(), config.GoCardlessConfig{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		WebhookSecret: "webhook-secret",
		Env:           "sandbox",
	}, logg, nil)
	require.NoError(t, err)
	client.apiBaseURL = serverURL
	client.connectBaseURL = serverURL
	client.retryOpts = opts
	return client
}

func fastRetry() RetryOptions {
	return RetryOptions{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Timeout:      2 * time.Second,
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	ctx := context.Background()

	_, err := NewClient(ctx, config.GoCardlessConfig{ClientSecret: "s", WebhookSecret: "w"}, logg, nil)
	assert.ErrorIs(t, err, errClientIDRequired)

	_, err = NewClient(ctx, config.GoCardlessConfig{ClientID: "c", ClientSecret: "s", WebhookSecret: "w", Env: "staging"}, logg, nil)
	assert.ErrorIs(t, err, errInvalidEnv)

	_, err = NewClient(ctx, config.GoCardlessConfig{ClientID: "c", ClientSecret: "s", WebhookSecret: "w"}, nil, nil)
	assert.ErrorIs(t, err, errLoggerRequired)
}

func TestRequestRetriesTransientStatuses(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"mandates":{"id":"MD123","status":"active"}}`))
	}))
	defer server.Close()

	opts := fastRetry()
	client := testClient(t, server.URL, opts)

	start := time.Now()
	mandate, err := client.GetMandate(context.Background(), "token", "MD123")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "MD123", mandate.ID)
	assert.Equal(t, int64(3), attempts.Load())
	// first retry waits initialDelay, second waits initialDelay*2
	assert.GreaterOrEqual(t, elapsed, 3*opts.InitialDelay)
}

func TestRequestDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())

	_, err := client.GetMandate(context.Background(), "token", "MD404")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int64(1), attempts.Load())
}

func TestRequestExhaustsRetryBudget(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())

	_, err := client.GetMandate(context.Background(), "token", "MD123")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	// initial attempt plus MaxRetries
	assert.Equal(t, int64(4), attempts.Load())
}

func TestIdempotencyKeyStableAcrossRetries(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if len(keys) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"payments":{"id":"PM1","status":"pending_submission"}}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())

	_, err := client.CreatePayment(context.Background(), "token", PaymentParams{
		AmountPence: 4500,
		Currency:    "GBP",
		MandateID:   "MD1",
	})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
}

func TestRequestSetsVersionAndAuthHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiVersion, r.Header.Get("GoCardless-Version"))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"mandates":{"id":"MD1","status":"active"}}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())
	_, err := client.GetMandate(context.Background(), "secret-token", "MD1")
	require.NoError(t, err)
}

func TestValidateTokenDistinguishesRejection(t *testing.T) {
	var attempts atomic.Int64
	status := http.StatusUnauthorized
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Write([]byte(`{"creditors":[{"id":"CR1","name":"Glint"}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())

	valid, err := client.ValidateToken(context.Background(), "stale")
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, int64(1), attempts.Load())

	status = http.StatusOK
	valid, err = client.ValidateToken(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestValidateTokenUsesReducedRetryBudget(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())

	_, err := client.ValidateToken(context.Background(), "token")
	require.Error(t, err)
	// initial attempt plus the single probe retry
	assert.Equal(t, int64(2), attempts.Load())
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/access_token", r.URL.Path)
		w.Write([]byte(`{"access_token":"live_tok","token_type":"bearer","scope":"read_write","organisation_id":"OR123"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())

	token, err := client.ExchangeCode(context.Background(), "auth-code", "https://app.glintbooks.com/callback")
	require.NoError(t, err)
	assert.Equal(t, "live_tok", token.AccessToken)
	assert.Equal(t, "OR123", token.OrganisationID)
}

func TestExchangeCodeRejectsIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"live_tok"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, fastRetry())

	_, err := client.ExchangeCode(context.Background(), "auth-code", "https://app.glintbooks.com/callback")
	assert.Error(t, err)
}

func TestAuthorizeURL(t *testing.T) {
	client := testClient(t, "https://connect-sandbox.gocardless.com", fastRetry())
	client.connectBaseURL = connectBaseURLs[sandboxEnv]

	u := client.AuthorizeURL("https://app.glintbooks.com/callback", "opaque-state")
	assert.Contains(t, u, "https://connect-sandbox.gocardless.com/oauth/authorize?")
	assert.Contains(t, u, "client_id=client-id")
	assert.Contains(t, u, "state=opaque-state")
	assert.Contains(t, u, "response_type=code")
}

func TestMapErrorClassification(t *testing.T) {
	reconnect := MapError(&APIError{StatusCode: http.StatusUnauthorized}, "get_mandate")
	assert.Equal(t, pkgerrors.CodeReconnect, pkgerrors.As(reconnect).Code())

	notFound := MapError(&APIError{StatusCode: http.StatusNotFound}, "get_mandate")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(notFound).Code())

	provider := MapError(&APIError{StatusCode: http.StatusUnprocessableEntity}, "create_payment")
	assert.Equal(t, pkgerrors.CodeProvider, pkgerrors.As(provider).Code())

	transient := MapError(&APIError{StatusCode: http.StatusServiceUnavailable}, "create_payment")
	assert.Equal(t, pkgerrors.CodeProviderTimeout, pkgerrors.As(transient).Code())

	transport := MapError(&transportError{cause: assert.AnError}, "create_payment")
	assert.Equal(t, pkgerrors.CodeProviderTimeout, pkgerrors.As(transport).Code())
}

func TestRequestTimeoutIsRetryable(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	opts := RetryOptions{
		MaxRetries:   1,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Timeout:      20 * time.Millisecond,
	}
	client := testClient(t, server.URL, opts)

	_, err := client.GetMandate(context.Background(), "token", "MD1")
	require.Error(t, err)
	assert.Equal(t, int64(2), attempts.Load())

	var transport *transportError
	assert.ErrorAs(t, err, &transport)
}
