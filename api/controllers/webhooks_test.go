package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gcwebhook "github.com/glintbooks/glint-backend/internal/webhooks/gocardless"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/types"
)

type stubWebhookService struct {
	summary *gcwebhook.Summary
	err     error

	gotBody      []byte
	gotSignature string
}

func (s *stubWebhookService) Process(ctx context.Context, body []byte, signature string) (*gcwebhook.Summary, error) {
	s.gotBody = body
	s.gotSignature = signature
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

func TestGoCardlessWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")}
	handler := GoCardlessWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/gocardless-webhook", bytes.NewBufferString(`{"events":[]}`))
	req.Header.Set("Webhook-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "deadbeef", svc.gotSignature)
}

func TestGoCardlessWebhookRejectsUnparsableBody(t *testing.T) {
	svc := &stubWebhookService{err: pkgerrors.New(pkgerrors.CodeValidation, "unparsable webhook body")}
	handler := GoCardlessWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/gocardless-webhook", bytes.NewBufferString(`{"events":`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoCardlessWebhookAnswers200WithPerEventResults(t *testing.T) {
	svc := &stubWebhookService{summary: &gcwebhook.Summary{
		Processed: 1,
		Failed:    1,
		Results: []gcwebhook.EventResult{
			{EventID: "EV1", Status: "processed"},
			{EventID: "EV2", Status: "failed", Error: "payment event without payment link"},
		},
	}}
	handler := GoCardlessWebhook(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/gocardless-webhook", bytes.NewBufferString(`{"events":[{},{}]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// A verified delivery is 200 even when events inside it failed.
	assert.Equal(t, http.StatusOK, rec.Code)

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, data["processed"])
	assert.EqualValues(t, 1, data["failed"])
}

func TestGoCardlessWebhookLiveness(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/gocardless-webhook", nil)
	rec := httptest.NewRecorder()
	GoCardlessWebhookLiveness().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Data.(map[string]any)["status"])
}
