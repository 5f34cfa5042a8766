package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/glintbooks/glint-backend/api/responses"
	gcwebhook "github.com/glintbooks/glint-backend/internal/webhooks/gocardless"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

const webhookSignatureHeader = "Webhook-Signature"

// maxWebhookBody bounds the request body; GoCardless deliveries are small.
const maxWebhookBody = 1 << 20

type webhookService interface {
	Process(ctx context.Context, body []byte, signature string) (*gcwebhook.Summary, error)
}

// GoCardlessWebhook receives the provider event feed. A verified delivery is
// always answered 200 even when individual events fail: the failure detail
// lives in the per-event results and the provider must not retry the whole
// batch forever.
func GoCardlessWebhook(svc webhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		summary, err := svc.Process(ctx, body, r.Header.Get(webhookSignatureHeader))
		if err != nil {
			var typed *pkgerrors.Error
			if !errors.As(err, &typed) {
				err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process webhook")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}

// GoCardlessWebhookLiveness answers the provider's endpoint probe.
func GoCardlessWebhookLiveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
