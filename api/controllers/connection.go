package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/glintbooks/glint-backend/api/middleware"
	"github.com/glintbooks/glint-backend/api/responses"
	"github.com/glintbooks/glint-backend/api/validators"
	"github.com/glintbooks/glint-backend/internal/connection"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

type connectionService interface {
	BuildAuthorizationURL(ctx context.Context, merchantID uuid.UUID, redirectURL string) (*connection.AuthorizationIntent, error)
	CompleteHandshake(ctx context.Context, merchantID uuid.UUID, code, state string) (*connection.Status, error)
	Status(ctx context.Context, merchantID uuid.UUID) (*connection.Status, error)
	Check(ctx context.Context, merchantID uuid.UUID) (*connection.Status, error)
	Disconnect(ctx context.Context, merchantID uuid.UUID) error
}

type connectRequest struct {
	RedirectURL string `json:"redirectUrl" validate:"required,url"`
}

type connectCallbackRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
}

type connectionResponse struct {
	State          string     `json:"state"`
	OrganisationID *string    `json:"organisationId,omitempty"`
	ConnectedAt    *time.Time `json:"connectedAt,omitempty"`
}

func merchantFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.MerchantIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing merchant identity")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed merchant identity")
	}
	return id, nil
}

func connectionPayload(status *connection.Status) connectionResponse {
	return connectionResponse{
		State:          string(status.State),
		OrganisationID: status.OrganisationID,
		ConnectedAt:    status.ConnectedAt,
	}
}

// GoCardlessConnect starts the OAuth handshake and hands the signed
// authorization URL back to the UI.
func GoCardlessConnect(svc connectionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req connectRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		intent, err := svc.BuildAuthorizationURL(ctx, merchantID, req.RedirectURL)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{
			"url":   intent.URL,
			"state": intent.State,
		})
	}
}

// GoCardlessConnectCallback completes the handshake with the provider code.
func GoCardlessConnectCallback(svc connectionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req connectCallbackRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, err := svc.CompleteHandshake(ctx, merchantID, req.Code, req.State)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, connectionPayload(status))
	}
}

// GoCardlessConnection reports the connection state, with a live token probe
// so an expired token surfaces before the next collection fails.
func GoCardlessConnection(svc connectionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, err := svc.Check(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, connectionPayload(status))
	}
}

// GoCardlessDisconnect clears the stored connection.
func GoCardlessDisconnect(svc connectionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Disconnect(ctx, merchantID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"state": "disconnected"})
	}
}
