package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/glintbooks/glint-backend/api/responses"
	"github.com/glintbooks/glint-backend/api/validators"
	"github.com/glintbooks/glint-backend/internal/mandates"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

type mandateService interface {
	InitiateMandate(ctx context.Context, input mandates.InitiateInput) (*mandates.AuthorizationFlow, error)
	MarkAuthorizationSent(ctx context.Context, merchantID, customerID uuid.UUID) error
	RefreshMandateStatus(ctx context.Context, merchantID, customerID uuid.UUID) (*mandates.RefreshResult, error)
}

type setupMandateRequest struct {
	CustomerID  string `json:"customerId" validate:"required,uuid"`
	RedirectURL string `json:"redirectUrl" validate:"required,url"`
	ExitURL     string `json:"exitUrl" validate:"omitempty,url"`
}

type mandateSentRequest struct {
	CustomerID string `json:"customerId" validate:"required,uuid"`
}

type checkMandateRequest struct {
	CustomerID string `json:"customerId" validate:"required,uuid"`
}

// GoCardlessSetupMandate creates the payer authorization flow for a customer.
func GoCardlessSetupMandate(svc mandateService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req setupMandateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		customerID, err := validators.ParseUUIDField(req.CustomerID, "customerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		flow, err := svc.InitiateMandate(ctx, mandates.InitiateInput{
			MerchantID:  merchantID,
			CustomerID:  customerID,
			RedirectURL: req.RedirectURL,
			ExitURL:     req.ExitURL,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{
			"authorizationUrl": flow.AuthorizationURL,
			"billingRequestId": flow.BillingRequestID,
			"expiresAt":        flow.ExpiresAt,
		})
	}
}

// GoCardlessMandateSent records that the authorization link was delivered,
// moving the mandate to pending.
func GoCardlessMandateSent(svc mandateService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req mandateSentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		customerID, err := validators.ParseUUIDField(req.CustomerID, "customerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.MarkAuthorizationSent(ctx, merchantID, customerID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "pending"})
	}
}

// GoCardlessCheckMandate reconciles the stored mandate status against the
// provider and reports both views.
func GoCardlessCheckMandate(svc mandateService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req checkMandateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		customerID, err := validators.ParseUUIDField(req.CustomerID, "customerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.RefreshMandateStatus(ctx, merchantID, customerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"status":           string(result.Status),
			"gocardlessStatus": result.ProviderStatus,
			"updated":          result.Updated,
		})
	}
}
