package mandates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/gocardless"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

// defaultScheme and defaultCurrency match the UK Direct Debit setup every
// merchant on the platform uses today.
const (
	defaultScheme   = "bacs"
	defaultCurrency = "GBP"
)

type providerClient interface {
	CreateBillingRequest(ctx context.Context, token string, params gocardless.BillingRequestParams) (*gocardless.BillingRequest, error)
	CreateBillingRequestFlow(ctx context.Context, token string, params gocardless.BillingRequestFlowParams) (*gocardless.BillingRequestFlow, error)
	GetMandate(ctx context.Context, token, mandateID string) (*gocardless.Mandate, error)
}

type tokenSource interface {
	Token(ctx context.Context, merchantID uuid.UUID) (string, error)
}

type customerStore interface {
	FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Customer, error)
	SetMandateRequest(ctx context.Context, id uuid.UUID, billingRequestRef string) error
	UpdateMandateState(ctx context.Context, id uuid.UUID, ref *string, status *enums.MandateStatus) error
}

// ServiceParams groups dependencies for the mandate service.
type ServiceParams struct {
	Customers customerStore
	Provider  providerClient
	Tokens    tokenSource
	Logger    *logger.Logger
}

// Service drives the mandate lifecycle for customers.
type Service struct {
	customers customerStore
	provider  providerClient
	tokens    tokenSource
	logg      *logger.Logger
}

// NewService builds a mandate service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Customers == nil {
		return nil, errors.New("customers store is required")
	}
	if params.Provider == nil {
		return nil, errors.New("provider client is required")
	}
	if params.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		customers: params.Customers,
		provider:  params.Provider,
		tokens:    params.Tokens,
		logg:      params.Logger,
	}, nil
}

// AuthorizationFlow is the payer-facing mandate setup link.
type AuthorizationFlow struct {
	AuthorizationURL string
	BillingRequestID string
	ExpiresAt        string
}

// InitiateInput carries the flow endpoints and the overridable payer details.
type InitiateInput struct {
	MerchantID  uuid.UUID
	CustomerID  uuid.UUID
	RedirectURL string
	ExitURL     string
}

// InitiateMandate creates a billing request and an authorization flow around
// it, and stores the billing-request id as the provisional mandate ref. The
// mandate status is deliberately left unset here: it only moves to pending
// once the authorization link has actually been delivered to the payer.
func (s *Service) InitiateMandate(ctx context.Context, input InitiateInput) (*AuthorizationFlow, error) {
	customer, err := s.customers.FindByIDForMerchant(ctx, input.MerchantID, input.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "customer not found")
	}
	if customer.MandateStatus != nil && *customer.MandateStatus == enums.MandateStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "customer already has an active mandate")
	}

	token, err := s.tokens.Token(ctx, input.MerchantID)
	if err != nil {
		return nil, err
	}

	request, err := s.provider.CreateBillingRequest(ctx, token, gocardless.BillingRequestParams{
		Scheme:      defaultScheme,
		Currency:    defaultCurrency,
		Description: fmt.Sprintf("Direct Debit for %s", customer.Name),
		Metadata: map[string]string{
			"merchant_id": input.MerchantID.String(),
			"customer_id": input.CustomerID.String(),
		},
	})
	if err != nil {
		return nil, gocardless.MapError(err, "create billing request")
	}

	flow, err := s.provider.CreateBillingRequestFlow(ctx, token, gocardless.BillingRequestFlowParams{
		BillingRequestID: request.ID,
		RedirectURI:      input.RedirectURL,
		ExitURI:          input.ExitURL,
		PayerName:        customer.Name,
		PayerEmail:       customer.Email,
	})
	if err != nil {
		return nil, gocardless.MapError(err, "create billing request flow")
	}

	if err := s.customers.SetMandateRequest(ctx, input.CustomerID, request.ID); err != nil {
		// The provider-side billing request stays alive; a webhook or a retry
		// can still resolve it.
		s.logg.Error(s.logg.WithField(ctx, "billing_request_id", request.ID), "failed to store billing request ref", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting mandate request")
	}

	return &AuthorizationFlow{
		AuthorizationURL: flow.AuthorisationURL,
		BillingRequestID: request.ID,
		ExpiresAt:        flow.ExpiresAt,
	}, nil
}

// MarkAuthorizationSent records that the payer has been handed the
// authorization link, moving the mandate to pending.
func (s *Service) MarkAuthorizationSent(ctx context.Context, merchantID, customerID uuid.UUID) error {
	customer, err := s.customers.FindByIDForMerchant(ctx, merchantID, customerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "customer not found")
	}
	if customer.GCMandateRef == nil || !gocardless.IsBillingRequestID(*customer.GCMandateRef) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "customer has no authorization in flight")
	}

	pending := enums.MandateStatusPending
	return s.customers.UpdateMandateState(ctx, customerID, customer.GCMandateRef, &pending)
}

// RefreshResult reports the reconciled mandate state.
type RefreshResult struct {
	Status         enums.MandateStatus
	ProviderStatus string
	Updated        bool
}

// RefreshMandateStatus reconciles the stored mandate status against the
// provider. A billing-request ref means authorization has not completed, so
// pending is returned without a provider call.
func (s *Service) RefreshMandateStatus(ctx context.Context, merchantID, customerID uuid.UUID) (*RefreshResult, error) {
	customer, err := s.customers.FindByIDForMerchant(ctx, merchantID, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "customer not found")
	}
	if customer.GCMandateRef == nil || *customer.GCMandateRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer has no mandate to check")
	}

	if gocardless.IsBillingRequestID(*customer.GCMandateRef) {
		return &RefreshResult{Status: enums.MandateStatusPending, ProviderStatus: "pending_customer_approval"}, nil
	}

	token, err := s.tokens.Token(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	mandate, err := s.provider.GetMandate(ctx, token, *customer.GCMandateRef)
	if err != nil {
		var apiErr *gocardless.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			// The mandate is gone provider-side; treat as expired and drop
			// the dangling ref.
			expired := enums.MandateStatusExpired
			if updErr := s.customers.UpdateMandateState(ctx, customerID, nil, &expired); updErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, updErr, "persisting expired mandate")
			}
			return &RefreshResult{Status: expired, ProviderStatus: "not_found", Updated: true}, nil
		}
		return nil, gocardless.MapError(err, "get mandate")
	}

	mapped, ok := MapProviderStatus(mandate.Status)
	if !ok {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"mandate_id":      mandate.ID,
			"provider_status": mandate.Status,
		}), "unrecognized provider mandate status")
		current := enums.MandateStatusPending
		if customer.MandateStatus != nil {
			current = *customer.MandateStatus
		}
		return &RefreshResult{Status: current, ProviderStatus: mandate.Status}, nil
	}

	if customer.MandateStatus != nil && *customer.MandateStatus == mapped {
		return &RefreshResult{Status: mapped, ProviderStatus: mandate.Status}, nil
	}

	ref := customer.GCMandateRef
	if mapped.IsTerminal() {
		ref = nil
	}
	if err := s.customers.UpdateMandateState(ctx, customerID, ref, &mapped); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting mandate status")
	}
	return &RefreshResult{Status: mapped, ProviderStatus: mandate.Status, Updated: true}, nil
}

// MapProviderStatus folds the provider's mandate status vocabulary onto the
// local enum.
func MapProviderStatus(providerStatus string) (enums.MandateStatus, bool) {
	switch providerStatus {
	case "pending_customer_approval", "pending_submission", "submitted":
		return enums.MandateStatusPending, true
	case "active", "consumed":
		return enums.MandateStatusActive, true
	case "cancelled", "suspended_by_payer":
		return enums.MandateStatusCancelled, true
	case "expired":
		return enums.MandateStatusExpired, true
	case "failed", "blocked":
		return enums.MandateStatusFailed, true
	default:
		return "", false
	}
}
