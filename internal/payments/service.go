package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/gocardless"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

const paymentCurrency = "GBP"

type providerClient interface {
	GetMandate(ctx context.Context, token, mandateID string) (*gocardless.Mandate, error)
	CreatePayment(ctx context.Context, token string, params gocardless.PaymentParams) (*gocardless.Payment, error)
}

type tokenSource interface {
	Token(ctx context.Context, merchantID uuid.UUID) (string, error)
}

type customerStore interface {
	FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Customer, error)
	UpdateMandateState(ctx context.Context, id uuid.UUID, ref *string, status *enums.MandateStatus) error
}

type jobStore interface {
	FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Job, error)
	MarkPaymentSubmitted(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	UpdatePaymentIfProcessing(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	RevertPayment(ctx context.Context, id uuid.UUID) error
}

// ServiceParams groups dependencies for the payment collector.
type ServiceParams struct {
	Customers customerStore
	Jobs      jobStore
	Provider  providerClient
	Tokens    tokenSource
	Logger    *logger.Logger
}

// Service submits direct-debit collections for completed jobs.
type Service struct {
	customers customerStore
	jobs      jobStore
	provider  providerClient
	tokens    tokenSource
	logg      *logger.Logger
}

// NewService builds a payment collector.
func NewService(params ServiceParams) (*Service, error) {
	if params.Customers == nil {
		return nil, errors.New("customers store is required")
	}
	if params.Jobs == nil {
		return nil, errors.New("jobs store is required")
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
		jobs:      params.Jobs,
		provider:  params.Provider,
		tokens:    params.Tokens,
		logg:      params.Logger,
	}, nil
}

// CollectInput identifies the job, the payer, and the charge.
type CollectInput struct {
	MerchantID  uuid.UUID
	JobID       uuid.UUID
	CustomerID  uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// CollectResult reports the submitted payment.
type CollectResult struct {
	PaymentRef     string
	ProviderStatus enums.ProviderPaymentStatus
	Fees           Fees
}

// Collect validates the mandate, claims the job, submits the payment, and
// records the ledger fields. Any failure after the claim reverts the job to
// unpaid so it can be retried or collected another way.
func (s *Service) Collect(ctx context.Context, input CollectInput) (*CollectResult, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Amount.Exponent() < -2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount has sub-penny precision")
	}

	job, err := s.jobs.FindByIDForMerchant(ctx, input.MerchantID, input.JobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "job not found")
	}
	customer, err := s.customers.FindByIDForMerchant(ctx, input.MerchantID, input.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "customer not found")
	}
	if job.CustomerID != customer.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job does not belong to this customer")
	}

	mandateRef, err := requireActiveMandate(customer)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Token(ctx, input.MerchantID)
	if err != nil {
		return nil, err
	}

	// Re-verify directly against the provider: a cancellation can race
	// between job completion and collection.
	mandate, err := s.provider.GetMandate(ctx, token, mandateRef)
	if err != nil {
		var apiErr *gocardless.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			s.markMandateTerminal(ctx, customer.ID, enums.MandateStatusExpired)
			return nil, pkgerrors.MandateInactive(string(enums.MandateStatusExpired), true)
		}
		return nil, gocardless.MapError(err, "verify mandate")
	}
	if mandate.Status != "active" {
		s.syncStaleMandate(ctx, customer, mandate.Status)
		mapped := mandate.Status
		requiresNew := mandate.Status != "pending_customer_approval" && mandate.Status != "pending_submission" && mandate.Status != "submitted"
		return nil, pkgerrors.MandateInactive(mapped, requiresNew)
	}

	fees := ComputeFees(input.Amount)

	// Claim the job before the provider call so two concurrent collects
	// cannot both submit.
	claimed, err := s.jobs.MarkPaymentSubmitted(ctx, input.JobID, map[string]any{
		"payment_status":   enums.PaymentStatusProcessing,
		"payment_method":   enums.PaymentMethodDirectDebit,
		"amount_collected": input.Amount,
		"platform_fee":     fees.Platform,
		"provider_fee":     fees.ProviderEstimate,
		"net_amount":       fees.Net,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming job for collection")
	}
	if !claimed {
		// Another writer got here first. Do not overwrite its ref; the
		// webhook feed is the source of truth for that payment.
		s.logg.Warn(s.logg.WithField(ctx, "job_id", input.JobID.String()), "job already has a payment in flight")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "job already has a payment in flight")
	}

	payment, err := s.provider.CreatePayment(ctx, token, gocardless.PaymentParams{
		AmountPence: input.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:    paymentCurrency,
		Description: input.Description,
		MandateID:   mandateRef,
		AppFeePence: fees.Platform.Mul(decimal.NewFromInt(100)).IntPart(),
		Metadata: map[string]string{
			"job_id":      input.JobID.String(),
			"customer_id": input.CustomerID.String(),
			"merchant_id": input.MerchantID.String(),
		},
	})
	if err != nil {
		s.revert(ctx, input.JobID, err)
		return nil, gocardless.MapError(err, "create payment")
	}

	updated, err := s.jobs.UpdatePaymentIfProcessing(ctx, input.JobID, map[string]any{
		"gc_payment_ref":    payment.ID,
		"gc_payment_status": enums.ProviderPaymentStatusPendingSubmission,
	})
	if err != nil || !updated {
		// The provider payment exists but the local link failed. Do not
		// revert blindly; surface the ref so webhook catch-up or an operator
		// can reconcile.
		ctx = s.logg.WithFields(ctx, map[string]any{
			"job_id":      input.JobID.String(),
			"payment_ref": payment.ID,
		})
		s.logg.Error(ctx, "payment created but job link failed", err)
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment submitted but not recorded; awaiting webhook reconciliation")
	}

	return &CollectResult{
		PaymentRef:     payment.ID,
		ProviderStatus: enums.ProviderPaymentStatusPendingSubmission,
		Fees:           fees,
	}, nil
}

// requireActiveMandate is the fail-fast local precondition: the caller learns
// the actual status and whether a brand-new mandate is needed.
func requireActiveMandate(customer *models.Customer) (string, error) {
	status := "none"
	if customer.MandateStatus != nil {
		status = string(*customer.MandateStatus)
	}

	if customer.MandateStatus == nil || *customer.MandateStatus != enums.MandateStatusActive {
		requiresNew := true
		if customer.MandateStatus != nil && *customer.MandateStatus == enums.MandateStatusPending {
			requiresNew = false
		}
		return "", pkgerrors.MandateInactive(status, requiresNew)
	}
	if customer.GCMandateRef == nil || !gocardless.IsMandateID(*customer.GCMandateRef) {
		return "", pkgerrors.MandateInactive(status, true)
	}
	return *customer.GCMandateRef, nil
}

func (s *Service) syncStaleMandate(ctx context.Context, customer *models.Customer, providerStatus string) {
	switch providerStatus {
	case "cancelled", "suspended_by_payer":
		s.markMandateTerminal(ctx, customer.ID, enums.MandateStatusCancelled)
	case "expired":
		s.markMandateTerminal(ctx, customer.ID, enums.MandateStatusExpired)
	case "failed", "blocked":
		s.markMandateTerminal(ctx, customer.ID, enums.MandateStatusFailed)
	}
}

func (s *Service) markMandateTerminal(ctx context.Context, customerID uuid.UUID, status enums.MandateStatus) {
	if err := s.customers.UpdateMandateState(ctx, customerID, nil, &status); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "customer_id", customerID.String()), "failed to persist terminal mandate status", err)
	}
}

// revert is best-effort: if the rollback write itself fails the primary
// error still reaches the caller and the next status refresh repairs it.
func (s *Service) revert(ctx context.Context, jobID uuid.UUID, cause error) {
	if err := s.jobs.RevertPayment(ctx, jobID); err != nil {
		combined := multierr.Combine(cause, err)
		s.logg.Error(s.logg.WithField(ctx, "job_id", jobID.String()), "failed to revert job after collection failure", combined)
	}
}
