package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/glintbooks/glint-backend/api/responses"
	"github.com/glintbooks/glint-backend/api/validators"
	"github.com/glintbooks/glint-backend/internal/payments"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

type paymentService interface {
	Collect(ctx context.Context, input payments.CollectInput) (*payments.CollectResult, error)
}

type collectPaymentRequest struct {
	JobID       string          `json:"jobId" validate:"required,uuid"`
	CustomerID  string          `json:"customerId" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"omitempty,max=255"`
}

// GoCardlessCollectPayment submits a direct-debit collection for a job.
func GoCardlessCollectPayment(svc paymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := merchantFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req collectPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		jobID, err := validators.ParseUUIDField(req.JobID, "jobId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		customerID, err := validators.ParseUUIDField(req.CustomerID, "customerId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !req.Amount.IsPositive() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").WithDetails(map[string]any{"field": "amount"}))
			return
		}

		result, err := svc.Collect(ctx, payments.CollectInput{
			MerchantID:  merchantID,
			JobID:       jobID,
			CustomerID:  customerID,
			Amount:      req.Amount,
			Description: validators.SanitizeString(req.Description, 255),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"success":       true,
			"paymentId":     result.PaymentRef,
			"paymentStatus": string(result.ProviderStatus),
			"fees": map[string]string{
				"platform":  result.Fees.Platform.StringFixed(2),
				"estimated": result.Fees.ProviderEstimate.StringFixed(2),
				"net":       result.Fees.Net.StringFixed(2),
			},
		})
	}
}
