package gocardless

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CreateBillingRequest opens a mandate-only billing request (BRQ…) the payer
// will authorize through a flow.
func (c *Client) CreateBillingRequest(ctx context.Context, token string, params BillingRequestParams) (*BillingRequest, error) {
	c.log(ctx, "request", "create_billing_request", map[string]any{
		"scheme":   params.Scheme,
		"currency": params.Currency,
	})

	body := map[string]any{
		"billing_requests": map[string]any{
			"mandate_request": map[string]any{
				"scheme":   params.Scheme,
				"currency": params.Currency,
			},
			"metadata": params.Metadata,
		},
	}

	raw, err := c.request(ctx, "create_billing_request", http.MethodPost, "/billing_requests", body, token, c.retryOpts)
	if err != nil {
		return nil, err
	}

	var envelope billingRequestEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode billing request: %w", err)
	}
	if envelope.BillingRequests == nil {
		return nil, fmt.Errorf("billing request missing from response")
	}

	c.log(ctx, "response", "create_billing_request", map[string]any{
		"billing_request_id": envelope.BillingRequests.ID,
		"status":             envelope.BillingRequests.Status,
	})
	return envelope.BillingRequests, nil
}

// CreateBillingRequestFlow wraps a billing request in a hosted authorization
// flow with the payer's details prefilled.
func (c *Client) CreateBillingRequestFlow(ctx context.Context, token string, params BillingRequestFlowParams) (*BillingRequestFlow, error) {
	c.log(ctx, "request", "create_billing_request_flow", map[string]any{
		"billing_request_id": params.BillingRequestID,
	})

	body := map[string]any{
		"billing_request_flows": map[string]any{
			"redirect_uri": params.RedirectURI,
			"exit_uri":     params.ExitURI,
			"prefilled_customer": map[string]any{
				"given_name": params.PayerName,
				"email":      params.PayerEmail,
			},
			"links": map[string]any{
				"billing_request": params.BillingRequestID,
			},
		},
	}

	raw, err := c.request(ctx, "create_billing_request_flow", http.MethodPost, "/billing_request_flows", body, token, c.retryOpts)
	if err != nil {
		return nil, err
	}

	var envelope billingRequestFlowEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode billing request flow: %w", err)
	}
	if envelope.BillingRequestFlows == nil {
		return nil, fmt.Errorf("billing request flow missing from response")
	}

	c.log(ctx, "response", "create_billing_request_flow", map[string]any{
		"flow_id": envelope.BillingRequestFlows.ID,
	})
	return envelope.BillingRequestFlows, nil
}

// GetMandate fetches the provider-side mandate by id.
func (c *Client) GetMandate(ctx context.Context, token, mandateID string) (*Mandate, error) {
	c.log(ctx, "request", "get_mandate", map[string]any{"mandate_id": mandateID})

	raw, err := c.request(ctx, "get_mandate", http.MethodGet, "/mandates/"+mandateID, nil, token, c.retryOpts)
	if err != nil {
		return nil, err
	}

	var envelope mandateEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode mandate: %w", err)
	}
	if envelope.Mandates == nil {
		return nil, fmt.Errorf("mandate missing from response")
	}

	c.log(ctx, "response", "get_mandate", map[string]any{
		"mandate_id": envelope.Mandates.ID,
		"status":     envelope.Mandates.Status,
	})
	return envelope.Mandates, nil
}

// CreatePayment submits a payment against an active mandate. The job and
// customer ids ride along as metadata so webhook events can be correlated.
func (c *Client) CreatePayment(ctx context.Context, token string, params PaymentParams) (*Payment, error) {
	c.log(ctx, "request", "create_payment", map[string]any{
		"mandate_id":   params.MandateID,
		"amount_pence": params.AmountPence,
	})

	body := map[string]any{
		"payments": map[string]any{
			"amount":      params.AmountPence,
			"currency":    params.Currency,
			"description": params.Description,
			"app_fee":     params.AppFeePence,
			"metadata":    params.Metadata,
			"links": map[string]any{
				"mandate": params.MandateID,
			},
		},
	}

	raw, err := c.request(ctx, "create_payment", http.MethodPost, "/payments", body, token, c.retryOpts)
	if err != nil {
		return nil, err
	}

	var envelope paymentEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	if envelope.Payments == nil {
		return nil, fmt.Errorf("payment missing from response")
	}

	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_id": envelope.Payments.ID,
		"status":     envelope.Payments.Status,
	})
	return envelope.Payments, nil
}

// GetPayment fetches the provider-side payment by id.
func (c *Client) GetPayment(ctx context.Context, token, paymentID string) (*Payment, error) {
	c.log(ctx, "request", "get_payment", map[string]any{"payment_id": paymentID})

	raw, err := c.request(ctx, "get_payment", http.MethodGet, "/payments/"+paymentID, nil, token, c.retryOpts)
	if err != nil {
		return nil, err
	}

	var envelope paymentEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	if envelope.Payments == nil {
		return nil, fmt.Errorf("payment missing from response")
	}

	c.log(ctx, "response", "get_payment", map[string]any{
		"payment_id": envelope.Payments.ID,
		"status":     envelope.Payments.Status,
	})
	return envelope.Payments, nil
}

// ValidateToken distinguishes "token expired/revoked" from other failures
// with a cheap read and a reduced retry budget before state-changing calls.
func (c *Client) ValidateToken(ctx context.Context, token string) (bool, error) {
	opts := c.retryOpts
	opts.MaxRetries = 1

	raw, err := c.request(ctx, "validate_token", http.MethodGet, "/creditors?limit=1", nil, token, opts)
	if err != nil {
		if IsTokenInvalid(err) {
			return false, nil
		}
		return false, err
	}

	var envelope creditorsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false, fmt.Errorf("decode creditors: %w", err)
	}
	return true, nil
}
