package gocardless

// Wire types for the subset of the GoCardless API this service drives. The
// provider wraps every resource in a keyed envelope ("billing_requests",
// "mandates", ...).

type BillingRequestParams struct {
	Scheme      string
	Currency    string
	Description string
	Metadata    map[string]string
}

type BillingRequest struct {
	ID       string             `json:"id"`
	Status   string             `json:"status"`
	Metadata map[string]string  `json:"metadata"`
	Links    BillingRequestLink `json:"links"`
}

type BillingRequestLink struct {
	MandateRequestMandate string `json:"mandate_request_mandate"`
}

type BillingRequestFlowParams struct {
	BillingRequestID string
	RedirectURI      string
	ExitURI          string
	PayerName        string
	PayerEmail       string
}

type BillingRequestFlow struct {
	ID               string `json:"id"`
	AuthorisationURL string `json:"authorisation_url"`
	ExpiresAt        string `json:"expires_at"`
}

type Mandate struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Scheme   string            `json:"scheme"`
	Metadata map[string]string `json:"metadata"`
}

type PaymentParams struct {
	// AmountPence is the gross charge in minor units.
	AmountPence int64
	Currency    string
	Description string
	MandateID   string
	// AppFeePence is the platform fee GoCardless routes to us.
	AppFeePence int64
	Metadata    map[string]string
}

type Payment struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	Links       PaymentLinks      `json:"links"`
}

type PaymentLinks struct {
	Mandate string `json:"mandate"`
}

type Creditor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AccessToken is the result of the OAuth code exchange. OrganisationID is the
// provider-assigned merchant identifier.
type AccessToken struct {
	AccessToken    string `json:"access_token"`
	TokenType      string `json:"token_type"`
	Scope          string `json:"scope"`
	OrganisationID string `json:"organisation_id"`
}

type billingRequestEnvelope struct {
	BillingRequests *BillingRequest `json:"billing_requests"`
}

type billingRequestFlowEnvelope struct {
	BillingRequestFlows *BillingRequestFlow `json:"billing_request_flows"`
}

type mandateEnvelope struct {
	Mandates *Mandate `json:"mandates"`
}

type paymentEnvelope struct {
	Payments *Payment `json:"payments"`
}

type creditorsEnvelope struct {
	Creditors []Creditor `json:"creditors"`
}
