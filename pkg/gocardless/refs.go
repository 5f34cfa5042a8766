package gocardless

import "strings"

// GoCardless resource ids carry a structural prefix. A customer's stored
// mandate ref transiently holds a billing-request id until authorization
// completes, so callers need to tell the two apart.
const (
	billingRequestPrefix = "BRQ"
	mandatePrefix        = "MD"
	paymentPrefix        = "PM"
)

func IsBillingRequestID(id string) bool {
	return strings.HasPrefix(id, billingRequestPrefix)
}

func IsMandateID(id string) bool {
	return strings.HasPrefix(id, mandatePrefix)
}

func IsPaymentID(id string) bool {
	return strings.HasPrefix(id, paymentPrefix)
}
