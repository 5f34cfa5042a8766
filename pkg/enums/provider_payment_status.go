package enums

import "fmt"

// ProviderPaymentStatus mirrors GoCardless's payment sub-status while the
// local PaymentStatus stays at the coarser unpaid/processing/paid level.
type ProviderPaymentStatus string

const (
	ProviderPaymentStatusPendingSubmission ProviderPaymentStatus = "pending_submission"
	ProviderPaymentStatusSubmitted         ProviderPaymentStatus = "submitted"
	ProviderPaymentStatusConfirmed         ProviderPaymentStatus = "confirmed"
	ProviderPaymentStatusPaid              ProviderPaymentStatus = "paid"
	ProviderPaymentStatusFailed            ProviderPaymentStatus = "failed"
	ProviderPaymentStatusCancelled         ProviderPaymentStatus = "cancelled"
	ProviderPaymentStatusChargedBack       ProviderPaymentStatus = "charged_back"
)

var validProviderPaymentStatuses = []ProviderPaymentStatus{
	ProviderPaymentStatusPendingSubmission,
	ProviderPaymentStatusSubmitted,
	ProviderPaymentStatusConfirmed,
	ProviderPaymentStatusPaid,
	ProviderPaymentStatusFailed,
	ProviderPaymentStatusCancelled,
	ProviderPaymentStatusChargedBack,
}

// String implements fmt.Stringer.
func (p ProviderPaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProviderPaymentStatus.
func (p ProviderPaymentStatus) IsValid() bool {
	for _, candidate := range validProviderPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderPaymentStatus converts raw input into a ProviderPaymentStatus.
func ParseProviderPaymentStatus(value string) (ProviderPaymentStatus, error) {
	for _, candidate := range validProviderPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider payment status %q", value)
}
