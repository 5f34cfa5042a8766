package enums

import "fmt"

// MandateStatus tracks the lifecycle of a customer's direct-debit mandate.
// cancelled, expired and failed are terminal.
type MandateStatus string

const (
	MandateStatusPending   MandateStatus = "pending"
	MandateStatusActive    MandateStatus = "active"
	MandateStatusCancelled MandateStatus = "cancelled"
	MandateStatusExpired   MandateStatus = "expired"
	MandateStatusFailed    MandateStatus = "failed"
)

var validMandateStatuses = []MandateStatus{
	MandateStatusPending,
	MandateStatusActive,
	MandateStatusCancelled,
	MandateStatusExpired,
	MandateStatusFailed,
}

// String implements fmt.Stringer.
func (m MandateStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MandateStatus.
func (m MandateStatus) IsValid() bool {
	for _, candidate := range validMandateStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the mandate's life. A payment can
// only be collected against an active mandate, and a terminal status means a
// brand-new mandate must be set up.
func (m MandateStatus) IsTerminal() bool {
	switch m {
	case MandateStatusCancelled, MandateStatusExpired, MandateStatusFailed:
		return true
	}
	return false
}

// ParseMandateStatus converts raw input into a MandateStatus.
func ParseMandateStatus(value string) (MandateStatus, error) {
	for _, candidate := range validMandateStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mandate status %q", value)
}
