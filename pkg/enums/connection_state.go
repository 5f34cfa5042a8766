package enums

import "fmt"

// ConnectionState is computed from the merchant record alone: token and
// organisation id present means connected, one without the other is partial
// and requires a disconnect + reconnect. expired is only reported after an
// explicit token probe against the provider.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStatePartial      ConnectionState = "partial"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateExpired      ConnectionState = "expired"
)

var validConnectionStates = []ConnectionState{
	ConnectionStateDisconnected,
	ConnectionStatePartial,
	ConnectionStateConnected,
	ConnectionStateExpired,
}

// String implements fmt.Stringer.
func (c ConnectionState) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConnectionState.
func (c ConnectionState) IsValid() bool {
	for _, candidate := range validConnectionStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConnectionState converts raw input into a ConnectionState.
func ParseConnectionState(value string) (ConnectionState, error) {
	for _, candidate := range validConnectionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid connection state %q", value)
}
