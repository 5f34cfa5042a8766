package gcwebhook

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
)

// Resource types after normalization. GoCardless delivers the plural form
// ("mandates"); the handler map is keyed on the singular.
const (
	ResourceMandate        = "mandate"
	ResourcePayment        = "payment"
	ResourceBillingRequest = "billing_request"
)

// Event is one entry of a webhook delivery. ResourceMetadata echoes the
// metadata written when the resource was created, which carries our own
// correlation ids.
type Event struct {
	ID               string            `json:"id"`
	ResourceType     string            `json:"resource_type"`
	Action           string            `json:"action"`
	Links            EventLinks        `json:"links"`
	Details          EventDetails      `json:"details"`
	ResourceMetadata map[string]string `json:"resource_metadata"`
	CreatedAt        string            `json:"created_at"`
}

type EventLinks struct {
	Mandate        string `json:"mandate"`
	BillingRequest string `json:"billing_request"`
	Payment        string `json:"payment"`
}

type EventDetails struct {
	Origin      string `json:"origin"`
	Cause       string `json:"cause"`
	Description string `json:"description"`
}

type deliveryPayload struct {
	Events []Event `json:"events"`
}

// ParseDelivery decodes the webhook body. An unparsable body or an empty
// event list is a validation error (400), distinct from a bad signature.
func ParseDelivery(body []byte) ([]Event, error) {
	var payload deliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unparsable webhook body")
	}
	if len(payload.Events) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook body carries no events")
	}
	for _, event := range payload.Events {
		if event.ID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event without an id")
		}
	}
	return payload.Events, nil
}

func normalizeResource(resourceType string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(resourceType)), "s")
}
