package models

import (
	"encoding/json"
	"time"
)

// BillingEvent is an entry in the webhook idempotency ledger, keyed by the
// provider's event id.
type BillingEvent struct {
	EventID                string          `json:"event_id" db:"event_id"`
	EventName              string          `json:"event_name" db:"event_name"`
	ProviderSubscriptionID string          `json:"provider_subscription_id" db:"provider_subscription_id"`
	Result                 json.RawMessage `json:"result" db:"result"`
	ProcessedAt            time.Time       `json:"processed_at" db:"processed_at"`
}
