package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// LemonSqueezy webhook event names handled by the service.
const (
	EventSubscriptionCreated        = "subscription_created"
	EventSubscriptionUpdated        = "subscription_updated"
	EventSubscriptionCancelled      = "subscription_cancelled"
	EventSubscriptionResumed        = "subscription_resumed"
	EventSubscriptionExpired        = "subscription_expired"
	EventSubscriptionPaused         = "subscription_paused"
	EventSubscriptionUnpaused       = "subscription_unpaused"
	EventSubscriptionPaymentSuccess = "subscription_payment_success"
	EventSubscriptionPaymentFailed  = "subscription_payment_failed"
)

// WebhookPayload is the subset of a LemonSqueezy webhook body the service consumes.
type WebhookPayload struct {
	Meta WebhookMeta `json:"meta"`
	Data WebhookData `json:"data"`
}

type WebhookMeta struct {
	EventName  string            `json:"event_name" validate:"required"`
	EventID    string            `json:"event_id"`
	CustomData WebhookCustomData `json:"custom_data"`
}

// WebhookCustomData is the checkout custom data echoed back by LemonSqueezy.
// Values arrive as strings or native JSON types depending on how the
// checkout was created, hence the flexible field types.
type WebhookCustomData struct {
	Tier                        string     `json:"tier"`
	MigrationFromSubscriptionID FlexString `json:"migration_from_subscription_id"`
	PreserveSeats               FlexBool   `json:"preserve_seats"`
	UserCount                   FlexInt    `json:"user_count"`
	OrganizationName            string     `json:"organization_name"`
	OrganizationSlug            string     `json:"organization_slug"`
	OrganizationID              FlexString `json:"organization_id"`
}

type WebhookData struct {
	Type       string                `json:"type"`
	ID         string                `json:"id" validate:"required"`
	Attributes WebhookDataAttributes `json:"attributes"`
}

type WebhookDataAttributes struct {
	Status                string                   `json:"status"`
	SubscriptionID        FlexString               `json:"subscription_id"`
	CustomerID            FlexString               `json:"customer_id"`
	VariantID             FlexString               `json:"variant_id"`
	ProductID             FlexString               `json:"product_id"`
	RenewsAt              *time.Time               `json:"renews_at"`
	EndsAt                *time.Time               `json:"ends_at"`
	TrialEndsAt           *time.Time               `json:"trial_ends_at"`
	Quantity              FlexInt                  `json:"quantity"`
	FirstSubscriptionItem *WebhookSubscriptionItem `json:"first_subscription_item"`
}

type WebhookSubscriptionItem struct {
	ID       FlexString `json:"id"`
	Quantity FlexInt    `json:"quantity"`
}

// ProviderSubscriptionID returns the subscription the event refers to.
// Invoice-shaped payloads carry it in attributes.subscription_id.
func (p *WebhookPayload) ProviderSubscriptionID() string {
	if p.Data.Type == "subscription-invoices" && p.Data.Attributes.SubscriptionID != "" {
		return string(p.Data.Attributes.SubscriptionID)
	}
	return p.Data.ID
}

// ConfirmedQuantity is the seat quantity the provider reports for the event.
func (p *WebhookPayload) ConfirmedQuantity() int {
	if item := p.Data.Attributes.FirstSubscriptionItem; item != nil && item.Quantity > 0 {
		return int(item.Quantity)
	}
	return int(p.Data.Attributes.Quantity)
}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FlexInt accepts a JSON number or numeric string.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// FlexBool accepts a JSON bool or the strings "true"/"false".
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = FlexBool(v)
		return nil
	}
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	parsed, err := strconv.ParseBool(string(s))
	if err != nil && s != "" {
		return err
	}
	*f = FlexBool(parsed)
	return nil
}
