package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	BillingPeriodMonthly = "monthly"
	BillingPeriodYearly  = "yearly"

	BillingTypeQuantityBased = "quantity_based"
	BillingTypeUsageBased    = "usage_based"
)

// FreeTierSeats is the seat allowance of an organization without a subscription.
const FreeTierSeats = 3

// Subscription mirrors an organization's LemonSqueezy subscription.
//
// CurrentSeats is what the provider bills for the running period and only
// moves at renewal reconciliation. PendingSeats is the value CurrentSeats
// becomes at the next renewal; nil means no drift.
type Subscription struct {
	ID                             uuid.UUID  `json:"id" db:"id"`
	OrganizationID                 uuid.UUID  `json:"organization_id" db:"organization_id"`
	LemonSqueezySubscriptionID     string     `json:"lemonsqueezy_subscription_id" db:"lemonsqueezy_subscription_id"`
	LemonSqueezySubscriptionItemID *string    `json:"lemonsqueezy_subscription_item_id" db:"lemonsqueezy_subscription_item_id"`
	LemonSqueezyCustomerID         *string    `json:"lemonsqueezy_customer_id" db:"lemonsqueezy_customer_id"`
	LemonSqueezyVariantID          *string    `json:"lemonsqueezy_variant_id" db:"lemonsqueezy_variant_id"`
	LemonSqueezyProductID          *string    `json:"lemonsqueezy_product_id" db:"lemonsqueezy_product_id"`
	Status                         string     `json:"status" db:"status"`
	Tier                           string     `json:"tier" db:"tier"`
	CurrentSeats                   int        `json:"current_seats" db:"current_seats"`
	PendingSeats                   *int       `json:"pending_seats" db:"pending_seats"`
	Quantity                       int        `json:"quantity" db:"quantity"`
	LemonSqueezyQuantitySynced     bool       `json:"lemonsqueezy_quantity_synced" db:"lemonsqueezy_quantity_synced"`
	BillingPeriod                  string     `json:"billing_period" db:"billing_period"`
	BillingType                    string     `json:"billing_type" db:"billing_type"`
	RenewsAt                       *time.Time `json:"renews_at" db:"renews_at"`
	EndsAt                         *time.Time `json:"ends_at" db:"ends_at"`
	TrialEndsAt                    *time.Time `json:"trial_ends_at" db:"trial_ends_at"`
	CreatedAt                      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt                      time.Time  `json:"updated_at" db:"updated_at"`
}

// SeatUsage is a read-only snapshot of an organization's seat consumption.
type SeatUsage struct {
	OrganizationID  uuid.UUID `json:"organization_id"`
	ActiveSeats     int       `json:"active_seats"`
	PendingRemovals int       `json:"pending_removals"`
	CurrentSeats    int       `json:"current_seats"`
	PendingSeats    *int      `json:"pending_seats"`
}
