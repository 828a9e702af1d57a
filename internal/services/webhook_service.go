package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"leavedesk/internal/caching"
	"leavedesk/internal/common"
	"leavedesk/internal/metrics"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrOrganizationUnresolved = errors.New("webhook does not identify an organization")

// BillingPlans maps LemonSqueezy variants and products to billing periods.
type BillingPlans struct {
	MonthlyVariantID string
	YearlyVariantID  string
	MonthlyProductID string
	YearlyProductID  string
}

// PeriodFor returns the billing period of a variant/product pair, or "" when
// neither id is a known plan. Variant ids win over product ids.
func (p BillingPlans) PeriodFor(variantID, productID string) string {
	switch {
	case variantID != "" && variantID == p.YearlyVariantID:
		return models.BillingPeriodYearly
	case variantID != "" && variantID == p.MonthlyVariantID:
		return models.BillingPeriodMonthly
	case productID != "" && productID == p.YearlyProductID:
		return models.BillingPeriodYearly
	case productID != "" && productID == p.MonthlyProductID:
		return models.BillingPeriodMonthly
	}
	return ""
}

type WebhookResult struct {
	EventID          string                `json:"event_id"`
	EventName        string                `json:"event_name"`
	AlreadyProcessed bool                  `json:"already_processed"`
	Ignored          bool                  `json:"ignored,omitempty"`
	SubscriptionID   *uuid.UUID            `json:"subscription_id,omitempty"`
	OrganizationID   *uuid.UUID            `json:"organization_id,omitempty"`
	Reconciliation   *ReconciliationResult `json:"reconciliation,omitempty"`
}

// WebhookService dispatches verified LemonSqueezy events.
type WebhookService interface {
	HandleEvent(ctx context.Context, payload *models.WebhookPayload, rawBody []byte) (*WebhookResult, error)
}

type webhookService struct {
	store          repositories.Store
	reconciliation ReconciliationService
	lemonSqueezy   LemonSqueezyService
	archive        MinioService
	notifier       NotificationService
	cache          caching.CacheService
	plans          BillingPlans
	clock          clockwork.Clock
}

// NewWebhookService wires the dispatcher. archive, notifier and cache may be nil.
func NewWebhookService(store repositories.Store, reconciliation ReconciliationService, lemonSqueezy LemonSqueezyService,
	archive MinioService, notifier NotificationService, cache caching.CacheService, plans BillingPlans, clock clockwork.Clock) WebhookService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &webhookService{
		store:          store,
		reconciliation: reconciliation,
		lemonSqueezy:   lemonSqueezy,
		archive:        archive,
		notifier:       notifier,
		cache:          cache,
		plans:          plans,
		clock:          clock,
	}
}

// EventID returns the ledger key of a delivery: the provider's event id, or
// a digest of the body when the provider did not send one.
func EventID(payload *models.WebhookPayload, rawBody []byte) string {
	if payload.Meta.EventID != "" {
		return payload.Meta.EventID
	}
	sum := sha256.Sum256(rawBody)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (s *webhookService) HandleEvent(ctx context.Context, payload *models.WebhookPayload, rawBody []byte) (*WebhookResult, error) {
	eventName := payload.Meta.EventName
	result := &WebhookResult{
		EventID:   EventID(payload, rawBody),
		EventName: eventName,
	}
	logger := log.With().
		Str("event_id", result.EventID).
		Str("event_name", eventName).
		Str("provider_subscription_id", payload.ProviderSubscriptionID()).
		Logger()

	s.archivePayload(ctx, result.EventID, eventName, rawBody)

	var err error
	if eventName == models.EventSubscriptionPaymentSuccess {
		err = s.handlePaymentSuccess(ctx, payload, result)
	} else {
		err = s.handleLedgered(ctx, payload, result)
	}

	outcome := "processed"
	switch {
	case err != nil:
		outcome = "failed"
	case result.AlreadyProcessed:
		outcome = "duplicate"
	case result.Ignored:
		outcome = "ignored"
	}
	metrics.RecordWebhookEvent(eventName, outcome)

	if err != nil {
		logger.Error().Err(err).Msg("webhook processing failed")
		return nil, err
	}
	logger.Info().Str("outcome", outcome).Msg("webhook processed")
	return result, nil
}

func (s *webhookService) archivePayload(ctx context.Context, eventID, eventName string, rawBody []byte) {
	if s.archive == nil || len(rawBody) == 0 {
		return
	}
	key, err := s.archive.ArchiveWebhook(ctx, eventName, eventID, rawBody, s.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("failed to archive webhook payload")
		return
	}
	log.Debug().Str("event_id", eventID).Str("object", key).Msg("webhook payload archived")
}

func (s *webhookService) handlePaymentSuccess(ctx context.Context, payload *models.WebhookPayload, result *WebhookResult) error {
	reconciled, err := s.reconciliation.ReconcileRenewal(ctx, RenewalNotice{
		EventID:                result.EventID,
		EventName:              result.EventName,
		ProviderSubscriptionID: payload.ProviderSubscriptionID(),
		RenewsAt:               payload.Data.Attributes.RenewsAt,
		ConfirmedQuantity:      payload.ConfirmedQuantity(),
	})
	if err != nil {
		return err
	}
	result.AlreadyProcessed = reconciled.AlreadyProcessed
	result.Reconciliation = reconciled
	if !reconciled.AlreadyProcessed {
		result.SubscriptionID = &reconciled.SubscriptionID
		result.OrganizationID = &reconciled.OrganizationID
	}
	return nil
}

// handleLedgered runs every non-renewal event inside a transaction that
// starts by claiming the event id.
func (s *webhookService) handleLedgered(ctx context.Context, payload *models.WebhookPayload, result *WebhookResult) error {
	var cancelOld string
	err := s.store.WithTx(ctx, func(tx repositories.Store) error {
		inserted, err := tx.BillingEvents().Record(ctx, &models.BillingEvent{
			EventID:                result.EventID,
			EventName:              result.EventName,
			ProviderSubscriptionID: payload.ProviderSubscriptionID(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.AlreadyProcessed = true
			return nil
		}

		var subscription *models.Subscription
		switch result.EventName {
		case models.EventSubscriptionCreated:
			subscription, cancelOld, err = s.subscriptionCreated(ctx, tx, payload)
		case models.EventSubscriptionUpdated:
			subscription, err = s.syncSubscription(ctx, tx, payload, "")
		case models.EventSubscriptionCancelled:
			subscription, err = s.syncSubscription(ctx, tx, payload, "cancelled")
		case models.EventSubscriptionExpired:
			subscription, err = s.syncSubscription(ctx, tx, payload, "expired")
		case models.EventSubscriptionPaused:
			subscription, err = s.syncSubscription(ctx, tx, payload, "paused")
		case models.EventSubscriptionResumed, models.EventSubscriptionUnpaused:
			subscription, err = s.syncSubscription(ctx, tx, payload, "active")
		case models.EventSubscriptionPaymentFailed:
			subscription, err = s.syncSubscription(ctx, tx, payload, "past_due")
		default:
			result.Ignored = true
		}
		if err != nil {
			return err
		}
		if subscription != nil {
			result.SubscriptionID = &subscription.ID
			result.OrganizationID = &subscription.OrganizationID
		}

		stored, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return tx.BillingEvents().SetResult(ctx, result.EventID, stored)
	})
	if err != nil {
		return err
	}
	if result.AlreadyProcessed || result.Ignored {
		return nil
	}

	if result.OrganizationID != nil && s.cache != nil {
		if err := s.cache.InvalidateSeatUsage(ctx, *result.OrganizationID); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate seat usage cache")
		}
	}
	if result.EventName == models.EventSubscriptionPaymentFailed {
		s.notify(ctx, Alert{
			Level:   AlertWarning,
			Title:   "Subscription payment failed",
			Message: "LemonSqueezy reported a failed subscription payment",
			Fields:  map[string]string{"provider_subscription_id": payload.ProviderSubscriptionID(), "event_id": result.EventID},
		})
	}
	if cancelOld != "" {
		s.cancelMigratedSubscription(ctx, cancelOld, payload.ProviderSubscriptionID())
	}
	return nil
}

// subscriptionCreated links a new provider subscription to its organization.
// It returns the provider id of a subscription being migrated away from,
// which must be cancelled once the transaction commits.
func (s *webhookService) subscriptionCreated(ctx context.Context, tx repositories.Store, payload *models.WebhookPayload) (*models.Subscription, string, error) {
	custom := payload.Meta.CustomData
	attrs := payload.Data.Attributes
	providerID := payload.ProviderSubscriptionID()

	organization, err := s.resolveOrganization(ctx, tx, custom)
	if err != nil {
		return nil, "", err
	}
	if err := tx.LockOrganization(ctx, organization.ID); err != nil {
		return nil, "", common.NewDatabaseError("lock organization", err)
	}

	seats := payload.ConfirmedQuantity()
	if seats <= 0 {
		seats = int(custom.UserCount)
	}
	if seats <= 0 {
		seats = 1
	}

	var pendingSeats *int
	var cancelOld string
	if oldID := string(custom.MigrationFromSubscriptionID); oldID != "" && oldID != providerID {
		old, err := tx.Subscriptions().GetByLemonSqueezyID(ctx, oldID)
		switch {
		case errors.Is(err, common.ErrSubscriptionNotFound):
			log.Warn().Str("migration_from", oldID).Msg("migration source subscription not found")
		case err != nil:
			return nil, "", err
		default:
			cancelOld = oldID
			if bool(custom.PreserveSeats) {
				seats = old.CurrentSeats
				pendingSeats = old.PendingSeats
			}
		}
	}

	if pendingSeats == nil {
		activeSeats, pendingRemovals, err := tx.Memberships().CountSeats(ctx, organization.ID)
		if err != nil {
			return nil, "", err
		}
		if pendingRemovals > 0 {
			pendingSeats = ComputePendingSeats(activeSeats, pendingRemovals, seats)
		}
	}

	existing, err := tx.Subscriptions().GetByOrganizationID(ctx, organization.ID)
	if err != nil && !errors.Is(err, common.ErrSubscriptionNotFound) {
		return nil, "", err
	}

	subscription := existing
	if subscription == nil {
		subscription = &models.Subscription{
			ID:             uuid.New(),
			OrganizationID: organization.ID,
			BillingType:    models.BillingTypeQuantityBased,
		}
	}
	subscription.LemonSqueezySubscriptionID = providerID
	subscription.CurrentSeats = seats
	subscription.PendingSeats = pendingSeats
	subscription.Quantity = payload.ConfirmedQuantity()
	subscription.LemonSqueezyQuantitySynced = pendingSeats == nil
	subscription.Tier = custom.Tier
	if subscription.Tier == "" {
		subscription.Tier = "business"
	}
	s.applyAttributes(subscription, attrs, "active")

	if existing == nil {
		err = tx.Subscriptions().Create(ctx, subscription)
	} else {
		err = tx.Subscriptions().Update(ctx, subscription)
	}
	if err != nil {
		return nil, "", err
	}
	return subscription, cancelOld, nil
}

func (s *webhookService) resolveOrganization(ctx context.Context, tx repositories.Store, custom models.WebhookCustomData) (*models.Organization, error) {
	if raw := strings.TrimSpace(string(custom.OrganizationID)); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid organization_id %q: %w", raw, err)
		}
		return tx.Organizations().GetByID(ctx, id)
	}

	slug := Slugify(custom.OrganizationSlug)
	if slug == "" {
		slug = Slugify(custom.OrganizationName)
	}
	if slug == "" {
		return nil, ErrOrganizationUnresolved
	}

	organization, err := tx.Organizations().GetBySlug(ctx, slug)
	if err == nil {
		return organization, nil
	}
	if !errors.Is(err, common.ErrOrganizationNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(custom.OrganizationName)
	if name == "" {
		name = slug
	}
	organization = &models.Organization{ID: uuid.New(), Name: name, Slug: slug}
	if err := tx.Organizations().Create(ctx, organization); err != nil {
		return nil, err
	}
	log.Info().Str("org_id", organization.ID.String()).Str("slug", slug).Msg("organization created from checkout")
	return organization, nil
}

// syncSubscription mirrors provider-side status and dates. Seat counters are
// owned by the lifecycle and reconciliation flows and are never touched here.
func (s *webhookService) syncSubscription(ctx context.Context, tx repositories.Store, payload *models.WebhookPayload, fallbackStatus string) (*models.Subscription, error) {
	subscription, err := tx.Subscriptions().GetByLemonSqueezyID(ctx, payload.ProviderSubscriptionID())
	if err != nil {
		return nil, err
	}
	if quantity := payload.ConfirmedQuantity(); quantity > 0 {
		subscription.Quantity = quantity
	}
	s.applyAttributes(subscription, payload.Data.Attributes, fallbackStatus)
	if err := tx.Subscriptions().Update(ctx, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

func (s *webhookService) applyAttributes(subscription *models.Subscription, attrs models.WebhookDataAttributes, fallbackStatus string) {
	switch {
	case attrs.Status != "":
		subscription.Status = attrs.Status
	case fallbackStatus != "":
		subscription.Status = fallbackStatus
	}
	if v := string(attrs.CustomerID); v != "" {
		subscription.LemonSqueezyCustomerID = &v
	}
	if v := string(attrs.VariantID); v != "" {
		subscription.LemonSqueezyVariantID = &v
	}
	if v := string(attrs.ProductID); v != "" {
		subscription.LemonSqueezyProductID = &v
	}
	if item := attrs.FirstSubscriptionItem; item != nil && item.ID != "" {
		id := string(item.ID)
		subscription.LemonSqueezySubscriptionItemID = &id
	}
	if period := s.plans.PeriodFor(string(attrs.VariantID), string(attrs.ProductID)); period != "" {
		subscription.BillingPeriod = period
	}
	if subscription.BillingPeriod == "" {
		subscription.BillingPeriod = models.BillingPeriodMonthly
	}
	if attrs.RenewsAt != nil {
		subscription.RenewsAt = attrs.RenewsAt
	}
	subscription.EndsAt = attrs.EndsAt
	subscription.TrialEndsAt = attrs.TrialEndsAt
}

func (s *webhookService) cancelMigratedSubscription(ctx context.Context, oldID, newID string) {
	if s.lemonSqueezy == nil {
		return
	}
	if _, err := s.lemonSqueezy.CancelSubscription(ctx, oldID); err != nil {
		log.Error().Err(err).Str("provider_subscription_id", oldID).Msg("failed to cancel migrated subscription")
		s.notify(ctx, Alert{
			Level:   AlertError,
			Title:   "Migrated subscription not cancelled",
			Message: err.Error(),
			Fields:  map[string]string{"old_subscription_id": oldID, "new_subscription_id": newID},
		})
		return
	}
	log.Info().Str("provider_subscription_id", oldID).Str("replaced_by", newID).Msg("migrated subscription cancelled")
}

func (s *webhookService) notify(ctx context.Context, alert Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		log.Warn().Err(err).Str("alert", alert.Title).Msg("failed to send alert")
	}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}
