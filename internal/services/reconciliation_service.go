package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"leavedesk/internal/caching"
	"leavedesk/internal/common"
	"leavedesk/internal/metrics"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RenewalNotice is the part of a payment-success webhook that drives
// renewal reconciliation.
type RenewalNotice struct {
	EventID                string
	EventName              string
	ProviderSubscriptionID string
	RenewsAt               *time.Time
	// ConfirmedQuantity is the seat quantity the provider billed, 0 if unknown.
	ConfirmedQuantity int
}

type ReconciliationResult struct {
	AlreadyProcessed bool      `json:"already_processed"`
	NoPendingChanges bool      `json:"no_pending_changes"`
	SubscriptionID   uuid.UUID `json:"subscription_id"`
	OrganizationID   uuid.UUID `json:"organization_id"`
	PreviousSeats    int       `json:"previous_seats"`
	NewSeats         int       `json:"new_seats"`
	UsersArchived    int       `json:"users_archived"`
}

// ReconciliationService commits pending seat changes when a subscription renews.
type ReconciliationService interface {
	ReconcileRenewal(ctx context.Context, notice RenewalNotice) (*ReconciliationResult, error)
}

type reconciliationService struct {
	store    repositories.Store
	cache    caching.CacheService
	notifier NotificationService
}

// NewReconciliationService builds the renewal reconciler. cache and notifier may be nil.
func NewReconciliationService(store repositories.Store, cache caching.CacheService, notifier NotificationService) ReconciliationService {
	return &reconciliationService{store: store, cache: cache, notifier: notifier}
}

// ReconcileRenewal records the event in the ledger and applies the renewal
// in the same transaction, so a redelivered event is a no-op.
func (s *reconciliationService) ReconcileRenewal(ctx context.Context, notice RenewalNotice) (*ReconciliationResult, error) {
	if notice.EventName == "" {
		notice.EventName = models.EventSubscriptionPaymentSuccess
	}
	logger := log.With().
		Str("event_id", notice.EventID).
		Str("provider_subscription_id", notice.ProviderSubscriptionID).
		Logger()

	result := &ReconciliationResult{}
	err := s.store.WithTx(ctx, func(tx repositories.Store) error {
		inserted, err := tx.BillingEvents().Record(ctx, &models.BillingEvent{
			EventID:                notice.EventID,
			EventName:              notice.EventName,
			ProviderSubscriptionID: notice.ProviderSubscriptionID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.AlreadyProcessed = true
			return nil
		}

		subscription, err := tx.Subscriptions().GetByLemonSqueezyID(ctx, notice.ProviderSubscriptionID)
		if err != nil {
			return err
		}
		if err := tx.LockOrganization(ctx, subscription.OrganizationID); err != nil {
			return common.NewDatabaseError("lock organization", err)
		}

		result.SubscriptionID = subscription.ID
		result.OrganizationID = subscription.OrganizationID
		result.PreviousSeats = subscription.CurrentSeats

		renewsAt := notice.RenewsAt
		if renewsAt == nil {
			renewsAt = subscription.RenewsAt
		}

		if subscription.PendingSeats == nil {
			result.NoPendingChanges = true
			result.NewSeats = subscription.CurrentSeats
			if err := tx.Subscriptions().UpdateRenewsAt(ctx, subscription.ID, renewsAt); err != nil {
				return err
			}
		} else {
			archived, err := tx.Memberships().ArchivePendingRemovals(ctx, subscription.OrganizationID)
			if err != nil {
				return err
			}
			result.UsersArchived = archived
			result.NewSeats = *subscription.PendingSeats
			if err := tx.Subscriptions().ApplyRenewal(ctx, subscription.ID, result.NewSeats, renewsAt); err != nil {
				return err
			}
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return tx.BillingEvents().SetResult(ctx, notice.EventID, payload)
	})
	if err != nil {
		logger.Error().Err(err).Msg("renewal reconciliation failed")
		return nil, err
	}

	if result.AlreadyProcessed {
		logger.Info().Msg("renewal event already processed")
		return result, nil
	}

	metrics.RecordArchivedMembers(result.UsersArchived)
	logger.Info().
		Str("org_id", result.OrganizationID.String()).
		Int("previous_seats", result.PreviousSeats).
		Int("new_seats", result.NewSeats).
		Int("users_archived", result.UsersArchived).
		Int("confirmed_quantity", notice.ConfirmedQuantity).
		Bool("no_pending_changes", result.NoPendingChanges).
		Msg("renewal reconciled")

	if s.cache != nil {
		if err := s.cache.InvalidateSeatUsage(ctx, result.OrganizationID); err != nil {
			logger.Warn().Err(err).Msg("failed to invalidate seat usage cache")
		}
	}

	if notice.ConfirmedQuantity > 0 && notice.ConfirmedQuantity != result.NewSeats {
		s.reportQuantityMismatch(ctx, notice, result)
	}
	return result, nil
}

func (s *reconciliationService) reportQuantityMismatch(ctx context.Context, notice RenewalNotice, result *ReconciliationResult) {
	log.Warn().
		Str("event_id", notice.EventID).
		Str("provider_subscription_id", notice.ProviderSubscriptionID).
		Int("confirmed_quantity", notice.ConfirmedQuantity).
		Int("new_seats", result.NewSeats).
		Msg("provider billed quantity differs from reconciled seats")
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, Alert{
		Level:   AlertWarning,
		Title:   "Seat quantity mismatch at renewal",
		Message: "LemonSqueezy billed a different quantity than the reconciled seat count",
		Fields: map[string]string{
			"organization_id":          result.OrganizationID.String(),
			"provider_subscription_id": notice.ProviderSubscriptionID,
			"confirmed_quantity":       strconv.Itoa(notice.ConfirmedQuantity),
			"new_seats":                strconv.Itoa(result.NewSeats),
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to send quantity mismatch alert")
	}
}
