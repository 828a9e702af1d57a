package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"leavedesk/internal/common"
	"leavedesk/internal/metrics"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"
	"leavedesk/internal/services"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const DefaultApplyWindow = 48 * time.Hour

// PendingChangesJob pushes pending seat counts to LemonSqueezy ahead of
// renewal so the provider invoices the new quantity. Subscriptions whose
// pending count was cleared after a push get current_seats pushed back. It only updates the
// local quantity and sync flag; current and pending seats are left for
// renewal reconciliation.
type PendingChangesJob struct {
	subscriptions repositories.SubscriptionRepository
	lemonSqueezy  services.LemonSqueezyService
	notifier      services.NotificationService
	clock         clockwork.Clock
	window        time.Duration
}

type PendingChangeError struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Error          string    `json:"error"`
}

type PendingChangesResult struct {
	Success   bool                 `json:"success"`
	Processed int                  `json:"processed"`
	Failed    int                  `json:"failed"`
	Errors    []PendingChangeError `json:"errors"`
}

// NewPendingChangesJob builds the job. notifier may be nil; a zero window
// uses DefaultApplyWindow.
func NewPendingChangesJob(subscriptions repositories.SubscriptionRepository, lemonSqueezy services.LemonSqueezyService,
	notifier services.NotificationService, clock clockwork.Clock, window time.Duration) *PendingChangesJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultApplyWindow
	}
	return &PendingChangesJob{
		subscriptions: subscriptions,
		lemonSqueezy:  lemonSqueezy,
		notifier:      notifier,
		clock:         clock,
		window:        window,
	}
}

// Run processes every unsynced subscription renewing within the window. A
// failing subscription is recorded and skipped; it never aborts the batch.
func (j *PendingChangesJob) Run(ctx context.Context) *PendingChangesResult {
	result := &PendingChangesResult{Success: true, Errors: []PendingChangeError{}}
	cutoff := j.clock.Now().Add(j.window)

	pending, err := j.subscriptions.ListPendingSync(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to list subscriptions with pending seat changes")
		result.Success = false
		result.Errors = append(result.Errors, PendingChangeError{Error: err.Error()})
		return result
	}

	log.Info().Int("count", len(pending)).Time("cutoff", cutoff).Msg("applying pending subscription changes")

	providerFailures := 0
	for _, subscription := range pending {
		if err := ctx.Err(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, j.failure(subscription, err))
			continue
		}
		if err := j.apply(ctx, subscription); err != nil {
			fromProvider := services.IsProviderError(err)
			if fromProvider {
				providerFailures++
			}
			log.Error().Err(err).
				Str("subscription_id", subscription.ID.String()).
				Str("org_id", subscription.OrganizationID.String()).
				Bool("provider_error", fromProvider).
				Msg("failed to apply pending seat change")
			result.Failed++
			result.Errors = append(result.Errors, j.failure(subscription, err))
			continue
		}
		result.Processed++
	}

	metrics.RecordPendingChanges(result.Processed, result.Failed)
	log.Info().Int("processed", result.Processed).Int("failed", result.Failed).Msg("pending subscription changes applied")

	if result.Failed > 0 {
		j.reportFailures(ctx, result, providerFailures)
	}
	return result
}

func (j *PendingChangesJob) apply(ctx context.Context, subscription *models.Subscription) error {
	quantity := syncTarget(subscription)
	itemID := common.SafeString(subscription.LemonSqueezySubscriptionItemID)
	if itemID == "" {
		return common.ErrMissingSubscriptionItem
	}

	var err error
	if subscription.BillingType == models.BillingTypeUsageBased {
		_, err = j.lemonSqueezy.CreateUsageRecord(ctx, itemID, quantity)
	} else {
		_, err = j.lemonSqueezy.UpdateSubscriptionItem(ctx, itemID, quantity)
	}
	if err != nil {
		return err
	}

	if err := j.subscriptions.MarkQuantitySynced(ctx, subscription.ID, quantity); err != nil {
		return fmt.Errorf("quantity pushed to LemonSqueezy but not recorded: %w", err)
	}

	log.Info().
		Str("subscription_id", subscription.ID.String()).
		Str("org_id", subscription.OrganizationID.String()).
		Str("billing_type", subscription.BillingType).
		Int("quantity", quantity).
		Msg("pending seat change pushed to LemonSqueezy")
	return nil
}

// syncTarget is the quantity the provider should bill at renewal. A removal
// undone after an earlier push leaves no pending count, so the provider has
// to be brought back to current_seats.
func syncTarget(subscription *models.Subscription) int {
	if subscription.PendingSeats != nil {
		return *subscription.PendingSeats
	}
	return subscription.CurrentSeats
}

func (j *PendingChangesJob) failure(subscription *models.Subscription, err error) PendingChangeError {
	return PendingChangeError{
		SubscriptionID: subscription.ID,
		OrganizationID: subscription.OrganizationID,
		Error:          err.Error(),
	}
}

func (j *PendingChangesJob) reportFailures(ctx context.Context, result *PendingChangesResult, providerFailures int) {
	if j.notifier == nil {
		return
	}
	fields := map[string]string{
		"processed":         strconv.Itoa(result.Processed),
		"failed":            strconv.Itoa(result.Failed),
		"provider_failures": strconv.Itoa(providerFailures),
	}
	for i, e := range result.Errors {
		fields["subscription_"+strconv.Itoa(i+1)] = e.SubscriptionID.String() + ": " + e.Error
	}
	err := j.notifier.Notify(ctx, services.Alert{
		Level:   services.AlertError,
		Title:   "Pending seat sync failed",
		Message: fmt.Sprintf("%d subscription(s) could not be updated in LemonSqueezy", result.Failed),
		Fields:  fields,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to send pending changes alert")
	}
}
