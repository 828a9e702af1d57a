package services

import (
	"context"
	"errors"

	"leavedesk/internal/common"
	"leavedesk/internal/repositories"

	"github.com/google/uuid"
)

// ComputePendingSeats returns the seat count current seats should become at
// the next renewal. A nil result means there is no drift: nothing is pending
// removal and the active count already matches what is billed.
func ComputePendingSeats(activeSeats, pendingRemovals, currentSeats int) *int {
	if pendingRemovals == 0 && activeSeats == currentSeats {
		return nil
	}
	seats := activeSeats - pendingRemovals
	if seats < 0 {
		seats = 0
	}
	return &seats
}

// recomputePendingSeats refreshes the organization's pending seat count from
// its memberships and marks the provider quantity stale. Organizations on
// the free tier have no subscription row and are left alone.
func recomputePendingSeats(ctx context.Context, store repositories.Store, organizationID uuid.UUID) (*int, error) {
	subscription, err := store.Subscriptions().GetByOrganizationID(ctx, organizationID)
	if errors.Is(err, common.ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	activeSeats, pendingRemovals, err := store.Memberships().CountSeats(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	pending := ComputePendingSeats(activeSeats, pendingRemovals, subscription.CurrentSeats)
	if err := store.Subscriptions().SetPendingSeats(ctx, subscription.ID, pending); err != nil {
		return nil, err
	}
	return pending, nil
}
