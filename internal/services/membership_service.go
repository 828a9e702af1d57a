package services

import (
	"context"
	"errors"
	"time"

	"leavedesk/internal/caching"
	"leavedesk/internal/common"
	"leavedesk/internal/metrics"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MembershipService drives the seat lifecycle of organization members:
// active -> pending_removal -> archived, with reactivation back to active.
type MembershipService interface {
	// RemoveUser starts the grace period for a member and returns the date
	// the removal takes effect.
	RemoveUser(ctx context.Context, targetUserID, organizationID, actingUserID uuid.UUID) (time.Time, error)
	// ReactivateUser cancels a pending removal.
	ReactivateUser(ctx context.Context, targetUserID, organizationID, actingUserID uuid.UUID) (*models.Membership, error)
	// ReactivateArchivedUser restores an archived member. Admin only.
	ReactivateArchivedUser(ctx context.Context, targetUserID, organizationID, actingUserID uuid.UUID) (*models.Membership, error)
}

type membershipService struct {
	store       repositories.Store
	cache       caching.CacheService
	clock       clockwork.Clock
	gracePeriod time.Duration
}

// NewMembershipService builds the lifecycle manager. gracePeriod is used as
// the removal effective date offset when the organization has no renewal
// date to align with. cache may be nil.
func NewMembershipService(store repositories.Store, cache caching.CacheService, clock clockwork.Clock, gracePeriod time.Duration) MembershipService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &membershipService{
		store:       store,
		cache:       cache,
		clock:       clock,
		gracePeriod: gracePeriod,
	}
}

func (s *membershipService) RemoveUser(ctx context.Context, targetUserID, organizationID, actingUserID uuid.UUID) (time.Time, error) {
	var effectiveDate time.Time
	var pending *int
	err := s.store.WithTx(ctx, func(tx repositories.Store) error {
		if err := tx.LockOrganization(ctx, organizationID); err != nil {
			return common.NewDatabaseError("lock organization", err)
		}

		membership, err := tx.Memberships().GetByUserAndOrganization(ctx, targetUserID, organizationID)
		if err != nil {
			return err
		}
		switch membership.Status {
		case models.MembershipActive:
		case models.MembershipPendingRemoval:
			return common.ErrAlreadyPendingRemoval
		default:
			return &common.MembershipStateError{Action: "remove", Status: string(membership.Status), Kind: common.ErrAlreadyPendingRemoval}
		}
		if targetUserID == actingUserID {
			return common.ErrSelfRemovalForbidden
		}

		effectiveDate, err = s.removalEffectiveDate(ctx, tx, organizationID)
		if err != nil {
			return err
		}

		membership.Status = models.MembershipPendingRemoval
		membership.IsActive = true
		membership.RemovalEffectiveDate = &effectiveDate
		if err := tx.Memberships().UpdateState(ctx, membership); err != nil {
			return err
		}

		pending, err = recomputePendingSeats(ctx, tx, organizationID)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}

	s.afterTransition(ctx, "remove", targetUserID, organizationID, actingUserID, pending)
	return effectiveDate, nil
}

// removalEffectiveDate aligns the removal with the next renewal, falling
// back to the grace period when there is nothing to align with.
func (s *membershipService) removalEffectiveDate(ctx context.Context, tx repositories.Store, organizationID uuid.UUID) (time.Time, error) {
	subscription, err := tx.Subscriptions().GetByOrganizationID(ctx, organizationID)
	if err != nil && !errors.Is(err, common.ErrSubscriptionNotFound) {
		return time.Time{}, err
	}
	if subscription != nil && subscription.RenewsAt != nil {
		return *subscription.RenewsAt, nil
	}
	return s.clock.Now().UTC().Add(s.gracePeriod), nil
}

func (s *membershipService) ReactivateUser(ctx context.Context, targetUserID, organizationID, actingUserID uuid.UUID) (*models.Membership, error) {
	var membership *models.Membership
	var pending *int
	err := s.store.WithTx(ctx, func(tx repositories.Store) error {
		if err := tx.LockOrganization(ctx, organizationID); err != nil {
			return common.NewDatabaseError("lock organization", err)
		}

		var err error
		membership, err = tx.Memberships().GetByUserAndOrganization(ctx, targetUserID, organizationID)
		if err != nil {
			return err
		}
		if membership.Status != models.MembershipPendingRemoval {
			return &common.MembershipStateError{Action: "reactivate", Status: string(membership.Status), Kind: common.ErrInvalidStateForReactivation}
		}

		membership.Status = models.MembershipActive
		membership.IsActive = true
		membership.RemovalEffectiveDate = nil
		if err := tx.Memberships().UpdateState(ctx, membership); err != nil {
			return err
		}

		pending, err = recomputePendingSeats(ctx, tx, organizationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, "reactivate", targetUserID, organizationID, actingUserID, pending)
	return membership, nil
}

func (s *membershipService) ReactivateArchivedUser(ctx context.Context, targetUserID, organizationID, actingUserID uuid.UUID) (*models.Membership, error) {
	var membership *models.Membership
	var pending *int
	err := s.store.WithTx(ctx, func(tx repositories.Store) error {
		acting, err := tx.Memberships().GetByUserAndOrganization(ctx, actingUserID, organizationID)
		if errors.Is(err, common.ErrMembershipNotFound) {
			return common.ErrAdminRequired
		}
		if err != nil {
			return err
		}
		if acting.Role != models.RoleAdmin || !acting.IsActive {
			return common.ErrAdminRequired
		}

		if err := tx.LockOrganization(ctx, organizationID); err != nil {
			return common.NewDatabaseError("lock organization", err)
		}

		membership, err = tx.Memberships().GetByUserAndOrganization(ctx, targetUserID, organizationID)
		if err != nil {
			return err
		}
		if membership.Status != models.MembershipArchived {
			return &common.MembershipStateError{Action: "reactivate", Status: string(membership.Status), Kind: common.ErrInvalidStateForReactivation}
		}

		membership.Status = models.MembershipActive
		membership.IsActive = true
		membership.RemovalEffectiveDate = nil
		if err := tx.Memberships().UpdateState(ctx, membership); err != nil {
			return err
		}

		pending, err = recomputePendingSeats(ctx, tx, organizationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, "reactivate_archived", targetUserID, organizationID, actingUserID, pending)
	return membership, nil
}

func (s *membershipService) afterTransition(ctx context.Context, action string, targetUserID, organizationID, actingUserID uuid.UUID, pending *int) {
	metrics.RecordMembershipTransition(action)

	event := log.Info().
		Str("action", action).
		Str("org_id", organizationID.String()).
		Str("user_id", targetUserID.String()).
		Str("acting_user_id", actingUserID.String())
	if pending != nil {
		event = event.Int("pending_seats", *pending)
	}
	event.Msg("membership updated")

	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSeatUsage(ctx, organizationID); err != nil {
		log.Warn().Err(err).Str("org_id", organizationID.String()).Msg("failed to invalidate seat usage cache")
	}
}
