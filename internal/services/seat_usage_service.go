package services

import (
	"context"
	"errors"
	"time"

	"leavedesk/internal/caching"
	"leavedesk/internal/common"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SeatUsageService interface {
	GetSeatUsage(ctx context.Context, organizationID uuid.UUID) (*models.SeatUsage, error)
}

type seatUsageService struct {
	store repositories.Store
	cache caching.CacheService
	ttl   time.Duration
}

// NewSeatUsageService builds the calculator. cache may be nil.
func NewSeatUsageService(store repositories.Store, cache caching.CacheService, ttl time.Duration) SeatUsageService {
	return &seatUsageService{store: store, cache: cache, ttl: ttl}
}

func (s *seatUsageService) GetSeatUsage(ctx context.Context, organizationID uuid.UUID) (*models.SeatUsage, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSeatUsage(ctx, organizationID)
		if err != nil {
			log.Warn().Err(err).Str("org_id", organizationID.String()).Msg("seat usage cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	activeSeats, pendingRemovals, err := s.store.Memberships().CountSeats(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	usage := &models.SeatUsage{
		OrganizationID:  organizationID,
		ActiveSeats:     activeSeats,
		PendingRemovals: pendingRemovals,
		CurrentSeats:    models.FreeTierSeats,
	}

	subscription, err := s.store.Subscriptions().GetByOrganizationID(ctx, organizationID)
	switch {
	case errors.Is(err, common.ErrSubscriptionNotFound):
	case err != nil:
		return nil, err
	default:
		usage.CurrentSeats = subscription.CurrentSeats
		usage.PendingSeats = subscription.PendingSeats
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.SetSeatUsage(ctx, usage, s.ttl); err != nil {
			log.Warn().Err(err).Str("org_id", organizationID.String()).Msg("seat usage cache write failed")
		}
	}
	return usage, nil
}
