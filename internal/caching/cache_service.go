package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"leavedesk/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CacheService stores short-lived seat usage snapshots.
type CacheService interface {
	GetSeatUsage(ctx context.Context, organizationID uuid.UUID) (*models.SeatUsage, error)
	SetSeatUsage(ctx context.Context, usage *models.SeatUsage, ttl time.Duration) error
	InvalidateSeatUsage(ctx context.Context, organizationID uuid.UUID) error
	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

// NewRedisClient accepts either host:port or a redis:// / rediss:// URL.
func NewRedisClient(addr, password string, db int) *redis.Client {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Warn().Err(pingErr).Str("addr", parsedAddr).Msg("Redis ping failed on initialization")
	} else {
		log.Debug().Str("addr", parsedAddr).Msg("Redis connection established")
	}
	return client
}

func NewRedisCacheService(client *redis.Client) CacheService {
	return &redisCacheService{client: client}
}

func seatUsageKey(organizationID uuid.UUID) string {
	return fmt.Sprintf("leavedesk:seat_usage:%s", organizationID.String())
}

func (r *redisCacheService) GetSeatUsage(ctx context.Context, organizationID uuid.UUID) (*models.SeatUsage, error) {
	data, err := r.client.Get(ctx, seatUsageKey(organizationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var usage models.SeatUsage
	if err := json.Unmarshal(data, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *redisCacheService) SetSeatUsage(ctx context.Context, usage *models.SeatUsage, ttl time.Duration) error {
	data, err := json.Marshal(usage)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, seatUsageKey(usage.OrganizationID), data, ttl).Err()
}

func (r *redisCacheService) InvalidateSeatUsage(ctx context.Context, organizationID uuid.UUID) error {
	return r.client.Del(ctx, seatUsageKey(organizationID)).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
