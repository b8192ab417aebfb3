package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ev-marketplace/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// CarrierCache implements ports.CarrierStatusCache using Redis. It absorbs
// repeated carrier lookups for the same tracking number within a small TTL.
type CarrierCache struct {
	client *goredis.Client
	prefix string
}

// NewCarrierCache creates a new Redis-backed carrier status cache.
func NewCarrierCache(client *goredis.Client) *CarrierCache {
	return &CarrierCache{
		client: client,
		prefix: "carrier:",
	}
}

// Get retrieves a cached shipment status by tracking number.
// Returns nil, nil on a miss.
func (c *CarrierCache) Get(ctx context.Context, trackingNumber string) (*ports.ShipmentStatus, error) {
	val, err := c.client.Get(ctx, c.prefix+trackingNumber).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis carrier get: %w", err)
	}

	var status ports.ShipmentStatus
	if err := json.Unmarshal(val, &status); err != nil {
		return nil, fmt.Errorf("redis carrier decode: %w", err)
	}
	return &status, nil
}

// Set stores a shipment status with TTL.
func (c *CarrierCache) Set(ctx context.Context, trackingNumber string, status *ports.ShipmentStatus, ttl time.Duration) error {
	val, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("redis carrier encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+trackingNumber, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis carrier set: %w", err)
	}
	return nil
}
