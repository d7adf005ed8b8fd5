package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

const keyPrefix = "doctor:"

// DoctorCache implements repository.DoctorCache using Redis.
type DoctorCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewDoctorCache creates a Redis-backed doctor profile cache.
func NewDoctorCache(client redis.Cmdable, ttl time.Duration) *DoctorCache {
	return &DoctorCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached doctor, or apperrors.ErrNotFound on a miss.
func (c *DoctorCache) Get(ctx context.Context, id string) (*domain.Doctor, error) {
	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cached doctor", id)
		}
		return nil, fmt.Errorf("redis get doctor: %w", err)
	}

	var d domain.Doctor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal doctor: %w", err)
	}
	return &d, nil
}

// Set stores the doctor with the configured TTL.
func (c *DoctorCache) Set(ctx context.Context, d *domain.Doctor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal doctor: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+d.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set doctor: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry for id. A missing entry is not an error.
func (c *DoctorCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del doctor: %w", err)
	}
	return nil
}
