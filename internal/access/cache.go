package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coursehub/internal/logger"
	"coursehub/internal/metrics"
	"coursehub/internal/subscription"
)

// EntitlementSource answers whether an organizer currently holds a
// subscription that authorizes course creation.
type EntitlementSource interface {
	Entitlement(ctx context.Context, organizerID int) (subscription.Entitlement, error)
}

type cachedEntitlement struct {
	State   subscription.EntitlementState `json:"state"`
	EndDate time.Time                     `json:"end_date,omitempty"`
}

// Cache keeps entitlement answers in Redis for a short TTL. An active entry
// never outlives the subscription's end date.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: rdb, ttl: ttl, now: time.Now}
}

func cacheKey(organizerID int) string {
	return fmt.Sprintf("entitlement:%d", organizerID)
}

// Wrap returns source with lookups served from the cache first. Redis
// failures fall through to source.
func (c *Cache) Wrap(source EntitlementSource) EntitlementSource {
	return &cachedSource{cache: c, source: source}
}

// Invalidate drops the cached answer. Called after every lifecycle write.
func (c *Cache) Invalidate(ctx context.Context, organizerID int) error {
	return c.redis.Del(ctx, cacheKey(organizerID)).Err()
}

func (c *Cache) lookup(ctx context.Context, organizerID int) (subscription.Entitlement, bool) {
	raw, err := c.redis.Get(ctx, cacheKey(organizerID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.RecordEntitlementLookup("miss")
		return subscription.Entitlement{}, false
	case err != nil:
		metrics.RecordEntitlementLookup("error")
		logger.Warn("entitlement cache read failed", "organizer_id", organizerID, "error", err)
		return subscription.Entitlement{}, false
	}

	var ce cachedEntitlement
	if err := json.Unmarshal(raw, &ce); err != nil {
		metrics.RecordEntitlementLookup("error")
		return subscription.Entitlement{}, false
	}
	metrics.RecordEntitlementLookup("hit")
	return ce.entitlement(), true
}

func (c *Cache) store(ctx context.Context, organizerID int, e subscription.Entitlement) {
	ttl := c.ttl
	ce := cachedEntitlement{State: e.State}
	if e.Subscription != nil {
		ce.EndDate = e.Subscription.EndDate
		if e.State == subscription.EntitlementActive {
			if left := ce.EndDate.Sub(c.now()); left < ttl {
				ttl = left
			}
		}
	}
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(ce)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey(organizerID), data, ttl).Err(); err != nil {
		logger.Warn("entitlement cache write failed", "organizer_id", organizerID, "error", err)
	}
}

type cachedSource struct {
	cache  *Cache
	source EntitlementSource
}

func (s *cachedSource) Entitlement(ctx context.Context, organizerID int) (subscription.Entitlement, error) {
	if e, ok := s.cache.lookup(ctx, organizerID); ok {
		return e, nil
	}
	e, err := s.source.Entitlement(ctx, organizerID)
	if err != nil {
		return e, err
	}
	s.cache.store(ctx, organizerID, e)
	return e, nil
}

func (ce cachedEntitlement) entitlement() subscription.Entitlement {
	e := subscription.Entitlement{State: ce.State}
	if !ce.EndDate.IsZero() {
		e.Subscription = &subscription.Subscription{EndDate: ce.EndDate}
	}
	return e
}
