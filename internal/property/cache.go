package property

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	listingKeyPrefix = "property:listing:"
	listingsKey      = "property:listings"
)

// CachedProvider fronts a Provider with Redis. Cache failures are logged and
// the call falls through to the upstream provider.
type CachedProvider struct {
	next   Provider
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

// NewCachedProvider caches single listings for ttl and the full listing set
// for half of ttl, since the set changes more often.
func NewCachedProvider(next Provider, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedProvider {
	if next == nil {
		panic("property: upstream provider cannot be nil")
	}
	if client == nil {
		panic("property: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedProvider{
		next:   next,
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("maison.internal.property.cache"),
		logger: logger,
	}
}

var _ Provider = (*CachedProvider)(nil)

func (c *CachedProvider) Listings(ctx context.Context) ([]Listing, error) {
	ctx, span := c.tracer.Start(ctx, "property.listings")
	defer span.End()

	var cached []Listing
	if c.load(ctx, listingsKey, &cached) {
		return cached, nil
	}
	listings, err := c.next.Listings(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.store(ctx, listingsKey, listings, c.ttl/2)
	return listings, nil
}

func (c *CachedProvider) Listing(ctx context.Context, propertyID string) (*Listing, error) {
	ctx, span := c.tracer.Start(ctx, "property.listing")
	defer span.End()

	key := listingKeyPrefix + propertyID
	var cached Listing
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}
	listing, err := c.next.Listing(ctx, propertyID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.store(ctx, key, listing, c.ttl)
	return listing, nil
}

// UserDashboard is not cached; it carries contact details.
func (c *CachedProvider) UserDashboard(ctx context.Context, userID string) (*UserDashboard, error) {
	return c.next.UserDashboard(ctx, userID)
}

// Invalidate drops a cached listing and the cached listing set.
func (c *CachedProvider) Invalidate(ctx context.Context, propertyID string) error {
	if err := c.redis.Del(ctx, listingKeyPrefix+propertyID, listingsKey).Err(); err != nil {
		return fmt.Errorf("property: invalidate cache: %w", err)
	}
	return nil
}

func (c *CachedProvider) load(ctx context.Context, key string, out any) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("property cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("property cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedProvider) store(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("property cache write failed", "key", key, "error", err)
	}
}
