package listingsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/gearshare/service-reservation/internal/domain/listing"
	"github.com/gearshare/service-reservation/internal/domain/shared"
)

const snapshotCacheTTL = 2 * time.Minute

// Client is the HTTP adapter for the Listing Service. Pricing
// snapshots are cached in Redis for a short TTL; the engine treats
// them as read-only inputs, so brief staleness is acceptable and any
// drift is caught by the payment-time pricing recomputation.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   redis.UniversalClient
	logger  *zap.Logger
}

// NewClient creates a listing service Client. cache may be nil to
// disable snapshot caching.
func NewClient(baseURL string, cache redis.UniversalClient, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "listing-service",
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		}),
		cache:  cache,
		logger: logger,
	}
}

// GetPricing fetches the listing's pricing snapshot, preferring the cache.
func (c *Client) GetPricing(ctx context.Context, listingID uuid.UUID) (*listing.PricingSnapshot, error) {
	if snap, ok := c.fromCache(ctx, listingID); ok {
		return snap, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, listingID)
	})
	if err != nil {
		if de, ok := err.(*shared.DomainError); ok {
			return nil, de
		}
		return nil, fmt.Errorf("listing service unavailable: %w", err)
	}

	snap := result.(*listing.PricingSnapshot)
	c.toCache(ctx, snap)
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, listingID uuid.UUID) (*listing.PricingSnapshot, error) {
	url := fmt.Sprintf("%s/internal/v1/listings/%s/pricing", c.baseURL, listingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build listing request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, shared.NewNotFoundError("Listing", listingID.String())
	default:
		return nil, fmt.Errorf("listing service returned status %d", resp.StatusCode)
	}

	var snap listing.PricingSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode listing snapshot: %w", err)
	}
	return &snap, nil
}

func cacheKey(listingID uuid.UUID) string {
	return "reservation:listing_snapshot:" + listingID.String()
}

func (c *Client) fromCache(ctx context.Context, listingID uuid.UUID) (*listing.PricingSnapshot, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, cacheKey(listingID)).Bytes()
	if err != nil {
		return nil, false
	}
	var snap listing.PricingSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func (c *Client) toCache(ctx context.Context, snap *listing.PricingSnapshot) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(snap.ListingID), raw, snapshotCacheTTL).Err(); err != nil {
		c.logger.Warn("failed to cache listing snapshot",
			zap.String("listing_id", snap.ListingID.String()),
			zap.Error(err),
		)
	}
}
