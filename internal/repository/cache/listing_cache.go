// internal/repository/cache/listing_cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sokoni-service/internal/domain/listing"

	"github.com/redis/go-redis/v9"
)

const (
	listingKeyPrefix = "listing:"
	pageKeyPrefix    = "listing_page:"
	listingTTL       = 10 * time.Minute
	pageTTL          = 30 * time.Second
)

// ListingCache caches single listings and ranked category pages. Page TTL is
// short: ranking is recomputed from timestamps on every read, so the cache
// only has to survive a burst, not an expiry.
type ListingCache struct {
	client *redis.Client
}

func NewListingCache(client *redis.Client) *ListingCache {
	return &ListingCache{client: client}
}

func (c *ListingCache) GetListing(ctx context.Context, id int64) (*listing.Listing, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("%s%d", listingKeyPrefix, id)).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var l listing.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *ListingCache) SetListing(ctx context.Context, l *listing.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf("%s%d", listingKeyPrefix, l.ID), data, listingTTL).Err()
}

func (c *ListingCache) DeleteListing(ctx context.Context, id int64) error {
	return c.client.Del(ctx, fmt.Sprintf("%s%d", listingKeyPrefix, id)).Err()
}

func pageKey(categoryID int64, placement string, page, pageSize int) string {
	return fmt.Sprintf("%s%d:%s:%d:%d", pageKeyPrefix, categoryID, placement, page, pageSize)
}

func (c *ListingCache) GetPage(ctx context.Context, categoryID int64, placement string, page, pageSize int) (*listing.ListingPage, error) {
	data, err := c.client.Get(ctx, pageKey(categoryID, placement, page, pageSize)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p listing.ListingPage
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *ListingCache) SetPage(ctx context.Context, categoryID int64, placement string, page, pageSize int, p *listing.ListingPage) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pageKey(categoryID, placement, page, pageSize), data, pageTTL).Err()
}
