// Package cache is the advisory per-device key-value store. Entries may be
// stale relative to the remote store and are never the source of truth once a
// live subscription covers the same data; failures to write are non-fatal by
// contract.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"nestfeed/internal/domain"
	"nestfeed/pkg/sentinel"
)

// Cache stores serialized documents keyed by entity id.
// Get returns sentinel.ErrNotFound for absent keys.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// DeviceListingsKey is the bulk append key holding listings created by this
// device, in creation order. It is written through on create and read back
// only as an audit trail.
const DeviceListingsKey = "listings"

// ListingKey is the cache key for a single listing snapshot.
func ListingKey(id string) string {
	return "listing:" + id
}

// AppendDeviceListing appends one listing to the device bulk key. The
// read-modify-write is not atomic; concurrent writers can lose entries. Only
// one writer (the creating device, right after its own create) is expected.
func AppendDeviceListing(ctx context.Context, c Cache, listing domain.Listing) error {
	var listings []domain.Listing

	raw, err := c.Get(ctx, DeviceListingsKey)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &listings); err != nil {
			// Corrupt entry: start the trail over rather than failing the append.
			listings = nil
		}
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return fmt.Errorf("read device listings: %w", err)
	}

	listings = append(listings, listing)

	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("marshal device listings: %w", err)
	}
	if err := c.Set(ctx, DeviceListingsKey, string(data)); err != nil {
		return fmt.Errorf("write device listings: %w", err)
	}
	return nil
}

// DeviceListings reads the bulk key back, mainly for tests and diagnostics.
func DeviceListings(ctx context.Context, c Cache) ([]domain.Listing, error) {
	raw, err := c.Get(ctx, DeviceListingsKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var listings []domain.Listing
	if err := json.Unmarshal([]byte(raw), &listings); err != nil {
		return nil, fmt.Errorf("decode device listings: %w", err)
	}
	return listings, nil
}
