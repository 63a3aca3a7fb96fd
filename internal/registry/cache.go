package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/oriys/domaincore/internal/domain"
)

const deviceSpaceKey = "domaincore:device_space"

// DeviceSpaceCache mirrors the static device-space table into Redis, so a
// second kernel-core instance (or a debugging tool) can read it without
// reaching into this process. It is optional and, unlike the in-process
// Registry, never the source of truth: SetDeviceSpace always updates the
// Registry first and the cache second, best-effort.
type DeviceSpaceCache struct {
	client *redis.Client
}

// NewDeviceSpaceCache connects to a Redis instance at addr.
func NewDeviceSpaceCache(addr, password string, db int) (*DeviceSpaceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("registry: redis connection failed: %w", err)
	}
	return &DeviceSpaceCache{client: client}, nil
}

// Close closes the underlying Redis client.
func (c *DeviceSpaceCache) Close() error {
	return c.client.Close()
}

// Store mirrors entries into Redis under a fixed key.
func (c *DeviceSpaceCache) Store(ctx context.Context, entries []domain.DeviceSpaceEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, deviceSpaceKey, data, 0).Err()
}

// Load reads back the mirrored device-space table, if any.
func (c *DeviceSpaceCache) Load(ctx context.Context) ([]domain.DeviceSpaceEntry, error) {
	data, err := c.client.Get(ctx, deviceSpaceKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: redis get device space: %w", err)
	}
	var entries []domain.DeviceSpaceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SyncingRegistry wraps a Registry so SetDeviceSpace also mirrors into a
// DeviceSpaceCache, best-effort: a cache write failure never blocks boot.
type SyncingRegistry struct {
	*Registry
	cache *DeviceSpaceCache
}

// NewSyncingRegistry wraps reg with cache.
func NewSyncingRegistry(reg *Registry, cache *DeviceSpaceCache) *SyncingRegistry {
	return &SyncingRegistry{Registry: reg, cache: cache}
}

// SetDeviceSpace installs entries in the in-process registry and mirrors
// them into Redis, logging nothing on cache failure since the in-process
// table remains authoritative.
func (r *SyncingRegistry) SetDeviceSpace(ctx context.Context, entries []domain.DeviceSpaceEntry) error {
	r.Registry.SetDeviceSpace(entries)
	if r.cache == nil {
		return nil
	}
	return r.cache.Store(ctx, entries)
}
