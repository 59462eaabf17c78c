package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/venuefinder/internal/core/ports"
)

// localTTL bounds how long a record blob may be served from the client-side
// cache. Server-side writes and deletes invalidate it earlier.
const localTTL = 30 * time.Second

// Cache implements ports.CacheService on Valkey. Reads go through valkey-go's
// server-assisted client-side cache, so repeated loads of the same source
// skip the network round trip.
type Cache struct {
	client   valkey.Client
	localTTL time.Duration
}

var _ ports.CacheService = (*Cache)(nil)

// New connects to addr.
func New(addr string) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Cache{client: client, localTTL: localTTL}, nil
}

// Get returns the value stored at key. A missing key is an error satisfying
// valkey.IsValkeyNil.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.DoCache(ctx, c.client.B().Get().Key(key).Cache(), c.localTTL).AsBytes()
}

// Set stores value under key. ttlSeconds <= 0 stores without expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	set := c.client.B().Set().Key(key).Value(valkey.BinaryString(value))
	if ttlSeconds <= 0 {
		return c.client.Do(ctx, set.Build()).Error()
	}
	return c.client.Do(ctx, set.Ex(time.Duration(ttlSeconds)*time.Second).Build()).Error()
}

// Delete removes key; deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Ping checks connectivity for the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close closes the client.
func (c *Cache) Close() {
	c.client.Close()
}
