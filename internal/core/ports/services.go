package ports

import (
	"context"
	"time"
)

// SourceFailure describes a source that contributed nothing to a query because
// it could not be loaded or matched.
type SourceFailure struct {
	Source   string    `json:"source"`
	Query    string    `json:"query,omitempty"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// EventPublisher publishes query-path events to a message broker.
type EventPublisher interface {
	PublishSourceFailure(ctx context.Context, f SourceFailure) error
}

// EventSubscriber subscribes to control events from a message broker.
type EventSubscriber interface {
	SubscribeCatalogReload(ctx context.Context, handler func(ctx context.Context) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
