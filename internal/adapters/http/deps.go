package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/venuefinder/internal/adapters/postgres"
	"github.com/samirrijal/venuefinder/internal/adapters/valkey"
	"github.com/samirrijal/venuefinder/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
// NATS, DB and Cache are optional and only reported by the readiness probe.
type Dependencies struct {
	Entrances    *usecases.EntranceService
	Sources      *usecases.SourceService
	QueryTimeout time.Duration
	NATS         *nats.Conn
	DB           *postgres.DB
	Cache        *valkey.Cache
}

func (d *Dependencies) queryTimeout() time.Duration {
	if d.QueryTimeout <= 0 {
		return 15 * time.Second
	}
	return d.QueryTimeout
}
