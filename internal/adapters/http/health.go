package http

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Version is reported by the health endpoint; set at build time.
var Version = "dev"

// HealthHandler is the liveness probe. It never touches a dependency.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"uptime":  time.Since(startedAt).String(),
			"version": Version,
		})
	}
}

// readinessCheck reports the state of one dependency and whether the service
// can serve queries with it in that state.
type readinessCheck struct {
	name string
	run  func(ctx context.Context) (state string, ok bool)
}

// readinessChecks lists the catalog plus every optional backend. Backends that
// are not configured report so without failing readiness.
func readinessChecks(deps *Dependencies) []readinessCheck {
	notConfigured := func(context.Context) (string, bool) { return "not configured", true }
	fromErr := func(err error) (string, bool) {
		if err != nil {
			return "error: " + err.Error(), false
		}
		return "ok", true
	}

	checks := []readinessCheck{{
		name: "catalog",
		run: func(ctx context.Context) (string, bool) {
			sources, err := deps.Sources.List(ctx)
			switch {
			case err != nil:
				return "error: " + err.Error(), false
			case len(sources) == 0:
				// An empty catalog answers every query with no results.
				return "empty", true
			default:
				return "ok (" + strconv.Itoa(len(sources)) + " sources)", true
			}
		},
	}}

	db := readinessCheck{name: "database", run: notConfigured}
	if deps.DB != nil {
		db.run = func(ctx context.Context) (string, bool) { return fromErr(deps.DB.Ping(ctx)) }
	}

	broker := readinessCheck{name: "nats", run: notConfigured}
	if deps.NATS != nil {
		broker.run = func(context.Context) (string, bool) {
			if !deps.NATS.IsConnected() {
				return "disconnected", false
			}
			return "ok", true
		}
	}

	cache := readinessCheck{name: "cache", run: notConfigured}
	if deps.Cache != nil {
		cache.run = func(ctx context.Context) (string, bool) { return fromErr(deps.Cache.Ping(ctx)) }
	}

	return append(checks, db, broker, cache)
}

// ReadyHandler is the readiness probe: 200 when every check passes, 503 otherwise.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	checks := readinessChecks(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		states := make(map[string]string, len(checks))
		ready := true
		for _, chk := range checks {
			state, ok := chk.run(ctx)
			states[chk.name] = state
			ready = ready && ok
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
				"checks": states,
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
			"checks": states,
		})
	}
}
