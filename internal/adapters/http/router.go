package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"

	"github.com/samirrijal/venuefinder/internal/pkg/metrics"
)

// LegacySource is the source served by the legacy /api/entrances/cta endpoint.
const LegacySource = "cta"

// legacySunset is when the unversioned /api and /health routes go away.
var legacySunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// LegacyRoutes lists the deprecated unversioned endpoints and their successors.
var LegacyRoutes = []DeprecatedRoute{
	{Path: "/api/entrances", SunsetDate: legacySunset, Alternative: "/v1/entrances"},
	{Path: "/api/entrances/cta", SunsetDate: legacySunset, Alternative: "/v1/sources/cta/entrances"},
	{Path: "/health", SunsetDate: legacySunset, Alternative: "/v1/health"},
}

// SetupRoutes registers all REST and GraphQL routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited",
				"too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware(LegacyRoutes))

	// Health & readiness (no timeout; fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 with a per-request query deadline. Sources that have not
	// answered by the deadline are left out of the result.
	qt := deps.queryTimeout()
	v1 := app.Group("/v1")
	v1.Get("/entrances", timeout.NewWithContext(SearchEntrancesHandler(deps), qt))
	v1.Get("/sources", timeout.NewWithContext(ListSourcesHandler(deps), qt))
	v1.Get("/sources/:source", timeout.NewWithContext(GetSourceHandler(deps), qt))
	v1.Get("/sources/:source/entrances", timeout.NewWithContext(SourceEntrancesHandler(deps), qt))

	// Legacy unversioned routes
	app.Get("/api/entrances", timeout.NewWithContext(LegacySearchHandler(deps), qt))
	app.Get("/api/entrances/cta", timeout.NewWithContext(FixedSourceEntrancesHandler(deps, LegacySource), qt))
	app.Get("/health", HealthHandler(deps))

	// GraphQL
	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), qt))

	// API documentation (Swagger UI)
	SetupDocs(app)
}
