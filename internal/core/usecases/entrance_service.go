package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/core/ports"
	"github.com/samirrijal/venuefinder/internal/pkg/fuzzy"
	"github.com/samirrijal/venuefinder/internal/pkg/geospatial"
	"github.com/samirrijal/venuefinder/internal/pkg/metrics"
	"github.com/samirrijal/venuefinder/internal/pkg/telemetry"
)

const (
	DefaultScoreCutoff = 45
	DefaultSourceLimit = 15
	DefaultCacheTTL    = 300

	recordsCacheKeyPrefix = "entrances:records:"
)

var (
	ErrCatalogRequired = errors.New("source catalog is required")
	ErrStoreRequired   = errors.New("record store is required")
)

var tracer = otel.Tracer("github.com/samirrijal/venuefinder/internal/core/usecases")

// SearchSettings are the tunables of the matching pipeline.
type SearchSettings struct {
	ScoreCutoff int `validate:"gte=0,lte=100"`
	SourceLimit int `validate:"gte=1,lte=1000"`
	Workers     int `validate:"gte=1,lte=256"`
}

// EntranceService answers "which entrances match this station name" across
// every source in the catalog.
type EntranceService struct {
	catalog  ports.SourceCatalog
	store    ports.RecordStore
	cache    ports.CacheService
	cacheTTL int
	events   ports.EventPublisher
	pool     *ants.Pool
	settings SearchSettings
	logger   *slog.Logger
}

// Option configures an EntranceService.
type Option func(*EntranceService) error

// WithScoreCutoff sets the minimum fuzzy score (0-100) a station name needs.
func WithScoreCutoff(cutoff int) Option {
	return func(s *EntranceService) error {
		s.settings.ScoreCutoff = cutoff
		return nil
	}
}

// WithSourceLimit caps the number of matched names per source.
func WithSourceLimit(limit int) Option {
	return func(s *EntranceService) error {
		s.settings.SourceLimit = limit
		return nil
	}
}

// WithWorkers sets the size of the per-source worker pool.
func WithWorkers(n int) Option {
	return func(s *EntranceService) error {
		s.settings.Workers = n
		return nil
	}
}

// WithCache enables the read-through record cache. ttlSeconds <= 0 uses the default.
func WithCache(cache ports.CacheService, ttlSeconds int) Option {
	return func(s *EntranceService) error {
		s.cache = cache
		if ttlSeconds > 0 {
			s.cacheTTL = ttlSeconds
		}
		return nil
	}
}

// WithEvents publishes source failures to the given publisher.
func WithEvents(events ports.EventPublisher) Option {
	return func(s *EntranceService) error {
		s.events = events
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *EntranceService) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewEntranceService creates an EntranceService and its worker pool.
// Call Release when the service is no longer needed.
func NewEntranceService(catalog ports.SourceCatalog, store ports.RecordStore, opts ...Option) (*EntranceService, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	s := &EntranceService{
		catalog:  catalog,
		store:    store,
		cacheTTL: DefaultCacheTTL,
		settings: SearchSettings{
			ScoreCutoff: DefaultScoreCutoff,
			SourceLimit: DefaultSourceLimit,
			Workers:     runtime.NumCPU(),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(s.settings); err != nil {
		return nil, fmt.Errorf("invalid search settings: %w", err)
	}

	pool, err := ants.NewPool(s.settings.Workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	s.pool = pool
	return s, nil
}

// Settings returns the effective search settings.
func (s *EntranceService) Settings() SearchSettings {
	return s.settings
}

// Release frees the worker pool. The service must not be used afterwards.
func (s *EntranceService) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// SelectSources returns the sources whose box overlaps region. When none
// overlap, every source is returned and fellBack is true.
func SelectSources(sources []domain.SourceDescriptor, region domain.BoundingBox) (selected []domain.SourceDescriptor, fellBack bool) {
	for _, src := range sources {
		if src.Box.Overlaps(region) {
			selected = append(selected, src)
		}
	}
	if len(selected) == 0 && len(sources) > 0 {
		return sources, true
	}
	return selected, false
}

// Search returns the entrances whose station name fuzzily matches query and
// whose coordinates lie in region (nil means unrestricted). Results are grouped
// by source in catalog order; within a source they are ranked best match first.
// A per-source failure never fails the whole query.
func (s *EntranceService) Search(ctx context.Context, query string, region *domain.BoundingBox) ([]domain.MatchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.MatchResult{}, nil
	}

	box := domain.Unrestricted()
	if region != nil {
		box = region.Normalize()
	}

	ctx, span := tracer.Start(ctx, telemetry.SpanSearch, trace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()
	start := time.Now()
	metrics.SearchQueries.Inc()

	sources, err := s.catalog.ListSources(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCatalogUnavailable) {
			s.logger.WarnContext(ctx, "catalog unavailable, returning no results", "error", err)
			return []domain.MatchResult{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "list sources")
		return nil, fmt.Errorf("%w: list sources: %v", domain.ErrQueryFailed, err)
	}

	candidates, fellBack := SelectSources(sources, box)
	if fellBack {
		metrics.SearchFallbacks.Inc()
		s.logger.DebugContext(ctx, "region overlaps no source, searching full catalog",
			"query", query, "sources", len(candidates))
	}
	span.SetAttributes(attribute.Int("sources", len(candidates)), attribute.Bool("fallback", fellBack))

	results := s.fanOut(ctx, query, candidates, func(ctx context.Context, src domain.SourceDescriptor) ([]domain.MatchResult, error) {
		return s.matchSource(ctx, src, query, box)
	})

	metrics.SearchResults.Observe(float64(len(results)))
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// ListAll returns every entrance of one source inside region, without name
// matching. source may be a handle ("cta.txt") or a label ("CTA"). Every
// bound region leaves open defaults to the matching side of the source's own
// coverage box, so a nil region means the whole box.
func (s *EntranceService) ListAll(ctx context.Context, source string, region *domain.BoundingBox) ([]domain.MatchResult, error) {
	ctx, span := tracer.Start(ctx, telemetry.SpanListAll, trace.WithAttributes(
		attribute.String("source", source),
	))
	defer span.End()

	sources, err := s.catalog.ListSources(ctx)
	if err != nil && !errors.Is(err, domain.ErrCatalogUnavailable) {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: list sources: %v", domain.ErrQueryFailed, err)
	}

	src, ok := findSource(sources, source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, source)
	}

	box := src.Box
	if region != nil {
		box = region.Normalize().WithDefaults(src.Box)
	}
	if box.IsEmpty() {
		return []domain.MatchResult{}, nil
	}

	records, err := s.loadRecords(ctx, src, box)
	if err != nil {
		s.sourceFailed(ctx, "", src, err)
		return []domain.MatchResult{}, nil
	}

	results := make([]domain.MatchResult, 0, len(records))
	for _, r := range records {
		if !box.Contains(r.Lat, r.Lon) {
			continue
		}
		results = append(results, toResult(r, src.Label, 0))
	}
	return results, nil
}

type sourceFunc func(ctx context.Context, src domain.SourceDescriptor) ([]domain.MatchResult, error)

type sourceOutcome struct {
	results []domain.MatchResult
	err     error
}

// fanOut runs work for every source on the pool and concatenates the results
// in source order. Sources still running when ctx ends are skipped; results of
// sources that already finished are kept.
func (s *EntranceService) fanOut(ctx context.Context, query string, sources []domain.SourceDescriptor, work sourceFunc) []domain.MatchResult {
	outcomes := make([]sourceOutcome, len(sources))
	done := make([]chan struct{}, len(sources))

	for i, src := range sources {
		done[i] = make(chan struct{})
		task := func() {
			defer close(done[i])
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].err = fmt.Errorf("panic: %v", r)
				}
			}()
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				return
			}
			outcomes[i].results, outcomes[i].err = work(ctx, src)
		}
		if err := s.pool.Submit(task); err != nil {
			s.logger.WarnContext(ctx, "worker pool rejected task, running inline", "source", src.Label, "error", err)
			task()
		}
	}

	merged := make([]domain.MatchResult, 0)
	for i, src := range sources {
		select {
		case <-done[i]:
		case <-ctx.Done():
			select {
			case <-done[i]:
			default:
				s.sourceFailed(ctx, query, src, ctx.Err())
				continue
			}
		}
		if err := outcomes[i].err; err != nil {
			s.sourceFailed(ctx, query, src, err)
			continue
		}
		metrics.SourceLoads.WithLabelValues(src.Label, "ok").Inc()
		merged = append(merged, outcomes[i].results...)
	}
	return merged
}

// matchSource runs the matcher over one source's records inside box.
func (s *EntranceService) matchSource(ctx context.Context, src domain.SourceDescriptor, query string, box domain.BoundingBox) ([]domain.MatchResult, error) {
	ctx, span := tracer.Start(ctx, telemetry.SpanSource, trace.WithAttributes(
		attribute.String("source", src.Label),
	))
	defer span.End()

	records, err := s.loadRecords(ctx, src, box)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var (
		names  []string
		byName = make(map[string][]domain.EntranceRecord)
	)
	for _, r := range records {
		if !box.Contains(r.Lat, r.Lon) {
			continue
		}
		if _, seen := byName[r.StationName]; !seen {
			names = append(names, r.StationName)
		}
		byName[r.StationName] = append(byName[r.StationName], r)
	}
	if len(names) == 0 {
		return nil, nil
	}

	matches := fuzzy.Extract(query, names, s.settings.ScoreCutoff, s.settings.SourceLimit)
	var results []domain.MatchResult
	for _, m := range matches {
		for _, r := range byName[m.Choice] {
			results = append(results, toResult(r, src.Label, m.Score))
		}
	}
	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("matches", len(matches)))
	return results, nil
}

// loadRecords reads a source through the cache when one is configured, and
// through the store's spatial pre-filter when it has one.
func (s *EntranceService) loadRecords(ctx context.Context, src domain.SourceDescriptor, box domain.BoundingBox) ([]domain.EntranceRecord, error) {
	start := time.Now()
	defer func() {
		metrics.SourceLoadDuration.WithLabelValues(src.Label).Observe(time.Since(start).Seconds())
	}()

	if s.cache != nil {
		key := recordsCacheKeyPrefix + src.Handle
		if data, err := s.cache.Get(ctx, key); err == nil {
			var records []domain.EntranceRecord
			if err := json.Unmarshal(data, &records); err == nil {
				metrics.CacheHits.WithLabelValues("records").Inc()
				return records, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("records").Inc()

		records, err := s.store.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(records); err == nil {
			_ = s.cache.Set(ctx, key, data, s.cacheTTL)
		}
		return records, nil
	}

	if rl, ok := s.store.(ports.RegionLoader); ok && !box.IsUnrestricted() {
		return rl.LoadInRegion(ctx, src, box)
	}
	return s.store.Load(ctx, src)
}

// sourceFailed logs and publishes a source that contributed nothing.
func (s *EntranceService) sourceFailed(ctx context.Context, query string, src domain.SourceDescriptor, err error) {
	metrics.SourceLoads.WithLabelValues(src.Label, "error").Inc()
	s.logger.WarnContext(ctx, "source skipped", "source", src.Label, "handle", src.Handle, "error", err)
	if s.events == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	failure := ports.SourceFailure{
		Source:   src.Label,
		Query:    query,
		Error:    err.Error(),
		FailedAt: time.Now().UTC(),
	}
	if perr := s.events.PublishSourceFailure(pubCtx, failure); perr != nil {
		s.logger.DebugContext(ctx, "publish source failure", "source", src.Label, "error", perr)
	}
}

func findSource(sources []domain.SourceDescriptor, name string) (domain.SourceDescriptor, bool) {
	for _, src := range sources {
		if src.Matches(name) {
			return src, true
		}
	}
	return domain.SourceDescriptor{}, false
}

func toResult(r domain.EntranceRecord, label string, score int) domain.MatchResult {
	return domain.MatchResult{
		StationName: r.StationName,
		Source:      label,
		Lat:         geospatial.Round6(r.Lat),
		Lon:         geospatial.Round6(r.Lon),
		Score:       score,
	}
}
