package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/core/ports"
	"github.com/samirrijal/venuefinder/internal/pkg/metrics"
	"github.com/samirrijal/venuefinder/internal/pkg/telemetry"
)

// ErrReloadUnsupported is returned by Reload when the catalog is static.
var ErrReloadUnsupported = errors.New("catalog does not support reload")

// SourceService handles catalog-related business logic.
type SourceService struct {
	catalog  ports.SourceCatalog
	cache    ports.CacheService
	onReload []func()
}

// NewSourceService creates a new SourceService. cache may be nil; when set,
// cached records of every known source are evicted on reload.
func NewSourceService(catalog ports.SourceCatalog, cache ports.CacheService) *SourceService {
	return &SourceService{catalog: catalog, cache: cache}
}

// OnReload registers fn to run after every successful reload.
func (s *SourceService) OnReload(fn func()) {
	s.onReload = append(s.onReload, fn)
}

// List returns all sources. An unavailable catalog lists nothing.
func (s *SourceService) List(ctx context.Context) ([]domain.SourceDescriptor, error) {
	sources, err := s.catalog.ListSources(ctx)
	if errors.Is(err, domain.ErrCatalogUnavailable) {
		return []domain.SourceDescriptor{}, nil
	}
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []domain.SourceDescriptor{}
	}
	return sources, nil
}

// Get returns a source by handle or label.
func (s *SourceService) Get(ctx context.Context, name string) (*domain.SourceDescriptor, error) {
	sources, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	src, ok := findSource(sources, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, name)
	}
	return &src, nil
}

// Reload re-reads the catalog. In-flight queries keep the snapshot they started with.
func (s *SourceService) Reload(ctx context.Context) error {
	rc, ok := s.catalog.(ports.ReloadableCatalog)
	if !ok {
		return ErrReloadUnsupported
	}

	ctx, span := tracer.Start(ctx, telemetry.SpanReload)
	defer span.End()

	before, _ := s.catalog.ListSources(ctx)
	if err := rc.Reload(ctx); err != nil {
		metrics.CatalogReloads.WithLabelValues("error").Inc()
		span.RecordError(err)
		return fmt.Errorf("reload catalog: %w", err)
	}
	after, _ := s.catalog.ListSources(ctx)
	metrics.CatalogReloads.WithLabelValues("ok").Inc()
	metrics.CatalogSources.Set(float64(len(after)))

	if s.cache != nil {
		for _, list := range [][]domain.SourceDescriptor{before, after} {
			for _, src := range list {
				_ = s.cache.Delete(ctx, recordsCacheKeyPrefix+src.Handle)
			}
		}
	}
	for _, fn := range s.onReload {
		fn()
	}

	slog.InfoContext(ctx, "catalog reloaded", "sources_before", len(before), "sources_after", len(after))
	return nil
}
