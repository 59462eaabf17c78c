package ports

import (
	"context"

	"github.com/samirrijal/venuefinder/internal/core/domain"
)

// SourceCatalog lists the registered entrance datasets.
type SourceCatalog interface {
	// ListSources returns a snapshot of every registered source. An absent or
	// empty registry yields an empty slice, not an error.
	ListSources(ctx context.Context) ([]domain.SourceDescriptor, error)
}

// ReloadableCatalog is a SourceCatalog whose backing registry can be re-read.
type ReloadableCatalog interface {
	SourceCatalog
	Reload(ctx context.Context) error
}

// RecordStore loads the normalized entrance records of one source.
type RecordStore interface {
	// Load returns every valid record of src. A missing backing dataset yields
	// an empty slice; malformed rows are dropped.
	Load(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error)
}

// RegionLoader is implemented by stores that can pre-filter records spatially.
// Returned records keep the order Load would produce.
type RegionLoader interface {
	LoadInRegion(ctx context.Context, src domain.SourceDescriptor, box domain.BoundingBox) ([]domain.EntranceRecord, error)
}
