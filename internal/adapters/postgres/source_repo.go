package postgres

import (
	"context"
	"fmt"

	"github.com/samirrijal/venuefinder/internal/core/domain"
)

// SourceRepo implements ports.SourceCatalog over entrance_sources.
type SourceRepo struct {
	db *DB
}

// NewSourceRepo creates a new SourceRepo.
func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

// ListSources returns every registered source in import order.
func (r *SourceRepo) ListSources(ctx context.Context) ([]domain.SourceDescriptor, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT handle, label, lat_min, lat_max, lon_min, lon_max
		FROM entrance_sources
		ORDER BY position, handle
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	sources := []domain.SourceDescriptor{}
	for rows.Next() {
		var s domain.SourceDescriptor
		if err := rows.Scan(&s.Handle, &s.Label,
			&s.Box.LatMin, &s.Box.LatMax, &s.Box.LonMin, &s.Box.LonMax); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// Reload is a no-op: every ListSources call reads the table.
func (r *SourceRepo) Reload(ctx context.Context) error {
	return nil
}
