package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/venuefinder/internal/core/domain"
)

// Importer writes catalog and entrance data produced by the file store.
type Importer struct {
	db *DB
}

// NewImporter creates a new Importer.
func NewImporter(db *DB) *Importer {
	return &Importer{db: db}
}

// ReplaceSource upserts src at the given catalog position and replaces all of
// its entrances in one transaction. It returns the number of rows copied.
func (i *Importer) ReplaceSource(ctx context.Context, src domain.SourceDescriptor, position int, records []domain.EntranceRecord) (int64, error) {
	tx, err := i.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	box := src.Box.Normalize()
	_, err = tx.Exec(ctx, `
		INSERT INTO entrance_sources (handle, label, lat_min, lat_max, lon_min, lon_max, position, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (handle) DO UPDATE
		SET label = EXCLUDED.label,
		    lat_min = EXCLUDED.lat_min, lat_max = EXCLUDED.lat_max,
		    lon_min = EXCLUDED.lon_min, lon_max = EXCLUDED.lon_max,
		    position = EXCLUDED.position, updated_at = now()
	`, src.Handle, src.Label, box.LatMin, box.LatMax, box.LonMin, box.LonMax, position)
	if err != nil {
		return 0, fmt.Errorf("upsert source %s: %w", src.Handle, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM entrances WHERE source_handle = $1`, src.Handle); err != nil {
		return 0, fmt.Errorf("clear entrances %s: %w", src.Handle, err)
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"entrances"},
		[]string{"source_handle", "seq", "station_name", "identifier", "lat", "lon"},
		pgx.CopyFromSlice(len(records), func(idx int) ([]any, error) {
			r := records[idx]
			return []any{src.Handle, idx, r.StationName, r.Identifier, r.Lat, r.Lon}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy entrances %s: %w", src.Handle, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// PruneSources deletes every source whose handle is not in keep, together
// with its entrances.
func (i *Importer) PruneSources(ctx context.Context, keep []string) (int64, error) {
	tag, err := i.db.Pool.Exec(ctx,
		`DELETE FROM entrance_sources WHERE NOT (handle = ANY($1))`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune sources: %w", err)
	}
	return tag.RowsAffected(), nil
}
