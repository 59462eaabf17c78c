package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/venuefinder/internal/core/domain"
)

// EntranceRepo implements ports.RecordStore and ports.RegionLoader over the
// entrances table.
type EntranceRepo struct {
	db *DB
}

// NewEntranceRepo creates a new EntranceRepo.
func NewEntranceRepo(db *DB) *EntranceRepo {
	return &EntranceRepo{db: db}
}

// Load returns every entrance of src in file order.
func (r *EntranceRepo) Load(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT station_name, identifier, lat, lon
		FROM entrances
		WHERE source_handle = $1
		ORDER BY seq
	`, src.Handle)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src.Handle, err)
	}
	return scanRecords(rows)
}

// LoadInRegion returns the entrances of src inside box in file order.
// Infinite bounds are passed through; Postgres compares them as expected.
func (r *EntranceRepo) LoadInRegion(ctx context.Context, src domain.SourceDescriptor, box domain.BoundingBox) ([]domain.EntranceRecord, error) {
	box = box.Normalize()
	rows, err := r.db.Pool.Query(ctx, `
		SELECT station_name, identifier, lat, lon
		FROM entrances
		WHERE source_handle = $1
		  AND lat BETWEEN $2 AND $3
		  AND lon BETWEEN $4 AND $5
		ORDER BY seq
	`, src.Handle, box.LatMin, box.LatMax, box.LonMin, box.LonMax)
	if err != nil {
		return nil, fmt.Errorf("load %s in region: %w", src.Handle, err)
	}
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]domain.EntranceRecord, error) {
	defer rows.Close()

	records := []domain.EntranceRecord{}
	for rows.Next() {
		var rec domain.EntranceRecord
		if err := rows.Scan(&rec.StationName, &rec.Identifier, &rec.Lat, &rec.Lon); err != nil {
			return nil, fmt.Errorf("scan entrance: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
