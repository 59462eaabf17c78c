package csvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/pkg/geospatial"
)

// Column names of an entrance file.
const (
	ColStationName = "stationName"
	ColLat         = "lat"
	ColLon         = "lon"
)

// identifierColumns are tried in order for the entrance's line/route tag.
var identifierColumns = []string{"line", "route", "id", "identifier", "stopId", "stop_id"}

// ctxCheckEvery is how many rows are scanned between cancellation checks.
const ctxCheckEvery = 1024

// Store implements ports.RecordStore over per-source CSV files.
type Store struct {
	dir string
}

// NewStore creates a Store reading source files from dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads every valid record of src. A missing file yields no records.
func (s *Store) Load(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
	if !filepath.IsLocal(src.Handle) {
		return nil, fmt.Errorf("%w: handle %q escapes data root", domain.ErrSchema, src.Handle)
	}

	f, err := os.Open(filepath.Join(s.dir, src.Handle))
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.EntranceRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Handle, err)
	}
	defer f.Close()

	records, err := ParseRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Handle, err)
	}
	return records, nil
}

// ParseRecords decodes an entrance table. Rows with a blank name or an
// invalid coordinate are dropped.
func ParseRecords(ctx context.Context, r io.Reader) ([]domain.EntranceRecord, error) {
	s, err := openSheet(r)
	if err != nil {
		return nil, err
	}
	records := []domain.EntranceRecord{}
	if s.empty {
		return records, nil
	}
	if missing := s.missing(ColStationName, ColLat, ColLon); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", domain.ErrSchema, missing)
	}
	idCol := identifierColumn(s)

	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		name := s.field(row, ColStationName)
		if name == "" {
			continue
		}
		lat, err1 := strconv.ParseFloat(s.field(row, ColLat), 64)
		lon, err2 := strconv.ParseFloat(s.field(row, ColLon), 64)
		if err1 != nil || err2 != nil || !geospatial.ValidCoordinate(lat, lon) {
			continue
		}

		rec := domain.EntranceRecord{StationName: name, Lat: lat, Lon: lon}
		if idCol != "" {
			rec.Identifier = s.field(row, idCol)
		}
		records = append(records, rec)
	}
	return records, nil
}

func identifierColumn(s *sheet) string {
	for _, c := range identifierColumns {
		if _, ok := s.cols[c]; ok {
			return c
		}
	}
	for _, c := range s.header {
		switch c {
		case ColStationName, ColLat, ColLon, "":
			continue
		}
		return c
	}
	return ""
}
