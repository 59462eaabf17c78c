package csvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/samirrijal/venuefinder/internal/core/domain"
)

// DefaultCatalogFile is the registry file name inside the data directory.
const DefaultCatalogFile = "bounding.txt"

var catalogColumns = []string{"file", "latMin", "latMax", "lonMin", "lonMax"}

// Catalog implements ports.ReloadableCatalog over a bounding.txt registry.
// Snapshots are immutable; Reload swaps in a new one atomically.
type Catalog struct {
	dir      string
	file     string
	snapshot atomic.Pointer[[]domain.SourceDescriptor]
	logger   *slog.Logger
}

// NewCatalog reads <dir>/<file>. A missing registry yields an empty catalog;
// an unreadable or malformed one leaves the catalog unavailable until a
// successful Reload, and the load error is returned alongside the catalog.
func NewCatalog(ctx context.Context, dir, file string, logger *slog.Logger) (*Catalog, error) {
	if file == "" {
		file = DefaultCatalogFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{dir: dir, file: file, logger: logger}
	return c, c.Reload(ctx)
}

// Dir returns the data root the catalog's handles are relative to.
func (c *Catalog) Dir() string { return c.dir }

// ListSources returns the current snapshot.
func (c *Catalog) ListSources(ctx context.Context) ([]domain.SourceDescriptor, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, domain.ErrCatalogUnavailable
	}
	return *snap, nil
}

// Reload re-reads the registry. On failure the previous snapshot stays in place.
func (c *Catalog) Reload(ctx context.Context) error {
	sources, err := c.read(ctx)
	if err != nil {
		return err
	}
	c.snapshot.Store(&sources)
	c.logger.InfoContext(ctx, "catalog loaded", "file", c.path(), "sources", len(sources))
	return nil
}

func (c *Catalog) path() string {
	return filepath.Join(c.dir, c.file)
}

func (c *Catalog) read(ctx context.Context) ([]domain.SourceDescriptor, error) {
	f, err := os.Open(c.path())
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.WarnContext(ctx, "catalog file not found", "file", c.path())
		return []domain.SourceDescriptor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	defer f.Close()

	sources, err := ParseCatalog(f, c.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCatalogUnavailable, c.file, err)
	}
	return sources, nil
}

// ParseCatalog decodes a registry table. Rows with an unusable handle or
// non-finite bounds are dropped; inverted bounds are normalized; a handle
// listed twice keeps its first row.
func ParseCatalog(r io.Reader, logger *slog.Logger) ([]domain.SourceDescriptor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := openSheet(r)
	if err != nil {
		return nil, err
	}
	sources := []domain.SourceDescriptor{}
	if s.empty {
		return sources, nil
	}
	if missing := s.missing(catalogColumns...); len(missing) > 0 {
		return nil, fmt.Errorf("missing columns %v", missing)
	}

	seen := make(map[string]bool)
	for line := 2; ; line++ {
		row, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		handle := s.field(row, "file")
		if !validHandle(handle) {
			logger.Debug("catalog row dropped", "line", line, "file", handle, "reason", "invalid handle")
			continue
		}
		box, ok := parseBox(s, row)
		if !ok {
			logger.Debug("catalog row dropped", "line", line, "file", handle, "reason", "invalid bounds")
			continue
		}
		if seen[handle] {
			logger.Warn("duplicate catalog entry ignored", "line", line, "file", handle)
			continue
		}
		seen[handle] = true

		label := s.field(row, "label")
		if label == "" {
			label = domain.LabelFromHandle(handle)
		}
		sources = append(sources, domain.SourceDescriptor{Handle: handle, Label: label, Box: box})
	}
	return sources, nil
}

// validHandle accepts plain .txt file names that stay inside the data root.
func validHandle(handle string) bool {
	return handle != "" &&
		strings.HasSuffix(handle, ".txt") &&
		filepath.IsLocal(handle)
}

func parseBox(s *sheet, row []string) (domain.BoundingBox, bool) {
	var vals [4]float64
	for i, col := range catalogColumns[1:] {
		v, err := strconv.ParseFloat(s.field(row, col), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.BoundingBox{}, false
		}
		vals[i] = v
	}
	box := domain.BoundingBox{LatMin: vals[0], LatMax: vals[1], LonMin: vals[2], LonMax: vals[3]}
	return box.Normalize(), true
}
