package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/venuefinder/internal/adapters/csvstore"
	"github.com/samirrijal/venuefinder/internal/adapters/postgres"
	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/pkg/config"
	"github.com/samirrijal/venuefinder/internal/pkg/logging"
)

// maxConcurrentSources bounds parallel source imports.
const maxConcurrentSources = 4

// Usage: ingestor [handle,handle,...]
//
// Without a filter every catalog source is imported and sources no longer in
// the catalog are pruned.
func main() {
	cfg, err := config.Load("venuefinder-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	catalog, err := csvstore.NewCatalog(ctx, cfg.Data.Dir, cfg.Data.Catalog, slog.Default())
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	sources, err := catalog.ListSources(ctx)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	filter := map[string]bool{}
	if len(os.Args) > 1 {
		for _, s := range strings.Split(os.Args[1], ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter[strings.ToLower(s)] = true
			}
		}
	}

	slog.Info("entrance ingestor starting", "sources", len(sources), "dir", cfg.Data.Dir, "filtered", len(filter) > 0)

	start := time.Now()
	imp := postgres.NewImporter(db)
	store := csvstore.NewStore(cfg.Data.Dir)

	var total, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSources)

	for pos, src := range sources {
		if len(filter) > 0 && !filter[strings.ToLower(src.Handle)] && !filter[strings.ToLower(src.Label)] {
			continue
		}
		g.Go(func() error {
			n, err := ingestSource(gctx, imp, store, src, pos)
			if err != nil {
				// One broken file does not stop the others.
				failed.Add(1)
				slog.Error("source import failed", "source", src.Label, "error", err)
				return nil
			}
			total.Add(n)
			return nil
		})
	}
	_ = g.Wait()

	if len(filter) == 0 && failed.Load() == 0 {
		keep := make([]string, len(sources))
		for i, s := range sources {
			keep[i] = s.Handle
		}
		pruned, err := imp.PruneSources(ctx, keep)
		if err != nil {
			slog.Error("prune failed", "error", err)
		} else if pruned > 0 {
			slog.Info("pruned stale sources", "count", pruned)
		}
	}

	slog.Info("ingestion complete",
		"entrances", total.Load(),
		"failed_sources", failed.Load(),
		"duration", time.Since(start).Round(time.Millisecond).String())
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func ingestSource(ctx context.Context, imp *postgres.Importer, store *csvstore.Store, src domain.SourceDescriptor, pos int) (int64, error) {
	records, err := store.Load(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", src.Handle, err)
	}

	n, err := imp.ReplaceSource(ctx, src, pos, records)
	if err != nil {
		return 0, err
	}
	slog.Info("source imported", "source", src.Label, "entrances", n)
	return n, nil
}
