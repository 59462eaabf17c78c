package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/core/usecases"
)

func TestSourceService_List(t *testing.T) {
	svc := usecases.NewSourceService(staticCatalog(sourceA, sourceB), nil)

	sources, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(sources))
	}
}

func TestSourceService_List_Unavailable(t *testing.T) {
	catalog := &mockCatalog{listFn: func(ctx context.Context) ([]domain.SourceDescriptor, error) {
		return nil, domain.ErrCatalogUnavailable
	}}
	svc := usecases.NewSourceService(catalog, nil)

	sources, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sources == nil || len(sources) != 0 {
		t.Errorf("expected empty list, got %v", sources)
	}
}

func TestSourceService_Get(t *testing.T) {
	svc := usecases.NewSourceService(staticCatalog(sourceA, sourceB), nil)

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr error
	}{
		{"by label", "B", "B", nil},
		{"by label lower case", "b", "B", nil},
		{"by handle", "a.txt", "A", nil},
		{"unknown", "mta", "", domain.ErrSourceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := svc.Get(context.Background(), tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.Label != tt.want {
				t.Errorf("expected %s, got %s", tt.want, src.Label)
			}
		})
	}
}

func TestSourceService_Reload(t *testing.T) {
	reloaded := false
	catalog := &mockReloadableCatalog{mockCatalog{
		listFn: func(ctx context.Context) ([]domain.SourceDescriptor, error) {
			if reloaded {
				return []domain.SourceDescriptor{sourceB}, nil
			}
			return []domain.SourceDescriptor{sourceA}, nil
		},
		reloadFn: func(ctx context.Context) error {
			reloaded = true
			return nil
		},
	}}
	cache := newMockCache()
	_ = cache.Set(context.Background(), "entrances:records:a.txt", []byte("[]"), 60)

	svc := usecases.NewSourceService(catalog, cache)
	hooks := 0
	svc.OnReload(func() { hooks++ })

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hooks != 1 {
		t.Errorf("expected reload hook to run once, got %d", hooks)
	}
	if _, err := cache.Get(context.Background(), "entrances:records:a.txt"); err == nil {
		t.Error("expected cached records of the old source to be evicted")
	}
	if len(cache.deleted) != 2 {
		t.Errorf("expected evictions for sources before and after reload, got %v", cache.deleted)
	}

	src, err := svc.Get(context.Background(), "B")
	if err != nil || src.Handle != "b.txt" {
		t.Errorf("expected the reloaded catalog to be visible, got %+v, %v", src, err)
	}
}

func TestSourceService_Reload_Failure(t *testing.T) {
	catalog := &mockReloadableCatalog{mockCatalog{
		reloadFn: func(ctx context.Context) error { return errors.New("bounding.txt: permission denied") },
	}}
	svc := usecases.NewSourceService(catalog, nil)
	hooks := 0
	svc.OnReload(func() { hooks++ })

	if err := svc.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if hooks != 0 {
		t.Errorf("hooks must not run on a failed reload")
	}
}

func TestSourceService_Reload_Unsupported(t *testing.T) {
	svc := usecases.NewSourceService(staticCatalog(sourceA), nil)
	if err := svc.Reload(context.Background()); !errors.Is(err, usecases.ErrReloadUnsupported) {
		t.Errorf("expected ErrReloadUnsupported, got %v", err)
	}
}
