package usecases_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/core/ports"
)

// --- Mock SourceCatalog ---

type mockCatalog struct {
	listFn   func(ctx context.Context) ([]domain.SourceDescriptor, error)
	reloadFn func(ctx context.Context) error
}

func (m *mockCatalog) ListSources(ctx context.Context) ([]domain.SourceDescriptor, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockReloadableCatalog struct {
	mockCatalog
}

func (m *mockReloadableCatalog) Reload(ctx context.Context) error {
	if m.reloadFn != nil {
		return m.reloadFn(ctx)
	}
	return nil
}

func staticCatalog(sources ...domain.SourceDescriptor) *mockCatalog {
	return &mockCatalog{
		listFn: func(ctx context.Context) ([]domain.SourceDescriptor, error) { return sources, nil },
	}
}

// --- Mock RecordStore ---

type mockStore struct {
	loadFn func(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error)
	calls  atomic.Int32
}

func (m *mockStore) Load(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
	m.calls.Add(1)
	if m.loadFn != nil {
		return m.loadFn(ctx, src)
	}
	return nil, nil
}

func recordsStore(data map[string][]domain.EntranceRecord) *mockStore {
	return &mockStore{
		loadFn: func(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
			return data[src.Handle], nil
		},
	}
}

type mockRegionStore struct {
	mockStore
	regionCalls atomic.Int32
	regionFn    func(ctx context.Context, src domain.SourceDescriptor, box domain.BoundingBox) ([]domain.EntranceRecord, error)
}

func (m *mockRegionStore) LoadInRegion(ctx context.Context, src domain.SourceDescriptor, box domain.BoundingBox) ([]domain.EntranceRecord, error) {
	m.regionCalls.Add(1)
	return m.regionFn(ctx, src, box)
}

// --- Mock CacheService ---

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, context.Canceled
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	failures []ports.SourceFailure
}

func (m *mockPublisher) PublishSourceFailure(ctx context.Context, f ports.SourceFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

// --- Fixtures ---

var (
	sourceA = domain.SourceDescriptor{
		Handle: "a.txt",
		Label:  "A",
		Box:    domain.BoundingBox{LatMin: 40, LatMax: 41, LonMin: -74, LonMax: -73},
	}
	sourceB = domain.SourceDescriptor{
		Handle: "b.txt",
		Label:  "B",
		Box:    domain.BoundingBox{LatMin: 51, LatMax: 52, LonMin: -1, LonMax: 1},
	}
)
