// Package memindex keeps each source's records in memory behind an R-tree so
// regional queries touch only the entrances inside the region.
package memindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/core/ports"
	"github.com/samirrijal/venuefinder/internal/pkg/geospatial"
)

const (
	treeMinChildren = 25
	treeMaxChildren = 50

	// Points are indexed as tiny rectangles and queries are padded by the same
	// amount, so entrances on a region edge are never lost to rounding.
	pointTolerance = 1e-9

	// A shared load outlives the caller that started it, up to this bound.
	loadTimeout = 30 * time.Second
)

type item struct {
	seq  int
	rect rtreego.Rect
}

func (it *item) Bounds() rtreego.Rect { return it.rect }

type entry struct {
	records []domain.EntranceRecord
	tree    *rtreego.Rtree
}

// Store wraps a RecordStore, loading each source once and serving regional
// reads from an in-memory R-tree. It implements ports.RecordStore and
// ports.RegionLoader.
type Store struct {
	next ports.RecordStore

	mu      sync.RWMutex
	entries map[string]*entry
	gen     uint64
	group   singleflight.Group
}

// New creates an indexed view over next.
func New(next ports.RecordStore) *Store {
	return &Store{next: next, entries: make(map[string]*entry)}
}

// Load returns every record of src in file order.
func (s *Store) Load(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
	e, err := s.entry(ctx, src)
	if err != nil {
		return nil, err
	}
	out := make([]domain.EntranceRecord, len(e.records))
	copy(out, e.records)
	return out, nil
}

// LoadInRegion returns the records of src inside box, in file order.
func (s *Store) LoadInRegion(ctx context.Context, src domain.SourceDescriptor, box domain.BoundingBox) ([]domain.EntranceRecord, error) {
	e, err := s.entry(ctx, src)
	if err != nil {
		return nil, err
	}
	box = box.Normalize()
	if box.IsUnrestricted() {
		out := make([]domain.EntranceRecord, len(e.records))
		copy(out, e.records)
		return out, nil
	}

	b := geospatial.ClampToWorld(box.Bound())
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || math.IsNaN(b.Min[0]+b.Min[1]+b.Max[0]+b.Max[1]) {
		return []domain.EntranceRecord{}, nil
	}
	query, err := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min[0] - pointTolerance, b.Min[1] - pointTolerance},
		rtreego.Point{b.Max[0] + pointTolerance, b.Max[1] + pointTolerance},
	)
	if err != nil {
		return nil, err
	}

	hits := e.tree.SearchIntersect(query)
	seqs := make([]int, 0, len(hits))
	for _, h := range hits {
		seqs = append(seqs, h.(*item).seq)
	}
	sort.Ints(seqs)

	out := make([]domain.EntranceRecord, 0, len(seqs))
	for _, i := range seqs {
		r := e.records[i]
		if box.Contains(r.Lat, r.Lon) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Reset drops every cached source. The next read reloads from the wrapped store.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.gen++
	s.mu.Unlock()
}

// Cached reports how many sources are held in memory.
func (s *Store) Cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) entry(ctx context.Context, src domain.SourceDescriptor) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[src.Handle]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return e, nil
	}

	key := strconv.FormatUint(gen, 10) + "/" + src.Handle
	ch := s.group.DoChan(key, func() (v interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("load %s: panic: %v", src.Handle, r)
			}
		}()
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		records, err := s.next.Load(loadCtx, src)
		if err != nil {
			return nil, err
		}
		e := build(records)
		s.mu.Lock()
		if s.gen == gen {
			s.entries[src.Handle] = e
		}
		s.mu.Unlock()
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry), nil
	}
}

func build(records []domain.EntranceRecord) *entry {
	objs := make([]rtreego.Spatial, 0, len(records))
	for i, r := range records {
		objs = append(objs, &item{
			seq:  i,
			rect: rtreego.Point{r.Lon, r.Lat}.ToRect(pointTolerance),
		})
	}
	return &entry{
		records: records,
		tree:    rtreego.NewTree(2, treeMinChildren, treeMaxChildren, objs...),
	}
}
