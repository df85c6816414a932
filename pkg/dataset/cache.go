package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	geojson "github.com/paulmach/go.geojson"

	"price-map/pkg/logger"
	"price-map/pkg/metrics"
)

// Fetcher retrieves one dataset file by its path relative to the data
// root. The transport is a black box to the cache.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, path string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, path string) ([]byte, error) { return f(ctx, path) }

// Key identifies one cache entry: dataset directory, filename prefix and
// time key (empty for non-series files).
type Key struct {
	Dir     string
	Prefix  string
	TimeKey string
}

type entry struct {
	done chan struct{}
	val  any
	err  error
}

// Cache memoizes dataset loads for the lifetime of the process. For a
// given key, all callers receive the same resolved value or the same
// error; concurrent callers before resolution share one underlying
// fetch. Entries are never evicted — the key space is bounded by month
// count — and failed entries are retained so a flapping file does not
// turn scrubbing into a retry storm.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	fetcher Fetcher
	log     logger.Logger
}

// NewCache builds a cache over the given fetcher.
func NewCache(fetcher Fetcher, log logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		entries: make(map[Key]*entry),
		fetcher: fetcher,
		log:     log.Named("cache"),
	}
}

// load resolves one entry, decoding at most once per key. The first
// caller performs the fetch; everyone else waits on the same entry.
func (c *Cache) load(ctx context.Context, kind Kind, timeKey string, decode func([]byte) (any, error)) (any, error) {
	key := Key{Dir: kind.Dir, Prefix: kind.Prefix, TimeKey: timeKey}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.mu.Unlock()
		metrics.RecordDatasetLoad(kind.String(), "shared")
		select {
		case <-e.done:
			return e.val, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e = &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	data, err := c.fetcher.Fetch(ctx, kind.Path(timeKey))
	if err != nil {
		e.err = fmt.Errorf("fetch %s: %w", kind.Path(timeKey), err)
	} else {
		e.val, e.err = decode(data)
		if e.err != nil {
			e.err = fmt.Errorf("decode %s: %w", kind.Path(timeKey), e.err)
		}
	}
	close(e.done)

	if e.err != nil {
		metrics.RecordDatasetLoad(kind.String(), "failed")
		c.log.Warn("load failed", logger.String("path", kind.Path(timeKey)), logger.Error(e.err))
	} else {
		metrics.RecordDatasetLoad(kind.String(), "fetched")
	}
	return e.val, e.err
}

// Len reports the number of memoized entries, resolved or in flight.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Index loads a dataset root's month manifest.
func (c *Cache) Index(ctx context.Context, root string) (Index, error) {
	v, err := c.load(ctx, IndexKind(root), "", func(b []byte) (any, error) {
		var idx Index
		if err := json.Unmarshal(b, &idx); err != nil {
			return nil, err
		}
		return idx, nil
	})
	if err != nil {
		return Index{}, err
	}
	return v.(Index), nil
}

// Ranges loads a dataset root's precomputed display ranges.
func (c *Cache) Ranges(ctx context.Context, root string) (Ranges, error) {
	v, err := c.load(ctx, RangesKind(root), "", func(b []byte) (any, error) {
		var r Ranges
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Ranges), nil
}

// Geometry loads the static polygon collection for a mode.
func (c *Cache) Geometry(ctx context.Context, mode Mode) (*geojson.FeatureCollection, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return c.featureCollection(ctx, GeometryKind(mode), "")
}

// Stats loads one mode's statistics for one month.
func (c *Cache) Stats(ctx context.Context, root string, mode Mode, month string) (Stats, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	v, err := c.load(ctx, StatsKind(root, mode), month, func(b []byte) (any, error) {
		var s Stats
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Stats), nil
}

// Points loads the postcode point collection for one month.
func (c *Cache) Points(ctx context.Context, root, month string) (*geojson.FeatureCollection, error) {
	return c.featureCollection(ctx, PointsKind(root), month)
}

// Listings loads the live listings overlay.
func (c *Cache) Listings(ctx context.Context) (*geojson.FeatureCollection, error) {
	return c.featureCollection(ctx, ListingsKind(), "")
}

func (c *Cache) featureCollection(ctx context.Context, kind Kind, timeKey string) (*geojson.FeatureCollection, error) {
	v, err := c.load(ctx, kind, timeKey, func(b []byte) (any, error) {
		return geojson.UnmarshalFeatureCollection(b)
	})
	if err != nil {
		return nil, err
	}
	return v.(*geojson.FeatureCollection), nil
}
