package dataset

import (
	"context"
	"sync"

	"price-map/pkg/metrics"
)

// LoadFunc speculatively loads every active dataset kind for one month.
// Implementations must swallow their own errors; the prefetcher never
// looks at the outcome.
type LoadFunc func(ctx context.Context, index int, month string)

// Prefetcher fires background loads for the neighbors of the active time
// index. It is a pure optimization: nothing downstream depends on a
// prefetch having happened.
type Prefetcher struct {
	timeline *Timeline

	mu   sync.Mutex
	load LoadFunc
}

func NewPrefetcher(timeline *Timeline) *Prefetcher {
	return &Prefetcher{timeline: timeline}
}

// SetLoad installs the loader used for speculative fetches. The engine
// swaps it when layer visibility changes which kinds are worth warming.
func (p *Prefetcher) SetLoad(load LoadFunc) {
	p.mu.Lock()
	p.load = load
	p.mu.Unlock()
}

// Prefetch fires loads for center-1 and center+1, clamped to the valid
// range. It returns immediately; each load runs in its own goroutine.
func (p *Prefetcher) Prefetch(center int) {
	p.mu.Lock()
	load := p.load
	p.mu.Unlock()
	if load == nil || p.timeline == nil {
		return
	}

	for _, off := range []int{-1, 1} {
		i := p.timeline.Clamp(center + off)
		if i == center {
			continue
		}
		month := p.timeline.Month(i)
		metrics.RecordPrefetch()
		go load(context.Background(), i, month)
	}
}
