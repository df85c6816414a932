package mapengine

import (
	"context"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"price-map/pkg/dataset"
	"price-map/pkg/logger"
	"price-map/pkg/metrics"
)

type phase int

const (
	phaseUninitialized phase = iota
	phaseSteady
	phaseCrossfading
)

// Layers is the set of independently toggleable display layers.
type Layers struct {
	Regions  bool
	Points   bool
	Heatmap  bool
	Listings bool
}

const (
	defaultCrossfadeDuration = 900 * time.Millisecond
	defaultBaseOpacity       = 0.75
)

// Engine drives the time-indexed map: it resolves monthly datasets
// through the cache, keeps two region slots in sync for cross-fading,
// replaces the point source per month, and exposes selection handling.
//
// All exported methods are safe for concurrent use. Frame must be called
// by the render surface once per display refresh with non-decreasing
// timestamps.
type Engine struct {
	surface    Surface
	cache      *dataset.Cache
	timeline   *dataset.Timeline
	prefetcher *dataset.Prefetcher
	detail     DetailClient
	log        logger.Logger

	fadeDuration time.Duration
	baseOpacity  float64

	mu           sync.Mutex
	mode         dataset.Mode
	geometryMode dataset.Mode // mode whose polygons are mounted on the slot sources
	activeIndex  int
	generation   uint64 // bumped on every index/mode change; stale loads check it

	state    phase
	baseline map[string]FeatureState // committed stats: the "current" blend baseline
	incoming map[string]FeatureState // stats written into the "next" slot
	fade     *crossfade

	globalRanges dataset.Ranges
	visible      Layers

	inflight  int
	onLoading func(bool)
	onHover   func(Summary)

	// selection sequencing; see selection.go
	selMu       sync.Mutex
	seq         uint64
	onSelection func(Selection)
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithCrossfadeDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fadeDuration = d
		}
	}
}

func WithBaseOpacity(o float64) Option {
	return func(e *Engine) {
		if o > 0 && o <= 1 {
			e.baseOpacity = o
		}
	}
}

func WithDetailClient(c DetailClient) Option {
	return func(e *Engine) { e.detail = c }
}

func WithPrefetcher(p *dataset.Prefetcher) Option {
	return func(e *Engine) { e.prefetcher = p }
}

// WithGlobalRanges installs the precomputed per-mode display ranges,
// which take precedence over locally computed percentile ranges.
func WithGlobalRanges(r dataset.Ranges) Option {
	return func(e *Engine) { e.globalRanges = r }
}

// NewEngine builds an engine over a surface, cache and timeline. The
// default mode is district with only the region layers visible.
func NewEngine(surface Surface, cache *dataset.Cache, timeline *dataset.Timeline, opts ...Option) *Engine {
	e := &Engine{
		surface:      surface,
		cache:        cache,
		timeline:     timeline,
		log:          logger.Nop(),
		fadeDuration: defaultCrossfadeDuration,
		baseOpacity:  defaultBaseOpacity,
		mode:         dataset.ModeDistrict,
		baseline:     make(map[string]FeatureState),
		incoming:     make(map[string]FeatureState),
		visible:      Layers{Regions: true},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("engine")

	if e.prefetcher != nil {
		e.prefetcher.SetLoad(e.prefetchLoad)
	}

	surface.OnHover([]LayerID{LayerRegionFillNext, LayerPoints, LayerListings}, e.handleHover)
	surface.OnClick([]LayerID{LayerRegionFillNext, LayerPoints, LayerListings}, e.handleClick)
	return e
}

// SetActiveTimeIndex moves the timeline to index i (clamped) and kicks
// off the load/apply pipeline in the background. The newest call always
// wins: results for superseded indices are discarded on arrival.
func (e *Engine) SetActiveTimeIndex(i int) {
	i = e.timeline.Clamp(i)
	e.mu.Lock()
	e.activeIndex = i
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	go e.loadAndApply(gen, i)
}

// SetMode switches the region granularity. This is the one case where
// the slot sources are torn down and rebuilt from fresh geometry.
func (e *Engine) SetMode(mode dataset.Mode) error {
	if !mode.Valid() {
		return dataset.ErrUnknownMode
	}
	e.mu.Lock()
	if mode == e.mode {
		e.mu.Unlock()
		return nil
	}
	e.mode = mode
	e.generation++
	gen := e.generation
	i := e.activeIndex
	e.state = phaseUninitialized
	e.baseline = make(map[string]FeatureState)
	e.incoming = make(map[string]FeatureState)
	e.fade = nil
	e.mu.Unlock()

	go e.loadAndApply(gen, i)
	return nil
}

// SetVisibleLayers toggles layer visibility. Visibility is orthogonal to
// the time-index pipeline, except that turning a layer on warms its data
// for the active month.
func (e *Engine) SetVisibleLayers(l Layers) {
	e.mu.Lock()
	turnedOn := l.Regions && !e.visible.Regions ||
		l.Points && !e.visible.Points ||
		l.Heatmap && !e.visible.Heatmap
	e.visible = l
	gen := e.generation
	i := e.activeIndex
	e.mu.Unlock()

	e.surface.SetLayoutVisibility(LayerRegionFillCurrent, l.Regions)
	e.surface.SetLayoutVisibility(LayerRegionFillNext, l.Regions)
	e.surface.SetLayoutVisibility(LayerRegionOutline, l.Regions)
	e.surface.SetLayoutVisibility(LayerPoints, l.Points)
	e.surface.SetLayoutVisibility(LayerHeatmap, l.Heatmap)
	e.surface.SetLayoutVisibility(LayerListings, l.Listings)

	if turnedOn {
		go e.loadAndApply(gen, i)
	}
}

// SetListings replaces the live listings source wholesale.
func (e *Engine) SetListings(fc *geojson.FeatureCollection) {
	e.surface.AddOrUpdateSource(SourceListings, fc, SourceOptions{})
}

// OnLoadingStateChange registers a callback fired when the engine starts
// or stops loading data for the active month.
func (e *Engine) OnLoadingStateChange(fn func(bool)) {
	e.mu.Lock()
	e.onLoading = fn
	e.mu.Unlock()
}

// OnHoverSummary registers a callback for hover summaries. The callback
// runs on the pointer-event path and must return quickly.
func (e *Engine) OnHoverSummary(fn func(Summary)) {
	e.mu.Lock()
	e.onHover = fn
	e.mu.Unlock()
}

// ActiveIndex returns the current timeline position.
func (e *Engine) ActiveIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeIndex
}

// Mode returns the current region granularity.
func (e *Engine) Mode() dataset.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Month returns the active period key.
func (e *Engine) Month() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeline.Month(e.activeIndex)
}

// FeatureState returns the committed statistics for a region feature.
// During a crossfade this is still the previous baseline; the incoming
// stats only commit when the fade completes.
func (e *Engine) FeatureState(featureID string) (FeatureState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.baseline[featureID]
	return st, ok
}

// Frame advances the crossfade. The render surface calls this once per
// display refresh; timestamps must be non-decreasing. At every instant
// the two slot opacities sum to the base opacity.
func (e *Engine) Frame(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != phaseCrossfading || e.fade == nil {
		return
	}
	b := e.fade.blend(now)
	e.surface.SetPaintProperty(LayerRegionFillCurrent, PaintOpacity, e.baseOpacity*(1-b))
	e.surface.SetPaintProperty(LayerRegionFillNext, PaintOpacity, e.baseOpacity*b)

	if e.fade.done(now) {
		e.baseline = e.incoming
		e.state = phaseSteady
		e.fade = nil
		metrics.RecordCrossfade("completed")
	}
}

// loadAndApply resolves the datasets for index i and applies them if the
// engine hasn't moved on. Load failures surface as "no data" for that
// month and never stall the pipeline.
func (e *Engine) loadAndApply(gen uint64, i int) {
	e.beginLoading()
	defer e.endLoading()

	ctx := context.Background()
	root := e.timeline.Root(i)
	month := e.timeline.Month(i)

	e.mu.Lock()
	mode := e.mode
	visible := e.visible
	e.mu.Unlock()

	var geometry *geojson.FeatureCollection
	var stats dataset.Stats
	if visible.Regions {
		var err error
		geometry, err = e.cache.Geometry(ctx, mode)
		if err != nil {
			e.log.Warn("geometry unavailable", logger.String("mode", string(mode)), logger.Error(err))
			geometry = nil
		}
		stats, err = e.cache.Stats(ctx, root, mode, month)
		if err != nil {
			e.log.Warn("stats unavailable", logger.String("month", month), logger.Error(err))
			stats = nil
		}
	}

	var points *geojson.FeatureCollection
	if visible.Points || visible.Heatmap {
		var err error
		points, err = e.cache.Points(ctx, root, month)
		if err != nil {
			e.log.Warn("points unavailable", logger.String("month", month), logger.Error(err))
			points = nil
		}
	}

	e.mu.Lock()
	if gen != e.generation {
		// A newer index or mode change superseded this load.
		e.mu.Unlock()
		return
	}

	if geometry != nil && e.geometryMode != mode {
		opts := SourceOptions{PromoteID: mode.PromotedIDKey()}
		e.surface.AddOrUpdateSource(SourceRegionsCurrent, geometry, opts)
		e.surface.AddOrUpdateSource(SourceRegionsNext, geometry, opts)
		e.geometryMode = mode
		e.state = phaseUninitialized
	}
	if stats != nil && e.geometryMode == mode {
		e.applyStats(stats, time.Now())
		rng := e.rangeFor(mode, stats)
		e.surface.SetPaintProperty(LayerRegionFillCurrent, PaintColorDomain, rng)
		e.surface.SetPaintProperty(LayerRegionFillNext, PaintColorDomain, rng)
	}
	e.mu.Unlock()

	if points != nil {
		// Point features are self-contained; the whole source swaps.
		e.surface.AddOrUpdateSource(SourcePoints, points, SourceOptions{})
	}

	if e.prefetcher != nil {
		e.prefetcher.Prefetch(i)
	}
}

// applyStats transitions the slot state machine. Stats entries whose id
// has no matching geometry feature are passed through to the surface,
// which ignores them; some regions legitimately record no sales.
// Callers hold e.mu.
func (e *Engine) applyStats(stats dataset.Stats, now time.Time) {
	states := make(map[string]FeatureState, len(stats))
	for code, s := range stats {
		states[code] = FeatureState{MedianPrice: s.MedianPrice, MeanPrice: s.MeanPrice, Sales: s.Sales}
	}

	switch e.state {
	case phaseUninitialized:
		// First stats for fresh geometry: no prior baseline to blend
		// from, the next slot goes straight to full opacity.
		for id, st := range states {
			e.surface.SetFeatureState(SourceRegionsNext, id, st)
			metrics.RecordFeatureWrite()
		}
		e.baseline = states
		e.incoming = states
		e.surface.SetPaintProperty(LayerRegionFillCurrent, PaintOpacity, 0.0)
		e.surface.SetPaintProperty(LayerRegionFillNext, PaintOpacity, e.baseOpacity)
		e.state = phaseSteady

	case phaseSteady:
		for id, st := range e.baseline {
			e.surface.SetFeatureState(SourceRegionsCurrent, id, st)
			metrics.RecordFeatureWrite()
		}
		for id, st := range states {
			e.surface.SetFeatureState(SourceRegionsNext, id, st)
			metrics.RecordFeatureWrite()
		}
		e.incoming = states
		// Pin the starting opacities so the next slot cannot flash at
		// full strength before the first Frame tick.
		e.surface.SetPaintProperty(LayerRegionFillCurrent, PaintOpacity, e.baseOpacity)
		e.surface.SetPaintProperty(LayerRegionFillNext, PaintOpacity, 0.0)
		e.fade = newCrossfade(now, e.fadeDuration)
		e.state = phaseCrossfading
		metrics.RecordCrossfade("started")

	case phaseCrossfading:
		// Latest update wins: overwrite the next slot and restart the
		// timer from the current blended position.
		for id, st := range states {
			e.surface.SetFeatureState(SourceRegionsNext, id, st)
			metrics.RecordFeatureWrite()
		}
		e.incoming = states
		e.fade.retarget(now)
		metrics.RecordCrossfade("retargeted")
	}
}

// rangeFor picks the display color-domain: an explicit global range for
// the mode wins, otherwise the percentile range of the visible medians.
// Callers hold e.mu.
func (e *Engine) rangeFor(mode dataset.Mode, stats dataset.Stats) Range {
	if e.globalRanges != nil {
		if r, ok := e.globalRanges[string(mode)]; ok {
			return Range{Min: r.Min, Max: r.Max}
		}
	}
	values := make([]float64, 0, len(stats))
	for _, s := range stats {
		if s.Sales > 0 && s.MedianPrice != nil {
			values = append(values, *s.MedianPrice)
		}
	}
	return ComputeRange(values)
}

// prefetchLoad is the Prefetcher's LoadFunc: it warms the cache for the
// kinds active under current visibility and swallows every failure.
func (e *Engine) prefetchLoad(ctx context.Context, i int, month string) {
	e.mu.Lock()
	mode := e.mode
	visible := e.visible
	e.mu.Unlock()

	root := e.timeline.Root(i)
	if visible.Regions {
		_, _ = e.cache.Stats(ctx, root, mode, month)
	}
	if visible.Points || visible.Heatmap {
		_, _ = e.cache.Points(ctx, root, month)
	}
}

func (e *Engine) beginLoading() {
	e.mu.Lock()
	e.inflight++
	fn := e.onLoading
	busy := e.inflight == 1
	e.mu.Unlock()
	if fn != nil && busy {
		fn(true)
	}
}

func (e *Engine) endLoading() {
	e.mu.Lock()
	e.inflight--
	fn := e.onLoading
	idle := e.inflight == 0
	e.mu.Unlock()
	if fn != nil && idle {
		fn(false)
	}
}
