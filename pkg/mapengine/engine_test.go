package mapengine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"price-map/pkg/dataset"
)

// fakeSurface records every call the engine makes so tests can assert
// on opacities, feature states and geometry rebuild counts.
type fakeSurface struct {
	mu       sync.Mutex
	rebuilds map[SourceID]int
	states   map[SourceID]map[string]FeatureState
	opacity  map[LayerID]float64
	visible  map[LayerID]bool
	domains  map[LayerID]Range
	hover    []func(PointerEvent)
	click    []func(PointerEvent)
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		rebuilds: make(map[SourceID]int),
		states:   make(map[SourceID]map[string]FeatureState),
		opacity:  make(map[LayerID]float64),
		visible:  make(map[LayerID]bool),
		domains:  make(map[LayerID]Range),
	}
}

func (f *fakeSurface) AddOrUpdateSource(id SourceID, data *geojson.FeatureCollection, opts SourceOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds[id]++
	f.states[id] = make(map[string]FeatureState)
}

func (f *fakeSurface) SetFeatureState(id SourceID, featureID string, state FeatureState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states[id] == nil {
		f.states[id] = make(map[string]FeatureState)
	}
	f.states[id][featureID] = state
}

func (f *fakeSurface) SetPaintProperty(layer LayerID, prop string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch prop {
	case PaintOpacity:
		f.opacity[layer] = value.(float64)
	case PaintColorDomain:
		f.domains[layer] = value.(Range)
	}
}

func (f *fakeSurface) SetLayoutVisibility(layer LayerID, visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible[layer] = visible
}

func (f *fakeSurface) OnHover(layers []LayerID, fn func(PointerEvent)) {
	f.hover = append(f.hover, fn)
}

func (f *fakeSurface) OnClick(layers []LayerID, fn func(PointerEvent)) {
	f.click = append(f.click, fn)
}

func (f *fakeSurface) opacityOf(layer LayerID) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opacity[layer]
}

func (f *fakeSurface) stateOf(id SourceID, featureID string) (FeatureState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[id][featureID]
	return st, ok
}

func (f *fakeSurface) rebuildsOf(id SourceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebuilds[id]
}

// testMedians is the per-month district median used by the test fetcher.
var testMedians = map[string]float64{
	"2024-01": 500000,
	"2024-02": 520000,
	"2024-03": 495000,
}

var testSales = map[string]int{
	"2024-01": 12,
	"2024-02": 15,
	"2024-03": 9,
}

func testFetcher(t *testing.T) dataset.FetcherFunc {
	t.Helper()
	poly := [][][]float64{{{-0.2, 51.4}, {-0.1, 51.4}, {-0.1, 51.5}, {-0.2, 51.5}, {-0.2, 51.4}}}
	geometry := func(key string, codes ...string) []byte {
		fc := geojson.NewFeatureCollection()
		for _, code := range codes {
			feat := geojson.NewPolygonFeature(poly)
			feat.SetProperty(key, code)
			fc.AddFeature(feat)
		}
		b, err := fc.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal geometry: %v", err)
		}
		return b
	}

	points := func(postcode string, median float64) []byte {
		fc := geojson.NewFeatureCollection()
		feat := geojson.NewPointFeature([]float64{-0.14, 51.5})
		feat.SetProperty("postcode", postcode)
		feat.SetProperty("median_price", median)
		fc.AddFeature(feat)
		b, err := fc.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal points: %v", err)
		}
		return b
	}

	return func(ctx context.Context, path string) ([]byte, error) {
		switch path {
		case "polygons/districts.geojson":
			return geometry("district", "SW1", "SW2"), nil
		case "polygons/sectors.geojson":
			return geometry("sector", "SW1 1", "SW1 2"), nil
		}
		for month, median := range testMedians {
			if path == fmt.Sprintf("historical/postcode_points/points_%s.geojson", month) {
				return points("SW1A 1AA", median), nil
			}
			if path == fmt.Sprintf("historical/stats/district_%s.json", month) {
				stats := map[string]map[string]any{
					"SW1": {"median_price": median, "mean_price": median + 10000, "sales": testSales[month]},
					"SW2": {"median_price": nil, "mean_price": nil, "sales": 0},
				}
				return json.Marshal(stats)
			}
			if path == fmt.Sprintf("historical/stats/sector_%s.json", month) {
				return json.Marshal(map[string]map[string]any{
					"SW1 1": {"median_price": median, "mean_price": median, "sales": 3},
				})
			}
		}
		return nil, dataset.ErrNotFound
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeSurface) {
	t.Helper()
	tl, err := dataset.NewTimeline([]string{"2024-01", "2024-02", "2024-03"}, nil)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	fs := newFakeSurface()
	cache := dataset.NewCache(testFetcher(t), nil)
	return NewEngine(fs, cache, tl, opts...), fs
}

// step drives the load/apply pipeline synchronously, the way
// SetActiveTimeIndex does asynchronously.
func step(e *Engine, i int) {
	e.mu.Lock()
	e.activeIndex = e.timeline.Clamp(i)
	e.generation++
	gen := e.generation
	e.mu.Unlock()
	e.loadAndApply(gen, e.timeline.Clamp(i))
}

func TestInitialApplySkipsCrossfade(t *testing.T) {
	e, fs := newTestEngine(t)
	step(e, 0)

	if got := fs.opacityOf(LayerRegionFillNext); got != defaultBaseOpacity {
		t.Errorf("next opacity = %v; want %v", got, defaultBaseOpacity)
	}
	if got := fs.opacityOf(LayerRegionFillCurrent); got != 0 {
		t.Errorf("current opacity = %v; want 0", got)
	}

	st, ok := fs.stateOf(SourceRegionsNext, "SW1")
	if !ok || st.MedianPrice == nil || *st.MedianPrice != 500000 {
		t.Fatalf("SW1 state = %+v, ok=%v; want median 500000", st, ok)
	}
	if st.Sales != 12 {
		t.Errorf("SW1 sales = %d; want 12", st.Sales)
	}

	// Regions with zero sales still get a state write; the surface
	// paints them as no-data.
	if st, ok := fs.stateOf(SourceRegionsNext, "SW2"); !ok || st.Sales != 0 || st.MedianPrice != nil {
		t.Errorf("SW2 state = %+v, ok=%v; want zero-sales entry", st, ok)
	}
}

func TestCrossfadeConservesOpacity(t *testing.T) {
	e, fs := newTestEngine(t)
	step(e, 0)
	step(e, 1)

	start := time.Now()
	var prev float64
	for ms := 0; ms <= 1200; ms += 30 {
		now := start.Add(time.Duration(ms) * time.Millisecond)
		e.Frame(now)
		cur := fs.opacityOf(LayerRegionFillCurrent)
		next := fs.opacityOf(LayerRegionFillNext)
		if sum := cur + next; math.Abs(sum-defaultBaseOpacity) > 1e-9 {
			t.Fatalf("at %dms opacities sum to %v; want %v", ms, sum, defaultBaseOpacity)
		}
		if next+1e-9 < prev {
			t.Fatalf("at %dms next opacity went backwards: %v -> %v", ms, prev, next)
		}
		prev = next
	}

	// Fade complete: incoming stats are committed as the baseline.
	if st, ok := e.FeatureState("SW1"); !ok || *st.MedianPrice != 520000 {
		t.Errorf("committed SW1 = %+v, ok=%v; want median 520000", st, ok)
	}
	if got := fs.opacityOf(LayerRegionFillNext); got != defaultBaseOpacity {
		t.Errorf("terminal next opacity = %v; want %v", got, defaultBaseOpacity)
	}
}

func TestHoverDuringFadeReadsBaseline(t *testing.T) {
	e, fs := newTestEngine(t)

	var got Summary
	e.OnHoverSummary(func(s Summary) { got = s })

	step(e, 0)
	step(e, 1) // crossfade to 2024-02 in flight, not committed

	fs.hover[0](PointerEvent{Layer: LayerRegionFillNext, FeatureID: "SW1"})
	if !got.Known {
		t.Fatal("hover summary unknown; want committed baseline")
	}
	if *got.State.MedianPrice != 500000 {
		t.Errorf("hover median = %v; want pre-fade 500000", *got.State.MedianPrice)
	}
}

func TestGeometryReusedAcrossTimeChanges(t *testing.T) {
	e, fs := newTestEngine(t)

	for i := 0; i < 3; i++ {
		step(e, i)
	}
	if got := fs.rebuildsOf(SourceRegionsNext); got != 1 {
		t.Errorf("geometry rebuilds after scrubbing = %d; want 1", got)
	}

	// A mode change is the one event that remounts geometry.
	e.mu.Lock()
	e.mode = dataset.ModeSector
	e.generation++
	e.state = phaseUninitialized
	e.baseline = make(map[string]FeatureState)
	e.incoming = make(map[string]FeatureState)
	e.fade = nil
	gen := e.generation
	i := e.activeIndex
	e.mu.Unlock()
	e.loadAndApply(gen, i)

	if got := fs.rebuildsOf(SourceRegionsNext); got != 2 {
		t.Errorf("geometry rebuilds after mode change = %d; want 2", got)
	}
	if st, ok := fs.stateOf(SourceRegionsNext, "SW1 1"); !ok || st.Sales != 3 {
		t.Errorf("sector state = %+v, ok=%v; want 3 sales", st, ok)
	}
}

func TestStaleLoadDiscarded(t *testing.T) {
	e, fs := newTestEngine(t)
	step(e, 0)

	e.mu.Lock()
	stale := e.generation
	e.generation++ // a newer change supersedes the load below
	e.mu.Unlock()

	e.loadAndApply(stale, 1)

	if st, _ := fs.stateOf(SourceRegionsNext, "SW1"); *st.MedianPrice != 500000 {
		t.Errorf("stale load applied: SW1 median = %v; want 500000", *st.MedianPrice)
	}
	if st, _ := e.FeatureState("SW1"); *st.MedianPrice != 500000 {
		t.Errorf("stale load moved baseline: %v", *st.MedianPrice)
	}
}

func TestRetargetMidFade(t *testing.T) {
	e, fs := newTestEngine(t)
	step(e, 0)
	step(e, 1)

	start := time.Now()
	mid := start.Add(450 * time.Millisecond)
	e.Frame(mid)
	before := fs.opacityOf(LayerRegionFillNext)

	// A new month lands mid-fade: next slot is overwritten and the
	// timer restarts from the current blend.
	stats, err := e.cache.Stats(context.Background(), dataset.RootHistorical, dataset.ModeDistrict, "2024-03")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	e.mu.Lock()
	e.applyStats(stats, mid)
	e.mu.Unlock()

	e.Frame(mid)
	after := fs.opacityOf(LayerRegionFillNext)
	if math.Abs(after-before) > 1e-6 {
		t.Fatalf("opacity jumped on retarget: %v -> %v", before, after)
	}
	if st, _ := fs.stateOf(SourceRegionsNext, "SW1"); *st.MedianPrice != 495000 {
		t.Errorf("next slot median = %v; want retargeted 495000", *st.MedianPrice)
	}

	e.Frame(mid.Add(2 * time.Second))
	if st, _ := e.FeatureState("SW1"); *st.MedianPrice != 495000 {
		t.Errorf("committed median = %v; want 495000", *st.MedianPrice)
	}
}

func TestMissingMonthShowsNoData(t *testing.T) {
	tl, _ := dataset.NewTimeline([]string{"2024-01", "2024-02", "2030-01"}, nil)
	fs := newFakeSurface()
	cache := dataset.NewCache(testFetcher(t), nil)
	e := NewEngine(fs, cache, tl)

	step(e, 0)
	step(e, 2) // no stats file for 2030-01

	// The load fails quietly: the previous baseline stays visible and
	// no crossfade starts.
	if st, _ := e.FeatureState("SW1"); *st.MedianPrice != 500000 {
		t.Errorf("baseline disturbed by missing month: %v", *st.MedianPrice)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == phaseCrossfading {
		t.Error("crossfade started for a month with no stats")
	}
}

func TestFadeStartPinsSlotOpacities(t *testing.T) {
	e, fs := newTestEngine(t)
	step(e, 0)
	step(e, 1)

	// Before the first Frame tick the incoming slot must be invisible;
	// the new month only appears as the fade progresses.
	if got := fs.opacityOf(LayerRegionFillCurrent); got != defaultBaseOpacity {
		t.Errorf("current opacity at fade start = %v; want %v", got, defaultBaseOpacity)
	}
	if got := fs.opacityOf(LayerRegionFillNext); got != 0 {
		t.Errorf("next opacity at fade start = %v; want 0", got)
	}
}

func TestEnablingRegionsWarmsActiveMonth(t *testing.T) {
	e, fs := newTestEngine(t)

	e.SetVisibleLayers(Layers{})
	step(e, 0) // month loads with regions hidden: nothing mounts

	if got := fs.rebuildsOf(SourceRegionsNext); got != 0 {
		t.Fatalf("geometry mounted while hidden: rebuilds = %d", got)
	}

	e.SetVisibleLayers(Layers{Regions: true})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := fs.stateOf(SourceRegionsNext, "SW1"); ok && fs.rebuildsOf(SourceRegionsNext) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := fs.rebuildsOf(SourceRegionsNext); got != 1 {
		t.Fatalf("region layer enabled but geometry never mounted; rebuilds = %d", got)
	}
	if st, ok := fs.stateOf(SourceRegionsNext, "SW1"); !ok || st.MedianPrice == nil || *st.MedianPrice != 500000 {
		t.Errorf("SW1 state after enable = %+v, ok=%v; want median 500000", st, ok)
	}
}

func TestPointSourceReplacedPerIndex(t *testing.T) {
	e, fs := newTestEngine(t)
	e.mu.Lock()
	e.visible = Layers{Regions: true, Points: true}
	e.mu.Unlock()

	for i := 0; i < 3; i++ {
		step(e, i)
	}

	// Point features are self-contained per month: the source swaps
	// wholesale on every index change, unlike the region slots.
	if got := fs.rebuildsOf(SourcePoints); got != 3 {
		t.Errorf("point source rebuilds = %d; want 3", got)
	}
	if got := fs.rebuildsOf(SourceRegionsNext); got != 1 {
		t.Errorf("region source rebuilds = %d; want 1", got)
	}
}

func TestPointsSkippedWhenHidden(t *testing.T) {
	e, fs := newTestEngine(t)

	for i := 0; i < 3; i++ {
		step(e, i)
	}
	if got := fs.rebuildsOf(SourcePoints); got != 0 {
		t.Errorf("point source rebuilds = %d; want 0 with the layer hidden", got)
	}
}

func TestGlobalRangePrecedence(t *testing.T) {
	ranges := dataset.Ranges{"district": {Min: 100000, Max: 900000}}
	e, fs := newTestEngine(t, WithGlobalRanges(ranges))
	step(e, 0)

	fs.mu.Lock()
	got := fs.domains[LayerRegionFillNext]
	fs.mu.Unlock()
	if got.Min != 100000 || got.Max != 900000 {
		t.Errorf("color domain = %+v; want global range 100000..900000", got)
	}
}
