package mapview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	geojson "github.com/paulmach/go.geojson"
	"golang.org/x/image/font/gofont/goregular"

	"price-map/pkg/mapengine"
)

type regionShape struct {
	id    string
	polys [][][]point // polygons, each a list of rings in screen space
	bbox  [4]float64  // minX, minY, maxX, maxY
}

type dot struct {
	x, y  float64
	id    string
	props map[string]interface{}
}

type source struct {
	shapes   []regionShape
	dots     []dot
	states   map[string]mapengine.FeatureState
	img      *ebiten.Image
	dirty    bool
	rebuilds int
}

type pointerSub struct {
	layers map[mapengine.LayerID]bool
	fn     func(mapengine.PointerEvent)
}

// View implements mapengine.Surface on ebiten. Region sources are
// rasterized into per-slot images that Draw blends by slot opacity;
// feature-state writes only mark the image dirty, the raster runs at
// most once per frame.
type View struct {
	width, height int

	mu        sync.Mutex
	proj      projection
	sources   map[mapengine.SourceID]*source
	outline   *ebiten.Image
	outlineOK bool
	opacity   map[mapengine.LayerID]float64
	visible   map[mapengine.LayerID]bool
	domain    map[mapengine.LayerID]mapengine.Range

	hoverSubs []pointerSub
	clickSubs []pointerSub
	lastHover string

	dotImg *ebiten.Image
	font   *text.GoTextFaceSource
}

func New(width, height int) *View {
	f, _ := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	v := &View{
		width:   width,
		height:  height,
		sources: make(map[mapengine.SourceID]*source),
		opacity: map[mapengine.LayerID]float64{},
		visible: map[mapengine.LayerID]bool{
			mapengine.LayerRegionFillCurrent: true,
			mapengine.LayerRegionFillNext:    true,
			mapengine.LayerRegionOutline:     true,
		},
		domain: make(map[mapengine.LayerID]mapengine.Range),
		font:   f,
	}
	v.initDotTexture()
	return v
}

// initDotTexture renders the radial sprite used for point dots and the
// heatmap blobs.
func (v *View) initDotTexture() {
	size := 64
	img := ebiten.NewImage(size, size)
	pixels := make([]byte, size*size*4)
	center := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			dist := dx*dx + dy*dy
			maxDist := center * center
			if dist < maxDist {
				val := 1 - dist/maxDist
				pixels[(y*size+x)*4+3] = uint8(val * 255)
				pixels[(y*size+x)*4+0], pixels[(y*size+x)*4+1], pixels[(y*size+x)*4+2] = 255, 255, 255
			}
		}
	}
	img.WritePixels(pixels)
	v.dotImg = img
}

// Rebuilds reports how many times a source's geometry has been replaced.
func (v *View) Rebuilds(id mapengine.SourceID) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.sources[id]; ok {
		return s.rebuilds
	}
	return 0
}

func (v *View) AddOrUpdateSource(id mapengine.SourceID, data *geojson.FeatureCollection, opts mapengine.SourceOptions) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, ok := v.sources[id]
	if !ok {
		s = &source{states: make(map[string]mapengine.FeatureState)}
		v.sources[id] = s
	}
	s.rebuilds++
	s.shapes = s.shapes[:0]
	s.dots = s.dots[:0]
	s.states = make(map[string]mapengine.FeatureState)
	s.dirty = true

	if !v.proj.valid {
		v.fitProjection(data)
	}

	for _, feat := range data.Features {
		switch {
		case feat.Geometry == nil:
		case feat.Geometry.IsPoint():
			c := feat.Geometry.Point
			x, y := v.proj.project(c[1], c[0])
			s.dots = append(s.dots, dot{x: x, y: y, id: promotedID(feat, opts.PromoteID), props: feat.Properties})
		case feat.Geometry.IsPolygon():
			s.shapes = append(s.shapes, v.makeShape(feat, opts.PromoteID, [][][][]float64{feat.Geometry.Polygon}))
		case feat.Geometry.IsMultiPolygon():
			s.shapes = append(s.shapes, v.makeShape(feat, opts.PromoteID, feat.Geometry.MultiPolygon))
		}
	}

	if id == mapengine.SourceRegionsNext {
		v.outlineOK = false
	}
}

func (v *View) makeShape(feat *geojson.Feature, promoteID string, multi [][][][]float64) regionShape {
	shape := regionShape{id: promotedID(feat, promoteID)}
	shape.bbox = [4]float64{float64(v.width), float64(v.height), 0, 0}
	for _, poly := range multi {
		rings := make([][]point, 0, len(poly))
		for _, ring := range poly {
			pts := make([]point, 0, len(ring))
			for _, c := range ring {
				x, y := v.proj.project(c[1], c[0])
				pts = append(pts, point{x, y})
				if x < shape.bbox[0] {
					shape.bbox[0] = x
				}
				if y < shape.bbox[1] {
					shape.bbox[1] = y
				}
				if x > shape.bbox[2] {
					shape.bbox[2] = x
				}
				if y > shape.bbox[3] {
					shape.bbox[3] = y
				}
			}
			rings = append(rings, pts)
		}
		shape.polys = append(shape.polys, rings)
	}
	return shape
}

func (v *View) SetFeatureState(id mapengine.SourceID, featureID string, state mapengine.FeatureState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.sources[id]
	if !ok {
		return
	}
	// Ids without matching geometry simply never paint.
	s.states[featureID] = state
	s.dirty = true
}

func (v *View) SetPaintProperty(layer mapengine.LayerID, prop string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch prop {
	case mapengine.PaintOpacity:
		if o, ok := value.(float64); ok {
			v.opacity[layer] = o
		}
	case mapengine.PaintColorDomain:
		if r, ok := value.(mapengine.Range); ok {
			v.domain[layer] = r
			if s, ok := v.sources[sourceForLayer(layer)]; ok {
				s.dirty = true
			}
		}
	}
}

func (v *View) SetLayoutVisibility(layer mapengine.LayerID, visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible[layer] = visible
}

func (v *View) OnHover(layers []mapengine.LayerID, fn func(mapengine.PointerEvent)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hoverSubs = append(v.hoverSubs, newSub(layers, fn))
}

func (v *View) OnClick(layers []mapengine.LayerID, fn func(mapengine.PointerEvent)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clickSubs = append(v.clickSubs, newSub(layers, fn))
}

func newSub(layers []mapengine.LayerID, fn func(mapengine.PointerEvent)) pointerSub {
	set := make(map[mapengine.LayerID]bool, len(layers))
	for _, l := range layers {
		set[l] = true
	}
	return pointerSub{layers: set, fn: fn}
}

// PollInput translates cursor movement and clicks into pointer events.
// The host game calls it once per tick.
func (v *View) PollInput() {
	cx, cy := ebiten.CursorPosition()
	ev, hit := v.hitTest(float64(cx), float64(cy))

	if hit {
		key := string(ev.Layer) + "|" + ev.FeatureID
		v.mu.Lock()
		changed := key != v.lastHover
		v.lastHover = key
		subs := append([]pointerSub(nil), v.hoverSubs...)
		v.mu.Unlock()
		if changed {
			dispatch(subs, ev)
		}
	} else {
		v.mu.Lock()
		v.lastHover = ""
		v.mu.Unlock()
	}

	if hit && inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		v.mu.Lock()
		subs := append([]pointerSub(nil), v.clickSubs...)
		v.mu.Unlock()
		dispatch(subs, ev)
	}
}

func dispatch(subs []pointerSub, ev mapengine.PointerEvent) {
	for _, sub := range subs {
		if sub.layers[ev.Layer] {
			sub.fn(ev)
		}
	}
}

// hitTest finds the topmost feature under the cursor: listings, then
// points, then region polygons.
func (v *View) hitTest(x, y float64) (mapengine.PointerEvent, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.proj.valid {
		return mapengine.PointerEvent{}, false
	}
	lat, lng := v.proj.unproject(x, y)
	const radius = 7.0

	if v.visible[mapengine.LayerListings] {
		if d, ok := nearestDot(v.sources[mapengine.SourceListings], x, y, radius); ok {
			return mapengine.PointerEvent{Layer: mapengine.LayerListings, FeatureID: d.id, Lng: lng, Lat: lat, Properties: d.props}, true
		}
	}
	if v.visible[mapengine.LayerPoints] || v.visible[mapengine.LayerHeatmap] {
		if d, ok := nearestDot(v.sources[mapengine.SourcePoints], x, y, radius); ok {
			return mapengine.PointerEvent{Layer: mapengine.LayerPoints, FeatureID: d.id, Lng: lng, Lat: lat, Properties: d.props}, true
		}
	}
	if v.visible[mapengine.LayerRegionFillNext] {
		if s, ok := v.sources[mapengine.SourceRegionsNext]; ok {
			p := point{x, y}
			for i := range s.shapes {
				shape := &s.shapes[i]
				if x < shape.bbox[0] || x > shape.bbox[2] || y < shape.bbox[1] || y > shape.bbox[3] {
					continue
				}
				for _, rings := range shape.polys {
					if pointInRings(p, rings) {
						return mapengine.PointerEvent{Layer: mapengine.LayerRegionFillNext, FeatureID: shape.id, Lng: lng, Lat: lat}, true
					}
				}
			}
		}
	}
	return mapengine.PointerEvent{}, false
}

func nearestDot(s *source, x, y, radius float64) (dot, bool) {
	if s == nil {
		return dot{}, false
	}
	best := dot{}
	bestDist := radius * radius
	found := false
	for _, d := range s.dots {
		dx, dy := d.x-x, d.y-y
		if dist := dx*dx + dy*dy; dist <= bestDist {
			best, bestDist, found = d, dist, true
		}
	}
	return best, found
}

func (v *View) fitProjection(fc *geojson.FeatureCollection) {
	minLng, minLat := 180.0, 90.0
	maxLng, maxLat := -180.0, -90.0
	var walk func(coords interface{})
	walk = func(coords interface{}) {
		switch c := coords.(type) {
		case []float64:
			if len(c) >= 2 {
				if c[0] < minLng {
					minLng = c[0]
				}
				if c[0] > maxLng {
					maxLng = c[0]
				}
				if c[1] < minLat {
					minLat = c[1]
				}
				if c[1] > maxLat {
					maxLat = c[1]
				}
			}
		case [][]float64:
			for _, cc := range c {
				walk(cc)
			}
		case [][][]float64:
			for _, cc := range c {
				walk(cc)
			}
		case [][][][]float64:
			for _, cc := range c {
				walk(cc)
			}
		}
	}
	for _, feat := range fc.Features {
		if feat.Geometry == nil {
			continue
		}
		walk(feat.Geometry.Point)
		walk(feat.Geometry.Polygon)
		walk(feat.Geometry.MultiPolygon)
	}
	if minLng <= maxLng && minLat <= maxLat {
		v.proj = newProjection(minLng, minLat, maxLng, maxLat, v.width, v.height)
	}
}

// Draw renders all visible layers back to front.
func (v *View) Draw(screen *ebiten.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()

	screen.Fill(color.RGBA{8, 10, 15, 255})

	v.drawRegionLayer(screen, mapengine.LayerRegionFillCurrent, mapengine.SourceRegionsCurrent)
	v.drawRegionLayer(screen, mapengine.LayerRegionFillNext, mapengine.SourceRegionsNext)

	if v.visible[mapengine.LayerRegionOutline] {
		v.ensureOutline()
		if v.outline != nil {
			screen.DrawImage(v.outline, nil)
		}
	}
	if v.visible[mapengine.LayerHeatmap] {
		v.drawDots(screen, mapengine.SourcePoints, 26, 0.25, nil, true)
	}
	if v.visible[mapengine.LayerPoints] {
		v.drawDots(screen, mapengine.SourcePoints, 5, 0.9, nil, false)
	}
	if v.visible[mapengine.LayerListings] {
		v.drawDots(screen, mapengine.SourceListings, 6, 0.9, listingColor, false)
	}

	v.drawLegend(screen)
}

func (v *View) drawRegionLayer(screen *ebiten.Image, layer mapengine.LayerID, id mapengine.SourceID) {
	if !v.visible[layer] {
		return
	}
	alpha := v.opacity[layer]
	if alpha <= 0 {
		return
	}
	s, ok := v.sources[id]
	if !ok {
		return
	}
	v.ensureRaster(s, v.domain[layer])
	if s.img == nil {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.ColorScale.ScaleAlpha(float32(alpha))
	screen.DrawImage(s.img, op)
}

// ensureRaster refreshes a region source's fill image if any feature
// state or the color domain changed since the last frame.
func (v *View) ensureRaster(s *source, domain mapengine.Range) {
	if !s.dirty && s.img != nil {
		return
	}
	img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	for i := range s.shapes {
		shape := &s.shapes[i]
		c := colorNoData
		if st, ok := s.states[shape.id]; ok && st.Sales > 0 && st.MedianPrice != nil {
			c = rampColor(*st.MedianPrice, domain)
		}
		for _, rings := range shape.polys {
			fillRings(img, rings, c)
		}
	}
	s.img = ebiten.NewImageFromImage(img)
	s.dirty = false
}

func (v *View) ensureOutline() {
	if v.outlineOK {
		return
	}
	s, ok := v.sources[mapengine.SourceRegionsNext]
	if !ok {
		return
	}
	img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	for i := range s.shapes {
		for _, rings := range s.shapes[i].polys {
			for _, ring := range rings {
				strokeRing(img, ring, colorOutline)
			}
		}
	}
	v.outline = ebiten.NewImageFromImage(img)
	v.outlineOK = true
}

func (v *View) drawDots(screen *ebiten.Image, id mapengine.SourceID, size, alpha float64, colorFn func(map[string]interface{}) color.RGBA, additive bool) {
	s, ok := v.sources[id]
	if !ok {
		return
	}
	imgW := v.dotImg.Bounds().Dx()
	half := float64(imgW) / 2
	for _, d := range s.dots {
		op := &ebiten.DrawImageOptions{}
		if additive {
			op.Blend = ebiten.BlendLighter
		}
		scale := size / float64(imgW)
		op.GeoM.Translate(-half, -half)
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(d.x, d.y)
		c := color.RGBA{255, 255, 255, 255}
		if colorFn != nil {
			c = colorFn(d.props)
		}
		r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
		op.ColorScale.Scale(float32(r*alpha), float32(g*alpha), float32(b*alpha), float32(alpha))
		screen.DrawImage(v.dotImg, op)
	}
}

func listingColor(props map[string]interface{}) color.RGBA {
	if kind, _ := props["kind"].(string); kind == "rent" {
		return colorRent
	}
	return colorSale
}

// drawLegend renders the color ramp with its domain bounds.
func (v *View) drawLegend(screen *ebiten.Image) {
	if v.font == nil {
		return
	}
	domain := v.domain[mapengine.LayerRegionFillNext]
	if domain.Max <= domain.Min {
		return
	}
	const barW, barH, margin = 160, 10, 24.0
	x0 := margin
	y0 := float64(v.height) - margin - barH

	for i := 0; i < barW; i++ {
		t := float64(i) / float64(barW-1)
		c := rampColor(domain.Min+t*(domain.Max-domain.Min), domain)
		drawVLine(screen, int(x0)+i, int(y0), barH, c)
	}

	face := &text.GoTextFace{Source: v.font, Size: 13}
	lo := &text.DrawOptions{}
	lo.GeoM.Translate(x0, y0-18)
	lo.ColorScale.Scale(1, 1, 1, 0.8)
	text.Draw(screen, fmt.Sprintf("£%.0fk", domain.Min/1000), face, lo)

	hi := &text.DrawOptions{}
	hi.GeoM.Translate(x0+barW-40, y0-18)
	hi.ColorScale.Scale(1, 1, 1, 0.8)
	text.Draw(screen, fmt.Sprintf("£%.0fk", domain.Max/1000), face, hi)
}

func drawVLine(screen *ebiten.Image, x, y, h int, c color.RGBA) {
	for i := 0; i < h; i++ {
		screen.Set(x, y+i, c)
	}
}

// DrawPanel renders a text block, used by the host for the month readout
// and the hover/selection panels.
func (v *View) DrawPanel(screen *ebiten.Image, x, y float64, lines []string) {
	if v.font == nil {
		return
	}
	face := &text.GoTextFace{Source: v.font, Size: 14}
	for i, line := range lines {
		op := &text.DrawOptions{}
		op.GeoM.Translate(x, y+float64(i)*18)
		op.ColorScale.Scale(1, 1, 1, 0.85)
		text.Draw(screen, line, face, op)
	}
}

func sourceForLayer(layer mapengine.LayerID) mapengine.SourceID {
	switch layer {
	case mapengine.LayerRegionFillCurrent:
		return mapengine.SourceRegionsCurrent
	case mapengine.LayerRegionFillNext, mapengine.LayerRegionOutline:
		return mapengine.SourceRegionsNext
	case mapengine.LayerListings:
		return mapengine.SourceListings
	default:
		return mapengine.SourcePoints
	}
}

func promotedID(feat *geojson.Feature, key string) string {
	if key != "" && feat.Properties != nil {
		if id, ok := feat.Properties[key].(string); ok && id != "" {
			return id
		}
	}
	if id, ok := feat.ID.(string); ok {
		return id
	}
	if feat.Properties != nil {
		if pc, ok := feat.Properties["postcode"].(string); ok {
			return pc
		}
	}
	return ""
}
