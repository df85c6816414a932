// Package mapview is the ebiten-backed reference implementation of the
// engine's render surface: it rasterizes region polygons into slot
// images, blends them by slot opacity, draws point overlays and turns
// cursor activity into pointer events.
package mapview

import "math"

// projection maps lat/lng into screen space. The fit is computed from
// the first region geometry's bounding box, with the x scale corrected
// by the cosine of the mid latitude so UK-scale extents keep shape.
type projection struct {
	minLat, maxLat float64
	minLng, maxLng float64
	scale          float64
	offsetX        float64
	offsetY        float64
	cosMid         float64
	valid          bool
}

func newProjection(minLng, minLat, maxLng, maxLat float64, width, height int) projection {
	p := projection{minLat: minLat, maxLat: maxLat, minLng: minLng, maxLng: maxLng}
	p.cosMid = math.Cos((minLat + maxLat) / 2 * math.Pi / 180)
	if p.cosMid < 0.25 {
		p.cosMid = 0.25
	}

	spanX := (maxLng - minLng) * p.cosMid
	spanY := maxLat - minLat
	if spanX <= 0 || spanY <= 0 {
		return p
	}
	// Leave a margin so outlines don't touch the window edge.
	margin := 0.05
	sx := float64(width) * (1 - 2*margin) / spanX
	sy := float64(height) * (1 - 2*margin) / spanY
	p.scale = math.Min(sx, sy)
	p.offsetX = (float64(width) - spanX*p.scale) / 2
	p.offsetY = (float64(height) - spanY*p.scale) / 2
	p.valid = true
	return p
}

func (p projection) project(lat, lng float64) (x, y float64) {
	x = p.offsetX + (lng-p.minLng)*p.cosMid*p.scale
	y = p.offsetY + (p.maxLat-lat)*p.scale
	return x, y
}

func (p projection) unproject(x, y float64) (lat, lng float64) {
	lng = p.minLng + (x-p.offsetX)/(p.cosMid*p.scale)
	lat = p.maxLat - (y-p.offsetY)/p.scale
	return lat, lng
}
