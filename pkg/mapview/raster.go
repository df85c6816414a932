package mapview

import (
	"image"
	"image/color"
	"math"
	"sort"
)

type point struct{ x, y float64 }

// fillRings rasterizes one polygon (outer ring plus holes) with an
// even-odd scanline fill.
func fillRings(img *image.RGBA, rings [][]point, c color.RGBA) {
	if len(rings) == 0 {
		return
	}
	bounds := img.Bounds()
	minY, maxY := float64(bounds.Dy()), 0.0
	for _, ring := range rings {
		for _, p := range ring {
			if p.y < minY {
				minY = p.y
			}
			if p.y > maxY {
				maxY = p.y
			}
		}
	}
	for y := int(minY); y <= int(maxY); y++ {
		if y < 0 || y >= bounds.Dy() {
			continue
		}
		var nodes []int
		fy := float64(y)
		for _, ring := range rings {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					nodes = append(nodes, int(nodeX))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := nodes[i], nodes[i+1]
			if xs < 0 {
				xs = 0
			}
			if xe >= bounds.Dx() {
				xe = bounds.Dx() - 1
			}
			for x := xs; x < xe; x++ {
				off := y*img.Stride + x*4
				img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, c.A
			}
		}
	}
}

// strokeRing draws a ring outline with Bresenham segments.
func strokeRing(img *image.RGBA, ring []point, c color.RGBA) {
	for i := 0; i < len(ring)-1; i++ {
		drawLine(img, int(ring[i].x), int(ring[i].y), int(ring[i+1].x), int(ring[i+1].y), c)
	}
}

func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dx, dy := math.Abs(float64(x2-x1)), math.Abs(float64(y2-y1))
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		if x1 >= 0 && x1 < w && y1 >= 0 && y1 < h {
			off := y1*img.Stride + x1*4
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, c.A
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// pointInRings reports whether a screen point falls inside a polygon:
// inside the outer ring and outside every hole.
func pointInRings(p point, rings [][]point) bool {
	if len(rings) == 0 {
		return false
	}
	if !pointInRing(p, rings[0]) {
		return false
	}
	for i := 1; i < len(rings); i++ {
		if pointInRing(p, rings[i]) {
			return false
		}
	}
	return true
}

func pointInRing(p point, ring []point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].x, ring[i].y
		xj, yj := ring[j].x, ring[j].y
		intersect := ((yi > p.y) != (yj > p.y)) && (p.x < (xj-xi)*(p.y-yi)/(yj-yi+1e-12)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}
