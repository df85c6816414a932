package mapview

import (
	"image/color"

	"price-map/pkg/mapengine"
)

// Color stops for the price ramp, cold to hot.
var rampStops = []color.RGBA{
	{33, 62, 120, 255},
	{38, 130, 142, 255},
	{110, 206, 88, 255},
	{253, 231, 37, 255},
}

var (
	colorNoData  = color.RGBA{26, 29, 35, 255}
	colorOutline = color.RGBA{36, 42, 53, 255}
	colorSale    = color.RGBA{0, 191, 255, 255}
	colorRent    = color.RGBA{173, 255, 47, 255}
)

// rampColor maps a value onto the price ramp within the display domain.
func rampColor(value float64, domain mapengine.Range) color.RGBA {
	span := domain.Max - domain.Min
	if span <= 0 {
		span = 1
	}
	t := (value - domain.Min) / span
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	seg := t * float64(len(rampStops)-1)
	i := int(seg)
	if i >= len(rampStops)-1 {
		return rampStops[len(rampStops)-1]
	}
	f := seg - float64(i)
	a, b := rampStops[i], rampStops[i+1]
	return color.RGBA{
		R: uint8(float64(a.R) + f*(float64(b.R)-float64(a.R))),
		G: uint8(float64(a.G) + f*(float64(b.G)-float64(a.G))),
		B: uint8(float64(a.B) + f*(float64(b.B)-float64(a.B))),
		A: 255,
	}
}
