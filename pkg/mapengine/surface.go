// Package mapengine synchronizes time-indexed statistics onto a map
// rendering surface: it caches and prefetches monthly datasets, drives
// the cross-fade between consecutive months, keeps per-feature state up
// to date without geometry reloads, and resolves hover/click selections
// into sequenced detail lookups.
package mapengine

import (
	geojson "github.com/paulmach/go.geojson"
)

// SourceID names a geometry source on the render surface.
type SourceID string

// LayerID names a paintable layer on the render surface.
type LayerID string

// The engine owns a fixed set of sources and layers. Region geometry is
// duplicated across two slot sources so statistics snapshots can be
// blended on identical polygons.
const (
	SourceRegionsCurrent SourceID = "regions-current"
	SourceRegionsNext    SourceID = "regions-next"
	SourcePoints         SourceID = "points"
	SourceListings       SourceID = "listings"

	LayerRegionFillCurrent LayerID = "region-fill-current"
	LayerRegionFillNext    LayerID = "region-fill-next"
	LayerRegionOutline     LayerID = "region-outline"
	LayerPoints            LayerID = "points"
	LayerHeatmap           LayerID = "heatmap"
	LayerListings          LayerID = "listings"
)

// PaintOpacity and PaintColorDomain are the paint properties the engine
// writes. Surfaces translate them into whatever their renderer needs.
const (
	PaintOpacity     = "opacity"
	PaintColorDomain = "color-domain"
)

// FeatureState is the mutable per-region statistics record, decoupled
// from the immutable geometry. Prices are nil for months with no sales.
type FeatureState struct {
	MedianPrice *float64
	MeanPrice   *float64
	Sales       int
}

// SourceOptions configure a geometry source.
type SourceOptions struct {
	// PromoteID names the feature property used as the stable feature id.
	PromoteID string
}

// PointerEvent reports a hover or click on a feature of a subscribed
// layer. Properties carries the feature's own properties for point and
// listing layers, whose features are self-contained rather than joined
// to feature state by id.
type PointerEvent struct {
	Layer      LayerID
	FeatureID  string
	Lng, Lat   float64
	Properties map[string]interface{}
}

// Surface is the capability the engine requires from the map renderer.
// Implementations may be backed by any rendering technology; the engine
// never depends on renderer internals. The surface is also expected to
// call Engine.Frame once per display refresh with increasing timestamps.
type Surface interface {
	// AddOrUpdateSource replaces a source's geometry wholesale.
	AddOrUpdateSource(id SourceID, data *geojson.FeatureCollection, opts SourceOptions)

	// SetFeatureState updates one feature's mutable state in place.
	SetFeatureState(source SourceID, featureID string, state FeatureState)

	// SetPaintProperty updates a layer paint property (PaintOpacity
	// carries a float64, PaintColorDomain a Range).
	SetPaintProperty(layer LayerID, prop string, value any)

	// SetLayoutVisibility toggles a layer on or off.
	SetLayoutVisibility(layer LayerID, visible bool)

	// OnHover and OnClick subscribe to pointer events on the given layers.
	OnHover(layers []LayerID, fn func(PointerEvent))
	OnClick(layers []LayerID, fn func(PointerEvent))
}
