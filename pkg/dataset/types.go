// Package dataset loads and caches the per-month files produced by the
// offline data-preparation pipeline: region geometry, region statistics,
// postcode points, live listings and the index/range manifests.
package dataset

import (
	"errors"
	"fmt"
)

// Mode selects the region granularity. Each mode has its own static
// polygon file and its own monthly statistics series.
type Mode string

const (
	ModeArea     Mode = "area"
	ModeDistrict Mode = "district"
	ModeSector   Mode = "sector"
)

// PromotedIDKey names the geometry property that carries the region code
// used as the stable feature id.
func (m Mode) PromotedIDKey() string { return string(m) }

func (m Mode) Valid() bool {
	switch m {
	case ModeArea, ModeDistrict, ModeSector:
		return true
	}
	return false
}

// Dataset roots. Historical months carry ground-truth transactions,
// predicted months are model output only.
const (
	RootHistorical = "historical"
	RootPredicted  = "predicted"
)

// StatsEntry is one region's statistics for one month. Prices are nil
// when the region recorded no sales that month.
type StatsEntry struct {
	MedianPrice *float64 `json:"median_price"`
	MeanPrice   *float64 `json:"mean_price"`
	Sales       int      `json:"sales"`
}

// Stats maps region code to that month's entry.
type Stats map[string]StatsEntry

// Index is the manifest that defines the valid time range of a dataset.
type Index struct {
	Months []string `json:"months"`
}

// Range is a precomputed color-domain for one mode.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Ranges maps mode name to its global display range.
type Ranges map[string]Range

var (
	ErrUnknownMode  = errors.New("unknown dataset mode")
	ErrUnknownMonth = errors.New("month not in index")
	ErrNotFound     = errors.New("file not found on server")
)

// Kind names one dataset family: a directory, a filename prefix and an
// extension. A Kind plus a time key identifies exactly one file.
type Kind struct {
	Dir    string
	Prefix string
	Ext    string
}

// Path returns the file path relative to the dataset root. Kinds without
// a time series (geometry, manifests) are addressed with an empty key.
func (k Kind) Path(timeKey string) string {
	if timeKey == "" {
		return fmt.Sprintf("%s/%s%s", k.Dir, k.Prefix, k.Ext)
	}
	return fmt.Sprintf("%s/%s_%s%s", k.Dir, k.Prefix, timeKey, k.Ext)
}

func (k Kind) String() string { return k.Dir + "/" + k.Prefix }

// GeometryKind addresses the static polygon file for a mode. Geometry is
// loaded once per mode and reused across every time index.
func GeometryKind(mode Mode) Kind {
	return Kind{Dir: "polygons", Prefix: string(mode) + "s", Ext: ".geojson"}
}

// StatsKind addresses the monthly statistics series for a mode under a
// dataset root (historical or predicted).
func StatsKind(root string, mode Mode) Kind {
	return Kind{Dir: root + "/stats", Prefix: string(mode), Ext: ".json"}
}

// PointsKind addresses the monthly postcode point series.
func PointsKind(root string) Kind {
	return Kind{Dir: root + "/postcode_points", Prefix: "points", Ext: ".geojson"}
}

// IndexKind addresses a dataset root's month manifest.
func IndexKind(root string) Kind {
	return Kind{Dir: root + "/stats", Prefix: "index", Ext: ".json"}
}

// RangesKind addresses a dataset root's precomputed display ranges.
func RangesKind(root string) Kind {
	return Kind{Dir: root + "/stats", Prefix: "ranges", Ext: ".json"}
}

// ListingsKind addresses the live listings overlay, which sits outside
// the monthly timeline.
func ListingsKind() Kind {
	return Kind{Dir: "live/listings", Prefix: "listings", Ext: ".geojson"}
}
