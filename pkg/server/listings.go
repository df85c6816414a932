package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	geojson "github.com/paulmach/go.geojson"

	"price-map/pkg/detail"
)

// ListingIndex serves the live listings overlay from the on-disk
// snapshot. Listings are geocoded points tagged with their postcode
// district, so region queries resolve through the district code.
type ListingIndex struct {
	mu         sync.RWMutex
	byDistrict map[string][]detail.Listing
	classifier *detail.Classifier
}

// NewListingIndex loads live/listings/listings.geojson under dataDir. A
// missing file yields an empty, still-serving index.
func NewListingIndex(dataDir string) (*ListingIndex, error) {
	idx := &ListingIndex{
		byDistrict: make(map[string][]detail.Listing),
		classifier: detail.NewClassifier(),
	}
	path := filepath.Join(dataDir, "live", "listings", "listings.geojson")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	idx.Load(fc)
	return idx, nil
}

// Load replaces the index contents from a feature collection.
func (x *ListingIndex) Load(fc *geojson.FeatureCollection) {
	byDistrict := make(map[string][]detail.Listing)
	for _, feat := range fc.Features {
		l, ok := listingFromFeature(feat, x.classifier)
		if !ok {
			continue
		}
		byDistrict[l.District] = append(byDistrict[l.District], l)
	}
	x.mu.Lock()
	x.byDistrict = byDistrict
	x.mu.Unlock()
}

// Query filters, summarizes and paginates listings for one region.
func (x *ListingIndex) Query(q detail.ListingQuery) (*detail.ListingPage, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	code := strings.ToUpper(strings.TrimSpace(q.Code))
	var matched []detail.Listing
	switch q.Mode {
	case detail.QueryModeDistrict:
		matched = append(matched, x.byDistrict[code]...)
	case detail.QueryModeArea:
		for district, ls := range x.byDistrict {
			if areaOf(district) == code {
				matched = append(matched, ls...)
			}
		}
	case detail.QueryModeSector:
		// Listings are tagged at district granularity; a sector query
		// resolves to its parent district.
		district, _, _ := strings.Cut(code, " ")
		matched = append(matched, x.byDistrict[district]...)
	default:
		return nil, fmt.Errorf("unknown query mode %q", q.Mode)
	}

	if q.Kind != "" {
		kept := matched[:0]
		for _, l := range matched {
			if l.Kind == q.Kind {
				kept = append(kept, l)
			}
		}
		matched = kept
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	page := &detail.ListingPage{
		Total:    len(matched),
		Listings: []detail.Listing{},
		Summary:  summarize(matched),
	}
	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page.Listings = append(page.Listings, matched[start:end]...)
	return page, nil
}

func listingFromFeature(feat *geojson.Feature, cls *detail.Classifier) (detail.Listing, bool) {
	var l detail.Listing
	if feat.Properties == nil {
		return l, false
	}
	if id, ok := feat.ID.(string); ok {
		l.ID = id
	}
	l.Kind, _ = feat.Properties["kind"].(string)
	l.District, _ = feat.Properties["district"].(string)
	l.District = strings.ToUpper(l.District)
	if l.ID == "" || l.District == "" {
		return l, false
	}
	if p, ok := feat.Properties["price"].(float64); ok {
		l.Price = &p
	}
	if b, ok := feat.Properties["bedrooms"].(float64); ok {
		n := int(b)
		l.Bedrooms = &n
	}
	l.Address, _ = feat.Properties["address"].(string)
	l.URL, _ = feat.Properties["url"].(string)
	if l.Address != "" {
		l.Category = cls.Classify(l.Address)
	}
	return l, true
}

func summarize(ls []detail.Listing) detail.ListingSummary {
	var s detail.ListingSummary
	var sale, rent []float64
	for _, l := range ls {
		switch l.Kind {
		case "sale":
			s.SaleCount++
			if l.Price != nil {
				sale = append(sale, *l.Price)
			}
		case "rent":
			s.RentCount++
			if l.Price != nil {
				rent = append(rent, *l.Price)
			}
		}
	}
	s.MedianSalePrice = median(sale)
	s.MedianRentPCM = median(rent)
	return s
}

func median(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sort.Float64s(values)
	mid := len(values) / 2
	m := values[mid]
	if len(values)%2 == 0 {
		m = (values[mid-1] + values[mid]) / 2
	}
	return &m
}

// areaOf extracts the letter prefix of a district code: "SW1" -> "SW".
func areaOf(district string) string {
	for i, r := range district {
		if r >= '0' && r <= '9' {
			return district[:i]
		}
	}
	return district
}
