package mapengine

import (
	"context"

	"price-map/pkg/dataset"
	"price-map/pkg/detail"
	"price-map/pkg/metrics"
)

// SelectionKind classifies what was clicked or hovered.
type SelectionKind string

const (
	SelectRegion  SelectionKind = "region"
	SelectPoint   SelectionKind = "point"
	SelectListing SelectionKind = "listing"
)

// Summary is the synchronous hover payload: committed feature state for
// regions, embedded properties for points and listings. Building one
// never touches the network, so it is safe at pointer-move frequency.
type Summary struct {
	Kind       SelectionKind
	FeatureID  string
	Month      string
	Mode       dataset.Mode
	State      FeatureState
	Known      bool // false when the region has no committed state yet
	Properties map[string]interface{}
}

// Selection is the asynchronous click payload delivered to the selection
// callback: first with Loading set, then exactly once with the outcome —
// unless a newer click superseded it, in which case the outcome is
// dropped silently.
type Selection struct {
	Seq            uint64
	Kind           SelectionKind
	Code           string
	Month          string
	Loading        bool
	Failed         bool
	Err            string
	NoTransactions bool
	Transactions   *detail.TransactionPage
	Listings       *detail.ListingPage
}

// DetailClient issues the drill-down lookups behind a click.
type DetailClient interface {
	Transactions(ctx context.Context, q detail.TransactionQuery) (*detail.TransactionPage, error)
	Listings(ctx context.Context, q detail.ListingQuery) (*detail.ListingPage, error)
}

// OnSelectionChange registers the callback that receives click
// selections. The callback is invoked under the selection lock and must
// not call back into selection methods or block.
func (e *Engine) OnSelectionChange(fn func(Selection)) {
	e.selMu.Lock()
	e.onSelection = fn
	e.selMu.Unlock()
}

func (e *Engine) handleHover(ev PointerEvent) {
	e.mu.Lock()
	month := e.timeline.Month(e.activeIndex)
	mode := e.mode
	fn := e.onHover
	var s Summary
	switch ev.Layer {
	case LayerPoints, LayerHeatmap:
		s = Summary{Kind: SelectPoint, FeatureID: ev.FeatureID, Month: month, Known: true, Properties: ev.Properties}
	case LayerListings:
		s = Summary{Kind: SelectListing, FeatureID: ev.FeatureID, Known: true, Properties: ev.Properties}
	default:
		st, ok := e.baseline[ev.FeatureID]
		s = Summary{Kind: SelectRegion, FeatureID: ev.FeatureID, Month: month, Mode: mode, State: st, Known: ok}
	}
	e.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

func (e *Engine) handleClick(ev PointerEvent) {
	e.mu.Lock()
	idx := e.activeIndex
	month := e.timeline.Month(idx)
	mode := e.mode
	listingsVisible := e.visible.Listings
	e.mu.Unlock()

	var kind SelectionKind
	switch ev.Layer {
	case LayerPoints, LayerHeatmap:
		kind = SelectPoint
	case LayerListings:
		kind = SelectListing
	default:
		kind = SelectRegion
	}

	// Issue the sequence number and the loading placeholder atomically,
	// so no stale resolver can slip a result in between.
	e.selMu.Lock()
	e.seq++
	seq := e.seq
	if e.onSelection != nil {
		e.onSelection(Selection{Seq: seq, Kind: kind, Code: ev.FeatureID, Month: month, Loading: true})
	}
	e.selMu.Unlock()

	go e.resolveClick(seq, kind, ev, mode, month, idx, listingsVisible)
}

// resolveClick performs the lookups for one click. There is no true
// cancellation of superseded lookups; their results are suppressed by
// the sequence check when they arrive.
func (e *Engine) resolveClick(seq uint64, kind SelectionKind, ev PointerEvent, mode dataset.Mode, month string, idx int, listingsVisible bool) {
	ctx := context.Background()
	sel := Selection{Seq: seq, Kind: kind, Code: ev.FeatureID, Month: month}

	if e.detail == nil {
		sel.Failed = true
		sel.Err = "detail lookups not configured"
		e.deliver(seq, sel)
		return
	}

	switch kind {
	case SelectListing:
		q := detail.ListingQuery{Mode: detail.QueryModeDistrict, Code: listingDistrict(ev), Limit: 1}
		page, err := e.detail.Listings(ctx, q)
		if err != nil {
			sel.Failed = true
			sel.Err = err.Error()
		} else {
			sel.Listings = page
		}

	default:
		if e.timeline.IsPredicted(idx) {
			// Prediction-only months have no ground truth to show;
			// don't waste a round trip asking for it.
			sel.NoTransactions = true
			metrics.RecordLookup("shortcircuit")
		} else {
			q := detail.TransactionQuery{Month: month, Mode: string(mode), Code: ev.FeatureID, Limit: 100}
			if kind == SelectPoint {
				q.Mode = detail.QueryModePostcode
				q.Code = pointPostcode(ev)
			}
			page, err := e.detail.Transactions(ctx, q)
			if err != nil {
				sel.Failed = true
				sel.Err = err.Error()
			} else {
				sel.Transactions = page
			}
		}

		if kind == SelectRegion && listingsVisible {
			q := detail.ListingQuery{Mode: string(mode), Code: ev.FeatureID, Limit: 50}
			if page, err := e.detail.Listings(ctx, q); err == nil {
				sel.Listings = page
			}
			// A failed secondary lookup leaves the selection usable;
			// the transactions half already tells the story.
		}
	}

	e.deliver(seq, sel)
}

// deliver applies a resolved selection only if its sequence is still the
// latest; anything older is discarded without side effects.
func (e *Engine) deliver(seq uint64, sel Selection) {
	e.selMu.Lock()
	defer e.selMu.Unlock()
	if seq != e.seq {
		metrics.RecordLookup("stale")
		return
	}
	switch {
	case sel.Failed:
		metrics.RecordLookup("failed")
	case !sel.NoTransactions:
		metrics.RecordLookup("applied")
	}
	if e.onSelection != nil {
		e.onSelection(sel)
	}
}

func pointPostcode(ev PointerEvent) string {
	if pc, ok := ev.Properties["postcode"].(string); ok && pc != "" {
		return pc
	}
	return ev.FeatureID
}

func listingDistrict(ev PointerEvent) string {
	if d, ok := ev.Properties["district"].(string); ok && d != "" {
		return d
	}
	return ev.FeatureID
}
