// Package live maintains the live-listings overlay from a websocket
// feed. The feed is best-effort: the map is fully functional without it.
package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	geojson "github.com/paulmach/go.geojson"

	"price-map/pkg/detail"
	"price-map/pkg/logger"
)

// Event is one feed message: a listing appearing, changing or going off
// market.
type Event struct {
	Type    string           `json:"type"` // "upsert" or "remove"
	ID      string           `json:"id"`
	Feature *geojson.Feature `json:"feature,omitempty"`
}

// Feed subscribes to the listings websocket and periodically hands the
// merged FeatureCollection to the update callback.
type Feed struct {
	url        string
	classifier *detail.Classifier
	onUpdate   func(*geojson.FeatureCollection)
	log        logger.Logger

	mu       sync.Mutex
	listings map[string]*geojson.Feature
	dirty    bool
	stop     chan struct{}
}

// NewFeed builds a feed for the given websocket URL. onUpdate receives
// the full current collection after each batch of changes.
func NewFeed(url string, onUpdate func(*geojson.FeatureCollection), log logger.Logger) *Feed {
	if log == nil {
		log = logger.Nop()
	}
	return &Feed{
		url:        url,
		classifier: detail.NewClassifier(),
		onUpdate:   onUpdate,
		log:        log.Named("live"),
		listings:   make(map[string]*geojson.Feature),
		stop:       make(chan struct{}),
	}
}

// Seed installs an initial collection (the listings.geojson snapshot) so
// the overlay isn't empty while the socket connects.
func (f *Feed) Seed(fc *geojson.FeatureCollection) {
	f.mu.Lock()
	for _, feat := range fc.Features {
		if id := featureID(feat); id != "" {
			f.annotate(feat)
			f.listings[id] = feat
		}
	}
	f.dirty = true
	f.mu.Unlock()
	f.flush()
}

// Run connects and keeps reading until Close. Dial failures and dropped
// connections retry with capped exponential backoff.
func (f *Feed) Run() {
	go f.flushLoop()

	backoff := 1 * time.Second
	for {
		select {
		case <-f.stop:
			return
		default:
		}

		f.log.Info("connecting to listings feed", logger.String("url", f.url))
		c, _, err := websocket.DefaultDialer.Dial(f.url, nil)
		if err != nil {
			f.log.Warn("dial failed", logger.Error(err), logger.Any("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-f.stop:
				return
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			continue
		}
		backoff = 1 * time.Second

		sub := `{"type": "subscribe", "channel": "listings"}`
		if err := c.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
			f.log.Warn("subscribe failed", logger.Error(err))
			_ = c.Close()
			continue
		}

		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				f.log.Warn("read failed, reconnecting", logger.Error(err))
				break
			}
			var ev Event
			if json.Unmarshal(message, &ev) != nil {
				continue
			}
			f.apply(ev)
		}
		_ = c.Close()
		select {
		case <-time.After(time.Second):
		case <-f.stop:
			return
		}
	}
}

// Close stops the feed. Safe to call once.
func (f *Feed) Close() { close(f.stop) }

func (f *Feed) apply(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch ev.Type {
	case "upsert":
		if ev.Feature == nil {
			return
		}
		id := ev.ID
		if id == "" {
			id = featureID(ev.Feature)
		}
		if id == "" {
			return
		}
		f.annotate(ev.Feature)
		f.listings[id] = ev.Feature
		f.dirty = true
	case "remove":
		if _, ok := f.listings[ev.ID]; ok {
			delete(f.listings, ev.ID)
			f.dirty = true
		}
	}
}

// annotate attaches the keyword-derived property category used for dot
// coloring. Callers hold f.mu.
func (f *Feed) annotate(feat *geojson.Feature) {
	if feat.Properties == nil {
		return
	}
	addr, _ := feat.Properties["address"].(string)
	if addr == "" {
		return
	}
	if cat := f.classifier.Classify(addr); cat != "" {
		feat.Properties["category"] = cat
	}
}

// flushLoop batches rapid-fire events so the map source isn't replaced
// more than twice a second.
func (f *Feed) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.stop:
			return
		}
	}
}

func (f *Feed) flush() {
	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, feat := range f.listings {
		fc.AddFeature(feat)
	}
	f.dirty = false
	fn := f.onUpdate
	f.mu.Unlock()

	if fn != nil {
		fn(fc)
	}
}

func featureID(feat *geojson.Feature) string {
	if id, ok := feat.ID.(string); ok && id != "" {
		return id
	}
	if feat.Properties != nil {
		if id, ok := feat.Properties["id"].(string); ok {
			return id
		}
		if u, ok := feat.Properties["url"].(string); ok {
			return u
		}
	}
	return ""
}
