package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"price-map/pkg/config"
	"price-map/pkg/dataset"
	"price-map/pkg/detail"
	"price-map/pkg/live"
	"price-map/pkg/logger"
	"price-map/pkg/mapengine"
	"price-map/pkg/mapview"
)

var cli struct {
	Width    int    `help:"Internal rendering width." default:"1600"`
	Height   int    `help:"Internal rendering height." default:"1000"`
	TPS      int    `help:"Ticks per second." default:"60"`
	Mode     string `help:"Starting region granularity." enum:"area,district,sector" default:"district"`
	Heatmap  bool   `help:"Start with the density heatmap visible."`
	Listings bool   `help:"Start with the live listings overlay visible."`
}

type game struct {
	view     *mapview.View
	engine   *mapengine.Engine
	timeline *dataset.Timeline

	mu        sync.Mutex
	loading   bool
	hover     mapengine.Summary
	hoverSet  bool
	selection mapengine.Selection
	selSet    bool
}

func (g *game) Update() error {
	g.view.PollInput()

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowRight):
		g.engine.SetActiveTimeIndex(g.engine.ActiveIndex() + 1)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft):
		g.engine.SetActiveTimeIndex(g.engine.ActiveIndex() - 1)
	case inpututil.IsKeyJustPressed(ebiten.KeyHome):
		g.engine.SetActiveTimeIndex(0)
	case inpututil.IsKeyJustPressed(ebiten.KeyEnd):
		g.engine.SetActiveTimeIndex(g.timeline.Len() - 1)
	case inpututil.IsKeyJustPressed(ebiten.Key1):
		g.engine.SetMode(dataset.ModeArea)
	case inpututil.IsKeyJustPressed(ebiten.Key2):
		g.engine.SetMode(dataset.ModeDistrict)
	case inpututil.IsKeyJustPressed(ebiten.Key3):
		g.engine.SetMode(dataset.ModeSector)
	}

	g.engine.Frame(time.Now())
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	g.view.Draw(screen)

	g.mu.Lock()
	lines := []string{fmt.Sprintf("%s  [%s]", g.engine.Month(), g.engine.Mode())}
	if g.timeline.IsPredicted(g.engine.ActiveIndex()) {
		lines[0] += "  (forecast)"
	}
	if g.loading {
		lines = append(lines, "loading…")
	}
	if g.hoverSet {
		lines = append(lines, hoverLines(g.hover)...)
	}
	if g.selSet {
		lines = append(lines, "")
		lines = append(lines, selectionLines(g.selection)...)
	}
	g.mu.Unlock()

	g.view.DrawPanel(screen, 24, 24, lines)
}

func (g *game) Layout(w, h int) (int, int) { return cli.Width, cli.Height }

func hoverLines(s mapengine.Summary) []string {
	switch s.Kind {
	case mapengine.SelectRegion:
		if !s.Known || s.State.Sales == 0 {
			return []string{fmt.Sprintf("%s — no data", s.FeatureID)}
		}
		l := fmt.Sprintf("%s — %d sales", s.FeatureID, s.State.Sales)
		if s.State.MedianPrice != nil {
			l += fmt.Sprintf(", median £%.0f", *s.State.MedianPrice)
		}
		return []string{l}
	default:
		l := s.FeatureID
		if p, ok := s.Properties["median_price"].(float64); ok {
			l += fmt.Sprintf(" — median £%.0f", p)
		}
		return []string{l}
	}
}

func selectionLines(sel mapengine.Selection) []string {
	head := fmt.Sprintf("▸ %s %s", sel.Code, sel.Month)
	switch {
	case sel.Loading:
		return []string{head, "  fetching…"}
	case sel.Failed:
		return []string{head, "  lookup failed: " + sel.Err}
	case sel.NoTransactions:
		return []string{head, "  forecast month — no recorded transactions"}
	}
	lines := []string{head}
	if sel.Transactions != nil {
		lines = append(lines, fmt.Sprintf("  %d transactions (showing %d)", sel.Transactions.Total, sel.Transactions.Shown))
		for i, tx := range sel.Transactions.Transactions {
			if i >= 8 {
				break
			}
			lines = append(lines, fmt.Sprintf("  £%d  %s  %s", tx.Price, tx.Date, tx.Postcode))
		}
	}
	if sel.Listings != nil {
		s := sel.Listings.Summary
		lines = append(lines, fmt.Sprintf("  listings: %d for sale, %d to rent", s.SaleCount, s.RentCount))
	}
	return lines
}

func main() {
	kong.Parse(&cli, kong.Name("price-viewer"), kong.Description("Interactive property price map."))

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)

	var disk *dataset.DiskCache
	if cfg.DiskCacheDir != "" {
		disk, err = dataset.OpenDiskCache(cfg.DiskCacheDir)
		if err != nil {
			log.Warn("disk cache unavailable, continuing without", logger.Error(err))
		} else {
			defer disk.Close()
		}
	}

	fetcher := dataset.NewHTTPFetcher(cfg.DataBaseURL, disk, log)
	cache := dataset.NewCache(fetcher, log)

	ctx := context.Background()
	historical, err := cache.Index(ctx, dataset.RootHistorical)
	if err != nil {
		log.Error("loading month index", logger.Error(err))
		panic(err)
	}
	var predicted []string
	if idx, err := cache.Index(ctx, dataset.RootPredicted); err == nil {
		predicted = idx.Months
	} else {
		log.Info("no forecast dataset", logger.Error(err))
	}

	timeline, err := dataset.NewTimeline(historical.Months, predicted)
	if err != nil {
		panic(err)
	}

	opts := []mapengine.Option{
		mapengine.WithLogger(log.Named("engine")),
		mapengine.WithCrossfadeDuration(cfg.CrossfadeDuration),
	}
	if ranges, err := cache.Ranges(ctx, dataset.RootHistorical); err == nil {
		opts = append(opts, mapengine.WithGlobalRanges(ranges))
	}
	if cfg.APIBaseURL != "" {
		opts = append(opts, mapengine.WithDetailClient(detail.NewClient(cfg.APIBaseURL, log.Named("detail"))))
	}
	if cfg.PrefetchEnabled {
		opts = append(opts, mapengine.WithPrefetcher(dataset.NewPrefetcher(timeline)))
	}

	view := mapview.New(cli.Width, cli.Height)
	engine := mapengine.NewEngine(view, cache, timeline, opts...)

	g := &game{view: view, engine: engine, timeline: timeline}
	engine.OnLoadingStateChange(func(loading bool) {
		g.mu.Lock()
		g.loading = loading
		g.mu.Unlock()
	})
	engine.OnHoverSummary(func(s mapengine.Summary) {
		g.mu.Lock()
		g.hover, g.hoverSet = s, true
		g.mu.Unlock()
	})
	engine.OnSelectionChange(func(sel mapengine.Selection) {
		g.mu.Lock()
		g.selection, g.selSet = sel, true
		g.mu.Unlock()
	})

	engine.SetVisibleLayers(mapengine.Layers{
		Regions:  true,
		Points:   false,
		Heatmap:  cli.Heatmap,
		Listings: cli.Listings,
	})
	if err := engine.SetMode(dataset.Mode(cli.Mode)); err != nil {
		panic(err)
	}
	engine.SetActiveTimeIndex(lastActualIndex(timeline))

	if cfg.LiveFeedURL != "" {
		feed := live.NewFeed(cfg.LiveFeedURL, engine.SetListings, log.Named("live"))
		if fc, err := cache.Listings(ctx); err == nil {
			feed.Seed(fc)
		}
		go feed.Run()
		defer feed.Close()
	}

	ebiten.SetTPS(cli.TPS)
	ebiten.SetWindowSize(cli.Width, cli.Height)
	ebiten.SetWindowTitle("Price Map")
	if err := ebiten.RunGame(g); err != nil {
		log.Error("game loop exited", logger.Error(err))
		panic(err)
	}
}

// lastActualIndex picks the newest non-forecast month as the starting
// position on the timeline.
func lastActualIndex(t *dataset.Timeline) int {
	for i := t.Len() - 1; i > 0; i-- {
		if !t.IsPredicted(i) {
			return i
		}
	}
	return 0
}
