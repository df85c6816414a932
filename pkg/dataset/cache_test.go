package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCacheMemoization(t *testing.T) {
	Convey("Given a cache over a counting fetcher", t, func() {
		var fetches int64
		stats := map[string]StatsEntry{
			"SW1": {MedianPrice: f64(500000), MeanPrice: f64(512000), Sales: 12},
		}
		body, err := json.Marshal(stats)
		So(err, ShouldBeNil)

		fetcher := FetcherFunc(func(ctx context.Context, path string) ([]byte, error) {
			atomic.AddInt64(&fetches, 1)
			return body, nil
		})
		c := NewCache(fetcher, nil)

		Convey("Repeated loads of one key fetch once", func() {
			for i := 0; i < 5; i++ {
				got, err := c.Stats(context.Background(), RootHistorical, ModeDistrict, "2024-01")
				So(err, ShouldBeNil)
				So(got["SW1"].Sales, ShouldEqual, 12)
				So(*got["SW1"].MedianPrice, ShouldEqual, 500000)
			}
			So(atomic.LoadInt64(&fetches), ShouldEqual, 1)
			So(c.Len(), ShouldEqual, 1)
		})

		Convey("Concurrent loads of one key share a single fetch", func() {
			const callers = 32
			errs := make([]error, callers)
			sales := make([]int, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					got, err := c.Stats(context.Background(), RootHistorical, ModeDistrict, "2024-01")
					errs[i] = err
					if err == nil {
						sales[i] = got["SW1"].Sales
					}
				}(i)
			}
			wg.Wait()
			for i := 0; i < callers; i++ {
				So(errs[i], ShouldBeNil)
				So(sales[i], ShouldEqual, 12)
			}
			So(atomic.LoadInt64(&fetches), ShouldEqual, 1)
		})

		Convey("Distinct months are distinct entries", func() {
			_, err := c.Stats(context.Background(), RootHistorical, ModeDistrict, "2024-01")
			So(err, ShouldBeNil)
			_, err = c.Stats(context.Background(), RootHistorical, ModeDistrict, "2024-02")
			So(err, ShouldBeNil)
			So(atomic.LoadInt64(&fetches), ShouldEqual, 2)
			So(c.Len(), ShouldEqual, 2)
		})

		Convey("The same month under different roots is fetched separately", func() {
			_, err := c.Stats(context.Background(), RootHistorical, ModeDistrict, "2024-01")
			So(err, ShouldBeNil)
			_, err = c.Stats(context.Background(), RootPredicted, ModeDistrict, "2024-01")
			So(err, ShouldBeNil)
			So(atomic.LoadInt64(&fetches), ShouldEqual, 2)
		})
	})
}

func TestCacheFailureRetention(t *testing.T) {
	Convey("Given a fetcher that always fails", t, func() {
		var fetches int64
		fetcher := FetcherFunc(func(ctx context.Context, path string) ([]byte, error) {
			atomic.AddInt64(&fetches, 1)
			return nil, errors.New("boom")
		})
		c := NewCache(fetcher, nil)

		Convey("The failure is memoized like a success", func() {
			_, err1 := c.Stats(context.Background(), RootHistorical, ModeDistrict, "2024-01")
			_, err2 := c.Stats(context.Background(), RootHistorical, ModeDistrict, "2024-01")
			So(err1, ShouldNotBeNil)
			So(err2, ShouldNotBeNil)
			So(atomic.LoadInt64(&fetches), ShouldEqual, 1)
		})
	})
}

func TestCacheDecoding(t *testing.T) {
	Convey("Given a fetcher serving each dataset family", t, func() {
		files := map[string][]byte{
			"historical/stats/index.json":  []byte(`{"months":["2024-01","2024-02"]}`),
			"historical/stats/ranges.json": []byte(`{"district":{"min":150000,"max":850000}}`),
			"polygons/districts.geojson": []byte(`{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{"district":"SW1"},
				 "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`),
		}
		fetcher := FetcherFunc(func(ctx context.Context, path string) ([]byte, error) {
			if b, ok := files[path]; ok {
				return b, nil
			}
			return nil, ErrNotFound
		})
		c := NewCache(fetcher, nil)

		Convey("Index decodes its month list", func() {
			idx, err := c.Index(context.Background(), RootHistorical)
			So(err, ShouldBeNil)
			So(idx.Months, ShouldResemble, []string{"2024-01", "2024-02"})
		})

		Convey("Ranges decode per mode", func() {
			r, err := c.Ranges(context.Background(), RootHistorical)
			So(err, ShouldBeNil)
			So(r["district"].Min, ShouldEqual, 150000)
			So(r["district"].Max, ShouldEqual, 850000)
		})

		Convey("Geometry decodes into a feature collection", func() {
			fc, err := c.Geometry(context.Background(), ModeDistrict)
			So(err, ShouldBeNil)
			So(len(fc.Features), ShouldEqual, 1)
			So(fc.Features[0].Properties["district"], ShouldEqual, "SW1")
		})

		Convey("A missing file surfaces the not-found sentinel", func() {
			_, err := c.Points(context.Background(), RootHistorical, "1999-01")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("Malformed bytes surface a decode error", func() {
			files["historical/stats/index.json"] = []byte(`{`)
			_, err := c.Index(context.Background(), RootHistorical)
			So(err, ShouldNotBeNil)
		})
	})
}

func f64(v float64) *float64 { return &v }
