package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"price-map/pkg/logger"
)

// HTTPFetcher retrieves dataset files over HTTP, optionally fronted by a
// badger-backed disk cache so repeated viewer sessions don't refetch
// immutable monthly files.
type HTTPFetcher struct {
	base   string
	client *http.Client
	disk   *DiskCache
	log    logger.Logger
}

// NewHTTPFetcher builds a fetcher rooted at base (e.g.
// "http://localhost:8000/data"). disk may be nil.
func NewHTTPFetcher(base string, disk *DiskCache, log logger.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPFetcher{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
		disk:   disk,
		log:    log.Named("fetch"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if f.disk != nil {
		if data, err := f.disk.Get(path); err == nil && data != nil {
			return data, nil
		}
	}

	url := f.base + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.log.Warn("close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if f.disk != nil {
		if err := f.disk.Set(path, data); err != nil {
			f.log.Warn("disk cache write", logger.String("path", path), logger.Error(err))
		}
	}
	return data, nil
}
