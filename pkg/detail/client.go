package detail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"price-map/pkg/logger"
)

// Client talks to the detail endpoints over HTTP. Lookups are plain
// request/response; cancellation of a superseded lookup is handled by
// the caller discarding the result, not by aborting the request.
type Client struct {
	base   string
	client *http.Client
	log    logger.Logger
}

// NewClient builds a client rooted at base (e.g. "http://host/api").
func NewClient(base string, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.Named("detail"),
	}
}

// Transactions fetches the recorded sales behind one region and month.
func (c *Client) Transactions(ctx context.Context, q TransactionQuery) (*TransactionPage, error) {
	vals := url.Values{}
	vals.Set("month", q.Month)
	vals.Set("mode", q.Mode)
	vals.Set("code", q.Code)
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	var page TransactionPage
	if err := c.get(ctx, "/transactions", vals, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Listings fetches live listings within one region.
func (c *Client) Listings(ctx context.Context, q ListingQuery) (*ListingPage, error) {
	vals := url.Values{}
	vals.Set("mode", q.Mode)
	vals.Set("code", q.Code)
	if q.Kind != "" {
		vals.Set("kind", q.Kind)
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		vals.Set("offset", strconv.Itoa(q.Offset))
	}
	var page ListingPage
	if err := c.get(ctx, "/listings", vals, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) get(ctx context.Context, path string, vals url.Values, out any) error {
	reqID := uuid.NewString()
	u := c.base + path + "?" + vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("lookup failed", logger.String("path", path), logger.String("request_id", reqID), logger.Error(err))
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("lookup bad status",
			logger.String("path", path),
			logger.String("request_id", reqID),
			logger.String("status", resp.Status))
		return fmt.Errorf("lookup %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	c.log.Debug("lookup ok",
		logger.String("path", path),
		logger.String("request_id", reqID),
		logger.Int64("ms", time.Since(start).Milliseconds()))
	return nil
}
