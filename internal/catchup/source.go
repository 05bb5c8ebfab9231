// Package catchup fills gaps in the live stream by requesting the most
// recent items from the server, after reconnects, on a schedule, and on
// demand. Fetched items go through the same ingestion path as live events.
package catchup

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

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/abelbrown/vinewatch/internal/model"
)

// Source returns the most recent items, newest first.
type Source interface {
	FetchRecent(ctx context.Context, limit int) ([]model.Item, error)
}

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// HTTPSource fetches recent items from a JSON endpoint:
//
//	GET <URL>?limit=N&country=XX  ->  {"items": [...]}
//
// Requests are rate limited, and concurrent callers share one request.
type HTTPSource struct {
	url     string
	country string
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
}

// NewHTTPSource creates an HTTPSource. minGap is the minimum spacing between
// requests; 0 disables limiting.
func NewHTTPSource(endpoint, country string, timeout, minGap time.Duration) *HTTPSource {
	limit := rate.Inf
	if minGap > 0 {
		limit = rate.Every(minGap)
	}
	return &HTTPSource{
		url:     endpoint,
		country: country,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type recentResponse struct {
	Items []model.Item `json:"items"`
}

// FetchRecent implements Source.
func (s *HTTPSource) FetchRecent(ctx context.Context, limit int) ([]model.Item, error) {
	key := strconv.Itoa(limit)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.fetch(ctx, limit)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		items := res.Val.([]model.Item)
		if res.Shared {
			items = cloneItems(items)
		}
		return items, nil
	}
}

func (s *HTTPSource) fetch(ctx context.Context, limit int) ([]model.Item, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parse catch-up url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if s.country != "" {
		q.Set("country", s.country)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "vinewatch")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var body recentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode recent items: %w", err)
	}

	items := make([]model.Item, 0, len(body.Items))
	for _, it := range body.Items {
		it.ASIN = strings.TrimSpace(it.ASIN)
		if it.ASIN == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func cloneItems(in []model.Item) []model.Item {
	out := make([]model.Item, len(in))
	for i, it := range in {
		out[i] = it.Clone()
	}
	return out
}
