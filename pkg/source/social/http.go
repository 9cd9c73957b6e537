package social

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nicktill/journeyboard/pkg/source"
)

// DefaultEndpoint is the social graph API root.
const DefaultEndpoint = "https://graph.social-insights.journeyboard.dev/v21.0"

// HTTPClient talks to the real social-graph API.
type HTTPClient struct {
	endpoint string
}

// NewHTTPClient builds a vendor client. An empty endpoint selects the
// default graph root.
func NewHTTPClient(endpoint string) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPClient{endpoint: endpoint}
}

// newCall builds a per-call client; the token travels as a query parameter
// on this API rather than a header.
func (c *HTTPClient) newCall() *source.Client {
	return source.NewClient(c.endpoint, "")
}

type insightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value   float64 `json:"value"`
			EndTime string  `json:"end_time"`
		} `json:"values"`
	} `json:"data"`
}

// AccountInsights fetches daily series for the given metrics in one call.
func (c *HTTPClient) AccountInsights(ctx context.Context, accountID, token string, window source.DateRange, metrics []string) (map[string][]DailyPoint, error) {
	params := url.Values{}
	params.Set("metric", strings.Join(metrics, ","))
	params.Set("period", "day")
	params.Set("since", window.Start.Format("2006-01-02"))
	params.Set("until", window.End.Format("2006-01-02"))
	params.Set("access_token", token)

	var resp insightsResponse
	path := fmt.Sprintf("/%s/insights", accountID)
	if err := c.newCall().GetJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	series := make(map[string][]DailyPoint, len(resp.Data))
	for _, metric := range resp.Data {
		for _, v := range metric.Values {
			date, err := parseDay(v.EndTime)
			if err != nil {
				continue
			}
			series[metric.Name] = append(series[metric.Name], DailyPoint{Date: date, Value: v.Value})
		}
	}
	return series, nil
}

type mediaListResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

// ListMedia enumerates content posted inside the window.
func (c *HTTPClient) ListMedia(ctx context.Context, accountID, token string, window source.DateRange) ([]MediaItem, error) {
	params := url.Values{}
	params.Set("fields", "id,timestamp")
	params.Set("since", fmt.Sprintf("%d", window.Start.Unix()))
	params.Set("limit", "100")
	params.Set("access_token", token)

	var resp mediaListResponse
	path := fmt.Sprintf("/%s/media", accountID)
	if err := c.newCall().GetJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	items := make([]MediaItem, 0, len(resp.Data))
	for _, m := range resp.Data {
		postedAt, err := parseDay(m.Timestamp)
		if err != nil {
			continue
		}
		items = append(items, MediaItem{ID: m.ID, PostedAt: postedAt})
	}
	return items, nil
}

// MediaInsights fetches lifetime totals for one content item.
func (c *HTTPClient) MediaInsights(ctx context.Context, mediaID, token string, metrics []string) (map[string]float64, error) {
	params := url.Values{}
	params.Set("metric", strings.Join(metrics, ","))
	params.Set("access_token", token)

	var resp insightsResponse
	path := fmt.Sprintf("/%s/insights", mediaID)
	if err := c.newCall().GetJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	totals := make(map[string]float64, len(resp.Data))
	for _, metric := range resp.Data {
		if len(metric.Values) > 0 {
			totals[metric.Name] = metric.Values[0].Value
		}
	}
	return totals, nil
}

type accountFieldsResponse struct {
	FollowersCount float64 `json:"followers_count"`
}

// AudienceSize reads the current follower count from the account fields.
func (c *HTTPClient) AudienceSize(ctx context.Context, accountID, token string) (float64, error) {
	params := url.Values{}
	params.Set("fields", "followers_count")
	params.Set("access_token", token)

	var resp accountFieldsResponse
	if err := c.newCall().GetJSON(ctx, "/"+accountID, params, &resp); err != nil {
		return 0, err
	}
	return resp.FollowersCount, nil
}

// parseDay accepts both date-only and RFC3339 timestamps, keeping the day.
func parseDay(s string) (time.Time, error) {
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.RFC3339, s)
}
