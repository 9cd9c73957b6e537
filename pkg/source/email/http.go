package email

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/nicktill/journeyboard/pkg/source"
)

// DefaultEndpoint is the email platform API root.
const DefaultEndpoint = "https://api.email-campaigns.journeyboard.dev/v2"

// HTTPClient talks to the real email-campaign API.
type HTTPClient struct {
	endpoint string
}

// NewHTTPClient builds a vendor client. An empty endpoint selects the
// default.
func NewHTTPClient(endpoint string) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPClient{endpoint: endpoint}
}

type campaignListResponse struct {
	Items []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		StartDate string `json:"start_date"`
	} `json:"items"`
}

// ListCampaigns fetches all campaigns in one call.
func (c *HTTPClient) ListCampaigns(ctx context.Context, apiKey string) ([]Campaign, error) {
	var resp campaignListResponse
	client := source.NewClient(c.endpoint, apiKey)
	if err := client.GetJSON(ctx, "/campaigns", nil, &resp); err != nil {
		return nil, err
	}

	campaigns := make([]Campaign, 0, len(resp.Items))
	for _, item := range resp.Items {
		start, err := parseStartDate(item.StartDate)
		if err != nil {
			// Campaigns that never started carry no usable date.
			continue
		}
		campaigns = append(campaigns, Campaign{ID: item.ID, Name: item.Name, StartDate: start})
	}
	return campaigns, nil
}

type aggregateResponse struct {
	EmailsSent       float64 `json:"emails_sent_count"`
	Contacted        float64 `json:"contacted_count"`
	OpensUnique      float64 `json:"open_count_unique"`
	LinkClicksUnique float64 `json:"link_click_count_unique"`
	RepliesUnique    float64 `json:"reply_count_unique"`
	Bounced          float64 `json:"bounced_count"`
	Unsubscribed     float64 `json:"unsubscribed_count"`
}

// AggregateAnalytics fetches summed counters for the given campaigns over
// a date range in one call.
func (c *HTTPClient) AggregateAnalytics(ctx context.Context, apiKey string, campaignIDs []string, window source.DateRange) (Totals, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(campaignIDs, ","))
	params.Set("start_date", window.Start.Format("2006-01-02"))
	params.Set("end_date", window.End.Format("2006-01-02"))

	var resp aggregateResponse
	client := source.NewClient(c.endpoint, apiKey)
	if err := client.GetJSON(ctx, "/campaigns/analytics", params, &resp); err != nil {
		return Totals{}, err
	}

	return Totals{
		Sent:         resp.EmailsSent,
		Delivered:    resp.Contacted,
		Opened:       resp.OpensUnique,
		Clicked:      resp.LinkClicksUnique,
		Replied:      resp.RepliesUnique,
		Bounced:      resp.Bounced,
		Unsubscribed: resp.Unsubscribed,
	}, nil
}

// parseStartDate accepts RFC3339 or date-only campaign start dates.
func parseStartDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if len(s) >= 10 {
		return time.Parse("2006-01-02", s[:10])
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339, Value: s}
}
