package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/source"
)

// DefaultEndpoint is the hosted analytics proxy; deployments can override
// it per customer via the endpoint credential.
const DefaultEndpoint = "https://web-analytics.journeyboard.dev"

// HTTPClient talks to the real web-analytics endpoint.
type HTTPClient struct {
	client *source.Client
}

// NewHTTPClient builds a vendor client for the given endpoint. An empty
// endpoint selects the default.
func NewHTTPClient(endpoint string) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPClient{client: source.NewClient(endpoint, "")}
}

type monthRangeResponse struct {
	Status string `json:"status"`
	Data   map[string]struct {
		ByMonth map[string]MonthData `json:"by_month"`
	} `json:"data"`
}

// FetchMonthRange asks the endpoint for every month in [start, end] in one
// call. The response carries data pre-segmented by month.
func (c *HTTPClient) FetchMonthRange(ctx context.Context, propertyID string, start, end bucket.MonthKey) (map[string]MonthData, error) {
	params := url.Values{}
	params.Set("property_id", propertyID)
	params.Set("start_month", start.String())
	params.Set("end_month", end.String())

	var resp monthRangeResponse
	if err := c.client.GetJSON(ctx, "/analytics", params, &resp); err != nil {
		var ue *source.UpstreamError
		// Older deployments reject the range parameters outright.
		if errors.As(err, &ue) && ue.Status == http.StatusBadRequest {
			return nil, ErrBulkUnsupported
		}
		return nil, err
	}

	if resp.Status != "success" {
		return nil, &source.UpstreamError{
			Op:  "/analytics",
			Err: fmt.Errorf("endpoint reported status %q", resp.Status),
		}
	}

	property, ok := resp.Data[propertyID]
	if !ok {
		// No data for the property in this range is not an error.
		return map[string]MonthData{}, nil
	}
	return property.ByMonth, nil
}
