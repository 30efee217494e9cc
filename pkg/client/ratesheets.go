package client

import (
	"context"
	"fmt"
	"net/url"
)

// RateSheetsClient reads the fee schedules.
type RateSheetsClient struct {
	client *Client
}

// Latest returns the newest sheet of each fee type.
func (rc *RateSheetsClient) Latest(ctx context.Context) ([]RateSheet, error) {
	var out []RateSheet
	if err := rc.client.get(ctx, "/api/v1/rate-sheets/latest", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns every sheet of feeType, newest first.
func (rc *RateSheetsClient) History(ctx context.Context, feeType string) ([]RateSheet, error) {
	if feeType == "" {
		return nil, fmt.Errorf("client: fee type is required")
	}
	var out []RateSheet
	q := url.Values{"fee_type": {feeType}}
	if err := rc.client.get(ctx, "/api/v1/rate-sheets/history?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}
