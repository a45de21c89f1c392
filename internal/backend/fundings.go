package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"pulsepoint/pkg/types"
)

const FundingPageSize = 10

func (c *Client) Fundings(ctx context.Context, page int) (*types.FundingPage, error) {
	if page < 1 {
		page = 1
	}

	query := url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(FundingPageSize)},
	}

	var out types.FundingPage
	if err := c.do(ctx, http.MethodGet, "/fundings", query, nil, &out); err != nil {
		return nil, err
	}

	out.Page = page
	if out.TotalPages < 1 {
		out.TotalPages = 1
	}

	return &out, nil
}

func (c *Client) CreateFunding(ctx context.Context, funding *types.Funding) error {
	return c.do(ctx, http.MethodPost, "/fundings", nil, funding, nil)
}

// CreatePaymentIntent asks the backend to open a payment for amount (whole
// currency units) and returns the client secret used to confirm it.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount int64) (string, error) {
	const path = "/create-payment-intent"

	var out types.PaymentIntent
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]int64{"amount": amount}, &out); err != nil {
		return "", err
	}

	if err := decodeValid(http.MethodPost, path, &out); err != nil {
		return "", err
	}

	return out.ClientSecret, nil
}
