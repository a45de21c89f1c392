package backend

import (
	"context"
	"net/http"
	"net/url"

	"pulsepoint/pkg/types"
)

type insertResponse struct {
	InsertedID string `json:"insertedId" validate:"required"`
}

// DonationRequests lists donation requests, optionally filtered by status.
func (c *Client) DonationRequests(ctx context.Context, status types.DonationStatus) ([]*types.DonationRequest, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": {string(status)}}
	}
	return c.donationRequests(ctx, "/donation-requests", query)
}

func (c *Client) DonationRequestsByRequester(ctx context.Context, email string) ([]*types.DonationRequest, error) {
	return c.donationRequests(ctx, "/donation-requests/user/"+url.PathEscape(email), nil)
}

func (c *Client) donationRequests(ctx context.Context, path string, query url.Values) ([]*types.DonationRequest, error) {
	var out []*types.DonationRequest
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DonationRequest(ctx context.Context, id string) (*types.DonationRequest, error) {
	path := "/donation-requests/" + url.PathEscape(id)

	var out types.DonationRequest
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateDonationRequest stores a new request in pending state and returns its id.
func (c *Client) CreateDonationRequest(ctx context.Context, req *types.DonationRequest) (string, error) {
	const path = "/donation-requests"

	req.Status = types.DonationStatusPending

	var out insertResponse
	if err := c.do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return "", err
	}

	if err := decodeValid(http.MethodPost, path, &out); err != nil {
		return "", err
	}

	req.ID = out.InsertedID
	return out.InsertedID, nil
}

type DonationRequestPatch struct {
	Status     types.DonationStatus `json:"status,omitempty"`
	DonorName  string               `json:"donorName,omitempty"`
	DonorEmail string               `json:"donorEmail,omitempty"`
}

func (c *Client) UpdateDonationRequest(ctx context.Context, id string, patch DonationRequestPatch) error {
	return c.do(ctx, http.MethodPatch, "/donation-requests/"+url.PathEscape(id), nil, patch, nil)
}

func (c *Client) DeleteDonationRequest(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/donation-requests/"+url.PathEscape(id), nil, nil, nil)
}
