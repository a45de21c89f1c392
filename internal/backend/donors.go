package backend

import (
	"context"
	"net/http"
	"net/url"

	"pulsepoint/pkg/types"
)

type DonorQuery struct {
	BloodGroup types.BloodGroup `form:"blood_group"`
	Division   string           `form:"division"`
	District   string           `form:"district"`
}

func (c *Client) SearchDonors(ctx context.Context, q DonorQuery) ([]*types.Donor, error) {
	query := url.Values{}
	if q.BloodGroup != "" {
		query.Set("bloodGroup", string(q.BloodGroup))
	}
	if q.Division != "" {
		query.Set("division", q.Division)
	}
	if q.District != "" {
		query.Set("district", q.District)
	}

	var out []*types.Donor
	if err := c.do(ctx, http.MethodGet, "/donors/search", query, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}
