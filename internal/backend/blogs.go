package backend

import (
	"context"
	"net/http"
	"net/url"

	"pulsepoint/pkg/types"
)

func (c *Client) Blogs(ctx context.Context, status types.BlogStatus) ([]*types.Blog, error) {
	const path = "/blogs"

	var query url.Values
	if status != "" {
		query = url.Values{"status": {string(status)}}
	}

	var out []*types.Blog
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}

	for _, b := range out {
		if err := decodeValid(http.MethodGet, path, b); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (c *Client) Blog(ctx context.Context, id string) (*types.Blog, error) {
	path := "/blogs/" + url.PathEscape(id)

	var out types.Blog
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}

	if err := decodeValid(http.MethodGet, path, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateBlog posts a new blog. New blogs always start as drafts.
func (c *Client) CreateBlog(ctx context.Context, blog *types.Blog) error {
	blog.Status = types.BlogStatusDraft
	return c.do(ctx, http.MethodPost, "/blogs", nil, blog, nil)
}

func (c *Client) UpdateBlogStatus(ctx context.Context, id string, status types.BlogStatus) error {
	path := "/blogs/" + url.PathEscape(id) + "/status"
	return c.do(ctx, http.MethodPatch, path, nil, map[string]types.BlogStatus{"status": status}, nil)
}

func (c *Client) DeleteBlog(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/blogs/"+url.PathEscape(id), nil, nil, nil)
}
