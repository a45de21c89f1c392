package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"pulsepoint/pkg/types"
)

type NewUser struct {
	Email      string           `json:"email"`
	Name       string           `json:"name"`
	Avatar     string           `json:"avatar,omitempty"`
	BloodGroup types.BloodGroup `json:"bloodGroup"`
	Division   string           `json:"division"`
	District   string           `json:"district"`
	Role       types.Role       `json:"role"`
	Status     types.UserStatus `json:"status"`
}

type ProfileUpdate struct {
	Name       string           `json:"name,omitempty"`
	Avatar     string           `json:"avatar,omitempty"`
	BloodGroup types.BloodGroup `json:"bloodGroup,omitempty"`
	Division   string           `json:"division,omitempty"`
	District   string           `json:"district,omitempty"`
}

// CreateUser registers the backend user record that accompanies a new identity.
func (c *Client) CreateUser(ctx context.Context, user NewUser) error {
	if user.Role == "" {
		user.Role = types.RoleDonor
	}
	if user.Status == "" {
		user.Status = types.UserStatusActive
	}
	return c.do(ctx, http.MethodPost, "/users", nil, user, nil)
}

func (c *Client) Users(ctx context.Context, status types.UserStatus) ([]*types.UserProfile, error) {
	const path = "/users"

	var query url.Values
	if status != "" {
		query = url.Values{"status": {string(status)}}
	}

	var out []profileResponse
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}

	users := make([]*types.UserProfile, 0, len(out))
	for i := range out {
		if err := decodeValid(http.MethodGet, path, &out[i]); err != nil {
			return nil, err
		}
		users = append(users, out[i].profile())
	}

	return users, nil
}

func (c *Client) UpdateUserStatus(ctx context.Context, userID string, status types.UserStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid user status %q", status)
	}
	path := fmt.Sprintf("/users/%s/status", url.PathEscape(userID))
	return c.do(ctx, http.MethodPatch, path, nil, map[string]types.UserStatus{"status": status}, nil)
}

func (c *Client) UpdateUserRole(ctx context.Context, userID string, role types.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	path := fmt.Sprintf("/users/%s/role", url.PathEscape(userID))
	return c.do(ctx, http.MethodPatch, path, nil, map[string]types.Role{"role": role}, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, email string, update ProfileUpdate) error {
	path := "/users/email/" + url.PathEscape(email)
	return c.do(ctx, http.MethodPatch, path, nil, update, nil)
}
