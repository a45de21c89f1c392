package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"pulsepoint/pkg/types"
)

type tokenResponse struct {
	Token string `json:"token" validate:"required"`
}

type profileResponse struct {
	ID         string `json:"_id"`
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	BloodGroup string `json:"bloodGroup"`
	Division   string `json:"division"`
	District   string `json:"district"`
}

func (p profileResponse) profile() *types.UserProfile {
	return &types.UserProfile{
		ID:         p.ID,
		Email:      p.Email,
		Name:       p.Name,
		AvatarURL:  p.Avatar,
		Role:       types.ParseRole(p.Role),
		Status:     types.ParseUserStatus(p.Status),
		BloodGroup: types.BloodGroup(p.BloodGroup),
		Division:   p.Division,
		District:   p.District,
	}
}

type roleResponse struct {
	Role string `json:"role" validate:"required"`
}

// ExchangeToken trades an identity token for a backend session token. The
// identity token is sent as the bearer credential regardless of the bound
// session.
func (c *Client) ExchangeToken(ctx context.Context, identityToken, email string) (string, error) {
	const path = "/jwt"

	var out tokenResponse
	err := c.WithSession(StaticToken(identityToken)).
		do(ctx, http.MethodPost, path, nil, map[string]string{"email": email}, &out)
	if err != nil {
		return "", err
	}

	if err := decodeValid(http.MethodPost, path, &out); err != nil {
		return "", err
	}

	return out.Token, nil
}

// UserByEmail fetches the backend profile for email.
func (c *Client) UserByEmail(ctx context.Context, email string) (*types.UserProfile, error) {
	path := "/users/" + url.PathEscape(email)

	var out profileResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}

	if err := decodeValid(http.MethodGet, path, &out); err != nil {
		return nil, err
	}

	return out.profile(), nil
}

// RoleByEmail asks the backend for the current role of email.
func (c *Client) RoleByEmail(ctx context.Context, email string) (types.Role, error) {
	path := "/users/role/" + url.PathEscape(email)

	var out roleResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return "", err
	}

	if err := decodeValid(http.MethodGet, path, &out); err != nil {
		return "", err
	}

	return types.ParseRole(strings.TrimSpace(out.Role)), nil
}
