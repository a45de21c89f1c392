// Package backend is the authenticated HTTP client for the PulsePoint REST API.
//
// A Client is bound to a Session. Every request carries the session's token
// as a bearer credential when one exists, and a 401 from any endpoint
// invalidates the bound session before the error is returned.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulsepoint/internal/validate"
	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

// Session is the view of a browser session the client needs: the current
// token, and a way to drop the session when the backend stops accepting that
// token.
type Session interface {
	Token() string
	Invalidate(ctx context.Context, token string, reason error)
}

type staticToken string

func (t staticToken) Token() string { return string(t) }
func (t staticToken) Invalidate(context.Context, string, error) {}

// StaticToken binds a fixed credential. Invalidate is a no-op, so a 401 on a
// static token only surfaces as an error.
func StaticToken(token string) Session {
	return staticToken(token)
}

const maxErrorBody = 4 << 10

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *logrus.Logger
	session Session
}

func New(baseURL string, httpClient *http.Client, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("backend base url is required")
	}

	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Client{baseURL: u, http: httpClient, logger: logger}, nil
}

// WithSession returns a copy of the client bound to s.
func (c *Client) WithSession(s Session) *Client {
	cp := *c
	cp.session = s
	return &cp
}

// Public returns a copy of the client that never sends credentials.
func (c *Client) Public() *Client {
	return c.WithSession(nil)
}

func (c *Client) token() string {
	if c.session == nil {
		return ""
	}
	return c.session.Token()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one request and decodes a 2xx body into out when out is non-nil.
// Network errors are returned unchanged.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleFailure(ctx, method, path, token, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", types.ErrMalformedResponse, method, path, err)
	}

	return nil
}

func (c *Client) handleFailure(ctx context.Context, method, path, token string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &types.APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Status  string `json:"status"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
		apiErr.Blocked = types.UserStatus(strings.ToLower(payload.Status)) == types.UserStatusBlocked
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	if errors.Is(apiErr, types.ErrUnauthorized) {
		c.logger.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"status":  resp.StatusCode,
			"blocked": apiErr.Blocked,
		}).Warn("backend rejected session credentials, invalidating session")

		if c.session != nil && token != "" {
			c.session.Invalidate(context.WithoutCancel(ctx), token, apiErr)
		}
	}

	return fmt.Errorf("%s %s: %w", method, path, apiErr)
}

// decodeValid checks a decoded schema against its validate tags.
func decodeValid(method, path string, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s %s: %v", types.ErrMalformedResponse, method, path, err)
	}
	return nil
}
