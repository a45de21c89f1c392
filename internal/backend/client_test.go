package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu          sync.Mutex
	token       string
	invalidated []string
	reasons     []error
}

func (f *fakeSession) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeSession) Invalidate(_ context.Context, token string, reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, token)
	f.reasons = append(f.reasons, reason)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := New(srv.URL+"/", srv.Client(), logger)
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(" ", nil, nil)
	assert.Error(t, err)
}

func TestBearerTokenAttached(t *testing.T) {
	var got []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.WithSession(&fakeSession{token: "sess-1"}).DonationRequests(context.Background(), "")
	require.NoError(t, err)

	_, err = c.WithSession(&fakeSession{}).DonationRequests(context.Background(), "")
	require.NoError(t, err)

	_, err = c.Public().DonationRequests(context.Background(), types.DonationStatusPending)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer sess-1", "", ""}, got)
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"unauthorized access"}`))
	})

	sess := &fakeSession{token: "sess-1"}
	_, err := c.WithSession(sess).Users(context.Background(), "")

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Equal(t, []string{"sess-1"}, sess.invalidated)

	var apiErr *types.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unauthorized access", apiErr.Message)
}

func TestUnauthorizedWithoutTokenDoesNotInvalidate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	sess := &fakeSession{}
	_, err := c.WithSession(sess).Users(context.Background(), "")

	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Empty(t, sess.invalidated)
}

func TestBlockedForbiddenInvalidatesSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"account blocked","status":"blocked"}`))
	})

	sess := &fakeSession{token: "sess-1"}
	_, err := c.WithSession(sess).CreateDonationRequest(context.Background(), &types.DonationRequest{})

	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.ErrorIs(t, err, types.ErrUserBlocked)
	assert.Equal(t, []string{"sess-1"}, sess.invalidated)
}

func TestForbiddenPassesThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden access"}`))
	})

	sess := &fakeSession{token: "sess-1"}
	_, err := c.WithSession(sess).Users(context.Background(), "")

	assert.ErrorIs(t, err, types.ErrForbidden)
	assert.NotErrorIs(t, err, types.ErrUnauthorized)
	assert.Empty(t, sess.invalidated)
}

func TestOtherStatusesPassThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	sess := &fakeSession{token: "sess-1"}
	err := c.WithSession(sess).DeleteBlog(context.Background(), "b1")

	var apiErr *types.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Empty(t, sess.invalidated)
}

func TestNetworkErrorPassesThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	c.baseURL.Host = "127.0.0.1:1"

	_, err := c.Public().Blogs(context.Background(), "")
	require.Error(t, err)

	var apiErr *types.APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.NotErrorIs(t, err, types.ErrUnauthorized)
}

func TestExchangeToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jwt", r.URL.Path)
		assert.Equal(t, "Bearer id-token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rahim@example.com", body["email"])

		_, _ = w.Write([]byte(`{"token":"sess-1"}`))
	})

	// The identity token wins over whatever session the client is bound to.
	token, err := c.WithSession(&fakeSession{token: "old"}).ExchangeToken(context.Background(), "id-token", "rahim@example.com")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", token)
}

func TestExchangeTokenMissingTokenIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jwt":"sess-1"}`))
	})

	_, err := c.ExchangeToken(context.Background(), "id-token", "rahim@example.com")
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestUserByEmailDefaultsRoleAndStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/rahim@example.com", r.URL.Path)
		_, _ = w.Write([]byte(`{"_id":"u1","email":"rahim@example.com","name":"Rahim"}`))
	})

	profile, err := c.WithSession(StaticToken("sess-1")).UserByEmail(context.Background(), "rahim@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.RoleDonor, profile.Role)
	assert.Equal(t, types.UserStatusActive, profile.Status)
	assert.Equal(t, "u1", profile.ID)
}

func TestUserByEmailRejectsBadShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"no email"}`))
	})

	_, err := c.UserByEmail(context.Background(), "rahim@example.com")
	assert.ErrorIs(t, err, types.ErrMalformedResponse)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err = c.UserByEmail(context.Background(), "rahim@example.com")
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
}

func TestRoleByEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/role/rahim@example.com", r.URL.Path)
		_, _ = w.Write([]byte(`{"role":" Admin "}`))
	})

	role, err := c.RoleByEmail(context.Background(), "rahim@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, role)
}

func TestDonationStatusesNormalised(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[{"_id":"1","status":"completed"},{"_id":"2","status":"cancelled"},{"_id":"3","status":"in progress"}]`))
	})

	requests, err := c.DonationRequests(context.Background(), types.DonationStatusPending)
	require.NoError(t, err)
	require.Len(t, requests, 3)
	assert.Equal(t, types.DonationStatusDone, requests[0].Status)
	assert.Equal(t, types.DonationStatusCanceled, requests[1].Status)
	assert.Equal(t, types.DonationStatusInProgress, requests[2].Status)
}

func TestCreateDonationRequestSetsID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"insertedId":"req-9"}`))
	})

	req := &types.DonationRequest{RecipientName: "Karim"}
	id, err := c.CreateDonationRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "req-9", id)
	assert.Equal(t, "req-9", req.ID)
}

func TestUpdateUserRoleRejectsUnknownRole(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := c.UpdateUserRole(context.Background(), "u1", types.Role("owner"))
	assert.Error(t, err)
}

func TestFundingsPaging(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"fundings":[{"_id":"f1","amount":25}],"totalPages":0}`))
	})

	page, err := c.Fundings(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Fundings, 1)
	assert.Equal(t, 25.0, page.Fundings[0].Amount)
}
