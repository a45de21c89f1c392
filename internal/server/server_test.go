package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"pulsepoint/internal/backend"
	"pulsepoint/internal/identity"
	"pulsepoint/internal/payment"
	"pulsepoint/internal/session"
	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory stand-in for the PulsePoint REST backend.
type fakeAPI struct {
	mu       sync.Mutex
	users    map[string]*types.UserProfile
	revoked  map[string]bool
	created  []backend.NewUser
	requests []types.DonationRequest
	fundings []types.Funding
	blogs    []types.Blog
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{users: map[string]*types.UserProfile{}, revoked: map[string]bool{}}
}

func (f *fakeAPI) addUser(p types.UserProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[p.Email] = &p
}

func (f *fakeAPI) setRole(email string, role types.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email].Role = role
}

func (f *fakeAPI) revoke(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked["sess-"+email] = true
}

// caller returns the email behind a valid session token, or "".
func (f *fakeAPI) caller(r *http.Request) string {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.HasPrefix(token, "sess-") || f.revoked[token] {
		return ""
	}
	return strings.TrimPrefix(token, "sess-")
}

func writeAPIJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /jwt", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Header.Get("Authorization") != "Bearer id-"+body.Email {
			writeAPIJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad identity token"})
			return
		}
		writeAPIJSON(w, http.StatusOK, map[string]string{"token": "sess-" + body.Email})
	})

	profile := func(p *types.UserProfile) map[string]any {
		return map[string]any{"_id": p.ID, "email": p.Email, "name": p.Name, "role": p.Role, "status": p.Status}
	}

	mux.HandleFunc("GET /users/{email}", func(w http.ResponseWriter, r *http.Request) {
		if f.caller(r) == "" {
			writeAPIJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized access"})
			return
		}
		f.mu.Lock()
		p, ok := f.users[r.PathValue("email")]
		f.mu.Unlock()
		if !ok {
			writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "user not found"})
			return
		}
		writeAPIJSON(w, http.StatusOK, profile(p))
	})

	mux.HandleFunc("GET /users/role/{email}", func(w http.ResponseWriter, r *http.Request) {
		if f.caller(r) == "" {
			writeAPIJSON(w, http.StatusUnauthorized, nil)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		writeAPIJSON(w, http.StatusOK, map[string]any{"role": f.users[r.PathValue("email")].Role})
	})

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		if f.caller(r) == "" {
			writeAPIJSON(w, http.StatusUnauthorized, nil)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []map[string]any{}
		for _, p := range f.users {
			out = append(out, profile(p))
		}
		writeAPIJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		var u backend.NewUser
		_ = json.NewDecoder(r.Body).Decode(&u)
		f.mu.Lock()
		f.created = append(f.created, u)
		f.users[u.Email] = &types.UserProfile{ID: "u-" + u.Email, Email: u.Email, Name: u.Name, Role: u.Role, Status: u.Status}
		f.mu.Unlock()
		writeAPIJSON(w, http.StatusOK, map[string]string{"insertedId": "u-" + u.Email})
	})

	mux.HandleFunc("GET /donation-requests/user/{email}", func(w http.ResponseWriter, r *http.Request) {
		if f.caller(r) != r.PathValue("email") {
			writeAPIJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized access"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		writeAPIJSON(w, http.StatusOK, f.requests)
	})

	mux.HandleFunc("POST /donation-requests", func(w http.ResponseWriter, r *http.Request) {
		if f.caller(r) == "" {
			writeAPIJSON(w, http.StatusUnauthorized, nil)
			return
		}
		var req types.DonationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		writeAPIJSON(w, http.StatusOK, map[string]string{"insertedId": "req-1"})
	})

	mux.HandleFunc("POST /fundings", func(w http.ResponseWriter, r *http.Request) {
		if f.caller(r) == "" {
			writeAPIJSON(w, http.StatusUnauthorized, nil)
			return
		}
		var funding types.Funding
		_ = json.NewDecoder(r.Body).Decode(&funding)
		f.mu.Lock()
		f.fundings = append(f.fundings, funding)
		f.mu.Unlock()
		writeAPIJSON(w, http.StatusOK, map[string]string{"insertedId": "f-1"})
	})

	mux.HandleFunc("POST /blogs", func(w http.ResponseWriter, r *http.Request) {
		if f.caller(r) == "" {
			writeAPIJSON(w, http.StatusUnauthorized, nil)
			return
		}
		var blog types.Blog
		_ = json.NewDecoder(r.Body).Decode(&blog)
		f.mu.Lock()
		f.blogs = append(f.blogs, blog)
		f.mu.Unlock()
		writeAPIJSON(w, http.StatusOK, map[string]string{"insertedId": "b-1"})
	})

	return mux
}

// fakeIdentity accepts known email and password pairs and fires identity
// changes synchronously, like the real adapter.
type fakeIdentity struct {
	mu          sync.Mutex
	passwords   map[string]string
	sessions    map[string]*types.Identity
	restorable  map[string]string
	restoreGate chan struct{}
	listeners   []func(types.IdentityChange)
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		passwords:  map[string]string{},
		sessions:   map[string]*types.Identity{},
		restorable: map[string]string{},
	}
}

func (f *fakeIdentity) OnIdentityChanged(fn func(types.IdentityChange)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakeIdentity) fire(sessionID string, id *types.Identity) {
	f.mu.Lock()
	listeners := append([]func(types.IdentityChange){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(types.IdentityChange{SessionID: sessionID, Identity: id})
	}
}

func (f *fakeIdentity) signIn(sessionID, email string) *types.Identity {
	id := &types.Identity{
		UID:          "uid-" + email,
		Email:        email,
		Provider:     types.IdentityProviderPassword,
		Token:        "id-" + email,
		RefreshToken: "rt-" + email,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	f.mu.Lock()
	f.sessions[sessionID] = id
	f.mu.Unlock()
	f.fire(sessionID, id)
	return id
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, sessionID, email, password string) (*types.Identity, error) {
	f.mu.Lock()
	want, ok := f.passwords[email]
	f.mu.Unlock()
	if !ok || want != password {
		return nil, types.NewIdentityError(types.ErrInvalidCredentials, nil)
	}
	return f.signIn(sessionID, email), nil
}

func (f *fakeIdentity) SignUp(_ context.Context, sessionID string, in identity.SignUpInput) (*types.Identity, error) {
	f.mu.Lock()
	_, exists := f.passwords[in.Email]
	if !exists {
		f.passwords[in.Email] = in.Password
	}
	f.mu.Unlock()
	if exists {
		return nil, types.NewIdentityError(types.ErrEmailAlreadyInUse, nil)
	}
	return f.signIn(sessionID, in.Email), nil
}

func (f *fakeIdentity) ConfirmSignUp(context.Context, string, string) error { return nil }

func (f *fakeIdentity) UpdateProfile(context.Context, string, identity.ProfileUpdate) error {
	return nil
}

func (f *fakeIdentity) SignOut(_ context.Context, sessionID string) {
	f.mu.Lock()
	delete(f.sessions, sessionID)
	f.mu.Unlock()
	f.fire(sessionID, nil)
}

func (f *fakeIdentity) Forget(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
}

func (f *fakeIdentity) BeginPopup(sessionID string) (string, error) {
	return "https://accounts.example.com/authorize?state=" + sessionID, nil
}

func (f *fakeIdentity) CompletePopup(_ context.Context, _, _, code, providerError string) (*types.Identity, error) {
	if providerError != "" || code == "" {
		return nil, types.NewIdentityError(types.ErrPopupClosed, nil)
	}
	return nil, types.NewIdentityError(types.ErrProviderError, nil)
}

func (f *fakeIdentity) Credential(sessionID string) types.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.sessions[sessionID]
	if !ok {
		return types.Credential{}
	}
	return types.Credential{Provider: id.Provider, Email: id.Email, RefreshToken: id.RefreshToken}
}

func (f *fakeIdentity) Restore(_ context.Context, sessionID string, cred types.Credential) {
	f.mu.Lock()
	gate := f.restoreGate
	email, ok := f.restorable[sessionID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if !ok && strings.HasPrefix(cred.RefreshToken, "rt-") {
		email, ok = strings.TrimPrefix(cred.RefreshToken, "rt-"), true
	}
	if !ok {
		f.fire(sessionID, nil)
		return
	}
	f.signIn(sessionID, email)
}

type fakePayments struct{}

func (fakePayments) Verify(_ context.Context, id string, amountCents int64) (*payment.Intent, error) {
	if id != "pi_ok" {
		return nil, types.ErrPaymentNotSucceeded
	}
	return &payment.Intent{ID: id, Amount: amountCents, Currency: "usd", Status: "succeeded"}, nil
}

type harness struct {
	t         *testing.T
	api       *fakeAPI
	identity  *fakeIdentity
	persister *session.MemoryPersister
	manager   *session.Manager
	svc       *Service
	srv       *httptest.Server
}

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(b), 32)))
}

func newHarness(t *testing.T, configure ...func(*types.Config)) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	api := newFakeAPI()
	apiSrv := httptest.NewServer(api.handler())
	t.Cleanup(apiSrv.Close)

	client, err := backend.New(apiSrv.URL, apiSrv.Client(), logger)
	require.NoError(t, err)

	config := &types.Config{
		CookieName:         "pp_sid",
		CookieHashKey:      testKey('h'),
		CookieBlockKey:     testKey('b'),
		CookieInsecure:     true,
		SessionMaxAgeSec:   3600,
		GuardWaitMS:        1000,
		ExchangeTimeoutSec: 5,
		AuthRatePerMinute:  100,
	}
	for _, fn := range configure {
		fn(config)
	}

	ident := newFakeIdentity()
	persister := session.NewMemoryPersister("pp:")
	exchanger := session.NewExchanger(context.Background(), session.NewBackend(client), 5*time.Second, logger)
	manager := session.NewManager(session.ManagerOptions{
		Persister: persister,
		Exchanger: exchanger,
		Identity:  ident,
		Logger:    logger,
	})

	svc, err := New(Options{
		Config:    config,
		Logger:    logger,
		Sessions:  manager,
		Exchanger: exchanger,
		Identity:  ident,
		Backend:   client,
		Payments:  fakePayments{},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(func() {
		srv.Close()
		manager.Close()
		exchanger.Wait()
	})

	return &harness{t: t, api: api, identity: ident, persister: persister, manager: manager, svc: svc, srv: srv}
}

// browser is an HTTP client with its own cookie jar that does not follow
// redirects.
func (h *harness) browser() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (h *harness) get(c *http.Client, path string) (*http.Response, string) {
	h.t.Helper()
	resp, err := c.Get(h.srv.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *harness) post(c *http.Client, path string, form url.Values) (*http.Response, string) {
	h.t.Helper()
	resp, err := c.PostForm(h.srv.URL+path, form)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *harness) user(email, name string, role types.Role, status types.UserStatus) {
	h.api.addUser(types.UserProfile{ID: "u-" + email, Email: email, Name: name, Role: role, Status: status})
	h.identity.mu.Lock()
	h.identity.passwords[email] = "Secret123"
	h.identity.mu.Unlock()
}

func (h *harness) login(c *http.Client, email string) *http.Response {
	h.t.Helper()
	resp, _ := h.post(c, "/login", url.Values{"email": {email}, "password": {"Secret123"}})
	return resp
}

func (h *harness) sessionState(c *http.Client) types.Session {
	h.t.Helper()
	_, body := h.get(c, "/session")
	var sess types.Session
	require.NoError(h.t, json.Unmarshal([]byte(body), &sess))
	return sess
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get(h.browser(), "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestFreshBrowserIsAnonymous(t *testing.T) {
	h := newHarness(t)
	c := h.browser()

	assert.Equal(t, types.SessionAnonymous, h.sessionState(c).State)
	assert.Equal(t, 1, h.manager.Len())

	// The same cookie maps to the same session.
	h.get(c, "/")
	assert.Equal(t, 1, h.manager.Len())
}

func TestAnonymousRedirectedToLogin(t *testing.T) {
	h := newHarness(t)
	c := h.browser()

	resp, _ := h.get(c, "/dashboard/my-donation-requests")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard%2Fmy-donation-requests", resp.Header.Get("Location"))

	var redirect *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == redirectCookieName {
			redirect = c
		}
	}
	require.NotNil(t, redirect)
}

func TestLoginEstablishesSession(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()

	resp := h.login(c, "rahim@example.com")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	sess := h.sessionState(c)
	assert.Equal(t, types.SessionAuthenticated, sess.State)
	require.NotNil(t, sess.Profile)
	assert.Equal(t, types.RoleDonor, sess.Profile.Role)

	resp, body := h.get(c, "/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Rahim")
	assert.NotContains(t, body, "All Users")

	// Both keys are written.
	assert.Len(t, h.persister.Keys(), 2)

	// Visiting the sign-in page again goes straight to the dashboard.
	resp, _ = h.get(c, "/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLoginReturnsToRequestedPage(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()

	h.get(c, "/dashboard/my-donation-requests")

	resp := h.login(c, "rahim@example.com")
	assert.Equal(t, "/dashboard/my-donation-requests", resp.Header.Get("Location"))

	resp, body := h.get(c, "/dashboard/my-donation-requests")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "null", body)
}

func TestLoginIgnoresOffSiteRedirect(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()

	resp, _ := h.post(c, "/login", url.Values{
		"email":        {"rahim@example.com"},
		"password":     {"Secret123"},
		"redirect_uri": {"//evil.example.com/"},
	})
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()

	resp, body := h.post(c, "/login", url.Values{"email": {"rahim@example.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid email or password.")
	assert.Equal(t, types.SessionAnonymous, h.sessionState(c).State)
}

func TestLoginWithoutBackendProfileFails(t *testing.T) {
	h := newHarness(t)
	h.identity.passwords["ghost@example.com"] = "Secret123"
	c := h.browser()

	resp := h.login(c, "ghost@example.com")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	assert.Equal(t, types.SessionAnonymous, h.sessionState(c).State)
	assert.Empty(t, h.persister.Keys())
}

func TestDonorKeptOutOfAdminRoutes(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()
	h.login(c, "rahim@example.com")

	for _, path := range []string{"/dashboard/all-users", "/dashboard/content-management", "/dashboard/volunteer/donation-requests"} {
		resp, _ := h.get(c, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/dashboard", resp.Header.Get("Location"), path)
	}
}

func TestAdminReachesAdminRoutes(t *testing.T) {
	h := newHarness(t)
	h.user("admin@example.com", "Admin", types.RoleAdmin, types.UserStatusActive)
	c := h.browser()
	h.login(c, "admin@example.com")

	resp, body := h.get(c, "/dashboard/all-users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "admin@example.com")

	// Volunteer routes belong to volunteers only.
	resp, _ = h.get(c, "/dashboard/volunteer/content-management")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = h.get(c, "/dashboard")
	assert.Contains(t, body, "All Users")
}

func TestUnknownSessionShowsLoadingInsteadOfRedirect(t *testing.T) {
	h := newHarness(t, func(c *types.Config) { c.GuardWaitMS = 20 })

	gate := make(chan struct{})
	h.identity.restoreGate = gate
	h.identity.restorable["sid-returning"] = "rahim@example.com"
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)

	require.NoError(t, h.persister.Save(context.Background(), &types.PersistedSession{
		SessionID:    "sid-returning",
		SessionToken: "sess-rahim@example.com",
		Profile:      &types.UserProfile{Email: "rahim@example.com", Role: types.RoleAdmin},
	}))

	c := h.browser()
	encoded, err := h.svc.cookie.Encode("pp_sid", "sid-returning")
	require.NoError(t, err)
	u, _ := url.Parse(h.srv.URL)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: "pp_sid", Value: encoded, Path: "/"}})

	resp, body := h.get(c, "/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Refresh"))
	assert.Contains(t, body, "Loading your session")

	// A stale admin role is never trusted while the session is unknown.
	resp, _ = h.get(c, "/dashboard/all-users")
	assert.Equal(t, "1", resp.Header.Get("Refresh"))

	close(gate)

	require.Eventually(t, func() bool {
		return h.sessionState(c).State == types.SessionAuthenticated
	}, 2*time.Second, 10*time.Millisecond)

	resp, body = h.get(c, "/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Rahim")

	resp, _ = h.get(c, "/dashboard/all-users")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()
	h.login(c, "rahim@example.com")

	resp, _ := h.post(c, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	assert.Equal(t, types.SessionAnonymous, h.sessionState(c).State)
	assert.Empty(t, h.persister.Keys())

	resp, _ = h.get(c, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// Signing out twice is harmless.
	resp, _ = h.post(c, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestBackendUnauthorizedEndsSession(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()
	h.login(c, "rahim@example.com")

	h.api.revoke("rahim@example.com")

	resp, _ := h.get(c, "/dashboard/my-donation-requests")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, types.SessionAnonymous, h.sessionState(c).State)
	assert.Empty(t, h.persister.Keys())

	resp, _ = h.get(c, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRestoreFromIdentityCookie(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)

	first := h.browser()
	resp := h.login(first, "rahim@example.com")

	var identityCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == identityCookieName {
			identityCookie = c
		}
	}
	require.NotNil(t, identityCookie)

	// A new browser session that only carries the identity cookie.
	second := h.browser()
	u, _ := url.Parse(h.srv.URL)
	second.Jar.SetCookies(u, []*http.Cookie{{Name: identityCookieName, Value: identityCookie.Value, Path: "/"}})

	resp, body := h.get(second, "/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Rahim")
}

func TestBlockedUserCannotCreateDonationRequest(t *testing.T) {
	h := newHarness(t)
	h.user("blocked@example.com", "Blocked", types.RoleDonor, types.UserStatusBlocked)
	c := h.browser()
	h.login(c, "blocked@example.com")

	resp, _ := h.post(c, "/dashboard/create-donation-request", url.Values{
		"recipient_name": {"Karim"},
		"division":       {"Dhaka"},
		"district":       {"Dhaka"},
		"hospital":       {"DMCH"},
		"address":        {"Bakshibazar"},
		"blood_group":    {"O+"},
		"donation_date":  {"2026-11-01"},
		"donation_time":  {"10:30"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, h.api.requests)
}

func TestCreateDonationRequest(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()
	h.login(c, "rahim@example.com")

	resp, body := h.post(c, "/dashboard/create-donation-request", url.Values{
		"recipient_name": {"Karim"},
		"division":       {"Dhaka"},
		"district":       {"Dhaka"},
		"hospital":       {"DMCH"},
		"address":        {"Bakshibazar"},
		"blood_group":    {"O+"},
		"donation_date":  {"2026-11-01"},
		"donation_time":  {"10:30"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	require.Len(t, h.api.requests, 1)
	created := h.api.requests[0]
	assert.Equal(t, "rahim@example.com", created.RequesterEmail)
	assert.Equal(t, "Rahim", created.RequesterName)
	assert.Equal(t, types.DonationStatusPending, created.Status)

	resp, body = h.post(c, "/dashboard/create-donation-request", url.Values{"recipient_name": {"Karim"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "hospital")
}

func TestRefreshRole(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()
	h.login(c, "rahim@example.com")

	h.api.setRole("rahim@example.com", types.RoleAdmin)

	// The cached role stands until it is refreshed.
	resp, _ := h.get(c, "/dashboard/all-users")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body := h.post(c, "/dashboard/profile/refresh-role", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"role":"admin"`)

	resp, _ = h.get(c, "/dashboard/all-users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFundingRequiresVerifiedPayment(t *testing.T) {
	h := newHarness(t)
	h.user("rahim@example.com", "Rahim", types.RoleDonor, types.UserStatusActive)
	c := h.browser()
	h.login(c, "rahim@example.com")

	resp, _ := h.post(c, "/dashboard/fundings", url.Values{"amount": {"25"}, "payment_intent_id": {"pi_unpaid"}})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Empty(t, h.api.fundings)

	resp, _ = h.post(c, "/dashboard/fundings", url.Values{"amount": {"0"}, "payment_intent_id": {"pi_ok"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.post(c, "/dashboard/fundings", url.Values{"amount": {"25"}, "payment_intent_id": {"pi_ok"}})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, h.api.fundings, 1)
	assert.Equal(t, 25.0, h.api.fundings[0].Amount)
	assert.Equal(t, "rahim@example.com", h.api.fundings[0].Email)
}

func TestCreateBlogIsSanitized(t *testing.T) {
	h := newHarness(t)
	h.user("admin@example.com", "Admin", types.RoleAdmin, types.UserStatusActive)
	c := h.browser()
	h.login(c, "admin@example.com")

	resp, _ := h.post(c, "/dashboard/content-management", url.Values{
		"title":   {"Why donate"},
		"content": {`<p>Give</p><script>alert(1)</script>`},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Len(t, h.api.blogs, 1)
	assert.Equal(t, "<p>Give</p>", h.api.blogs[0].Content)
	assert.Equal(t, types.BlogStatusDraft, h.api.blogs[0].Status)
	assert.Equal(t, "admin@example.com", h.api.blogs[0].AuthorEmail)
}

func TestRegisterCreatesBackendUserThenSignsIn(t *testing.T) {
	h := newHarness(t)
	c := h.browser()

	resp, body := h.post(c, "/register", url.Values{
		"name":             {"Nadia"},
		"email":            {"Nadia@Example.com"},
		"blood_group":      {"AB-"},
		"division":         {"Sylhet"},
		"district":         {"Sylhet"},
		"password":         {"Secret123"},
		"confirm_password": {"Secret123"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode, body)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	require.Len(t, h.api.created, 1)
	assert.Equal(t, "nadia@example.com", h.api.created[0].Email)
	assert.Equal(t, types.RoleDonor, h.api.created[0].Role)
	assert.Equal(t, types.UserStatusActive, h.api.created[0].Status)

	sess := h.sessionState(c)
	assert.Equal(t, types.SessionAuthenticated, sess.State)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	c := h.browser()

	resp, body := h.post(c, "/register", url.Values{
		"name":             {"Nadia"},
		"email":            {"not-an-email"},
		"blood_group":      {"Z+"},
		"division":         {"Sylhet"},
		"district":         {"Sylhet"},
		"password":         {"short"},
		"confirm_password": {"different"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Enter a valid email address.")
	assert.Contains(t, body, "Passwords do not match.")
	assert.Empty(t, h.api.created)
}

func TestPopupCancelled(t *testing.T) {
	h := newHarness(t)
	c := h.browser()

	resp, _ := h.get(c, "/auth/popup?redirect_uri=%2Fdashboard%2Ffundings")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://accounts.example.com/authorize"))

	resp, body := h.get(c, "/auth/callback?state=x&error=access_denied")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Sign-in was cancelled.")
	assert.Equal(t, types.SessionAnonymous, h.sessionState(c).State)
}

func TestRateLimitOnLogin(t *testing.T) {
	h := newHarness(t, func(c *types.Config) { c.AuthRatePerMinute = 2 })
	c := h.browser()

	for range 2 {
		resp, _ := h.post(c, "/login", url.Values{"email": {"x@example.com"}, "password": {"nope"}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, _ := h.post(c, "/login", url.Values{"email": {"x@example.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Reading the form is not limited.
	resp, _ = h.get(c, "/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTrailingSlashRedirect(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.get(h.browser(), "/dashboard/?x=1")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/dashboard?x=1", resp.Header.Get("Location"))
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"/dashboard", true},
		{"/dashboard/fundings?page=2", true},
		{"", false},
		{"dashboard", false},
		{"//evil.example.com", false},
		{"/\\evil.example.com", false},
		{"https://evil.example.com/x", false},
		{"/login", false},
		{"/register?x=1", false},
	}

	for _, tt := range tests {
		_, ok := localPath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
