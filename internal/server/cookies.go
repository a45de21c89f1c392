package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulsepoint/internal/utils"
	"pulsepoint/pkg/types"
)

const (
	identityCookieName = "pp_identity"
	redirectCookieName = "pp_redirect"
)

// sessionID returns the browser session id from its cookie, issuing a new
// one when the cookie is missing or has been tampered with.
func (s *Service) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.config.CookieName); err == nil {
		var sessionID string
		if err := s.cookie.Decode(s.config.CookieName, c.Value, &sessionID); err == nil && sessionID != "" {
			return sessionID
		}
		s.logger.Debug("discarding undecodable session cookie")
	}

	sessionID := utils.NanoID()
	encoded, err := s.cookie.Encode(s.config.CookieName, sessionID)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode session cookie")
		return sessionID
	}

	// Later handlers in this request see the new id too.
	r.AddCookie(&http.Cookie{Name: s.config.CookieName, Value: encoded})

	http.SetCookie(w, s.newCookie(s.config.CookieName, encoded, s.config.SessionMaxAgeSec))
	return sessionID
}

func (s *Service) readIdentityCookie(r *http.Request) types.Credential {
	var cred types.Credential

	c, err := r.Cookie(identityCookieName)
	if err != nil {
		return cred
	}

	if err := s.cookie.Decode(identityCookieName, c.Value, &cred); err != nil {
		s.logger.WithError(err).Debug("discarding undecodable identity cookie")
		return types.Credential{}
	}

	return cred
}

// setIdentityCookie stores the identity provider's credential so the
// identity survives a restart of the portal.
func (s *Service) setIdentityCookie(w http.ResponseWriter, sessionID string) {
	cred := s.identity.Credential(sessionID)
	if cred.Empty() {
		s.clearIdentityCookie(w)
		return
	}

	encoded, err := s.cookie.Encode(identityCookieName, cred)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode identity cookie")
		return
	}

	http.SetCookie(w, s.newCookie(identityCookieName, encoded, s.config.SessionMaxAgeSec))
}

func (s *Service) clearIdentityCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.newCookie(identityCookieName, "", -1))
}

func (s *Service) setRedirectCookie(w http.ResponseWriter, path string, age time.Duration) {
	http.SetCookie(w, s.newCookie(redirectCookieName, url.QueryEscape(path), int(age.Seconds())))
}

func (s *Service) clearRedirectCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.newCookie(redirectCookieName, "", -1))
}

// redirectTarget picks where to go after signing in: an explicit
// redirect_uri, then the redirect cookie, then the dashboard.
func (s *Service) redirectTarget(r *http.Request, explicit string) string {
	if target, ok := localPath(explicit); ok {
		return target
	}

	if c, err := r.Cookie(redirectCookieName); err == nil {
		if value, err := url.QueryUnescape(c.Value); err == nil {
			if target, ok := localPath(value); ok {
				return target
			}
		}
	}

	return "/dashboard"
}

// localPath only accepts paths on this site so a redirect can never leave it.
func localPath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "", false
	}

	u, err := url.Parse(p)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "", false
	}

	if u.Path == "/login" || u.Path == "/register" {
		return "", false
	}

	return p, true
}

func (s *Service) newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		HttpOnly: true,
		Secure:   !s.config.CookieInsecure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   maxAge,
	}
}
