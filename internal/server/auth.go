package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

func (s *Service) handleGetLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.settle(ctx, storeFromContext(ctx)).Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	query := r.URL.Query()
	data := s.loginPageData(query.Get("redirect_uri"))
	data.Email = strings.TrimSpace(query.Get("email"))
	if query.Get("confirmed") == "true" {
		data.Message = "Your account is confirmed. Sign in to continue."
	}

	if err := s.renderTemplate(w, r, "page.login", data); err != nil {
		s.logger.WithError(err).Error("failed to render login page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := storeFromContext(ctx)

	var login types.LoginForm
	if err := decodeForm(r, &login); err != nil {
		s.renderLoginError(w, r, login, http.StatusBadRequest, "Enter your email and password.")
		return
	}

	_, err := s.identity.SignInWithPassword(ctx, store.ID(), login.Email, login.Password)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", store.ID()).Info("password sign-in failed")

		status, msg := signInErrorMessage(err)
		s.renderLoginError(w, r, login, status, msg)
		return
	}

	s.finishSignIn(w, r, login.RedirectURI, func(status int, msg string) {
		s.renderLoginError(w, r, login, status, msg)
	})
}

func (s *Service) handlePostLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := storeFromContext(ctx)

	s.identity.SignOut(ctx, store.ID())
	s.clearIdentityCookie(w)
	s.clearRedirectCookie(w)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Service) handleGetAuthPopup(w http.ResponseWriter, r *http.Request) {
	store := storeFromContext(r.Context())

	if target, ok := localPath(r.URL.Query().Get("redirect_uri")); ok {
		s.setRedirectCookie(w, target, 10*time.Minute)
	}

	authURL, err := s.identity.BeginPopup(store.ID())
	if err != nil {
		s.logger.WithError(err).Error("failed to start popup sign-in")
		status, msg := signInErrorMessage(err)
		s.renderLoginError(w, r, types.LoginForm{}, status, msg)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Service) handleGetAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := storeFromContext(ctx)
	query := r.URL.Query()

	_, err := s.identity.CompletePopup(ctx, store.ID(), query.Get("state"), query.Get("code"), query.Get("error"))
	if err != nil {
		s.logger.WithError(err).WithField("session_id", store.ID()).Info("popup sign-in failed")
		status, msg := signInErrorMessage(err)
		s.renderLoginError(w, r, types.LoginForm{}, status, msg)
		return
	}

	s.finishSignIn(w, r, "", func(status int, msg string) {
		s.renderLoginError(w, r, types.LoginForm{}, status, msg)
	})
}

// handleGetSession reports the browser's session as JSON. It never waits.
func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, storeFromContext(r.Context()).Snapshot())
}

// finishSignIn runs after the identity provider accepted the user. The
// identity change has already started the backend exchange; wait for it
// so the browser lands on a settled session.
func (s *Service) finishSignIn(w http.ResponseWriter, r *http.Request, redirectURI string, fail func(status int, msg string)) {
	ctx := r.Context()
	store := storeFromContext(ctx)

	s.setIdentityCookie(w, store.ID())

	wait := time.Duration(s.config.ExchangeTimeoutSec) * time.Second
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	sess, err := store.Ready(wctx)
	if err != nil && ctx.Err() != nil {
		return
	}

	if sess.State == types.SessionAnonymous {
		reason := store.LastError()
		s.logger.WithError(reason).WithField("session_id", store.ID()).Warn("signed in but the backend session was not established")

		status, msg := signInErrorMessage(reason)
		fail(status, msg)
		return
	}

	target := s.redirectTarget(r, redirectURI)
	s.clearRedirectCookie(w)

	s.logger.WithFields(logrus.Fields{
		"session_id": store.ID(),
		"state":      sess.State,
		"target":     target,
	}).Info("sign-in complete")

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Service) loginPageData(redirectURI string) *types.LoginPageData {
	target, _ := localPath(redirectURI)

	popupURL := "/auth/popup"
	if target != "" {
		popupURL += "?redirect_uri=" + url.QueryEscape(target)
	}

	return &types.LoginPageData{
		BasePageData: types.BasePageData{Title: "Sign In"},
		RedirectURI:  target,
		PopupURL:     popupURL,
	}
}

func (s *Service) renderLoginError(w http.ResponseWriter, r *http.Request, login types.LoginForm, status int, msg string) {
	data := s.loginPageData(login.RedirectURI)
	data.Email = login.Email
	data.Error = msg

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.renderTemplate(w, r, "page.login", data); err != nil {
		s.logger.WithError(err).Error("failed to render login page with error")
	}
}

// signInErrorMessage turns identity and exchange failures into what the
// sign-in form shows.
func signInErrorMessage(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidCredentials), errors.Is(err, types.ErrUserNotFound):
		return http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, types.ErrConfirmationRequired):
		return http.StatusForbidden, "Please confirm your account with the code we emailed you."
	case errors.Is(err, types.ErrPopupClosed):
		return http.StatusUnauthorized, "Sign-in was cancelled."
	case errors.Is(err, types.ErrEmailAlreadyInUse):
		return http.StatusConflict, "An account with this email already exists."
	case errors.Is(err, types.ErrSessionExchangeFailed), errors.Is(err, types.ErrProfileFetchFailed):
		return http.StatusBadGateway, "We could not start your session. Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Signing in is taking too long. Please try again."
	default:
		return http.StatusBadGateway, "Sign-in is unavailable right now. Please try again."
	}
}
