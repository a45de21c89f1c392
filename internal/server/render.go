package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pulsepoint/internal/storage"
	"pulsepoint/pkg/types"

	"github.com/go-playground/validator/v10"
)

// How often the loading placeholder asks the browser to try again.
const loadingRetrySec = 1

func (s *Service) renderTemplate(w http.ResponseWriter, r *http.Request, templateName string, data any) error {
	sess := sessionFromContext(r.Context())

	if setter, ok := data.(types.NavbarDataSetter); ok {
		nav := types.NavbarData{IsAuthenticated: sess.Authenticated()}
		if sess.Authenticated() {
			nav.UserEmail = sess.Profile.Email
			nav.UserName = sess.Profile.Name
			nav.AvatarURL = sess.Profile.AvatarURL
			nav.Role = sess.Profile.Role
		}
		setter.SetNavbarData(nav)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return s.templates.ExecuteTemplate(w, templateName, data)
}

// renderLoading answers a guarded route whose session is still being
// established. Nothing is decided yet, so nothing is redirected.
func (s *Service) renderLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", strconv.Itoa(loadingRetrySec))

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "session is still loading, retry shortly"})
		return
	}

	w.Header().Set("Refresh", strconv.Itoa(loadingRetrySec))

	data := &types.LoadingPageData{
		BasePageData:  types.BasePageData{Title: "Loading"},
		RetryAfterSec: loadingRetrySec,
	}

	if err := s.renderTemplate(w, r, "page.loading", data); err != nil {
		s.logger.WithError(err).Error("failed to render loading page")
		s.internalServerError(w)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to write json response")
	}
}

// writeError maps an error from the backend client or a form to a JSON
// response. Backend failures that are not about authorization pass through
// with their own status.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusBadGateway
		body   = errorBody{Error: "the PulsePoint service is unavailable, please try again"}
		apiErr *types.APIError
		verrs  validator.ValidationErrors
	)

	switch {
	case errors.As(err, &verrs):
		status = http.StatusBadRequest
		body = errorBody{Error: "please fix the highlighted fields", Fields: fieldErrors(err)}
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		body.Error = err.Error()
	case errors.Is(err, types.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Error = "your session has ended, please sign in again"
	case errors.Is(err, types.ErrUserBlocked):
		status = http.StatusForbidden
		body.Error = "your account is blocked"
	case errors.Is(err, types.ErrForbidden):
		status = http.StatusForbidden
		body.Error = "you do not have access to that"
	case errors.Is(err, types.ErrPaymentNotSucceeded):
		status = http.StatusPaymentRequired
		body.Error = "the payment has not been completed"
	case errors.Is(err, storage.ErrNotAnImage), errors.Is(err, storage.ErrImageTooLarge):
		status = http.StatusBadRequest
		body.Error = err.Error()
	case errors.Is(err, errUnavailable):
		status = http.StatusServiceUnavailable
		body.Error = err.Error()
	case errors.As(err, &apiErr):
		status = apiErr.StatusCode
		if apiErr.Message != "" {
			body.Error = apiErr.Message
		}
	case errors.Is(err, types.ErrMalformedResponse):
		body.Error = "the PulsePoint service sent an unexpected response"
	}

	entry := s.logger.WithError(err).WithField("path", r.URL.Path).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}

	s.writeJSON(w, status, body)
}

func (s *Service) internalServerError(w http.ResponseWriter) {
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
