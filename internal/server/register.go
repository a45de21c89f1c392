package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"pulsepoint/internal/backend"
	"pulsepoint/internal/identity"
	"pulsepoint/pkg/types"
)

func (s *Service) handleGetRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.settle(ctx, storeFromContext(ctx)).Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	data := &types.RegisterPageData{
		BasePageData: types.BasePageData{Title: "Register"},
		BloodGroups:  types.BloodGroups,
	}

	if err := s.renderTemplate(w, r, "page.register", data); err != nil {
		s.logger.WithError(err).Error("failed to render register page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := storeFromContext(ctx)

	var form types.RegisterForm
	err := decodeForm(r, &form)

	data := &types.RegisterPageData{
		BasePageData: types.BasePageData{Title: "Create Account"},
		Name:         strings.TrimSpace(form.Name),
		Email:        strings.ToLower(strings.TrimSpace(form.Email)),
		BloodGroup:   form.BloodGroup,
		Division:     form.Division,
		District:     form.District,
		BloodGroups:  types.BloodGroups,
		FieldErrors:  map[string]string{},
	}

	if err != nil && !errors.Is(err, errBadRequest) {
		data.FieldErrors = fieldErrors(err)
	} else if err != nil {
		data.Error = err.Error()
	}
	for field, msg := range validatePassword(form.Password, form.ConfirmPassword) {
		if _, ok := data.FieldErrors[field]; !ok {
			data.FieldErrors[field] = msg
		}
	}

	if data.Error != "" || len(data.FieldErrors) > 0 {
		s.logger.WithField("field_errors", data.FieldErrors).Info("validation errors during registration")
		if data.Error == "" {
			data.Error = "Please fix the highlighted fields."
		}
		s.renderRegister(w, r, http.StatusBadRequest, data)
		return
	}

	bloodGroup, _ := types.ParseBloodGroup(form.BloodGroup)

	// The backend record goes first: signing up fires the identity change,
	// and the exchange it starts looks the new user up right away.
	err = s.backend.Public().CreateUser(ctx, backend.NewUser{
		Email:      data.Email,
		Name:       data.Name,
		BloodGroup: bloodGroup,
		Division:   form.Division,
		District:   form.District,
	})
	var apiErr *types.APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict) {
		s.logger.WithError(err).WithField("email", data.Email).Error("failed to create backend user")
		data.Error = "Unable to create account right now. Please try again."
		s.renderRegister(w, r, http.StatusBadGateway, data)
		return
	}

	_, err = s.identity.SignUp(ctx, store.ID(), identity.SignUpInput{
		Name:     data.Name,
		Email:    data.Email,
		Password: form.Password,
	})
	if errors.Is(err, types.ErrConfirmationRequired) {
		v := url.Values{}
		v.Set("email", data.Email)
		http.Redirect(w, r, fmt.Sprintf("/register/confirm?%s", v.Encode()), http.StatusSeeOther)
		return
	}
	if err != nil {
		s.logger.WithError(err).Info("failed to sign up user")

		status, msg, fields := signUpErrorMessage(err)
		data.Error = msg
		data.FieldErrors = fields
		s.renderRegister(w, r, status, data)
		return
	}

	s.finishSignIn(w, r, "", func(status int, msg string) {
		data.Error = msg
		s.renderRegister(w, r, status, data)
	})
}

func (s *Service) handleGetRegisterConfirm(w http.ResponseWriter, r *http.Request) {
	data := &types.ConfirmRegisterPageData{
		BasePageData: types.BasePageData{Title: "Confirm Your Account"},
		Email:        strings.TrimSpace(r.URL.Query().Get("email")),
	}

	if err := s.renderTemplate(w, r, "page.register.confirm", data); err != nil {
		s.logger.WithError(err).Error("failed to render register confirm page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostRegisterConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form types.ConfirmRegisterForm
	_ = decodeForm(r, &form)

	data := &types.ConfirmRegisterPageData{
		BasePageData: types.BasePageData{Title: "Confirm Your Account"},
		Email:        strings.TrimSpace(form.Email),
	}

	err := s.identity.ConfirmSignUp(ctx, data.Email, strings.TrimSpace(form.Code))
	if err != nil {
		s.logger.WithError(err).Info("failed to confirm user signup")

		status := http.StatusBadRequest
		if errors.Is(err, types.ErrInvalidCredentials) {
			data.Error = "Invalid confirmation code. Please check the code and try again."
		} else {
			status = http.StatusBadGateway
			data.Error = "Unable to confirm account. Please try again."
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := s.renderTemplate(w, r, "page.register.confirm", data); err != nil {
			s.logger.WithError(err).Error("failed to render register confirm page with error")
		}
		return
	}

	v := url.Values{}
	v.Set("confirmed", "true")
	v.Set("email", data.Email)
	http.Redirect(w, r, "/login?"+v.Encode(), http.StatusSeeOther)
}

func (s *Service) renderRegister(w http.ResponseWriter, r *http.Request, status int, data *types.RegisterPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.renderTemplate(w, r, "page.register", data); err != nil {
		s.logger.WithError(err).Error("failed to render register page with errors")
	}
}

var (
	hasUpperReg = regexp.MustCompile(`[A-Z]`)
	hasLowerReg = regexp.MustCompile(`[a-z]`)
	hasDigitReg = regexp.MustCompile(`[0-9]`)
)

const minPasswordLength = 8

func validatePassword(password, confirmPassword string) map[string]string {
	errs := map[string]string{}

	if password != confirmPassword {
		errs["confirm_password"] = "Passwords do not match."
	}

	hasUpper := hasUpperReg.MatchString(password)
	hasLower := hasLowerReg.MatchString(password)
	hasDigit := hasDigitReg.MatchString(password)

	if len(password) < minPasswordLength || !hasUpper || !hasLower || !hasDigit {
		errs["password"] = fmt.Sprintf("Password must be at least %d characters and include uppercase, lowercase and a number.", minPasswordLength)
	}

	return errs
}

func signUpErrorMessage(err error) (int, string, map[string]string) {
	fields := map[string]string{}

	switch {
	case errors.Is(err, types.ErrEmailAlreadyInUse):
		fields["email"] = "An account with this email already exists."
		return http.StatusConflict, "Try logging in instead.", fields
	case errors.Is(err, types.ErrInvalidCredentials):
		fields["password"] = "The identity provider rejected this password."
		return http.StatusBadRequest, "Please fix the highlighted fields.", fields
	}

	return http.StatusBadGateway, "Unable to create account right now. Please try again.", fields
}
