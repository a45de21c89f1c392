package server

import (
	"errors"
	"net/http"
	"strings"

	"pulsepoint/internal/backend"
	"pulsepoint/internal/identity"
	"pulsepoint/internal/session"
	"pulsepoint/pkg/types"
)

func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	store := storeFromContext(r.Context())

	sess, err := s.exchanger.RefreshProfile(r.Context(), store)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sess.Profile)
}

func (s *Service) handlePostProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := storeFromContext(ctx)
	sess := sessionFromContext(ctx)

	var form types.ProfileForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	update := backend.ProfileUpdate{
		Name:     strings.TrimSpace(form.Name),
		Avatar:   strings.TrimSpace(form.AvatarURL),
		Division: strings.TrimSpace(form.Division),
		District: strings.TrimSpace(form.District),
	}

	if form.BloodGroup != "" {
		group, err := types.ParseBloodGroup(form.BloodGroup)
		if err != nil {
			s.writeError(w, r, badRequest("unknown blood group"))
			return
		}
		update.BloodGroup = group
	}

	avatar, err := s.uploadedImage(r, "avatar_file", "avatars")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if avatar != "" {
		update.Avatar = avatar
	}

	err = s.backend.WithSession(store).UpdateProfile(ctx, sess.Profile.Email, update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if update.Name != "" || update.Avatar != "" {
		err = s.identity.UpdateProfile(ctx, store.ID(), identity.ProfileUpdate{
			DisplayName: update.Name,
			PhotoURL:    update.Avatar,
		})
		if err != nil {
			s.logger.WithError(err).WithField("session_id", store.ID()).Warn("failed to update identity profile")
		}
	}

	updated, err := s.exchanger.RefreshProfile(ctx, store)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, updated.Profile)
}

// handlePostRefreshRole re-reads the user's role from the backend. The role
// in the session is otherwise only learned when the session is established.
func (s *Service) handlePostRefreshRole(w http.ResponseWriter, r *http.Request) {
	sess, err := s.exchanger.RefreshRole(r.Context(), storeFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

// uploadedImage stores the optional image in field and returns its public
// URL, or "" when none was sent.
func (s *Service) uploadedImage(r *http.Request, field, folder string) (string, error) {
	if r.MultipartForm == nil {
		return "", nil
	}

	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", badRequest("invalid %s upload", field)
	}
	defer file.Close()

	if s.images == nil {
		return "", unavailable("image uploads are not configured")
	}

	key, err := s.images.UploadImage(r.Context(), folder, file)
	if err != nil {
		return "", err
	}

	return s.images.PublicURL(key), nil
}

// refreshOwnRole keeps the cached role honest after an admin changed the
// role of their own account.
func (s *Service) refreshOwnRole(r *http.Request, store *session.Store, userID string) {
	sess := sessionFromContext(r.Context())
	if !sess.Authenticated() || sess.Profile.ID == "" || sess.Profile.ID != userID {
		return
	}

	if _, err := s.exchanger.RefreshRole(r.Context(), store); err != nil {
		s.logger.WithError(err).WithField("session_id", store.ID()).Warn("failed to refresh own role")
	}
}
