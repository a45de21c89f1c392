package server

import (
	"net/http"
	"strings"

	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

func (s *Service) handleGetAllUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var status types.UserStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status = types.UserStatus(strings.ToLower(raw))
		if !status.Valid() {
			s.writeError(w, r, badRequest("unknown status %q", raw))
			return
		}
	}

	users, err := s.backend.WithSession(storeFromContext(ctx)).Users(ctx, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, users)
}

func (s *Service) handlePostUserStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form types.StatusForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	status := types.UserStatus(strings.ToLower(strings.TrimSpace(form.Status)))
	if !status.Valid() {
		s.writeError(w, r, badRequest("unknown status %q", form.Status))
		return
	}

	id := r.PathValue("id")
	if err := s.backend.WithSession(storeFromContext(ctx)).UpdateUserStatus(ctx, id, status); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": id,
		"status":  status,
		"by":      sessionFromContext(ctx).Profile.Email,
	}).Info("user status changed")

	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Service) handlePostUserRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := storeFromContext(ctx)

	var form types.RoleForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	role := types.Role(strings.ToLower(strings.TrimSpace(form.Role)))
	if !role.Valid() {
		s.writeError(w, r, badRequest("unknown role %q", form.Role))
		return
	}

	id := r.PathValue("id")
	if err := s.backend.WithSession(store).UpdateUserRole(ctx, id, role); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": id,
		"role":    role,
		"by":      sessionFromContext(ctx).Profile.Email,
	}).Info("user role changed")

	s.refreshOwnRole(r, store, id)

	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "role": role})
}
