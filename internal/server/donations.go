package server

import (
	"net/http"
	"strings"

	"pulsepoint/internal/backend"
	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

func (s *Service) handleGetMyDonationRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)

	requests, err := s.backend.WithSession(storeFromContext(ctx)).DonationRequestsByRequester(ctx, sess.Profile.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, requests)
}

func (s *Service) handlePostCreateDonationRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)

	if sess.Profile.IsBlocked() {
		s.writeError(w, r, types.ErrUserBlocked)
		return
	}

	var req types.DonationRequest
	if err := decodeForm(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	req.ID = ""
	req.RequesterName = sess.Profile.Name
	req.RequesterEmail = sess.Profile.Email
	req.Status = types.DonationStatusPending
	req.DonorName = ""
	req.DonorEmail = ""

	_, err := s.backend.WithSession(storeFromContext(ctx)).CreateDonationRequest(ctx, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"email":      req.RequesterEmail,
	}).Info("donation request created")

	s.writeJSON(w, http.StatusCreated, req)
}

func (s *Service) handleGetDonationRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := s.backend.WithSession(storeFromContext(ctx)).DonationRequest(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, req)
}

// handlePostDonate records the signed-in user as the donor of a pending
// request, moving it to in progress.
func (s *Service) handlePostDonate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	client := s.backend.WithSession(storeFromContext(ctx))
	id := r.PathValue("id")

	if sess.Profile.IsBlocked() {
		s.writeError(w, r, types.ErrUserBlocked)
		return
	}

	req, err := client.DonationRequest(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Status != types.DonationStatusPending {
		s.writeError(w, r, badRequest("only pending donation requests can be donated to"))
		return
	}

	patch := backend.DonationRequestPatch{
		Status:     types.DonationStatusInProgress,
		DonorName:  sess.Profile.Name,
		DonorEmail: sess.Profile.Email,
	}
	if err := client.UpdateDonationRequest(ctx, id, patch); err != nil {
		s.writeError(w, r, err)
		return
	}

	req.Status = patch.Status
	req.DonorName = patch.DonorName
	req.DonorEmail = patch.DonorEmail

	s.writeJSON(w, http.StatusOK, req)
}

func (s *Service) handleGetAllDonationRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var status types.DonationStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := types.ParseDonationStatus(raw)
		if err != nil {
			s.writeError(w, r, badRequest("unknown status %q", raw))
			return
		}
		status = parsed
	}

	requests, err := s.backend.WithSession(storeFromContext(ctx)).DonationRequests(ctx, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, requests)
}

func (s *Service) handlePostDonationRequestStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form types.StatusForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	status, err := types.ParseDonationStatus(form.Status)
	if err != nil {
		s.writeError(w, r, badRequest("unknown status %q", form.Status))
		return
	}

	id := r.PathValue("id")
	err = s.backend.WithSession(storeFromContext(ctx)).UpdateDonationRequest(ctx, id, backend.DonationRequestPatch{Status: status})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Service) handlePostDeleteDonationRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := s.backend.WithSession(storeFromContext(ctx)).DeleteDonationRequest(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
