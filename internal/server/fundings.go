package server

import (
	"net/http"
	"strconv"
	"time"

	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

func (s *Service) handleGetFundings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	fundings, err := s.backend.WithSession(storeFromContext(ctx)).Fundings(ctx, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, fundings)
}

func (s *Service) handlePostFundingIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form types.FundingIntentForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	secret, err := s.backend.WithSession(storeFromContext(ctx)).CreatePaymentIntent(ctx, form.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"clientSecret": secret})
}

// handlePostFunding records a funding once the payment provider confirms
// the payment behind it.
func (s *Service) handlePostFunding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)

	var form types.FundingForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.payments == nil {
		s.writeError(w, r, unavailable("payments are not configured"))
		return
	}

	if _, err := s.payments.Verify(ctx, form.PaymentIntentID, form.Amount*100); err != nil {
		s.writeError(w, r, err)
		return
	}

	funding := &types.Funding{
		UserID:          sess.Profile.ID,
		UserName:        sess.Profile.Name,
		Email:           sess.Profile.Email,
		Amount:          float64(form.Amount),
		Date:            time.Now().UTC(),
		PaymentIntentID: form.PaymentIntentID,
	}

	if err := s.backend.WithSession(storeFromContext(ctx)).CreateFunding(ctx, funding); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"email":             funding.Email,
		"amount":            funding.Amount,
		"payment_intent_id": funding.PaymentIntentID,
	}).Info("funding recorded")

	s.writeJSON(w, http.StatusCreated, funding)
}
