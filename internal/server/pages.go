package server

import (
	"net/http"
	"strings"

	"pulsepoint/internal/backend"
	"pulsepoint/pkg/types"
)

func (s *Service) handleHome(w http.ResponseWriter, r *http.Request) {
	data := &types.HomePageData{
		BasePageData: types.BasePageData{Title: "PulsePoint"},
		Notice:       r.URL.Query().Get("notice"),
		Error:        r.URL.Query().Get("error"),
		BloodGroups:  types.BloodGroups,
	}

	if err := s.renderTemplate(w, r, "page.home", data); err != nil {
		s.logger.WithError(err).Error("failed to render home page")
		s.internalServerError(w)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	data := &types.DashboardPageData{
		BasePageData: types.BasePageData{Title: "Dashboard"},
		Profile:      sess.Profile,
		Notice:       r.URL.Query().Get("notice"),
		Error:        r.URL.Query().Get("error"),
		Links:        dashboardLinks(sess.Profile.Role),
	}

	if err := s.renderTemplate(w, r, "page.dashboard", data); err != nil {
		s.logger.WithError(err).Error("failed to render dashboard page")
		s.internalServerError(w)
	}
}

func dashboardLinks(role types.Role) []types.DashboardLink {
	links := []types.DashboardLink{
		{Label: "Profile", Href: "/dashboard/profile"},
		{Label: "My Donation Requests", Href: "/dashboard/my-donation-requests"},
		{Label: "Funding", Href: "/dashboard/fundings"},
	}

	switch role {
	case types.RoleAdmin:
		links = append(links,
			types.DashboardLink{Label: "All Users", Href: "/dashboard/all-users"},
			types.DashboardLink{Label: "All Donation Requests", Href: "/dashboard/all-donation-requests"},
			types.DashboardLink{Label: "Content Management", Href: "/dashboard/content-management"},
		)
	case types.RoleVolunteer:
		links = append(links,
			types.DashboardLink{Label: "All Donation Requests", Href: "/dashboard/volunteer/donation-requests"},
			types.DashboardLink{Label: "Content Management", Href: "/dashboard/volunteer/content-management"},
		)
	}

	return links
}

// handleGetPendingDonationRequests is the public list; only pending
// requests are shown to visitors.
func (s *Service) handleGetPendingDonationRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.backend.Public().DonationRequests(r.Context(), types.DonationStatusPending)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, requests)
}

func (s *Service) handleGetPublishedBlogs(w http.ResponseWriter, r *http.Request) {
	blogs, err := s.backend.Public().Blogs(r.Context(), types.BlogStatusPublished)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, blogs)
}

func (s *Service) handleGetBlog(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))

	blog, err := s.backend.Public().Blog(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Drafts are only visible through content management.
	if blog.Status != types.BlogStatusPublished {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "blog not found"})
		return
	}

	s.writeJSON(w, http.StatusOK, blog)
}

func (s *Service) handleGetDonorSearch(w http.ResponseWriter, r *http.Request) {
	var q backend.DonorQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		s.writeError(w, r, badRequest("invalid search"))
		return
	}

	if q.BloodGroup != "" {
		group, err := types.ParseBloodGroup(string(q.BloodGroup))
		if err != nil {
			s.writeError(w, r, badRequest("unknown blood group"))
			return
		}
		q.BloodGroup = group
	}

	donors, err := s.backend.Public().SearchDonors(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, donors)
}
