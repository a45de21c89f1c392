package server

import (
	"net/http"
	"strings"
	"time"

	"pulsepoint/internal/security"
	"pulsepoint/pkg/types"
)

func (s *Service) handleGetAllBlogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var status types.BlogStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := types.ParseBlogStatus(raw)
		if err != nil {
			s.writeError(w, r, badRequest("unknown status %q", raw))
			return
		}
		status = parsed
	}

	blogs, err := s.backend.WithSession(storeFromContext(ctx)).Blogs(ctx, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, blogs)
}

// handlePostBlog adds a draft blog. The body is sanitized before it leaves
// the portal; the thumbnail is optional.
func (s *Service) handlePostBlog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)

	var form types.BlogForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	content := security.SanitizeBlogHTML(form.Content)
	if content == "" {
		s.writeError(w, r, badRequest("blog content is empty"))
		return
	}

	thumbnail, err := s.uploadedImage(r, "thumbnail", "thumbnails")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := time.Now().UTC()
	blog := &types.Blog{
		Title:       security.PlainText(form.Title),
		Thumbnail:   thumbnail,
		Content:     content,
		Status:      types.BlogStatusDraft,
		AuthorEmail: sess.Profile.Email,
		CreatedAt:   &now,
	}

	if err := s.backend.WithSession(storeFromContext(ctx)).CreateBlog(ctx, blog); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, blog)
}

func (s *Service) handlePostBlogStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form types.StatusForm
	if err := decodeForm(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	status, err := types.ParseBlogStatus(form.Status)
	if err != nil {
		s.writeError(w, r, badRequest("unknown status %q", form.Status))
		return
	}

	id := r.PathValue("id")
	if err := s.backend.WithSession(storeFromContext(ctx)).UpdateBlogStatus(ctx, id, status); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Service) handlePostDeleteBlog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := s.backend.WithSession(storeFromContext(ctx)).DeleteBlog(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
