package types

import (
	"fmt"
	"strings"
	"time"
)

type BlogStatus string

const (
	BlogStatusDraft     BlogStatus = "draft"
	BlogStatusPublished BlogStatus = "published"
)

func ParseBlogStatus(s string) (BlogStatus, error) {
	switch BlogStatus(strings.ToLower(strings.TrimSpace(s))) {
	case BlogStatusDraft:
		return BlogStatusDraft, nil
	case BlogStatusPublished:
		return BlogStatusPublished, nil
	default:
		return "", fmt.Errorf("unknown blog status %q", s)
	}
}

// Toggle flips a blog between draft and published.
func (s BlogStatus) Toggle() BlogStatus {
	if s == BlogStatusDraft {
		return BlogStatusPublished
	}
	return BlogStatusDraft
}

type Blog struct {
	ID          string     `json:"_id,omitempty"`
	Title       string     `json:"title" validate:"required"`
	Thumbnail   string     `json:"thumbnail,omitempty"`
	Content     string     `json:"content"`
	Status      BlogStatus `json:"status"`
	AuthorEmail string     `json:"authorEmail,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}
