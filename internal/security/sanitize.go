// Package security cleans user supplied HTML before it is stored or shown.
package security

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	once   sync.Once
	policy *bluemonday.Policy
)

func blogPolicy() *bluemonday.Policy {
	once.Do(func() {
		p := bluemonday.UGCPolicy()
		p.RequireNoFollowOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		p.AllowAttrs("class").OnElements("p", "span", "pre", "code")
		policy = p
	})
	return policy
}

// SanitizeBlogHTML strips scripts, event handlers and anything else outside
// the user generated content policy from a rich text body.
func SanitizeBlogHTML(body string) string {
	return strings.TrimSpace(blogPolicy().Sanitize(body))
}

// PlainText removes every tag, leaving only text.
func PlainText(s string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(s))
}
