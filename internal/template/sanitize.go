package template

import (
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style.*?>.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	nbspRe   = regexp.MustCompile(`&nbsp;?`)
)

// Sanitize strips script and style blocks, remaining HTML tags, and
// non-breaking-space entities from an email body before matching. Field
// patterns are written against this cleaned text.
func Sanitize(body string) string {
	body = scriptRe.ReplaceAllString(body, "")
	body = styleRe.ReplaceAllString(body, "")
	body = tagRe.ReplaceAllString(body, "")
	body = nbspRe.ReplaceAllString(body, " ")
	return strings.TrimSpace(body)
}
