package resolve

import (
	"regexp"
	"strings"
)

var (
	honorificRe  = regexp.MustCompile(`(?i)^(dr|prof|professor|director|mr|ms|mrs)\.?\s+`)
	parensRe     = regexp.MustCompile(`\s*\([^)]*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeName reduces an entity name to a comparison key: honorifics and
// parenthesized qualifiers are stripped, quotes removed, whitespace collapsed,
// and the result lower-cased. "Dr. Aris Thorne" and "ARIS THORNE" normalize
// to the same key.
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)
	s = parensRe.ReplaceAllString(s, "")
	s = strings.NewReplacer(`"`, "", "'", "", "“", "", "”", "").Replace(s)
	for {
		stripped := honorificRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
