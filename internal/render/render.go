package render

import (
	"regexp"
	"strings"
)

// Variable tokens come in two equivalent spellings: {{name}} and {name}.
// The double-brace alternative is listed first so it wins over the
// single-brace form on the same span. Names are matched case-insensitively
// and tolerate whitespace inside the braces.
var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}|\{\s*([^{}]+?)\s*\}`)

// Render substitutes variable tokens in template using vars. Lookup is
// case-insensitive. Tokens whose variable is absent render as an empty
// string; rendering never fails on missing data.
//
// The template is walked once as a flat token list rather than via
// chained global replaces, so a substituted value containing brace-like
// text is never re-matched.
func Render(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	matches := tokenPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	last := 0
	for _, m := range matches {
		b.WriteString(template[last:m[0]])

		key := submatch(template, m, 1)
		if key == "" {
			key = submatch(template, m, 2)
		}
		b.WriteString(vars[normalizeKey(key)])

		last = m[1]
	}
	b.WriteString(template[last:])

	return b.String()
}

// submatch extracts capture group n from a FindAllStringSubmatchIndex
// match, or "" if the group did not participate.
func submatch(s string, m []int, n int) string {
	start, end := m[2*n], m[2*n+1]
	if start < 0 {
		return ""
	}
	return s[start:end]
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
