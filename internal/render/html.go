package render

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlStartPattern = regexp.MustCompile(`^\s*<(!|[a-zA-Z])`)
	tagPattern       = regexp.MustCompile(`(?s)<[^>]*>`)
	breakPattern     = regexp.MustCompile(`(?i)<br\s*/?>`)
	paraEndPattern   = regexp.MustCompile(`(?i)</p\s*>`)
)

// LooksLikeHTML reports whether a body already carries markup. The
// heuristic is deliberately permissive: anything starting with a tag is
// treated as HTML and passed through unchanged.
func LooksLikeHTML(s string) bool {
	return htmlStartPattern.MatchString(s)
}

// NormalizeHTML prepares an email body for sending. HTML-looking input
// passes through unchanged. Plain text is escaped first, then wrapped
// into paragraph/line-break markup, so raw text fields cannot inject
// markup.
func NormalizeHTML(body string) string {
	if body == "" || LooksLikeHTML(body) {
		return body
	}

	escaped := html.EscapeString(body)

	var b strings.Builder
	for _, para := range strings.Split(escaped, "\n\n") {
		para = strings.TrimRight(para, "\n")
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(para, "\n", "<br>"))
		b.WriteString("</p>")
	}

	return b.String()
}

// HTMLToText derives a plain-text rendition of an HTML body for SMS
// previews and the email text alternative. Best effort: tags are
// stripped, <br> and </p> become newlines, and the five standard
// entities are decoded. Malformed markup never causes an error.
func HTMLToText(s string) string {
	s = breakPattern.ReplaceAllString(s, "\n")
	s = paraEndPattern.ReplaceAllString(s, "\n")
	s = tagPattern.ReplaceAllString(s, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	s = replacer.Replace(s)

	return strings.TrimSpace(s)
}
