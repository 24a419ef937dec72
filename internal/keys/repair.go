package keys

import (
	"regexp"
	"strings"
	"unicode"
)

// pemLineWidth is the body line width of canonical PEM.
const pemLineWidth = 64

var (
	pemHeader = regexp.MustCompile(`-----BEGIN ([A-Z0-9 ]+)-----`)
	pemFooter = regexp.MustCompile(`-----END ([A-Z0-9 ]+)-----`)
)

// Repair rewrites PEM text into canonical form: header, body re-wrapped
// at 64 characters with all whitespace removed, footer, joined by single
// newlines. It returns false when the header or footer is missing.
//
// Repair is idempotent.
func Repair(text string) (string, bool) {
	h := pemHeader.FindStringIndex(text)
	if h == nil {
		return "", false
	}
	rest := text[h[1]:]
	f := pemFooter.FindStringIndex(rest)
	if f == nil {
		return "", false
	}

	header := text[h[0]:h[1]]
	body := stripWhitespace(rest[:f[0]])
	footer := rest[f[0]:f[1]]

	lines := make([]string, 0, 2+len(body)/pemLineWidth+1)
	lines = append(lines, header)
	for len(body) > pemLineWidth {
		lines = append(lines, body[:pemLineWidth])
		body = body[pemLineWidth:]
	}
	if body != "" {
		lines = append(lines, body)
	}
	lines = append(lines, footer)

	return strings.Join(lines, "\n"), true
}

// IsMalformed reports whether text has a PEM header and footer but was
// not split into lines: two or fewer non-blank lines. Body line width is
// not checked; OpenSSH keys wrap at 70 columns and are well formed.
func IsMalformed(text string) bool {
	if !pemHeader.MatchString(text) || !pemFooter.MatchString(text) {
		return false
	}

	nonBlank := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			nonBlank++
		}
	}
	return nonBlank <= 2
}

// Normalize repairs text when it is malformed and returns it unchanged
// otherwise.
func Normalize(text string) string {
	if !IsMalformed(text) {
		return text
	}
	if fixed, ok := Repair(text); ok {
		return fixed
	}
	return text
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
