// internal/sanitize/sanitize.go
// Package sanitize normalizes untrusted form values before they are
// validated or interpolated into notification bodies.
//
// Every function accepts an arbitrary decoded JSON value. Anything that is
// not a string (numbers, null, objects, arrays) degrades to the empty string,
// so callers see malformed input as "absent" rather than as an error.
//
// HTML escaping performed here is the only XSS defense before values are
// placed into HTML email bodies. Downstream code must not escape again.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

var (
	lineBreak  = regexp.MustCompile(`\r\n|\r`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Plain trims, HTML-escapes, and collapses every whitespace run to a single
// space. Whitespace is anything unicode.IsSpace accepts, including NBSP and
// the vertical tab.
func Plain(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return html.EscapeString(strings.Join(strings.Fields(s), " "))
}

// Email trims, lowercases, and HTML-escapes. It does not check the shape of
// the address.
func Email(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return html.EscapeString(strings.ToLower(strings.TrimSpace(s)))
}

// Multiline is Plain for text areas: line breaks survive (normalized to \n,
// with runs of three or more collapsed to a blank line) and whitespace inside
// a line is left alone.
func Multiline(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	cleaned := html.EscapeString(strings.TrimSpace(s))
	cleaned = lineBreak.ReplaceAllString(cleaned, "\n")
	return blankLines.ReplaceAllString(cleaned, "\n\n")
}

// Unescape reverses the entity encoding applied by the sanitizers. It is for
// analysis of the submitted text (spam scoring), never for output.
func Unescape(s string) string {
	return html.UnescapeString(s)
}
