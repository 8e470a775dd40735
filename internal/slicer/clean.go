package slicer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	citationRe    = regexp.MustCompile(`\[\s*[\d\s,\-]+\s*\]`)
	hyphenBreakRe = regexp.MustCompile(`(\w+)-\n(\w+)`)
	spaceRe       = regexp.MustCompile(`\s+`)
	punctSpaceRe  = regexp.MustCompile(`\s+([,.;:?!])`)
)

// Clean normalizes extracted page text into a single line of prose.
// Ligatures are folded, numeric citations dropped and words hyphenated
// across line breaks rejoined.
func Clean(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = citationRe.ReplaceAllString(s, "")
	s = hyphenBreakRe.ReplaceAllString(s, "$1$2")
	s = strings.ReplaceAll(s, "\n", " ")
	s = spaceRe.ReplaceAllString(s, " ")
	s = punctSpaceRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
