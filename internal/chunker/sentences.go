package chunker

import (
	"regexp"
	"strings"
)

var (
	// Periods inside these never end a sentence.
	abbreviationRe = regexp.MustCompile(`\b(?:Dr|Mrs|Mr|Ms|Prof|Figs|Fig|Eqs|Eq|Sec|Tab|No|vs|etc|cf|al|approx|resp|Refs|Ref|Ch|Vol|pp)\.|\be\.g\.|\bi\.e\.|\bet al\.`)
	decimalRe      = regexp.MustCompile(`\d\.\d`)
	initialRe      = regexp.MustCompile(`\b[A-Z]\.`)

	// A terminator run, the gap after it, and the first rune of the next sentence.
	boundaryRe = regexp.MustCompile(`[.!?]+(\s+)["'\x{201C}\x{2018}\p{Lu}\d]`)
	looseRe    = regexp.MustCompile(`[.!?]\s+`)
)

// SplitSentences breaks text at sentence terminators followed by whitespace
// and a capital letter, digit or opening quote. Periods belonging to common
// abbreviations, decimal numbers and single-letter initials are not treated
// as terminators.
func SplitSentences(text string) []string {
	protected := make([]bool, len(text))
	for _, re := range []*regexp.Regexp{abbreviationRe, decimalRe, initialRe} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			for i := loc[0]; i < loc[1]; i++ {
				protected[i] = true
			}
		}
	}

	var out []string
	start := 0
	for _, loc := range boundaryRe.FindAllStringSubmatchIndex(text, -1) {
		end := loc[2] // end of the terminator run
		if protected[end-1] {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = loc[3]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// splitLoose splits after every terminator followed by whitespace.
func splitLoose(text string) []string {
	var out []string
	start := 0
	for _, loc := range looseRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
