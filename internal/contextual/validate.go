package contextual

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxPrefixLen bounds an accepted context passage, in characters.
const MaxPrefixLen = 400

var (
	ErrEmptyPrefix   = errors.New("empty context prefix")
	ErrPrefixTooLong = errors.New("context prefix too long")
	ErrInjection     = errors.New("context prefix looks like an instruction")
)

var codeBlockRe = regexp.MustCompile("(?s)^```[a-z]*\\s*(.*?)\\s*```$")

var spaceRe = regexp.MustCompile(`\s+`)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// Clean strips a surrounding code fence and collapses whitespace.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Validate checks a cleaned context passage.
func Validate(s string) error {
	if s == "" {
		return ErrEmptyPrefix
	}
	if utf8.RuneCountInString(s) > MaxPrefixLen {
		return ErrPrefixTooLong
	}
	if injectionPattern.MatchString(s) {
		return ErrInjection
	}
	return nil
}
