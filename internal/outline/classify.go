package outline

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dgallion1/paperidx/internal/doctree"
)

type rule struct {
	re       *regexp.Regexp
	category doctree.Category
}

// rules are checked in order; the first match wins.
var rules = []rule{
	{regexp.MustCompile(`(?i)abstract`), doctree.CategoryAbstract},
	{regexp.MustCompile(`(?i)related\s+work`), doctree.CategoryRelatedWork},
	{regexp.MustCompile(`(?i)introduction|background|motivation`), doctree.CategoryIntroduction},
	{regexp.MustCompile(`(?i)method|approach|architecture|proposed|framework`), doctree.CategoryMethod},
	{regexp.MustCompile(`(?i)experiment|result|evaluation|ablation|performance|comparison`), doctree.CategoryEvaluation},
	{regexp.MustCompile(`(?i)conclusion|discussion|summary|future\s+work`), doctree.CategoryConclusion},
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "into": true,
	"onto": true, "over": true, "under": true, "via": true, "using": true, "based": true,
	"towards": true, "toward": true, "our": true, "are": true, "its": true, "this": true,
	"that": true, "these": true, "those": true, "than": true, "not": true, "but": true,
	"can": true, "how": true, "what": true, "when": true, "where": true, "why": true,
	"which": true, "who": true, "all": true, "any": true, "new": true, "one": true,
	"two": true, "more": true, "less": true, "you": true, "your": true, "about": true,
	"between": true, "through": true, "against": true, "without": true, "within": true,
	"is": true, "of": true, "on": true, "in": true, "to": true, "a": true, "an": true,
}

// Classify maps a section title to a category. When no pattern matches, a
// title sharing a significant word with the paper's own title is taken to
// describe the paper's contribution.
func Classify(title, paperTitle string) doctree.Category {
	for _, r := range rules {
		if r.re.MatchString(title) {
			return r.category
		}
	}

	paperWords := significantWords(paperTitle)
	if len(paperWords) > 0 {
		for w := range significantWords(title) {
			if paperWords[w] {
				return doctree.CategoryMethod
			}
		}
	}
	return doctree.CategoryOther
}

// ClassifyTree resolves the category of every node in pre-order. A node
// whose parent resolved to anything other than OTHER takes the parent's
// category, so numbered subsections stay with their section.
func ClassifyTree(roots []*doctree.Section, paperTitle string) {
	flat := doctree.Flatten(roots)
	for i, n := range flat {
		if n.Parent >= 0 {
			if parent := flat[n.Parent].Section.Category; parent != doctree.CategoryOther {
				flat[i].Section.Category = parent
				continue
			}
		}
		flat[i].Section.Category = Classify(n.Section.Title, paperTitle)
	}
}

func significantWords(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) > 2 && !stopwords[w] {
			out[w] = true
		}
	}
	return out
}
