// Package outline recovers the section hierarchy of a paper and assigns each
// section a category.
package outline

import (
	"regexp"
	"strings"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/parser"
)

// abstractScanPages is how many leading pages may hold the abstract.
const abstractScanPages = 3

var (
	abstractTitleRe  = regexp.MustCompile(`(?i)\babstract\b`)
	abstractHeaderRe = regexp.MustCompile(`^\s*(?:Abstract|ABSTRACT)\s*(?:[:\x{2014}\x{2013}].*)?$`)
)

// Extract builds the section tree of doc. pages must be the pre-extracted
// page texts of doc. A nil result means the document has neither outline
// metadata nor a recognizable abstract header; callers then fall back to
// page segmentation.
//
// The returned error reports unreadable outline metadata. The tree is still
// valid in that case, built as if no outline existed.
func Extract(doc parser.Document, pages []string) ([]*doctree.Section, error) {
	entries, err := doc.Outline()
	if err != nil {
		entries = nil
	}

	roots := Build(entries)
	if !hasLeadingAbstract(roots) {
		if page, ok := FindAbstractHeader(pages); ok {
			abstract := &doctree.Section{Title: "Abstract", Page: page}
			roots = append([]*doctree.Section{abstract}, roots...)
		}
	}
	if len(roots) == 0 {
		return nil, err
	}
	return roots, err
}

// Build assembles outline entries into a tree by nesting level. Entry pages
// are 1-based; nodes carry 0-based pages, with unknown pages mapped to 0.
func Build(entries []parser.OutlineEntry) []*doctree.Section {
	type stackEntry struct {
		node  *doctree.Section
		level int
	}

	var roots []*doctree.Section
	var stack []stackEntry

	for _, e := range entries {
		page := e.Page - 1
		if e.Page <= 0 {
			page = 0
		}
		node := &doctree.Section{Title: strings.TrimSpace(e.Title), Page: page}

		// Pop until the top of the stack is a strict ancestor.
		for len(stack) > 0 && stack[len(stack)-1].level >= e.Level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, stackEntry{node: node, level: e.Level})
	}
	return roots
}

// FindAbstractHeader scans the first pages for a line that is an "Abstract"
// header on its own or followed by a colon. It returns the 0-based page.
func FindAbstractHeader(pages []string) (int, bool) {
	for i := 0; i < len(pages) && i < abstractScanPages; i++ {
		for _, line := range strings.Split(pages[i], "\n") {
			if abstractHeaderRe.MatchString(line) {
				return i, true
			}
		}
	}
	return 0, false
}

func hasLeadingAbstract(roots []*doctree.Section) bool {
	for _, n := range doctree.Flatten(roots) {
		if n.Section.Page < abstractScanPages && abstractTitleRe.MatchString(n.Section.Title) {
			return true
		}
	}
	return false
}
