// Package slicer cuts the text of a paper into per-section spans using the
// classified outline tree.
package slicer

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/paperidx/internal/doctree"
)

// minPageChars is the shortest cleaned page kept by SlicePages.
const minPageChars = 50

// position is a byte offset within a page.
type position struct {
	page int
	off  int
}

func (p position) after(q position) bool {
	return p.page > q.page || (p.page == q.page && p.off > q.off)
}

// Slice returns one RawChunk per outline node whose title can be located in
// pages. Nodes are visited in pre-order; each span runs from the node's title
// to the title of the next node. A nil logger discards diagnostics.
func Slice(roots []*doctree.Section, pages []string, log *slog.Logger) []doctree.RawChunk {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if len(pages) == 0 {
		return nil
	}

	flat := doctree.Flatten(roots)
	starts := make([]*position, len(flat))
	cursor := position{page: -1}

	for i, n := range flat {
		title := strings.TrimSpace(n.Section.Title)
		page := n.Section.Page
		if title == "" || page < 0 || page >= len(pages) {
			log.Debug("skipping outline node", "section", title, "page", page+1)
			continue
		}

		from := 0
		if cursor.page == page {
			from = cursor.off
		}
		off, end, ok := locateTitle(pages[page], title, from, log)
		if !ok {
			log.Debug("section title not found on page", "section", title, "page", page+1)
			continue
		}
		starts[i] = &position{page: page, off: off}
		cursor = position{page: page, off: end}
	}

	var out []doctree.RawChunk
	for i, n := range flat {
		start := starts[i]
		if start == nil {
			continue
		}
		end := spanEnd(flat, starts, i, pages)
		if !end.after(*start) {
			end = position{page: start.page, off: len(pages[start.page])}
		}

		text := Clean(spanText(pages, *start, end))
		if text == "" {
			continue
		}

		var parent string
		if n.Parent >= 0 {
			parent = flat[n.Parent].Section.Title
		}
		out = append(out, doctree.RawChunk{
			Text:               text,
			SectionTitle:       n.Section.Title,
			ParentSectionTitle: parent,
			Category:           n.Section.Category,
			PageNumber:         start.page + 1,
		})
	}
	return out
}

// SlicePages is the fallback used when a paper has no usable outline: every
// page becomes its own chunk.
func SlicePages(pages []string) []doctree.RawChunk {
	var out []doctree.RawChunk
	for i, page := range pages {
		text := Clean(page)
		if utf8.RuneCountInString(text) < minPageChars {
			continue
		}
		out = append(out, doctree.RawChunk{
			Text:         text,
			SectionTitle: "Page " + strconv.Itoa(i+1),
			Category:     pageCategory(i),
			PageNumber:   i + 1,
		})
	}
	return out
}

func pageCategory(i int) doctree.Category {
	switch {
	case i == 0:
		return doctree.CategoryAbstract
	case i <= 2:
		return doctree.CategoryIntroduction
	default:
		return doctree.CategoryOther
	}
}

// spanEnd finds where the span of flat[i] stops: at the nearest later node
// whose title was located after this one. Only when no such node exists is
// the end guessed from the next node's page.
func spanEnd(flat []doctree.FlatNode, starts []*position, i int, pages []string) position {
	last := len(pages) - 1
	start := *starts[i]
	for j := i + 1; j < len(flat); j++ {
		if next := starts[j]; next != nil && next.after(start) {
			return *next
		}
	}
	if i+1 >= len(flat) {
		return position{page: last, off: len(pages[last])}
	}

	nextPage := flat[i+1].Section.Page
	if nextPage > start.page {
		p := min(nextPage-1, last)
		return position{page: p, off: len(pages[p])}
	}
	return position{page: start.page, off: len(pages[start.page])}
}

func spanText(pages []string, start, end position) string {
	if start.page == end.page {
		return pages[start.page][start.off:end.off]
	}
	var b strings.Builder
	b.WriteString(pages[start.page][start.off:])
	for p := start.page + 1; p < end.page; p++ {
		b.WriteByte('\n')
		b.WriteString(pages[p])
	}
	b.WriteByte('\n')
	b.WriteString(pages[end.page][:end.off])
	return b.String()
}

// locateTitle returns the byte span of title on page, starting at or after
// from. A title preceded by a section number is preferred over a bare line
// match. Matches before from are reported and ignored.
func locateTitle(page, title string, from int, log *slog.Logger) (int, int, bool) {
	pattern := titlePattern(title)
	numbered := regexp.MustCompile(`(?mi)^[ \t]*(\d+(?:\.\d+)*\.?\s+` + pattern + `)`)
	anchored := regexp.MustCompile(`(?mi)^\s*(` + pattern + `)`)

	early := -1
	defer func() {
		if early >= 0 {
			log.Warn("section title matched before previous boundary",
				"section", title, "match_offset", early, "boundary_offset", from)
		}
	}()

	for _, re := range []*regexp.Regexp{numbered, anchored} {
		for _, loc := range re.FindAllStringSubmatchIndex(page, -1) {
			if loc[2] >= from {
				return loc[2], loc[3], true
			}
			if early < 0 {
				early = loc[2]
			}
		}
	}
	return 0, 0, false
}

// titlePattern quotes title so that any run of whitespace in it matches any
// run of whitespace in the page.
func titlePattern(title string) string {
	words := strings.Fields(title)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}
