package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/loader"
	"github.com/dgallion1/paperidx/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)

	scoreStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81"))
)

var categoryColors = map[doctree.Category]lipgloss.Color{
	doctree.CategoryAbstract:     "141",
	doctree.CategoryIntroduction: "81",
	doctree.CategoryMethod:       "42",
	doctree.CategoryEvaluation:   "214",
	doctree.CategoryConclusion:   "177",
	doctree.CategoryRelatedWork:  "109",
	doctree.CategoryOther:        "240",
}

func categoryLabel(c doctree.Category) string {
	return lipgloss.NewStyle().Foreground(categoryColors[c]).Render(c.String())
}

func statusLabel(s loader.Status) string {
	switch s {
	case loader.StatusSuccess:
		return successStyle.Render(string(s))
	case loader.StatusAlreadyIndexed:
		return dimStyle.Render(string(s))
	default:
		return errorStyle.Render(string(s))
	}
}

func writeHeader(w io.Writer, title string, fields ...string) {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, "\n%s %s", dimStyle.Render(fields[i]+":"), fields[i+1])
	}
	fmt.Fprintln(w, headerBoxStyle.Render(b.String()))
}

func writeOutline(w io.Writer, roots []*doctree.Section) {
	for _, n := range doctree.Flatten(roots) {
		fmt.Fprintf(w, "%s%s  %s %s\n",
			strings.Repeat("  ", n.Depth),
			n.Section.Title,
			categoryLabel(n.Section.Category),
			dimStyle.Render(fmt.Sprintf("p.%d", n.Section.Page+1)),
		)
	}
}

func writeCategoryCounts(w io.Writer, chunks []doctree.Chunk) {
	counts := make(map[doctree.Category]int)
	for _, c := range chunks {
		counts[c.Category]++
	}
	for cat := doctree.CategoryAbstract; cat <= doctree.CategoryRelatedWork; cat++ {
		if counts[cat] == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-14s %d\n", categoryLabel(cat), counts[cat])
	}
}

func writeHits(w io.Writer, hits []store.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no matches"))
		return
	}
	for i, h := range hits {
		c := h.Chunk
		where := c.SectionTitle
		if c.ParentSectionTitle != "" {
			where = c.ParentSectionTitle + " > " + where
		}
		fmt.Fprintf(w, "%s %s %s\n", scoreStyle.Render(fmt.Sprintf("%2d. %.3f", i+1, h.Score)), titleStyle.Render(c.Title), dimStyle.Render("["+c.DocID+"]"))
		fmt.Fprintf(w, "    %s  %s %s\n", categoryLabel(c.Category), where, dimStyle.Render(fmt.Sprintf("chunk %d", c.ChunkIndex)))
		fmt.Fprintf(w, "    %s\n", snippet(c.Text, 240))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
