package doctree

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category is the role of a section within an academic paper.
// Values are persisted, so the numbering must not change.
type Category int

const (
	CategoryAbstract     Category = 0
	CategoryIntroduction Category = 1
	CategoryMethod       Category = 2
	CategoryEvaluation   Category = 3
	CategoryConclusion   Category = 4
	CategoryOther        Category = 5
	CategoryRelatedWork  Category = 6
)

var categoryNames = map[Category]string{
	CategoryAbstract:     "ABSTRACT",
	CategoryIntroduction: "INTRODUCTION",
	CategoryMethod:       "METHOD",
	CategoryEvaluation:   "EVALUATION",
	CategoryConclusion:   "CONCLUSION",
	CategoryOther:        "OTHER",
	CategoryRelatedWork:  "RELATED_WORK",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Valid reports whether c is one of the seven known categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory accepts a category name ("method", "RELATED_WORK", "related work")
// or its numeric value ("2").
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		c := Category(n)
		if !c.Valid() {
			return 0, fmt.Errorf("unknown category: %d", n)
		}
		return c, nil
	}
	norm := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(s, "-", "_"), " ", "_"))
	for c, name := range categoryNames {
		if name == norm {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category: %q", s)
}

// Section is one node of a document outline.
type Section struct {
	Title    string     // Outline title as printed in the document
	Page     int        // 0-based start page
	Category Category   // Resolved by the classifier
	Children []*Section // Subsections in document order
}

// FlatNode is a Section in pre-order position with its parent's index.
type FlatNode struct {
	Section *Section
	Parent  int // Index into the flat list, -1 for roots
	Depth   int
}

// Flatten returns the pre-order traversal of roots. It uses an explicit
// stack so deeply nested outlines cannot exhaust the call stack.
func Flatten(roots []*Section) []FlatNode {
	type frame struct {
		node   *Section
		parent int
		depth  int
	}

	var out []FlatNode
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i], parent: -1})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node == nil {
			continue
		}

		idx := len(out)
		out = append(out, FlatNode{Section: f.node, Parent: f.parent, Depth: f.depth})

		// Push children in reverse so the first child is visited next.
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Children[i], parent: idx, depth: f.depth + 1})
		}
	}
	return out
}

// RawChunk is the cleaned text of one outline node before sentence merging.
type RawChunk struct {
	Text               string
	SectionTitle       string
	ParentSectionTitle string
	Category           Category
	PageNumber         int // 1-based
}

// DocumentChunkIndex marks the paper-level record of a document.
const DocumentChunkIndex int64 = -1

// Chunk is the persisted retrieval unit.
type Chunk struct {
	DocID              string    `json:"doc_id"`
	ChunkIndex         int64     `json:"chunk_index"`
	Text               string    `json:"text"`
	Title              string    `json:"title,omitempty"`
	SectionTitle       string    `json:"section_title"`
	ParentSectionTitle string    `json:"parent_section_title"`
	Category           Category  `json:"category"`
	PageNumber         int       `json:"page_number"`
	ContextPrefix      string    `json:"context_prefix,omitempty"`
	Embedding          []float32 `json:"-"`
}

// DocumentRecord is the paper-level metadata stored under chunk index -1.
type DocumentRecord struct {
	DocID           string    `json:"doc_id"`
	Title           string    `json:"title"`
	Abstract        string    `json:"abstract"`
	URL             string    `json:"url,omitempty"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	ConferenceName  string    `json:"conference_name,omitempty"`
	ConferenceYear  int       `json:"conference_year,omitempty"`
	ConferenceRound string    `json:"conference_round,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SourceURL returns the URL the document should be downloaded from.
func (r *DocumentRecord) SourceURL() string {
	if r == nil {
		return ""
	}
	if s := strings.TrimSpace(r.PDFURL); s != "" {
		return s
	}
	return strings.TrimSpace(r.URL)
}
