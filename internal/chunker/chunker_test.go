package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/paperidx/internal/doctree"
)

// numberedSentences builds text of unique sentences until it reaches n characters.
func numberedSentences(n int) string {
	var parts []string
	length := 0
	for i := 1; length < n; i++ {
		s := fmt.Sprintf("Sentence %d covers one more aspect of the evaluation setup.", i)
		parts = append(parts, s)
		length += len(s) + 1
	}
	return strings.Join(parts, " ")
}

// sharedOverlap returns the longest run of leading sentences of b that is
// also a suffix of a.
func sharedOverlap(a, b string) string {
	sents := SplitSentences(b)
	best := ""
	for n := 1; n <= len(sents); n++ {
		p := strings.Join(sents[:n], " ")
		if strings.HasSuffix(a, p) {
			best = p
		}
	}
	return best
}

func TestProcess_ShortTextUnchanged(t *testing.T) {
	text := strings.Repeat("Words here. ", 63)[:750]
	raw := []doctree.RawChunk{{Text: text, SectionTitle: "Abstract", PageNumber: 1}}

	chunks := Process(raw, Config{TargetSize: 800, Overlap: 100, MinSize: 100})

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("expected text to pass through unchanged")
	}
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].ChunkIndex)
	}
}

func TestProcess_LongTextSplitsWithOverlap(t *testing.T) {
	text := numberedSentences(2400)
	raw := []doctree.RawChunk{{Text: text, SectionTitle: "5 Evaluation", Category: doctree.CategoryEvaluation, PageNumber: 6}}
	cfg := Config{TargetSize: 800, Overlap: 100, MinSize: 100}

	chunks := Process(raw, cfg)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c.Text); n > 900 {
			t.Errorf("chunk %d: %d chars exceeds ~900", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		overlap := sharedOverlap(chunks[i-1].Text, chunks[i].Text)
		if overlap == "" {
			t.Errorf("chunks %d and %d share no overlapping sentences", i-1, i)
			continue
		}
		if utf8.RuneCountInString(overlap) < cfg.Overlap {
			t.Errorf("chunk %d: overlap %q shorter than %d", i, overlap, cfg.Overlap)
		}
	}
}

func TestProcess_SizeBound(t *testing.T) {
	var parts []string
	for i := 0; i < 120; i++ {
		parts = append(parts, fmt.Sprintf("Claim %d holds%s.", i, strings.Repeat(" again", i%17)))
	}
	cfg := Config{TargetSize: 300, Overlap: 60, MinSize: 40}
	chunks := Process([]doctree.RawChunk{{Text: strings.Join(parts, " ")}}, cfg)

	for i, c := range chunks[:len(chunks)-1] {
		if n := utf8.RuneCountInString(c.Text); n > cfg.TargetSize+cfg.Overlap {
			t.Errorf("chunk %d: %d chars exceeds bound %d", i, n, cfg.TargetSize+cfg.Overlap)
		}
	}
}

func TestProcess_IndexesAndMetadata(t *testing.T) {
	raw := []doctree.RawChunk{
		{Text: numberedSentences(1500), SectionTitle: "3 Design", Category: doctree.CategoryMethod, PageNumber: 3},
		{Text: "Short related work paragraph.", SectionTitle: "Related Work", ParentSectionTitle: "Background", Category: doctree.CategoryRelatedWork, PageNumber: 9},
		{Text: "   "},
		{Text: numberedSentences(1000), SectionTitle: "6 Conclusion", Category: doctree.CategoryConclusion, PageNumber: 11},
	}

	chunks := Process(raw, DefaultConfig())

	for i, c := range chunks {
		if c.ChunkIndex != int64(i) {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.ChunkIndex)
		}
	}

	seen := map[string]bool{}
	for _, c := range chunks {
		seen[c.SectionTitle] = true
		switch c.SectionTitle {
		case "3 Design":
			if c.Category != doctree.CategoryMethod || c.PageNumber != 3 || c.ParentSectionTitle != "" {
				t.Errorf("design chunk has blended metadata: %+v", c)
			}
		case "Related Work":
			if c.Category != doctree.CategoryRelatedWork || c.PageNumber != 9 || c.ParentSectionTitle != "Background" {
				t.Errorf("related work chunk has blended metadata: %+v", c)
			}
		case "6 Conclusion":
			if c.Category != doctree.CategoryConclusion || c.PageNumber != 11 {
				t.Errorf("conclusion chunk has blended metadata: %+v", c)
			}
		default:
			t.Errorf("unexpected section %q", c.SectionTitle)
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected chunks from 3 sections, got %v", seen)
	}
}

func TestProcess_LongSentenceIsCut(t *testing.T) {
	long := "Word" + strings.Repeat(" word", 180) + " end."
	text := "Short one. " + long + " Another short one."
	cfg := Config{TargetSize: 800, Overlap: 100, MinSize: 10}

	chunks := Process([]doctree.RawChunk{{Text: text}}, cfg)

	if len(chunks) < 2 {
		t.Fatalf("expected the long sentence to be cut, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c.Text); n > cfg.TargetSize+cfg.Overlap {
			t.Errorf("chunk %d: %d chars exceeds bound %d", i, n, cfg.TargetSize+cfg.Overlap)
		}
	}
	if !strings.HasSuffix(chunks[len(chunks)-1].Text, "Another short one.") {
		t.Errorf("expected the last sentence in the last chunk, got %q", chunks[len(chunks)-1].Text)
	}
}

func TestProcess_UnpunctuatedSpanIsBounded(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("token ", 400))
	if n := utf8.RuneCountInString(text); n < 2390 {
		t.Fatalf("fixture too short: %d", n)
	}
	cfg := DefaultConfig()

	chunks := Process([]doctree.RawChunk{{Text: text}}, cfg)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c.Text); n > cfg.TargetSize+cfg.Overlap {
			t.Errorf("chunk %d: %d chars exceeds bound %d", i, n, cfg.TargetSize+cfg.Overlap)
		}
	}
	if got := strings.Count(joinTexts(chunks), "token"); got < 400 {
		t.Errorf("expected every token kept, got %d", got)
	}
}

func TestProcess_OverlapAndMergeDisabled(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("lowercase sentence here. ", 20))
	chunks := Process([]doctree.RawChunk{{Text: text}}, Config{TargetSize: 120})

	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}
	if got := joinTexts(chunks); got != text {
		t.Errorf("expected chunks to partition the text without overlap, got %q", got)
	}
}

func joinTexts(chunks []doctree.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, " ")
}

func TestProcess_ShortTailMergesIntoPrevious(t *testing.T) {
	text := numberedSentences(790) + " Tail end."
	chunks := Process([]doctree.RawChunk{{Text: text}}, Config{TargetSize: 800, Overlap: 100, MinSize: 200})

	if len(chunks) != 1 {
		t.Fatalf("expected the short tail to merge, got %d chunks", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, " Tail end.") {
		t.Errorf("expected merged tail at end, got %q", chunks[0].Text)
	}
	if strings.Count(chunks[0].Text, "Sentence 1 ") != 1 {
		t.Errorf("expected no duplicated sentences after merge")
	}
}

func TestProcess_LooseSplitFallback(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("lowercase sentence here. ", 20))
	chunks := Process([]doctree.RawChunk{{Text: text}}, Config{TargetSize: 120, Overlap: 30, MinSize: 10})

	if len(chunks) < 2 {
		t.Fatalf("expected lowercase text to split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if !strings.HasSuffix(c.Text, ".") {
			t.Errorf("chunk %d: expected whole sentences, got %q", i, c.Text)
		}
	}
}

func TestProcess_DefaultConfigFallback(t *testing.T) {
	chunks := Process([]doctree.RawChunk{{Text: numberedSentences(2000)}}, Config{})
	if len(chunks) < 2 {
		t.Errorf("expected defaults to split 2000 chars, got %d chunks", len(chunks))
	}
}

func TestProcess_Empty(t *testing.T) {
	if chunks := Process(nil, DefaultConfig()); len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}
}

func TestSplitSentences_ProtectedPeriods(t *testing.T) {
	text := `Dr. Smith measured 3.5 kg. See Fig. 2 for details. J. R. R. Tolkien wrote e.g. Books. He left. "Why?" she asked. Done!`
	want := []string{
		"Dr. Smith measured 3.5 kg.",
		"See Fig. 2 for details.",
		"J. R. R. Tolkien wrote e.g. Books.",
		"He left.",
		`"Why?" she asked.`,
		"Done!",
	}

	got := SplitSentences(text)
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitSentences_EtAl(t *testing.T) {
	got := SplitSentences("Prior work by Lee et al. Showed gains. Next sentence.")
	if len(got) != 2 || got[0] != "Prior work by Lee et al. Showed gains." {
		t.Errorf("expected et al. to be protected, got %q", got)
	}
}
