package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/paperidx/internal/doctree"
)

// Config controls chunking behavior. All sizes are in characters.
type Config struct {
	TargetSize int // Target chunk length.
	Overlap    int // Minimum length of the sentences repeated at the start of the next chunk; 0 disables.
	MinSize    int // A trailing chunk shorter than this is merged into its predecessor; 0 disables.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TargetSize: 800,
		Overlap:    100,
		MinSize:    100,
	}
}

// withDefaults fills a zero Config with DefaultConfig. Otherwise only a
// non-positive TargetSize or negative Overlap and MinSize are replaced.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c == (Config{}) {
		return def
	}
	if c.TargetSize <= 0 {
		c.TargetSize = def.TargetSize
	}
	if c.Overlap < 0 {
		c.Overlap = def.Overlap
	}
	if c.MinSize < 0 {
		c.MinSize = def.MinSize
	}
	return c
}

// Process turns the raw per-section spans of one document into final chunks.
// Spans that fit the target size pass through unchanged; longer spans are
// split into sentences and greedily re-merged with a trailing-sentence
// overlap. ChunkIndex runs from 0 across the whole document.
func Process(raw []doctree.RawChunk, cfg Config) []doctree.Chunk {
	cfg = cfg.withDefaults()

	var chunks []doctree.Chunk
	for _, rc := range raw {
		if strings.TrimSpace(rc.Text) == "" {
			continue
		}
		for _, text := range splitText(rc.Text, cfg) {
			chunks = append(chunks, doctree.Chunk{
				ChunkIndex:         int64(len(chunks)),
				Text:               text,
				SectionTitle:       rc.SectionTitle,
				ParentSectionTitle: rc.ParentSectionTitle,
				Category:           rc.Category,
				PageNumber:         rc.PageNumber,
			})
		}
	}
	return chunks
}

// splitText breaks one span into chunk texts.
func splitText(text string, cfg Config) []string {
	if runeLen(text) <= cfg.TargetSize {
		return []string{text}
	}

	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		sentences = splitLoose(text)
	}
	sentences = cutLong(sentences, cfg.TargetSize)

	var result []string
	var buf []string
	seeded := 0 // leading sentences of buf carried over from the previous chunk

	for _, sent := range sentences {
		sentLen := runeLen(sent)
		if len(buf) > 0 && joinedLen(buf)+1+sentLen > cfg.TargetSize {
			if len(buf) > seeded {
				result = append(result, strings.Join(buf, " "))
			}
			buf = overlapTail(buf, cfg.Overlap)
			if joinedLen(buf)+1+sentLen > cfg.TargetSize+cfg.Overlap {
				buf = nil
			}
			seeded = len(buf)
		}
		buf = append(buf, sent)
	}

	if len(buf) > seeded {
		last := strings.Join(buf, " ")
		if runeLen(last) < cfg.MinSize && len(result) > 0 {
			result[len(result)-1] += " " + strings.Join(buf[seeded:], " ")
		} else {
			result = append(result, last)
		}
	}
	return result
}

// overlapTail returns the fewest trailing sentences of buf whose joined
// length reaches overlap, at least one unless overlap is disabled. The
// result is a fresh slice.
func overlapTail(buf []string, overlap int) []string {
	if overlap <= 0 {
		return nil
	}
	n := 0
	length := -1
	for i := len(buf) - 1; i >= 0; i-- {
		length += runeLen(buf[i]) + 1
		n++
		if length >= overlap {
			break
		}
	}
	tail := make([]string, n)
	copy(tail, buf[len(buf)-n:])
	return tail
}

// cutLong replaces every sentence longer than limit with pieces of at most
// limit characters, broken at whitespace. A single word longer than limit is
// cut mid-word.
func cutLong(sentences []string, limit int) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if runeLen(s) <= limit {
			out = append(out, s)
			continue
		}
		out = append(out, cutAtSpaces(s, limit)...)
	}
	return out
}

func cutAtSpaces(s string, limit int) []string {
	var (
		out    []string
		cur    []string
		curLen int
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur, curLen = nil, 0
		}
	}
	for _, w := range strings.Fields(s) {
		for runeLen(w) > limit {
			flush()
			r := []rune(w)
			out = append(out, string(r[:limit]))
			w = string(r[limit:])
		}
		wl := runeLen(w)
		if wl == 0 {
			continue
		}
		if curLen > 0 && curLen+1+wl > limit {
			flush()
		}
		if curLen > 0 {
			curLen++
		}
		cur = append(cur, w)
		curLen += wl
	}
	flush()
	return out
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += runeLen(p)
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
