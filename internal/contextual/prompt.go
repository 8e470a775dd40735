package contextual

import (
	"fmt"
	"strings"
)

// DocumentLimit is the number of characters of the paper sent with each
// request.
const DocumentLimit = 8000

const situatePrompt = `Here is the chunk we want to situate within the whole paper. Give a short succinct context (one or two sentences) to situate this chunk within the overall paper for the purposes of improving search retrieval of the chunk.

Rules:
- Mention the paper's subject and what this part of the paper does
- Do not repeat the chunk text
- Answer only with the succinct context and nothing else`

// BuildPrompt creates the full prompt for one chunk. The document text is cut
// to DocumentLimit runes.
func BuildPrompt(title, document, section, chunk string) string {
	var sb strings.Builder
	sb.WriteString("<document>\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n\n", title))
	sb.WriteString(headRunes(document, DocumentLimit))
	sb.WriteString("\n</document>\n\n")
	if section != "" {
		sb.WriteString(fmt.Sprintf("Section: %s\n", section))
	}
	sb.WriteString("<chunk>\n")
	sb.WriteString(chunk)
	sb.WriteString("\n</chunk>\n\n")
	sb.WriteString(situatePrompt)
	return sb.String()
}

func headRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
