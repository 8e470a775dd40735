package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// maxOutlineItems bounds the bookmark walk; malformed files can contain
// Next chains that loop back on themselves.
const maxOutlineItems = 5000

var objRefRe = regexp.MustCompile(`(\d+) (\d+) R`)

// readOutline walks /Root/Outlines and resolves each bookmark to a 1-based
// page number. The library resolves references transparently, so page
// identity is recovered from the unresolved "N G R" form printed by
// Value.String on the enclosing array.
func readOutline(reader *pdflib.Reader) (entries []OutlineEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries = nil
			err = fmt.Errorf("read outline: %v", r)
		}
	}()

	root := reader.Trailer().Key("Root")
	outlines := root.Key("Outlines")
	if outlines.IsNull() {
		return nil, nil
	}

	pages := pageRefIndex(root.Key("Pages"))

	type frame struct {
		item  pdflib.Value
		level int
	}
	stack := []frame{{item: outlines.Key("First"), level: 1}}
	visited := 0

	// Depth-first over First/Next links, emitting in document order.
	for len(stack) > 0 && visited < maxOutlineItems {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.item.IsNull() {
			continue
		}
		visited++

		title := strings.TrimSpace(f.item.Key("Title").Text())
		page := resolveDestPage(root, destOf(f.item), pages)
		if title != "" {
			entries = append(entries, OutlineEntry{Level: f.level, Title: title, Page: page})
		}

		// Next sibling is visited after the whole subtree of this item.
		stack = append(stack, frame{item: f.item.Key("Next"), level: f.level})
		stack = append(stack, frame{item: f.item.Key("First"), level: f.level + 1})
	}
	return entries, nil
}

func destOf(item pdflib.Value) pdflib.Value {
	if d := item.Key("Dest"); !d.IsNull() {
		return d
	}
	action := item.Key("A")
	if action.IsNull() {
		return pdflib.Value{}
	}
	if s := action.Key("S").Name(); s != "" && s != "GoTo" {
		return pdflib.Value{}
	}
	return action.Key("D")
}

// resolveDestPage returns the 1-based page of an explicit or named destination,
// or 0 when it cannot be resolved.
func resolveDestPage(root, dest pdflib.Value, pages map[string]int) int {
	switch dest.Kind() {
	case pdflib.Name:
		return resolveDestPage(root, root.Key("Dests").Key(dest.Name()), pages)
	case pdflib.String:
		if named := lookupNameTree(root.Key("Names").Key("Dests"), dest.RawString(), 0); !named.IsNull() {
			return resolveDestPage(root, named, pages)
		}
		return 0
	case pdflib.Dict:
		return resolveDestPage(root, dest.Key("D"), pages)
	case pdflib.Array:
		if dest.Len() == 0 {
			return 0
		}
		first := dest.Index(0)
		if first.Kind() == pdflib.Integer {
			// Remote-style destination: 0-based page index.
			return int(first.Int64()) + 1
		}
		refs := parseObjRefs(dest.String())
		if len(refs) > 0 && strings.HasPrefix(strings.TrimPrefix(dest.String(), "["), refs[0]) {
			return pages[refs[0]]
		}
	}
	return 0
}

func lookupNameTree(node pdflib.Value, key string, depth int) pdflib.Value {
	if node.IsNull() || depth > 32 {
		return pdflib.Value{}
	}
	names := node.Key("Names")
	for i := 0; i+1 < names.Len(); i += 2 {
		if names.Index(i).RawString() == key {
			return names.Index(i + 1)
		}
	}
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		limits := kid.Key("Limits")
		if limits.Len() == 2 {
			lo, hi := limits.Index(0).RawString(), limits.Index(1).RawString()
			if key < lo || key > hi {
				continue
			}
		}
		if v := lookupNameTree(kid, key, depth+1); !v.IsNull() {
			return v
		}
	}
	return pdflib.Value{}
}

// pageRefIndex maps "id gen" object references of page objects to 1-based page numbers.
func pageRefIndex(pagesRoot pdflib.Value) map[string]int {
	index := make(map[string]int)
	next := 1

	type frame struct {
		node pdflib.Value
		kid  int
		refs []string
	}
	stack := []frame{{node: pagesRoot, refs: parseObjRefs(pagesRoot.Key("Kids").String())}}

	for len(stack) > 0 && len(stack) < 64 {
		top := &stack[len(stack)-1]
		kids := top.node.Key("Kids")
		if top.kid >= kids.Len() {
			stack = stack[:len(stack)-1]
			continue
		}
		i := top.kid
		top.kid++

		kid := kids.Index(i)
		switch kid.Key("Type").Name() {
		case "Pages":
			stack = append(stack, frame{node: kid, refs: parseObjRefs(kid.Key("Kids").String())})
		default:
			if i < len(top.refs) {
				index[top.refs[i]] = next
			}
			next++
		}
	}
	return index
}

// parseObjRefs extracts "id gen" pairs from a printed PDF array such as "[3 0 R 7 0 R]".
func parseObjRefs(s string) []string {
	matches := objRefRe.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id, err1 := strconv.Atoi(m[1])
		gen, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%d %d", id, gen))
	}
	return out
}
