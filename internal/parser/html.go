package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser reads HTML full-text papers. Each h1..h6 starts a page and an
// outline entry; paragraph-like blocks become page text.
type HTMLParser struct{}

var htmlBoilerplate = "script, style, noscript, nav, header, footer, aside, form"

var headingAtoms = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3,
	atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Li: true, atom.Td: true, atom.Th: true,
	atom.Blockquote: true, atom.Figcaption: true, atom.Pre: true, atom.Dd: true,
}

func (p *HTMLParser) Parse(r io.Reader, filename string) (Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	gq := goquery.NewDocumentFromNode(root)
	gq.Find(htmlBoilerplate).Remove()

	b := newPageBuilder(trimExt(filename, ".html", ".htm"))
	if title := collapseSpace(gq.Find("title").First().Text()); title != "" {
		b.doc.title = title
	}

	scope := gq.Find("body").First()
	if scope.Length() == 0 {
		scope = gq.Selection
	}
	for _, n := range scope.Nodes {
		walkHTML(n, b)
	}
	return b.finish(), nil
}

func walkHTML(n *html.Node, b *pageBuilder) {
	if n.Type == html.ElementNode {
		if level, ok := headingAtoms[n.DataAtom]; ok {
			b.heading(level, collapseSpace(nodeText(n)))
			return
		}
		if blockAtoms[n.DataAtom] {
			b.text(collapseSpace(nodeText(n)))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, b)
	}
}

func nodeText(n *html.Node) string {
	return goquery.NewDocumentFromNode(n).Text()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
