package parser

import (
	"errors"
	"strings"
	"testing"
)

func TestForFile_Extensions(t *testing.T) {
	for _, name := range []string{"a.pdf", "b.MD", "c.markdown", "d.html", "e.htm", "f.docx", "g.txt"} {
		if _, err := ForFile(name); err != nil {
			t.Errorf("ForFile(%q): unexpected error: %v", name, err)
		}
		if !IsSupportedExtension(name) {
			t.Errorf("IsSupportedExtension(%q): expected true", name)
		}
	}
	_, err := ForFile("sheet.csv")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for csv, got %v", err)
	}
}

func TestForContent_SniffsBeforeName(t *testing.T) {
	// HTML content type wins over a misleading extension.
	doc, err := ForContent("download.bin", "text/html; charset=utf-8",
		[]byte("<html><head><title>Paper</title></head><body><h2>Abstract</h2><p>Body.</p></body></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title() != "Paper" {
		t.Errorf("expected title %q, got %q", "Paper", doc.Title())
	}

	// Plain text falls back on content type when the name is unknown.
	doc, err = ForContent("x", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.NumPages() != 1 {
		t.Errorf("expected 1 page, got %d", doc.NumPages())
	}

	if _, err := ForContent("blob", "application/octet-stream", []byte{0x00, 0x01}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestHTMLParser_HeadingsBecomeOutline(t *testing.T) {
	input := `<html><head><title> A   Study </title></head><body>
<nav>skip me</nav>
<h1>A Study</h1>
<h2>Abstract</h2><p>We  study
things.</p>
<h2>1 Introduction</h2><p>First.</p><ul><li>point</li></ul>
<h3>1.1 Scope</h3><p>Scope text.</p>
<script>var x = 1;</script>
</body></html>`

	p := &HTMLParser{}
	doc, err := p.Parse(strings.NewReader(input), "study.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title() != "A Study" {
		t.Errorf("expected collapsed title, got %q", doc.Title())
	}
	outline, _ := doc.Outline()
	if len(outline) != 4 {
		t.Fatalf("expected 4 outline entries, got %d", len(outline))
	}
	if outline[3].Title != "1.1 Scope" || outline[3].Level != 3 || outline[3].Page != 4 {
		t.Errorf("unexpected entry %+v", outline[3])
	}
	page, _ := doc.PageText(1)
	if page != "Abstract\nWe study things." {
		t.Errorf("unexpected abstract page %q", page)
	}
	page, _ = doc.PageText(2)
	if !strings.Contains(page, "point") {
		t.Errorf("expected list item on page, got %q", page)
	}
	for i := 0; i < doc.NumPages(); i++ {
		text, _ := doc.PageText(i)
		if strings.Contains(text, "skip me") || strings.Contains(text, "var x") {
			t.Errorf("page %d contains non-content text: %q", i, text)
		}
	}
}

func TestParseObjRefs(t *testing.T) {
	got := parseObjRefs("[12 0 R /XYZ 0 792 0]")
	if len(got) != 1 || got[0] != "12 0" {
		t.Errorf("expected [12 0], got %v", got)
	}
	got = parseObjRefs("[3 0 R 4 0 R 10 1 R]")
	want := []string{"3 0", "4 0", "10 1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ref %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if got := parseObjRefs("[/Fit]"); len(got) != 0 {
		t.Errorf("expected no refs, got %v", got)
	}
}

func TestTrimExt_CaseInsensitive(t *testing.T) {
	if got := trimExt("Paper.DOCX", ".docx"); got != "Paper" {
		t.Errorf("expected %q, got %q", "Paper", got)
	}
}
