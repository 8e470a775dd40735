package parser

import (
	"bytes"
	"fmt"
	"testing"
)

// outlinedPDF builds a two-page PDF whose bookmarks use an explicit
// destination, a named destination and a GoTo action.
func outlinedPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R /Outlines 5 0 R /Dests << /scope [4 0 R /Fit] >> >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Type /Outlines /First 6 0 R /Last 8 0 R /Count 3 >>",
		"<< /Title (1 Introduction) /Parent 5 0 R /Next 8 0 R /First 7 0 R /Last 7 0 R /Count 1 /Dest [3 0 R /XYZ 0 792 0] >>",
		"<< /Title (1.1 Scope) /Parent 6 0 R /Dest /scope >>",
		"<< /Title (2 Method) /Parent 5 0 R /Prev 6 0 R /A << /S /GoTo /D [4 0 R /Fit] >> >>",
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestPDFParser_NestedOutline(t *testing.T) {
	p := &PDFParser{}
	doc, err := p.Parse(bytes.NewReader(outlinedPDF()), "paper.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.NumPages() != 2 {
		t.Errorf("expected 2 pages, got %d", doc.NumPages())
	}

	outline, err := doc.Outline()
	if err != nil {
		t.Fatalf("unexpected outline error: %v", err)
	}
	want := []OutlineEntry{
		{Level: 1, Title: "1 Introduction", Page: 1},
		{Level: 2, Title: "1.1 Scope", Page: 2},
		{Level: 1, Title: "2 Method", Page: 2},
	}
	if len(outline) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(outline), outline)
	}
	for i := range want {
		if outline[i] != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], outline[i])
		}
	}
}

func TestPDFParser_NoOutline(t *testing.T) {
	// Blank the reference in place so xref offsets stay valid.
	ref := []byte("/Outlines 5 0 R ")
	data := bytes.Replace(outlinedPDF(), ref, bytes.Repeat([]byte(" "), len(ref)), 1)
	doc, err := (&PDFParser{}).Parse(bytes.NewReader(data), "paper.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outline, err := doc.Outline()
	if err != nil || len(outline) != 0 {
		t.Errorf("expected no outline, got %+v (err %v)", outline, err)
	}
}
