package markdown

import (
	"strings"
	"testing"
)

func TestOutline(t *testing.T) {
	src := `# Collaboration Report: Acme & Globex

Intro text.

## Market **Overview**

- item

### Next Steps
`
	got := Outline(src)
	want := []Heading{
		{Level: 1, Text: "Collaboration Report: Acme & Globex"},
		{Level: 2, Text: "Market Overview"},
		{Level: 3, Text: "Next Steps"},
	}

	if len(got) != len(want) {
		t.Fatalf("Outline() returned %d headings, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Outline()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCountHeadings_PlainText(t *testing.T) {
	if n := CountHeadings("no headings here\njust # text"); n != 0 {
		t.Errorf("CountHeadings() = %d, want 0", n)
	}
}

func TestToHTML(t *testing.T) {
	out, err := ToHTML("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	if !strings.Contains(out, "<h1>Title</h1>") {
		t.Errorf("missing heading in %q", out)
	}
	if !strings.Contains(out, "<table>") {
		t.Errorf("GFM table not rendered in %q", out)
	}
}

func TestToHTMLDocument_EscapesTitle(t *testing.T) {
	out, err := ToHTMLDocument("Acme & <Globex>", "text")
	if err != nil {
		t.Fatalf("ToHTMLDocument() error = %v", err)
	}
	if !strings.Contains(out, "<title>Acme &amp; &lt;Globex&gt;</title>") {
		t.Errorf("title not escaped: %q", out)
	}
	if !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Errorf("missing doctype: %q", out)
	}
}
