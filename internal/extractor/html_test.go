package extractor

import (
	"context"
	"strings"
	"testing"
)

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    bool
	}{
		{"html 扩展名", "page.html", "whatever", true},
		{"htm 扩展名", "page.htm", "whatever", true},
		{"doctype 开头", "page.txt", "<!DOCTYPE html><body>x</body>", true},
		{"html 标签开头", "page.txt", "  <html><head></head></html>", true},
		{"普通文本", "note.txt", "just plain text", false},
		{"提到标签但不是开头区", "note.txt", strings.Repeat("x", 2000) + "<html>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeHTML(tt.path, tt.content); got != tt.want {
				t.Errorf("looksLikeHTML(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFlattenHTML(t *testing.T) {
	input := `<!DOCTYPE html>
<html><head><title>t</title><style>body { color: red }</style></head>
<body>
<h1>제목</h1>
<p>first paragraph</p>
<script>var x = "should not appear";</script>
<p>second paragraph</p>
</body></html>`

	got := flattenHTML(input)

	for _, want := range []string{"제목", "first paragraph", "second paragraph"} {
		if !strings.Contains(got, want) {
			t.Errorf("flattenHTML() missing %q in %q", want, got)
		}
	}
	for _, banned := range []string{"should not appear", "color: red", "<p>"} {
		if strings.Contains(got, banned) {
			t.Errorf("flattenHTML() leaked %q", banned)
		}
	}
}

func TestStripTagsSimple(t *testing.T) {
	got := stripTagsSimple("<p>hello <b>world</b></p>")
	if !strings.Contains(got, "hello") || !strings.Contains(got, "world") {
		t.Errorf("stripTagsSimple() = %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("stripTagsSimple() left tags: %q", got)
	}
}

func TestTextExtractor_HTMLFile(t *testing.T) {
	path := writeTempFile(t, "page.html", []byte("<html><body><p>visible text</p></body></html>"))

	e := NewTextExtractor()
	doc, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if !strings.Contains(doc.Text(), "visible text") {
		t.Errorf("Text() = %q", doc.Text())
	}
	if strings.Contains(doc.Text(), "<p>") {
		t.Error("HTML tags should be stripped")
	}
}
