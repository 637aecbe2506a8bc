package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"docAnalyzer/internal/model"
)

// buildDOCX 在临时目录生成一个最小可用的 docx 文件
func buildDOCX(t *testing.T, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.docx")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write docx: %v", err)
	}
	return path
}

const docxBodyTwoPages = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>
    <w:p><w:r><w:t>still page one</w:t></w:r></w:p>
    <w:p><w:r><w:br w:type="page"/><w:t>page two text</w:t></w:r></w:p>
  </w:body>
</w:document>`

const docxCoreProps = `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
 xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>보고서</dc:title>
  <dc:creator>tester</dc:creator>
</cp:coreProperties>`

func TestDOCXExtractor_Extract(t *testing.T) {
	path := buildDOCX(t, map[string]string{
		"word/document.xml": docxBodyTwoPages,
		"docProps/core.xml": docxCoreProps,
	})

	e := NewDOCXExtractor()
	doc, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}

	if doc.Format != model.FormatDOCX {
		t.Errorf("Format = %v", doc.Format)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount() = %d, want 2 (explicit page break)", doc.PageCount())
	}
	if doc.Pages[0] != "hello world\nstill page one" {
		t.Errorf("page[0] = %q", doc.Pages[0])
	}
	if doc.Pages[1] != "page two text" {
		t.Errorf("page[1] = %q", doc.Pages[1])
	}
	if doc.Metadata[model.MetaTitle] != "보고서" {
		t.Errorf("title = %q", doc.Metadata[model.MetaTitle])
	}
	if doc.Metadata[model.MetaAuthor] != "tester" {
		t.Errorf("author = %q", doc.Metadata[model.MetaAuthor])
	}
}

func TestDOCXExtractor_SinglePageWithoutBreaks(t *testing.T) {
	path := buildDOCX(t, map[string]string{
		"word/document.xml": `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>only page</w:t></w:r></w:p></w:body></w:document>`,
	})

	doc, err := NewDOCXExtractor().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}
	if doc.PageCount() != 1 || doc.Pages[0] != "only page" {
		t.Errorf("Pages = %v", doc.Pages)
	}
}

func TestDOCXExtractor_CorruptStructure(t *testing.T) {
	t.Run("不是ZIP", func(t *testing.T) {
		path := writeTempFile(t, "fake.docx", []byte("this is not a zip archive"))
		_, err := NewDOCXExtractor().Extract(context.Background(), path)
		if ErrorKindOf(err) != KindCorruptStructure {
			t.Errorf("Expected corrupt-structure, got %v", err)
		}
	})

	t.Run("缺少正文流", func(t *testing.T) {
		path := buildDOCX(t, map[string]string{
			"word/styles.xml": "<styles/>",
		})
		_, err := NewDOCXExtractor().Extract(context.Background(), path)
		if ErrorKindOf(err) != KindCorruptStructure {
			t.Errorf("Expected corrupt-structure, got %v", err)
		}
	})
}

func TestDOCXExtractor_Cancelled(t *testing.T) {
	path := buildDOCX(t, map[string]string{
		"word/document.xml": docxBodyTwoPages,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := NewDOCXExtractor().Extract(ctx, path)
	if doc != nil {
		t.Error("Cancelled extraction must not return a document")
	}
	if !IsCancellation(err) {
		t.Errorf("Expected CancellationError, got %v", err)
	}
}
