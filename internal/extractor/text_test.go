package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"docAnalyzer/internal/model"
)

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return path
}

// ============================================================
// 编码判定测试
// ============================================================

func TestDecodeText(t *testing.T) {
	// "안녕" 的 EUC-KR 编码
	eucKR := []byte{0xBE, 0xC8, 0xB3, 0xE7}
	// GBK 专属区字节 (尾字节 0x40 不是合法的 EUC-KR 序列)
	gbk := []byte{0x81, 0x40}

	tests := []struct {
		name          string
		content       []byte
		wantText      string
		wantEncoding  string
		wantUncertain bool
	}{
		{
			name:          "UTF8无BOM",
			content:       []byte("hello 世界"),
			wantText:      "hello 世界",
			wantEncoding:  "utf-8",
			wantUncertain: false,
		},
		{
			name:          "UTF8带BOM",
			content:       append([]byte{0xEF, 0xBB, 0xBF}, []byte("content")...),
			wantText:      "content",
			wantEncoding:  "utf-8",
			wantUncertain: false,
		},
		{
			name:          "UTF16LE带BOM",
			content:       []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00},
			wantText:      "hi",
			wantEncoding:  "utf-16le",
			wantUncertain: false,
		},
		{
			name:          "UTF16BE带BOM",
			content:       []byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'},
			wantText:      "hi",
			wantEncoding:  "utf-16be",
			wantUncertain: false,
		},
		{
			name:          "EUC-KR回退",
			content:       eucKR,
			wantText:      "안녕",
			wantEncoding:  "euc-kr",
			wantUncertain: true,
		},
		{
			name:          "GBK回退",
			content:       gbk,
			wantText:      "丂",
			wantEncoding:  "gbk",
			wantUncertain: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, enc, uncertain := decodeText(tt.content)
			if text != tt.wantText {
				t.Errorf("decodeText() text = %q, want %q", text, tt.wantText)
			}
			if enc != tt.wantEncoding {
				t.Errorf("decodeText() encoding = %q, want %q", enc, tt.wantEncoding)
			}
			if uncertain != tt.wantUncertain {
				t.Errorf("decodeText() uncertain = %v, want %v", uncertain, tt.wantUncertain)
			}
		})
	}
}

// GBK 字节有可能恰好也是合法的 EUC-KR 序列，编码判定必须明确标记不确定性
func TestDecodeText_AmbiguousLegacyAlwaysUncertain(t *testing.T) {
	content := []byte{0xB0, 0xA1, 0xB0, 0xA2, 0xB0, 0xA3}
	_, enc, uncertain := decodeText(content)
	if !uncertain {
		t.Errorf("Legacy encoding fallback must be flagged uncertain, got encoding=%q uncertain=false", enc)
	}
}

// ============================================================
// 分页测试
// ============================================================

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"无换页符单页", "line1\nline2", []string{"line1\nline2"}},
		{"换页符切页", "page one\fpage two\fpage three", []string{"page one", "page two", "page three"}},
		{"CRLF统一", "a\r\nb\r\n", []string{"a\nb"}},
		{"空文本单空页", "", []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitPages(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("splitPages() = %d pages, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("page[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// ============================================================
// Extract 整体测试
// ============================================================

func TestTextExtractor_Extract(t *testing.T) {
	e := NewTextExtractor()
	path := writeTempFile(t, "doc.txt", []byte("first page\fsecond page"))

	doc, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}

	if doc.Format != model.FormatText {
		t.Errorf("Format = %v, want %v", doc.Format, model.FormatText)
	}
	if doc.SourcePath != path {
		t.Errorf("SourcePath = %q, want %q", doc.SourcePath, path)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount() = %d, want 2", doc.PageCount())
	}
	if doc.Pages[0] != "first page" || doc.Pages[1] != "second page" {
		t.Errorf("Pages = %v", doc.Pages)
	}
	if doc.EncodingUncertain() {
		t.Error("UTF-8 content should not be flagged encoding-uncertain")
	}
	if doc.ExtractedAt.IsZero() {
		t.Error("ExtractedAt should be set")
	}
}

func TestTextExtractor_EUCKRFlagsUncertain(t *testing.T) {
	e := NewTextExtractor()
	// EUC-KR 编码的 "안녕하세요"
	content := []byte{0xBE, 0xC8, 0xB3, 0xE7, 0xC7, 0xCF, 0xBC, 0xBC, 0xBF, 0xE4}
	path := writeTempFile(t, "korean.txt", content)

	doc, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}

	if !doc.EncodingUncertain() {
		t.Error("EUC-KR content must succeed with encoding-uncertain flag set")
	}
	if doc.Metadata[model.MetaEncoding] != "euc-kr" {
		t.Errorf("Encoding metadata = %q, want euc-kr", doc.Metadata[model.MetaEncoding])
	}
	if doc.Pages[0] != "안녕하세요" {
		t.Errorf("Decoded text = %q", doc.Pages[0])
	}
}

func TestTextExtractor_Cancelled(t *testing.T) {
	e := NewTextExtractor()
	path := writeTempFile(t, "doc.txt", []byte("content"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := e.Extract(ctx, path)
	if doc != nil {
		t.Error("Cancelled extraction must not return a document")
	}
	if !IsCancellation(err) {
		t.Errorf("Expected CancellationError, got %T: %v", err, err)
	}
}

func TestTextExtractor_MissingFile(t *testing.T) {
	e := NewTextExtractor()
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	if ErrorKindOf(err) != KindCorruptStructure {
		t.Errorf("Expected corrupt-structure kind, got %v", err)
	}
}

// 所有解码尝试都失败时兜底输出必须是合法 UTF-8，坏字节换成替换符
func TestDecodeText_LossyFallbackYieldsValidUTF8(t *testing.T) {
	// 0xFF 不是 UTF-8/EUC-KR/GBK 的合法前导字节
	content := []byte{'h', 'i', 0xFF, 0xFF, 'x'}

	got, encodingName, uncertain := decodeText(content)
	if encodingName != "unknown" || !uncertain {
		t.Fatalf("decodeText() = (%q, %v), want (unknown, true)", encodingName, uncertain)
	}
	if !utf8.ValidString(got) {
		t.Errorf("Fallback output is not valid UTF-8: %q", got)
	}
	if !strings.Contains(got, "�") {
		t.Errorf("Bad bytes should become replacement characters: %q", got)
	}
	if !strings.HasPrefix(got, "hi") || !strings.HasSuffix(got, "x") {
		t.Errorf("Valid bytes must be preserved: %q", got)
	}
}

func TestTextExtractor_SizeLimit(t *testing.T) {
	path := writeTempFile(t, "big.txt", []byte("0123456789"))

	e := NewTextExtractorWithLimit(4)
	if _, err := e.Extract(context.Background(), path); err == nil {
		t.Fatal("Oversized file must be rejected")
	}

	// 限额为 0 不限制
	e = NewTextExtractorWithLimit(0)
	if _, err := e.Extract(context.Background(), path); err != nil {
		t.Fatalf("Unlimited extractor failed: %v", err)
	}
}
