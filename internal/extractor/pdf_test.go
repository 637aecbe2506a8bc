package extractor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestPDFExtractor_CorruptStructure(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"有魔数但没有交叉引用表", []byte("%PDF-1.7\nthis is not a real pdf body")},
		{"完全不是PDF", []byte("random bytes")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "broken.pdf", tt.content)
			doc, err := NewPDFExtractor().Extract(context.Background(), path)
			if doc != nil {
				t.Error("Corrupt file must not yield a document")
			}
			if ErrorKindOf(err) != KindCorruptStructure {
				t.Errorf("Expected corrupt-structure, got %v", err)
			}
		})
	}
}

func TestPDFExtractor_MissingFile(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	if ErrorKindOf(err) != KindCorruptStructure {
		t.Errorf("Expected corrupt-structure for missing file, got %v", err)
	}
}

func TestIsPasswordError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"密码错误消息", errors.New("encrypted PDF: invalid password"), true},
		{"加密相关消息", errors.New("unsupported encrypted document"), true},
		{"普通解析错误", errors.New("malformed xref table"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPasswordError(tt.err); got != tt.want {
				t.Errorf("isPasswordError() = %v, want %v", got, tt.want)
			}
		})
	}
}
