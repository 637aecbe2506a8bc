// Package model 定义文档解析的公共数据结构
package model

import (
	"strings"
	"time"
)

// ==========================================
// 文件格式枚举
// ==========================================

// FormatKind 支持的文档格式（封闭集合）
type FormatKind int

const (
	FormatUnknown FormatKind = iota // 未知格式
	FormatPDF                       // PDF 文档
	FormatDOCX                      // Microsoft Word 文档 (OOXML)
	FormatHWP                       // 韩文字处理器文档 (HWP v5)
	FormatText                      // 纯文本
)

// String 返回格式名称
func (k FormatKind) String() string {
	switch k {
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatHWP:
		return "hwp"
	case FormatText:
		return "text"
	default:
		return "unknown"
	}
}

// ==========================================
// 标准化文档模型
// ==========================================

// 元数据公共键名
const (
	MetaTitle             = "title"
	MetaAuthor            = "author"
	MetaPageCount         = "page_count"
	MetaEncoding          = "encoding"
	MetaEncodingUncertain = "encoding_uncertain" // "true" 表示编码检测不确定（有损解码）
	MetaVersion           = "version"
)

// Document 标准化提取结果
// 所有提取器的输出统一转换为该结构，供分析和展示层消费。
// Pages 永远非 nil；空文档允许长度为 0。
type Document struct {
	SourcePath  string            // 源文件路径
	Format      FormatKind        // 文档格式
	Pages       []string          // 按阅读顺序排列的页/节文本块
	Metadata    map[string]string // 元数据（尽力而为，允许缺键）
	ExtractedAt time.Time         // 提取时间
}

// NewDocument 创建标准化文档
func NewDocument(path string, format FormatKind) *Document {
	return &Document{
		SourcePath:  path,
		Format:      format,
		Pages:       make([]string, 0),
		Metadata:    make(map[string]string),
		ExtractedAt: time.Now(),
	}
}

// PageCount 返回页/节数量
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// Text 返回全文（页间以换行拼接）
func (d *Document) Text() string {
	return strings.Join(d.Pages, "\n")
}

// EncodingUncertain 编码检测是否不确定
func (d *Document) EncodingUncertain() bool {
	return d.Metadata[MetaEncodingUncertain] == "true"
}
