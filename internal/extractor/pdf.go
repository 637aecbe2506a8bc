package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"docAnalyzer/internal/model"
)

// PDFExtractor 使用 ledongthuc/pdf 库进行纯文本提取
// 保留页边界：每个 PDF 页对应 Document.Pages 的一个元素
type PDFExtractor struct{}

// NewPDFExtractor 创建 PDF 提取器
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Name 返回提取器名称
func (e *PDFExtractor) Name() string {
	return "PDFExtractor"
}

// Format 返回负责的格式
func (e *PDFExtractor) Format() model.FormatKind {
	return model.FormatPDF
}

// Extract 提取 PDF 文本
// 加密且空口令解不开的文件返回 password-protected；
// 部分页解析失败返回 partial-content，任务整体判定为失败
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "打开文件", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "获取文件信息", err)
	}

	// NewReader 内部会用空口令尝试解密，失败即报 ErrInvalidPassword
	pdfReader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) || isPasswordError(err) {
			return nil, NewExtractionError(e.Name(), path, KindPasswordProtected, "解密", err)
		}
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "解析文件头", err)
	}

	totalPage := pdfReader.NumPage()
	doc := model.NewDocument(path, model.FormatPDF)
	doc.Metadata[model.MetaPageCount] = strconv.Itoa(totalPage)

	failedPages := 0
	for i := 1; i <= totalPage; i++ {
		// 页间取消检查点
		if err := checkpoint(ctx, path); err != nil {
			return nil, err
		}

		page := pdfReader.Page(i)
		if page.V.IsNull() {
			// 空白页或无内容页，保留占位维持页号对应
			doc.Pages = append(doc.Pages, "")
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			failedPages++
			doc.Pages = append(doc.Pages, "")
			continue
		}
		doc.Pages = append(doc.Pages, strings.TrimSpace(content))
	}

	if totalPage == 0 {
		doc.Pages = append(doc.Pages, "")
	}

	if failedPages > 0 {
		return nil, NewExtractionError(e.Name(), path, KindPartialContent, "提取页文本",
			fmt.Errorf("%d/%d 页解析失败", failedPages, totalPage))
	}

	return doc, nil
}

// isPasswordError 兜底判断库返回的加密相关错误
func isPasswordError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypted")
}
