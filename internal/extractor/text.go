package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"docAnalyzer/internal/model"
)

// TextExtractor 纯文本提取器
// 编码判定顺序: BOM > UTF-8 校验 > UTF-16 启发式 > EUC-KR > GBK > 有损兜底
// 走到传统编码之后的结果都会带上 encoding 不确定标记
type TextExtractor struct {
	maxFileSize int64
}

// NewTextExtractor 创建纯文本提取器，不限制文件大小
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// NewTextExtractorWithLimit 创建带文件大小上限的纯文本提取器
// maxFileSize <= 0 表示不限制
func NewTextExtractorWithLimit(maxFileSize int64) *TextExtractor {
	return &TextExtractor{maxFileSize: maxFileSize}
}

// Name 返回提取器名称
func (e *TextExtractor) Name() string {
	return "TextExtractor"
}

// Format 返回负责的格式
func (e *TextExtractor) Format() model.FormatKind {
	return model.FormatText
}

// Extract 提取纯文本文件
func (e *TextExtractor) Extract(ctx context.Context, path string) (*model.Document, error) {
	if err := checkpoint(ctx, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "获取文件信息", err)
	}
	if e.maxFileSize > 0 && info.Size() > e.maxFileSize {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "大小检查",
			fmt.Errorf("文件大小 %d 字节, 超过限制 %d 字节", info.Size(), e.maxFileSize))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "读取文件", err)
	}

	text, encodingName, uncertain := decodeText(content)

	// HTML 标记文本展平成可读文本
	if looksLikeHTML(path, text) {
		text = flattenHTML(text)
	}

	doc := model.NewDocument(path, model.FormatText)
	doc.Metadata[model.MetaEncoding] = encodingName
	if uncertain {
		doc.Metadata[model.MetaEncodingUncertain] = "true"
	}

	// 换页符切页；没有换页符就是单页文档
	doc.Pages = splitPages(text)

	if err := checkpoint(ctx, path); err != nil {
		return nil, err
	}
	return doc, nil
}

// splitPages 按换页符 (\f) 切分页面，统一换行符
func splitPages(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	parts := strings.Split(text, "\f")
	pages := make([]string, 0, len(parts))
	for _, p := range parts {
		pages = append(pages, strings.TrimRight(p, "\n"))
	}
	// 空文件也至少有一个空页，Pages 永不为 nil
	if len(pages) == 0 {
		pages = []string{""}
	}
	return pages
}

// ============================================================
// 编码判定
// ============================================================

// decodeText 检测并解码文本内容
// 返回: 解码结果, 编码名称, 是否不确定
func decodeText(content []byte) (string, string, bool) {
	// 1. BOM 裁决 (最可靠)
	if len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		return string(content[3:]), "utf-8", false
	}
	if len(content) >= 2 && content[0] == 0xFF && content[1] == 0xFE {
		return decodeUTF16(content[2:], false), "utf-16le", false
	}
	if len(content) >= 2 && content[0] == 0xFE && content[1] == 0xFF {
		return decodeUTF16(content[2:], true), "utf-16be", false
	}

	// 2. 严格 UTF-8 校验
	if utf8.Valid(content) {
		return string(content), "utf-8", false
	}

	// 3. 无 BOM 的 UTF-16 启发式 (ASCII 为主的文本零字节分布非常规律)
	if le, ok := sniffUTF16(content); ok {
		return decodeUTF16(content, !le), pickUTF16Name(le), true
	}

	// 4. EUC-KR 尝试 (韩文环境的常见传统编码)
	if decoded, ok := tryDecode(content, korean.EUCKR); ok {
		return decoded, "euc-kr", true
	}

	// 5. GBK 尝试
	if decoded, ok := tryDecode(content, simplifiedchinese.GBK); ok {
		return decoded, "gbk", true
	}

	// 6. 有损兜底：坏字节换成替换符，保证输出是合法 UTF-8
	return strings.ToValidUTF8(string(content), "�"), "unknown", true
}

// tryDecode 用指定编码解码，出现替换符说明编码不对
func tryDecode(content []byte, enc encoding.Encoding) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(content), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", false
	}
	return string(decoded), true
}

// sniffUTF16 通过零字节分布猜测无 BOM 的 UTF-16
// 返回: 是否小端, 是否命中
func sniffUTF16(content []byte) (bool, bool) {
	if len(content) < 8 {
		return false, false
	}
	checkLen := len(content)
	if checkLen > 512 {
		checkLen = 512
	}
	evenZeros, oddZeros := 0, 0
	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			if i%2 == 0 {
				evenZeros++
			} else {
				oddZeros++
			}
		}
	}
	half := checkLen / 2
	if oddZeros > half*3/5 && evenZeros < half/10 {
		return true, true // 小端: 低字节在前
	}
	if evenZeros > half*3/5 && oddZeros < half/10 {
		return false, true // 大端
	}
	return false, false
}

func pickUTF16Name(littleEndian bool) string {
	if littleEndian {
		return "utf-16le"
	}
	return "utf-16be"
}

// decodeUTF16 解码 UTF-16 字节流 (务实实现: 不组合代理对以外的扩展区字符)
func decodeUTF16(data []byte, bigEndian bool) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}

	var sb strings.Builder
	var pendingHigh rune
	for i := 0; i < len(data); i += 2 {
		var u rune
		if bigEndian {
			u = rune(data[i])<<8 | rune(data[i+1])
		} else {
			u = rune(data[i]) | rune(data[i+1])<<8
		}

		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			pendingHigh = u
		case u >= 0xDC00 && u <= 0xDFFF:
			if pendingHigh != 0 {
				sb.WriteRune(((pendingHigh - 0xD800) << 10) + (u - 0xDC00) + 0x10000)
				pendingHigh = 0
			}
		default:
			pendingHigh = 0
			sb.WriteRune(u)
		}
	}
	return sb.String()
}
