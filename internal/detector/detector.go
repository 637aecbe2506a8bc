// Package detector 负责识别输入文件的文档格式
// 识别策略：扩展名只是提示，文件头魔数才是裁决依据，两者冲突时以魔数为准
package detector

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"docAnalyzer/internal/config"
	"docAnalyzer/internal/metrics"
	"docAnalyzer/internal/model"
)

// sniffSize 格式探测读取的文件头字节数
// ZIP / OLE2 的内部结构标记通常出现在前几 KB，读太少会漏判子类型
const sniffSize = 8192

// ==========================================
// 魔数签名表
// ==========================================

var (
	magicPDF  = []byte("%PDF-")
	magicZIP  = []byte{0x50, 0x4B, 0x03, 0x04}
	magicOLE2 = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// ZIP 容器内部的 OOXML 结构标记 (本地文件头里的条目名明文可见)
var docxMarkers = [][]byte{
	[]byte("word/document.xml"),
	[]byte("[Content_Types].xml"),
	[]byte("word/"),
}

// OLE2 容器内部的 HWP 结构标记
// FileHeader 流以 "HWP Document File" 签名开头；目录项名是 UTF-16LE
var hwpMarkers = [][]byte{
	[]byte("HWP Document File"),
	utf16leBytes("FileHeader"),
	utf16leBytes("BodyText"),
}

// 扩展名提示表：仅在魔数无法裁决时参考
var extensionHints = map[string]model.FormatKind{
	".pdf":  model.FormatPDF,
	".docx": model.FormatDOCX,
	".hwp":  model.FormatHWP,
	".txt":  model.FormatText,
	".text": model.FormatText,
	".md":   model.FormatText,
	".log":  model.FormatText,
	".csv":  model.FormatText,
	".html": model.FormatText,
	".htm":  model.FormatText,
	".xml":  model.FormatText,
}

// ==========================================
// 对外接口
// ==========================================

// Detect 识别文件格式
// 返回 UnsupportedFormatError 的两种情况：
//   - unreadable: 文件打不开或读不了
//   - unknown-signature: 内容不属于任何受支持的格式 (包括空文件)
func Detect(path string) (model.FormatKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.FormatUnknown, newUnreadable(path, err)
	}
	defer f.Close()

	headerSize := sniffSize
	if cfgSize := config.Get().Extractor.SniffSize; cfgSize > 0 {
		headerSize = cfgSize
	}
	header := make([]byte, headerSize)
	n, err := f.Read(header)
	if err != nil && n == 0 {
		// 空文件 Read 返回 io.EOF：内容为空等于没有签名
		if errors.Is(err, io.EOF) {
			return model.FormatUnknown, newUnknownSignature(path)
		}
		return model.FormatUnknown, newUnreadable(path, err)
	}
	header = header[:n]
	if len(header) == 0 {
		return model.FormatUnknown, newUnknownSignature(path)
	}

	kind := DetectBytes(header, path)
	if kind == model.FormatUnknown {
		return model.FormatUnknown, newUnknownSignature(path)
	}

	metrics.Default().DetectionsTotal.WithLabelValues(kind.String()).Inc()
	return kind, nil
}

// DetectBytes 对已读出的文件头做格式裁决
// path 仅用于提取扩展名提示，可以传空字符串
func DetectBytes(header []byte, path string) model.FormatKind {
	// 步骤 1: 魔数裁决 (最可靠，覆盖扩展名提示)
	switch {
	case bytes.HasPrefix(header, magicPDF):
		return model.FormatPDF

	case bytes.HasPrefix(header, magicZIP):
		// ZIP 容器：进一步判断是不是 OOXML 文档
		if containsAny(header, docxMarkers) {
			return model.FormatDOCX
		}
		// 普通 ZIP 不是受支持的文档格式
		return model.FormatUnknown

	case bytes.HasPrefix(header, magicOLE2):
		// OLE2 复合文档：进一步判断是不是 HWP v5
		if containsAny(header, hwpMarkers) {
			return model.FormatHWP
		}
		// 旧版 DOC / XLS 等其它 OLE2 文档不受支持
		return model.FormatUnknown
	}

	// 步骤 2: 排除明确的二进制类别 (图片、压缩包等)
	if filetype.IsImage(header) || filetype.IsArchive(header) ||
		filetype.IsAudio(header) || filetype.IsVideo(header) {
		return model.FormatUnknown
	}

	// 步骤 3: 文本特征检测
	if isLikelyText(header) {
		return model.FormatText
	}

	// 步骤 4: 扩展名兜底——仅对文本类提示有效
	// 二进制格式丢了魔数说明文件已损坏，扩展名说什么都不能信
	ext := strings.ToLower(filepath.Ext(path))
	if hint, ok := extensionHints[ext]; ok && hint == model.FormatText {
		if isTextWithHighBytes(header) {
			return model.FormatText
		}
	}

	return model.FormatUnknown
}

// ==========================================
// 内部工具
// ==========================================

// isLikelyText 检查内容是否像文本
// 带 BOM 直接认定；无 BOM 时统计控制字符占比
func isLikelyText(data []byte) bool {
	if hasBOM(data) {
		return true
	}
	if isUTF16Pattern(data) {
		return true
	}

	checkLen := len(data)
	if checkLen > 1024 {
		checkLen = 1024
	}

	control := 0
	for i := 0; i < checkLen; i++ {
		b := data[i]
		if b == 0 {
			// NULL 字节基本等于二进制
			return false
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' && b != '\f' {
			control++
		}
	}
	return float64(control)/float64(checkLen) <= 0.1
}

// isTextWithHighBytes 比 isLikelyText 更宽容的文本判断
// 用于扩展名明确声明是文本的场景：允许任意高位字节 (EUC-KR / GBK 等传统编码)
func isTextWithHighBytes(data []byte) bool {
	checkLen := len(data)
	if checkLen > 1024 {
		checkLen = 1024
	}
	for i := 0; i < checkLen; i++ {
		b := data[i]
		if b == 0 {
			return false
		}
	}
	return true
}

// hasBOM 检查 UTF-8 / UTF-16 BOM 标记
func hasBOM(data []byte) bool {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return true
	}
	if len(data) >= 2 {
		if data[0] == 0xFF && data[1] == 0xFE {
			return true
		}
		if data[0] == 0xFE && data[1] == 0xFF {
			return true
		}
	}
	return false
}

// isUTF16Pattern 识别无 BOM 的 UTF-16 文本
// ASCII 为主的 UTF-16 文本每隔一个字节就是 0x00，统计奇偶位的零字节分布
func isUTF16Pattern(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	checkLen := len(data)
	if checkLen > 512 {
		checkLen = 512
	}
	evenZeros, oddZeros := 0, 0
	for i := 0; i < checkLen; i++ {
		if data[i] == 0 {
			if i%2 == 0 {
				evenZeros++
			} else {
				oddZeros++
			}
		}
	}
	half := checkLen / 2
	// 一侧的零字节占了将近一半，另一侧几乎没有
	return (oddZeros > half*3/5 && evenZeros < half/10) ||
		(evenZeros > half*3/5 && oddZeros < half/10)
}

func containsAny(data []byte, markers [][]byte) bool {
	for _, m := range markers {
		if bytes.Contains(data, m) {
			return true
		}
	}
	return false
}

func utf16leBytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		out = append(out, s[i], 0x00)
	}
	return out
}
