package extractor

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/richardlehane/mscfb"

	"docAnalyzer/internal/model"
)

// HWP v5 文件是 OLE2 复合文档：
//   - FileHeader 流: 256 字节，含签名、版本号和属性位
//   - BodyText/Section0..N 流: 正文记录序列，属性位声明压缩时为 raw deflate
const (
	hwpSignature = "HWP Document File"

	hwpFlagCompressed = 0x01
	hwpFlagEncrypted  = 0x02

	hwpHeaderVersionOffset = 32
	hwpHeaderFlagsOffset   = 36
	hwpHeaderMinSize       = 40
)

// HWPExtractor 韩文字处理器 (HWP v5) 文本提取器
// 每个 BodyText 区段对应 Document.Pages 的一个元素
type HWPExtractor struct{}

// NewHWPExtractor 创建 HWP 提取器
func NewHWPExtractor() *HWPExtractor {
	return &HWPExtractor{}
}

// Name 返回提取器名称
func (e *HWPExtractor) Name() string {
	return "HWPExtractor"
}

// Format 返回负责的格式
func (e *HWPExtractor) Format() model.FormatKind {
	return model.FormatHWP
}

// Extract 提取 HWP 正文
// 签名或版本号不符直接报 corrupt-structure，决不输出乱码；
// 属性位声明加密时报 password-protected
func (e *HWPExtractor) Extract(ctx context.Context, path string) (*model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "打开文件", err)
	}
	defer f.Close()

	cfb, err := mscfb.New(f)
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "解析复合文档", err)
	}

	var headerData []byte
	sections := map[int][]byte{}

	for entry, err := cfb.Next(); err == nil; entry, err = cfb.Next() {
		switch {
		case entry.Name == "FileHeader":
			headerData = readStream(entry, 256)

		case strings.HasPrefix(entry.Name, "Section") && inBodyText(entry.Path):
			idx, convErr := strconv.Atoi(strings.TrimPrefix(entry.Name, "Section"))
			if convErr != nil {
				continue
			}
			sections[idx] = readStream(entry, entry.Size)
		}
	}

	compressed, err := e.checkHeader(path, headerData)
	if err != nil {
		return nil, err
	}

	doc := model.NewDocument(path, model.FormatHWP)
	if len(headerData) >= hwpHeaderVersionOffset+4 {
		version := binary.LittleEndian.Uint32(headerData[hwpHeaderVersionOffset:])
		doc.Metadata[model.MetaVersion] = formatHWPVersion(version)
	}

	// 区段按编号升序即阅读顺序
	indexes := make([]int, 0, len(sections))
	for idx := range sections {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	truncated := 0
	for _, idx := range indexes {
		// 区段间取消检查点
		if err := checkpoint(ctx, path); err != nil {
			return nil, err
		}

		data := sections[idx]
		if compressed {
			data, err = inflateRaw(data)
			if err != nil {
				return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "解压区段",
					fmt.Errorf("Section%d: %w", idx, err))
			}
		}

		records, complete := parseHWPRecords(data)
		if !complete {
			truncated++
		}
		doc.Pages = append(doc.Pages, sectionText(records))
	}

	if len(doc.Pages) == 0 {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "定位正文",
			fmt.Errorf("没有 BodyText 区段"))
	}
	doc.Metadata[model.MetaPageCount] = strconv.Itoa(len(doc.Pages))

	if truncated > 0 {
		return nil, NewExtractionError(e.Name(), path, KindPartialContent, "解析记录",
			fmt.Errorf("%d 个区段的记录流被截断", truncated))
	}

	return doc, nil
}

// checkHeader 校验 FileHeader 流，返回正文是否压缩
func (e *HWPExtractor) checkHeader(path string, headerData []byte) (bool, error) {
	if len(headerData) < hwpHeaderMinSize {
		return false, NewExtractionError(e.Name(), path, KindCorruptStructure, "读取文件头",
			fmt.Errorf("FileHeader 流缺失或过短"))
	}

	signature := strings.TrimRight(string(headerData[:32]), "\x00")
	if signature != hwpSignature {
		return false, NewExtractionError(e.Name(), path, KindCorruptStructure, "校验签名",
			fmt.Errorf("签名不符: %q", signature))
	}

	version := binary.LittleEndian.Uint32(headerData[hwpHeaderVersionOffset:])
	if major := byte(version >> 24); major != 5 {
		return false, NewExtractionError(e.Name(), path, KindCorruptStructure, "校验版本",
			fmt.Errorf("不支持的主版本号: %d", major))
	}

	flags := binary.LittleEndian.Uint32(headerData[hwpHeaderFlagsOffset:])
	if flags&hwpFlagEncrypted != 0 {
		return false, NewExtractionError(e.Name(), path, KindPasswordProtected, "校验属性",
			fmt.Errorf("文档已加密"))
	}

	return flags&hwpFlagCompressed != 0, nil
}

// readStream 读出复合文档流的内容，最多 limit 字节
func readStream(r io.Reader, limit int64) []byte {
	if limit <= 0 {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return data
	}
	return data
}

// inflateRaw 解压 raw deflate 数据 (HWP 的压缩流没有 zlib 头)
func inflateRaw(data []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

// inBodyText 判断流是否在 BodyText 存储下
func inBodyText(path []string) bool {
	for _, p := range path {
		if p == "BodyText" {
			return true
		}
	}
	return false
}

// formatHWPVersion 版本号 DWORD 转 MM.nn.PP.rr 形式
func formatHWPVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
