package extractor

import (
	"encoding/binary"
	"strings"
)

// ============================================================
// HWP v5 记录层解析
// ============================================================

// HWP v5 的 BodyText 流由记录 (record) 序列组成
// 记录头是一个 uint32: tagID 占低 10 位，level 占中 10 位，size 占高 12 位
// size 为 0xFFF 时表示超长记录，真实长度跟在后面的 4 字节里
const (
	recordTagMask   = 0x3FF
	recordLevelMask = 0x3FF
	recordSizeMask  = 0xFFF

	// hwpTagParaText 段落正文记录 (HWPTAG_BEGIN + 51)
	hwpTagParaText = 0x010 + 51
)

// hwpRecord 单条记录
type hwpRecord struct {
	Tag   uint16
	Level uint16
	Data  []byte
}

// parseHWPRecords 解析记录序列
// 数据被截断时返回已解析出的部分，由调用方决定是否按 partial 处理
func parseHWPRecords(data []byte) ([]hwpRecord, bool) {
	var records []hwpRecord
	offset := 0

	for offset+4 <= len(data) {
		header := binary.LittleEndian.Uint32(data[offset:])
		offset += 4

		tag := uint16(header & recordTagMask)
		level := uint16((header >> 10) & recordLevelMask)
		size := int(header >> 20 & recordSizeMask)

		if size == recordSizeMask {
			// 超长记录：真实长度在扩展字段
			if offset+4 > len(data) {
				return records, false
			}
			size = int(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
		}

		if offset+size > len(data) {
			return records, false
		}

		records = append(records, hwpRecord{
			Tag:   tag,
			Level: level,
			Data:  data[offset : offset+size],
		})
		offset += size
	}

	return records, true
}

// decodeHWPParaText 解码 HWPTAG_PARA_TEXT 记录里的 UTF-16LE 正文
// 控制符分两类：字符控制符 (0, 10, 13, 24-31) 只占 1 个 WCHAR；
// 其余内联/扩展控制符 (1-9, 11-23) 占 8 个 WCHAR，后面跟着
// 7 个 WCHAR 的附加数据，必须整体跳过，否则附加数据会混进正文
func decodeHWPParaText(data []byte) string {
	var sb strings.Builder
	var pendingHigh rune

	i := 0
	for i+2 <= len(data) {
		ch := binary.LittleEndian.Uint16(data[i:])
		i += 2

		if ch < 32 {
			pendingHigh = 0
			switch {
			case ch == 0 || ch >= 24:
				// 单 WCHAR 字符控制符，不产生文本
			case ch == 10, ch == 13:
				sb.WriteByte('\n')
			case ch == 9:
				sb.WriteByte('\t')
				i += 14
			default:
				// 跳过 7 个附加 WCHAR
				i += 14
			}
			continue
		}

		u := rune(ch)
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

// sectionText 把一个 BodyText 区段的记录序列拼成纯文本
// 每条段落记录以换行结束
func sectionText(records []hwpRecord) string {
	var sb strings.Builder
	for _, rec := range records {
		if rec.Tag != hwpTagParaText {
			continue
		}
		text := decodeHWPParaText(rec.Data)
		sb.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
