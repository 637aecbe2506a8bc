// Package analyzer 对提取出的文档做纯函数式分析
// 不做任何 IO，相同输入永远得到相同输出，输入文档不会被修改
package analyzer

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"docAnalyzer/internal/model"
)

// defaultContextRadius 模式命中上下文片段的默认半径 (字符数)
const defaultContextRadius = 100

// ==========================================
// 分析选项
// ==========================================

// Options 分析选项
type Options struct {
	// Keyword 要定位的关键词，空串表示不做关键词检索
	Keyword string
	// CaseSensitive 关键词是否区分大小写，默认不区分
	CaseSensitive bool
	// Patterns 要检测的命名模式，按切片顺序即优先级，先命中者占据文本范围
	Patterns []Pattern
	// ContextRadius 模式命中上下文片段半径 (字符数)，0 表示用默认值
	ContextRadius int
}

// Pattern 命名的正则模式
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

// NewPattern 编译一个命名模式
// 表达式不合法时返回错误，决不静默吞掉用户的自定义模式
func NewPattern(name, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Name: name, re: re}, nil
}

// MustPattern 编译内置模式，表达式错误直接 panic
func MustPattern(name, expr string) Pattern {
	return Pattern{Name: name, re: regexp.MustCompile(expr)}
}

// BuiltinPatterns 返回内置的个人信息模式表
// 顺序就是优先级：法定重要度高、格式明确的在前
func BuiltinPatterns() []Pattern {
	return []Pattern{
		MustPattern("resident-registration-number", `\b\d{6}-[1-4]\d{6}\b`),
		MustPattern("card-number", `\b\d{4}-\d{4}-\d{4}-\d{4}\b`),
		MustPattern("mobile-phone", `\b01[016789]-\d{3,4}-\d{4}\b`),
		MustPattern("phone", `\b0\d{1,2}-\d{3,4}-\d{4}\b`),
		MustPattern("email", `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		MustPattern("ip-address", `\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	}
}

// ==========================================
// 分析结果
// ==========================================

// Match 关键词命中位置
type Match struct {
	// Page 页号，从 1 开始
	Page int
	// Offset 页内字符偏移 (按 rune 计)
	Offset int
}

// PatternMatch 模式命中
type PatternMatch struct {
	// Pattern 命中的模式名
	Pattern string
	// Page 页号，从 1 开始
	Page int
	// Start / End 页内字节偏移区间 [Start, End)
	Start int
	End   int
	// Value 命中的原文
	Value string
	// Context 命中位置前后的上下文片段，换行已替换成空格
	Context string
}

// Result 分析结果
type Result struct {
	SourcePath string
	Format     model.FormatKind
	PageCount  int
	WordCount  int
	CharCount  int
	// KeywordMatches 关键词命中，按阅读顺序 (页号升序、页内偏移升序)
	KeywordMatches []Match
	// PatternMatches 模式命中，同页内按优先级去重后的结果，按阅读顺序排列
	PatternMatches []PatternMatch
}

// ==========================================
// 分析入口
// ==========================================

// Analyze 分析文档
func Analyze(doc *model.Document, opts Options) Result {
	result := Result{
		SourcePath: doc.SourcePath,
		Format:     doc.Format,
		PageCount:  doc.PageCount(),
	}

	for _, page := range doc.Pages {
		result.WordCount += len(strings.Fields(page))
		result.CharCount += utf8.RuneCountInString(page)
	}

	if opts.Keyword != "" {
		result.KeywordMatches = findKeyword(doc.Pages, opts.Keyword, opts.CaseSensitive)
	}

	if len(opts.Patterns) > 0 {
		radius := opts.ContextRadius
		if radius <= 0 {
			radius = defaultContextRadius
		}
		result.PatternMatches = findPatterns(doc.Pages, opts.Patterns, radius)
	}

	return result
}

// findKeyword 非重叠关键词检索
// 命中之后从词尾继续，同一段文本不会产生互相重叠的命中
func findKeyword(pages []string, keyword string, caseSensitive bool) []Match {
	needle := keyword
	if !caseSensitive {
		needle = strings.ToLower(keyword)
	}

	var matches []Match
	for pageIdx, page := range pages {
		haystack := page
		if !caseSensitive {
			haystack = strings.ToLower(page)
		}

		offset := 0
		for {
			idx := strings.Index(haystack[offset:], needle)
			if idx < 0 {
				break
			}
			at := offset + idx
			matches = append(matches, Match{
				Page:   pageIdx + 1,
				Offset: utf8.RuneCountInString(haystack[:at]),
			})
			offset = at + len(needle)
		}
	}
	return matches
}

// findPatterns 命名模式检测
// 同一页内先命中的高优先级模式占据文本范围，与之重叠的后续命中被丢弃
func findPatterns(pages []string, patterns []Pattern, radius int) []PatternMatch {
	var all []PatternMatch

	for pageIdx, page := range pages {
		var taken [][2]int
		var pageMatches []PatternMatch

		for _, p := range patterns {
			for _, loc := range p.re.FindAllStringIndex(page, -1) {
				start, end := loc[0], loc[1]
				if overlapsAny(taken, start, end) {
					continue
				}
				taken = append(taken, [2]int{start, end})
				pageMatches = append(pageMatches, PatternMatch{
					Pattern: p.Name,
					Page:    pageIdx + 1,
					Start:   start,
					End:     end,
					Value:   page[start:end],
					Context: contextSnippet(page, start, end, radius),
				})
			}
		}

		// 页内按偏移恢复阅读顺序
		sort.Slice(pageMatches, func(i, j int) bool {
			return pageMatches[i].Start < pageMatches[j].Start
		})
		all = append(all, pageMatches...)
	}
	return all
}

// overlapsAny 判断 [start, end) 是否与已占据的范围重叠
func overlapsAny(taken [][2]int, start, end int) bool {
	for _, r := range taken {
		if start < r[1] && r[0] < end {
			return true
		}
	}
	return false
}

// contextSnippet 截取命中位置前后的上下文，贴齐 rune 边界
func contextSnippet(text string, start, end, radius int) string {
	ctxStart := start - radius
	if ctxStart < 0 {
		ctxStart = 0
	}
	for ctxStart > 0 && !utf8.RuneStart(text[ctxStart]) {
		ctxStart--
	}

	ctxEnd := end + radius
	if ctxEnd > len(text) {
		ctxEnd = len(text)
	}
	for ctxEnd < len(text) && !utf8.RuneStart(text[ctxEnd]) {
		ctxEnd++
	}

	return strings.ReplaceAll(text[ctxStart:ctxEnd], "\n", " ")
}
