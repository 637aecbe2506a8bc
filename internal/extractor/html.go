package extractor

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// looksLikeHTML 判断一个文本文件是否是 HTML 标记文本
// 扩展名命中或内容开头出现 html/doctype 标签都算
func looksLikeHTML(path, content string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}

	head := content
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = strings.ToLower(head)
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

// flattenHTML 把 HTML 标记文本展平成可读纯文本
func flattenHTML(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		// 解析失败就退化为简单的标签移除
		return stripTagsSimple(content)
	}

	var sb strings.Builder
	flattenNode(doc, &sb)
	return strings.TrimSpace(sb.String())
}

// flattenNode 递归提取节点文本，跳过脚本和样式
func flattenNode(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}

	if n.Type == html.ElementNode {
		if n.Data == "script" || n.Data == "style" {
			return
		}
		if isBlockElement(n.Data) {
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flattenNode(c, sb)
	}
}

// isBlockElement 块级元素后补换行，保持段落结构
func isBlockElement(tag string) bool {
	switch tag {
	case "div", "p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"table", "tr", "td", "th",
		"header", "footer", "section", "article":
		return true
	}
	return false
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripTagsSimple 正则兜底的标签移除
func stripTagsSimple(content string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(content, " "))
}
