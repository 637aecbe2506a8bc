package extractor

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"docAnalyzer/internal/model"
)

// DOCXExtractor OOXML (docx) 文本提取器
// docx 本质是 ZIP 容器，正文在 word/document.xml，元数据在 docProps/core.xml
// 页边界按渲染分页符 (lastRenderedPageBreak) 和显式分页符 (w:br type="page") 切分
type DOCXExtractor struct{}

// NewDOCXExtractor 创建 DOCX 提取器
func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

// Name 返回提取器名称
func (e *DOCXExtractor) Name() string {
	return "DOCXExtractor"
}

// Format 返回负责的格式
func (e *DOCXExtractor) Format() model.FormatKind {
	return model.FormatDOCX
}

// Extract 提取 DOCX 文本
func (e *DOCXExtractor) Extract(ctx context.Context, path string) (*model.Document, error) {
	if err := checkpoint(ctx, path); err != nil {
		return nil, err
	}

	zipReader, err := zip.OpenReader(path)
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "打开ZIP容器", err)
	}
	defer zipReader.Close()

	doc := model.NewDocument(path, model.FormatDOCX)

	var bodyFile *zip.File
	for _, f := range zipReader.File {
		switch f.Name {
		case "word/document.xml":
			bodyFile = f
		case "docProps/core.xml":
			// 元数据解析失败不影响正文提取
			if err := e.readCoreProps(f, doc); err != nil {
				continue
			}
		}
	}

	if bodyFile == nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "定位正文",
			fmt.Errorf("缺少 word/document.xml"))
	}

	rc, err := bodyFile.Open()
	if err != nil {
		return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "打开正文流", err)
	}
	defer rc.Close()

	pages, err := e.parseBody(ctx, path, rc)
	if err != nil {
		return nil, err
	}

	doc.Pages = pages
	doc.Metadata[model.MetaPageCount] = strconv.Itoa(len(pages))
	return doc, nil
}

// parseBody 流式解析 word/document.xml
// 只收集 <w:t> 里的字符数据；段落结束补换行；分页符切新页
func (e *DOCXExtractor) parseBody(ctx context.Context, path string, r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var pages []string
	var current strings.Builder
	inText := false
	paragraphs := 0

	flushPage := func() {
		pages = append(pages, strings.TrimRight(current.String(), "\n"))
		current.Reset()
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewExtractionError(e.Name(), path, KindCorruptStructure, "解析正文XML", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				if xmlAttr(t, "type") == "page" {
					flushPage()
				}
			case "lastRenderedPageBreak":
				flushPage()
			case "tab":
				current.WriteByte('\t')
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				current.WriteByte('\n')
				paragraphs++
				// 段落粒度的取消检查点
				if paragraphs%64 == 0 {
					if err := checkpoint(ctx, path); err != nil {
						return nil, err
					}
				}
			}

		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	// 收尾：最后一页 (没有分页符的文档就是单页)
	flushPage()
	return pages, nil
}

// readCoreProps 读取 docProps/core.xml 里的标题和作者
func (e *DOCXExtractor) readCoreProps(f *zip.File, doc *model.Document) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(io.LimitReader(rc, 64*1024))
	var field string
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "title", "creator":
				field = t.Name.Local
			default:
				field = ""
			}
		case xml.CharData:
			value := strings.TrimSpace(string(t))
			if value == "" {
				continue
			}
			switch field {
			case "title":
				doc.Metadata[model.MetaTitle] = value
			case "creator":
				doc.Metadata[model.MetaAuthor] = value
			}
		case xml.EndElement:
			field = ""
		}
	}
	return nil
}

// xmlAttr 取出元素上指定名称的属性值
func xmlAttr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
