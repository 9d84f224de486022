package compose

import (
	"fmt"
	"html"
	"os"
	"strings"
)

// Marker 是页面模板中唯一的替换标记，由站点构建流程约定。
const Marker = "%_CONTENT_REPLACE_%"

// offlineMeta 注入页面头部，前端据此提示"当前为离线内容"。
const offlineMeta = `<meta name="offline" content="true">`

// Template 是外部供给的页面外壳：一段包含单个 Marker 的字符串。
// 它不是 Go 模板——内容对引擎完全不透明，引擎只做一次标记替换。
type Template struct {
	raw string
}

// NewTemplate 校验模板恰好包含一个替换标记。
func NewTemplate(raw string) (*Template, error) {
	switch strings.Count(raw, Marker) {
	case 0:
		return nil, fmt.Errorf("template missing marker %s", Marker)
	case 1:
		return &Template{raw: raw}, nil
	default:
		return nil, fmt.Errorf("template must contain marker %s exactly once", Marker)
	}
}

// LoadTemplate 从文件读取模板。
func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模板失败: %w", err)
	}
	return NewTemplate(string(raw))
}

// DefaultTemplate 返回开发模式下使用的最小页面外壳。
func DefaultTemplate() *Template {
	return &Template{raw: "<!doctype html><html><head></head><body>" + Marker + "</body></html>"}
}

// Render 将片段合并进模板：离线 meta（仅离线时）、转义后的 <title>、
// 原样的正文 HTML，按此顺序拼接后替换标记。
func (t *Template) Render(p Partial) []byte {
	var insert strings.Builder
	if p.Offline {
		insert.WriteString(offlineMeta)
	}
	insert.WriteString("<title>")
	insert.WriteString(html.EscapeString(p.Title))
	insert.WriteString("</title>")
	insert.WriteString(p.Raw)
	return []byte(strings.Replace(t.raw, Marker, insert.String(), 1))
}
