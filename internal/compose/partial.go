package compose

import (
	"encoding/json"
	"fmt"
)

// Partial 是一个页面内容片段：正文 HTML、标题以及离线降级标记。
// offline 只会由合成的离线片段置位，用于让页面外壳感知降级状态。
type Partial struct {
	Raw     string `json:"raw"`
	Title   string `json:"title"`
	Offline bool   `json:"offline,omitempty"`
}

// DecodeError 表示片段 JSON 不符合 schema，与网络失败严格区分。
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode partial %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodePartial 解析并校验片段 JSON。raw 字段缺失视为 schema 违例。
func DecodePartial(path string, body []byte) (Partial, error) {
	var probe struct {
		Raw     *string `json:"raw"`
		Title   string  `json:"title"`
		Offline bool    `json:"offline"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return Partial{}, &DecodeError{Path: path, Err: err}
	}
	if probe.Raw == nil {
		return Partial{}, &DecodeError{Path: path, Err: fmt.Errorf("missing required field %q", "raw")}
	}
	return Partial{Raw: *probe.Raw, Title: probe.Title, Offline: probe.Offline}, nil
}

// NotFoundPartial 是预缓存缺席时合成的 404 片段（开发模式兜底）。
func NotFoundPartial() Partial {
	return Partial{Raw: "<h1>Dev 404</h1>", Title: ""}
}

// OfflinePartial 是预缓存缺席时合成的离线片段（开发模式兜底）。
func OfflinePartial() Partial {
	return Partial{Raw: "<h1>Dev offline</h1>", Title: "", Offline: true}
}
