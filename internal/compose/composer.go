package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
	"github.com/page-hub/page-hub/internal/dispatch"
	"github.com/page-hub/page-hub/internal/precache"
	"github.com/page-hub/page-hub/internal/strategy"
)

// 兜底片段在预缓存索引中的固定路径。
const (
	notFoundFragmentPath = "/404/index.json"
	offlineFragmentPath  = "/offline/index.json"
)

// UpstreamStatusError 表示片段响应（包括替换后的兜底片段）状态非 2xx。
// 这一失败不再有下一层兜底，按原始行为继续向上传播。
type UpstreamStatusError struct {
	Path   string
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("fragment %s: unexpected upstream status %d", e.Path, e.Status)
}

// Composer 把逻辑内容路径组装成完整页面：经 Network-First 取片段 JSON，
// 404/网络失败分别降级到 not-found/离线片段，最终合并进页面模板。
type Composer struct {
	fragments strategy.Handler
	index     *precache.Index
	template  *Template
	logger    *logrus.Logger
}

// NewComposer 构造组合器。fragments 必须与 partial 路由共享同一个
// Network-First 实例，保证两条路径读写同一分区。
func NewComposer(fragments strategy.Handler, index *precache.Index, template *Template, logger *logrus.Logger) (*Composer, error) {
	if fragments == nil {
		return nil, errors.New("fragment handler required")
	}
	if index == nil {
		return nil, errors.New("precache index required")
	}
	if template == nil {
		return nil, errors.New("template required")
	}
	return &Composer{fragments: fragments, index: index, template: template, logger: logger}, nil
}

// Handle 实现 strategy.Handler，对内容页请求产出组装完成的 HTML。
func (c *Composer) Handle(ctx context.Context, req *http.Request) (*strategy.Response, error) {
	contentPath := contentPathOf(req.URL.Path)
	fragPath := contentPath + "index.json"

	fragURL := *req.URL
	fragURL.Path = fragPath
	fragURL.RawQuery = ""
	fragReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fragURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build fragment request %s: %w", fragPath, err)
	}

	status := http.StatusOK
	frag, fetchErr := c.fragments.Handle(ctx, fragReq)
	switch {
	case fetchErr != nil:
		// 网络失败：换用离线片段，对外状态保持 200——降级内容通过
		// offline 标记而非 HTTP 状态暴露，让页面外壳照常渲染。
		if c.logger != nil {
			c.logger.WithError(fetchErr).WithFields(logrus.Fields{
				"action": "compose",
				"path":   fragPath,
			}).Info("fragment unreachable, serving offline partial")
		}
		frag = c.fallbackFragment(ctx, offlineFragmentPath, OfflinePartial())
	case frag.Status == http.StatusNotFound:
		frag = c.fallbackFragment(ctx, notFoundFragmentPath, NotFoundPartial())
		status = http.StatusNotFound
	}

	if !frag.OK() {
		return nil, &UpstreamStatusError{Path: fragPath, Status: frag.Status}
	}

	partial, err := DecodePartial(fragPath, frag.Body)
	if err != nil {
		return nil, err
	}

	return strategy.NewResponse(status, "text/html", c.template.Render(partial)), nil
}

// fallbackFragment 优先使用预缓存的兜底片段，索引缺席时合成开发模式片段。
func (c *Composer) fallbackFragment(ctx context.Context, path string, synth Partial) *strategy.Response {
	if entry, ok := c.index.Lookup(ctx, path); ok {
		return responseFromPrecache(entry)
	}
	body, _ := json.Marshal(synth)
	return strategy.NewResponse(http.StatusOK, "application/json", body)
}

// OfflineFragmentResponse 返回合成离线片段的 JSON 响应，
// 供调度器的全局兜底处理失败的 partial 请求。
func OfflineFragmentResponse() *strategy.Response {
	body, _ := json.Marshal(OfflinePartial())
	return strategy.NewResponse(http.StatusOK, "application/json", body)
}

func contentPathOf(requestPath string) string {
	if m := dispatch.ContentPathPattern.FindStringSubmatch(requestPath); m != nil {
		return m[1]
	}
	// 规则匹配已保证路径形态，这里兜底补齐尾斜杠。
	if requestPath == "" || requestPath[len(requestPath)-1] != '/' {
		return requestPath + "/"
	}
	return requestPath
}

func responseFromPrecache(entry *cache.Entry) *strategy.Response {
	header := http.Header{}
	for key, values := range entry.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	return &strategy.Response{Status: entry.Status, Header: header, Body: entry.Body}
}
