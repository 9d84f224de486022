package strategy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
)

// Handler 是调度器与各缓存策略共享的处理契约：输入一个拦截到的请求，
// 产出完整的响应或一个硬失败。
type Handler interface {
	Handle(ctx context.Context, req *http.Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *http.Request) (*Response, error)

// Handle makes HandlerFunc satisfy Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *http.Request) (*Response, error) {
	return f(ctx, req)
}

// Response 是引擎内部流转的缓冲响应。站点资源（partial JSON、页面、字体）
// 体积都很小，整体缓冲换来策略层可以自由读写缓存。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// NewResponse 构造带单个 Content-Type 头的响应。
func NewResponse(status int, contentType string, body []byte) *Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &Response{Status: status, Header: header, Body: body}
}

// CacheHitHeader 标记响应出自本地缓存而非网络。
const CacheHitHeader = "X-Page-Hub-Cache-Hit"

// Fetcher 抽象网络侧，*http.Client 天然满足；测试中注入桩实现。
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config 汇总一个策略实例的全部依赖与分区策略。
type Config struct {
	// Cache 是策略读写的分区名。
	Cache string
	Store cache.Store
	Fetch Fetcher
	// Filter 决定哪些网络响应允许写入缓存，nil 退化为仅 200。
	Filter *cache.ResponseFilter
	// Expiration 为分区附加条目数/存活时间上限，nil 表示不限。
	Expiration *cache.ExpirationPolicy
	// Timeout 约束 Network-First 的网络等待。
	Timeout time.Duration
	Logger  *logrus.Logger
}

func (c Config) log() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

// Fetch 执行一次网络请求并缓冲整个响应，供不经缓存的直连路径使用。
func Fetch(ctx context.Context, fetch Fetcher, req *http.Request) (*Response, error) {
	return fetchResponse(fetch, req.Clone(ctx))
}

// fetchResponse 执行网络请求并整体读入正文。
func fetchResponse(fetch Fetcher, req *http.Request) (*Response, error) {
	resp, err := fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.String(), err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

func responseFromEntry(entry *cache.Entry) *Response {
	header := http.Header{}
	for key, values := range entry.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	header.Set(CacheHitHeader, "true")
	body := make([]byte, len(entry.Body))
	copy(body, entry.Body)
	return &Response{Status: entry.Status, Header: header, Body: body}
}

// storeResponse 在过滤器放行时写入缓存，并触发分区的惰性清理。
// 写入失败不阻断请求，只记录日志。
func (c Config) storeResponse(ctx context.Context, key string, resp *Response) {
	if c.Store == nil || !c.Filter.Allows(resp.Status) {
		return
	}

	locator := cache.Locator{Cache: c.Cache, Key: key}
	entry := cache.Entry{
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		StoredAt: time.Now().UTC(),
	}
	if err := c.Store.Put(ctx, locator, entry); err != nil {
		c.log().WithError(err).WithFields(logrus.Fields{
			"action": "cache_put",
			"cache":  c.Cache,
			"key":    key,
		}).Warn("cache_put_failed")
		return
	}

	if c.Expiration != nil && c.Expiration.MaxEntries > 0 {
		if err := c.Expiration.Prune(ctx, c.Store, c.Cache, time.Now().UTC()); err != nil {
			c.log().WithError(err).WithFields(logrus.Fields{
				"action": "cache_prune",
				"cache":  c.Cache,
			}).Warn("cache_prune_failed")
		}
	}
}
