package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
	"github.com/page-hub/page-hub/internal/compose"
	"github.com/page-hub/page-hub/internal/config"
	"github.com/page-hub/page-hub/internal/dispatch"
	"github.com/page-hub/page-hub/internal/normalize"
	"github.com/page-hub/page-hub/internal/precache"
	"github.com/page-hub/page-hub/internal/strategy"
)

// 各规则读写的缓存分区。
const (
	stylesheetCache = "google-fonts-stylesheets"
	webfontCache    = "google-fonts-webfonts"
	runtimeCache    = "runtime"
)

// 字体文件一年内视为新鲜，分区最多保留 30 个文件。
const (
	webfontMaxAge     = 365 * 24 * time.Hour
	webfontMaxEntries = 30
)

// EngineOptions 列出装配调度规则表所需的全部依赖。
type EngineOptions struct {
	Config   *config.Config
	Store    cache.Store
	Fetch    strategy.Fetcher
	Index    *precache.Index
	Template *compose.Template
	Logger   *logrus.Logger
}

// BuildEngine 按固定顺序装配调度规则、网络兜底与全局 catch。
// 规则顺序即优先级，先命中者胜出。
func BuildEngine(opts EngineOptions) (*dispatch.Dispatcher, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Fetch == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Index == nil {
		return nil, errors.New("precache index is required")
	}
	if opts.Template == nil {
		return nil, errors.New("page template is required")
	}

	site := opts.Config.Site
	networkTimeout := opts.Config.Global.NetworkTimeout.DurationValue()

	stylesheets := strategy.NewStaleWhileRevalidate(strategy.Config{
		Cache:  stylesheetCache,
		Store:  opts.Store,
		Fetch:  opts.Fetch,
		Logger: opts.Logger,
	})

	webfonts := strategy.NewCacheFirst(strategy.Config{
		Cache: webfontCache,
		Store: opts.Store,
		Fetch: opts.Fetch,
		// 字体源常以不透明响应（状态 0）落地，同样允许缓存。
		Filter:     &cache.ResponseFilter{Statuses: []int{0, http.StatusOK}},
		Expiration: &cache.ExpirationPolicy{MaxAge: webfontMaxAge, MaxEntries: webfontMaxEntries},
		Logger:     opts.Logger,
	})

	// partial 路由与组合器共用同一个实例，保证两条路径读写同一分区。
	partials := strategy.NewNetworkFirst(strategy.Config{
		Cache:   runtimeCache,
		Store:   opts.Store,
		Fetch:   opts.Fetch,
		Timeout: networkTimeout,
		Logger:  opts.Logger,
	})

	images := strategy.NewStaleWhileRevalidate(strategy.Config{
		Cache:  runtimeCache,
		Store:  opts.Store,
		Fetch:  opts.Fetch,
		Logger: opts.Logger,
	})

	composer, err := compose.NewComposer(partials, opts.Index, opts.Template, opts.Logger)
	if err != nil {
		return nil, err
	}

	normalizer, err := normalize.NewNormalizer(opts.Index, opts.Fetch, opts.Logger)
	if err != nil {
		return nil, err
	}

	passthrough := networkHandler(opts.Fetch)

	rules := []dispatch.Rule{
		{Name: "google-fonts-stylesheets", Match: dispatch.Origin(site.StylesheetOrigin), Handler: stylesheets},
		{Name: "google-fonts-webfonts", Match: dispatch.Origin(site.FontOrigin), Handler: webfonts},
		{Name: "precache", Match: precacheMatcher(site.Host, opts.Index), Handler: opts.Index.Handler()},
		{Name: "partials", Match: dispatch.SameHostPath(site.Host, dispatch.PartialPathPattern), Handler: partials},
		// 图片规则不限主机，第三方 CDN 上的 /images/ 资源同样缓存。
		{Name: "images", Match: dispatch.PathContains("/images/"), Handler: images},
		{Name: "content", Match: dispatch.SameHostPath(site.Host, dispatch.ContentPathPattern), Handler: composer},
		{Name: "normalize", Match: dispatch.SameHostPath(site.Host, dispatch.UntrailedPathPattern), Handler: normalizer},
	}

	return dispatch.New(dispatch.Options{
		Rules:       rules,
		Passthrough: passthrough,
		Catch:       catchHandler(site.Host),
		Logger:      opts.Logger,
	})
}

// precacheMatcher 命中安装清单已铺设的站内路径。
func precacheMatcher(host string, index *precache.Index) dispatch.Matcher {
	onHost := dispatch.SameHost(host)
	return func(req *http.Request) bool {
		return onHost(req) && index.Has(req.URL.Path)
	}
}

// catchHandler 是调度层的全局兜底：partial 请求失败时合成离线片段，
// 其余失败原样向上传播。
func catchHandler(host string) dispatch.CatchHandler {
	isPartial := dispatch.SameHostPath(host, dispatch.PartialPathPattern)
	return func(ctx context.Context, req *http.Request, cause error) (*strategy.Response, error) {
		if isPartial(req) {
			return compose.OfflineFragmentResponse(), nil
		}
		return nil, cause
	}
}

// networkHandler 不做任何缓存，纯粹转发到网络。
func networkHandler(fetch strategy.Fetcher) strategy.Handler {
	return strategy.HandlerFunc(func(ctx context.Context, req *http.Request) (*strategy.Response, error) {
		return strategy.Fetch(ctx, fetch, req)
	})
}
