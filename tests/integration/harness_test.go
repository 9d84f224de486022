package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
	"github.com/page-hub/page-hub/internal/compose"
	"github.com/page-hub/page-hub/internal/config"
	"github.com/page-hub/page-hub/internal/precache"
	"github.com/page-hub/page-hub/internal/server"
	"github.com/page-hub/page-hub/internal/server/routes"
)

const siteHost = "site.local"

// site 汇总一次集成测试所需的全部组件。
type site struct {
	app      *fiber.App
	store    cache.Store
	index    *precache.Index
	hub      *server.ClientHub
	upstream *httptest.Server
}

// pageTemplate 与站点构建约定一致的最小页面外壳。
const pageTemplate = "<html><head></head><body>" + compose.Marker + "</body></html>"

// buildSite 启动上游桩、安装预缓存并装配完整的 Fiber 应用。
func buildSite(t *testing.T, upstream http.Handler, manifest []precache.ManifestEntry) *site {
	t.Helper()

	stub := httptest.NewServer(upstream)
	t.Cleanup(stub.Close)

	upstreamURL, err := url.Parse(stub.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			StoragePath:     t.TempDir(),
			NetworkTimeout:  config.Duration(2 * time.Second),
			UpstreamTimeout: config.Duration(5 * time.Second),
		},
		Site: config.SiteConfig{
			Host:             siteHost,
			Upstream:         stub.URL,
			StylesheetOrigin: "https://fonts.googleapis.com",
			FontOrigin:       "https://fonts.gstatic.com",
		},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}

	client := server.NewUpstreamClient(cfg)
	fetch := server.NewUpstreamFetcher(client, siteHost, upstreamURL)

	index, err := precache.NewIndex(store, fetch, upstreamURL, logger)
	if err != nil {
		t.Fatalf("index error: %v", err)
	}
	if len(manifest) > 0 {
		if err := index.Install(context.Background(), manifest); err != nil {
			t.Fatalf("install error: %v", err)
		}
	}

	template, err := compose.NewTemplate(pageTemplate)
	if err != nil {
		t.Fatalf("template error: %v", err)
	}

	engine, err := server.BuildEngine(server.EngineOptions{
		Config:   cfg,
		Store:    store,
		Fetch:    fetch,
		Index:    index,
		Template: template,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}

	hub := server.NewClientHub()
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Engine:     engine,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	routes.RegisterDiagnosticsRoutes(app, engine.RuleNames())
	routes.RegisterClientRoutes(app, hub)

	return &site{app: app, store: store, index: index, hub: hub, upstream: stub}
}

// get 以站点宿主名发起一次请求并读回整个响应。
func (s *site) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://"+siteHost+path, nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request %s error: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s error: %v", path, err)
	}
	return resp, string(body)
}
