package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
	"github.com/page-hub/page-hub/internal/compose"
	"github.com/page-hub/page-hub/internal/config"
	"github.com/page-hub/page-hub/internal/dispatch"
	"github.com/page-hub/page-hub/internal/precache"
)

func TestRuleTableOrder(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	want := []string{
		"google-fonts-stylesheets",
		"google-fonts-webfonts",
		"precache",
		"partials",
		"images",
		"content",
		"normalize",
	}
	got := engine.RuleNames()
	if len(got) != len(want) {
		t.Fatalf("rule count mismatch: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rule %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestStylesheetRequestRouted(t *testing.T) {
	engine, fetch, _ := newTestEngine(t, nil)

	_, rule, err := engine.Dispatch(context.Background(), newRequest(t, "https://fonts.googleapis.com/css?family=Lato"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != "google-fonts-stylesheets" {
		t.Fatalf("unexpected rule: %s", rule)
	}
	if fetch.count() != 1 {
		t.Fatalf("stylesheet miss must hit the network once, got %d", fetch.count())
	}
}

func TestWebfontRequestRouted(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	_, rule, err := engine.Dispatch(context.Background(), newRequest(t, "https://fonts.gstatic.com/s/lato/v24/abc.woff2"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != "google-fonts-webfonts" {
		t.Fatalf("unexpected rule: %s", rule)
	}
}

func TestPartialRequestRouted(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	resp, rule, err := engine.Dispatch(context.Background(), newRequest(t, "http://site.local/blog/my-post/index.json"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != "partials" {
		t.Fatalf("unexpected rule: %s", rule)
	}
	if resp.Status != 200 {
		t.Fatalf("unexpected status: %d", resp.Status)
	}
}

func TestImageRequestRouted(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	_, rule, err := engine.Dispatch(context.Background(), newRequest(t, "http://site.local/images/logo.png"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != "images" {
		t.Fatalf("unexpected rule: %s", rule)
	}
}

func TestForeignImageRouted(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	// 图片规则只看路径，第三方 CDN 上的图片同样走 SWR 缓存。
	_, rule, err := engine.Dispatch(context.Background(), newRequest(t, "http://cdn.example.com/images/x.png"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != "images" {
		t.Fatalf("unexpected rule: %s", rule)
	}
}

func TestContentRequestComposed(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]string{
		"/blog/my-post/index.json": `{"raw":"<p>post</p>","title":"Post"}`,
	})

	resp, rule, err := engine.Dispatch(context.Background(), newRequest(t, "http://site.local/blog/my-post/"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != "content" {
		t.Fatalf("unexpected rule: %s", rule)
	}
	body := string(resp.Body)
	if !strings.Contains(body, "<p>post</p>") || !strings.Contains(body, "<title>Post</title>") {
		t.Fatalf("composed page incomplete: %s", body)
	}
	if resp.Header.Get("Content-Type") != "text/html" {
		t.Fatalf("composed page must be html, got %s", resp.Header.Get("Content-Type"))
	}
}

func TestUntrailedPathNormalized(t *testing.T) {
	engine, fetch, _ := newTestEngine(t, nil)
	fetch.fail(errors.New("origin down"))

	resp, rule, err := engine.Dispatch(context.Background(), newRequest(t, "http://site.local/blog/my-post"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != "normalize" {
		t.Fatalf("unexpected rule: %s", rule)
	}
	if resp.Status != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", resp.Status)
	}
	if got := resp.Header.Get("Location"); got != "http://site.local/blog/my-post/" {
		t.Fatalf("unexpected Location: %s", got)
	}
}

func TestForeignHostPassesThrough(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	_, rule, err := engine.Dispatch(context.Background(), newRequest(t, "https://cdn.example.net/lib.js"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if rule != dispatch.PassthroughName {
		t.Fatalf("unexpected rule: %s", rule)
	}
}

func TestPrecachedPathServedFromIndex(t *testing.T) {
	engine, fetch, _ := newTestEngine(t, map[string]string{
		"/offline/index.json": `{"raw":"<p>off</p>","title":"Offline"}`,
	})
	before := fetch.count()

	resp, rule, err := engine.Dispatch(context.Background(), newRequest(t, "http://site.local/offline/index.json"))
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	// 预缓存规则排在 partial 规则之前。
	if rule != "precache" {
		t.Fatalf("unexpected rule: %s", rule)
	}
	if fetch.count() != before {
		t.Fatalf("precached entry must be served without network")
	}
	if !strings.Contains(string(resp.Body), "<p>off</p>") {
		t.Fatalf("unexpected body: %s", string(resp.Body))
	}
}

func TestFailedPartialGetsOfflineFragment(t *testing.T) {
	engine, fetch, _ := newTestEngine(t, nil)
	fetch.fail(errors.New("network down"))

	resp, rule, err := engine.Dispatch(context.Background(), newRequest(t, "http://site.local/blog/index.json"))
	if err != nil {
		t.Fatalf("catch must recover partial failures: %v", err)
	}
	if rule != "partials" {
		t.Fatalf("unexpected rule: %s", rule)
	}
	partial, err := compose.DecodePartial("/blog/index.json", resp.Body)
	if err != nil {
		t.Fatalf("offline fragment must decode: %v", err)
	}
	if !partial.Offline {
		t.Fatalf("offline flag must be set")
	}
}

func TestFailedForeignRequestPropagates(t *testing.T) {
	engine, fetch, _ := newTestEngine(t, nil)
	cause := errors.New("network down")
	fetch.fail(cause)

	_, _, err := engine.Dispatch(context.Background(), newRequest(t, "https://cdn.example.net/lib.js"))
	if !errors.Is(err, cause) {
		t.Fatalf("non-partial failure must propagate, got %v", err)
	}
}

// ---- helpers ----

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	pages map[string]string
}

func (f *stubFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *stubFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *stubFetcher) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	body, ok := f.pages[req.URL.Path]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		body = "ok"
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/octet-stream"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func newTestEngine(t *testing.T, pages map[string]string) (*dispatch.Dispatcher, *stubFetcher, *precache.Index) {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, StoragePath: t.TempDir()},
		Site: config.SiteConfig{
			Host:             "site.local",
			Upstream:         "http://upstream.local",
			StylesheetOrigin: "https://fonts.googleapis.com",
			FontOrigin:       "https://fonts.gstatic.com",
		},
	}

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}

	fetch := &stubFetcher{pages: pages}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	base, err := url.Parse("http://upstream.local")
	if err != nil {
		t.Fatalf("parse url error: %v", err)
	}
	index, err := precache.NewIndex(store, fetch, base, logger)
	if err != nil {
		t.Fatalf("index error: %v", err)
	}
	if len(pages) > 0 {
		manifest := make([]precache.ManifestEntry, 0, len(pages))
		for path := range pages {
			manifest = append(manifest, precache.ManifestEntry{Path: path, Revision: "r1"})
		}
		if err := index.Install(context.Background(), manifest); err != nil {
			t.Fatalf("install error: %v", err)
		}
	}

	engine, err := BuildEngine(EngineOptions{
		Config:   cfg,
		Store:    store,
		Fetch:    fetch,
		Index:    index,
		Template: compose.DefaultTemplate(),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}
	return engine, fetch, index
}

func newRequest(t *testing.T, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}
