package precache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
	"github.com/page-hub/page-hub/internal/strategy"
)

// CacheName 是预缓存专用的分区名，条目以逻辑路径（而非 method+URL）为 key。
const CacheName = "precache"

// revisionHeader 随条目落盘，Install 据此跳过修订号未变的路径。
const revisionHeader = "X-Precache-Revision"

// Index 持有安装期从清单灌入的精确路径条目。安装完成后索引只读，
// 直到下一次部署携带新清单整体替换。
type Index struct {
	store  cache.Store
	fetch  strategy.Fetcher
	base   *url.URL
	logger *logrus.Logger

	mu        sync.RWMutex
	revisions map[string]string
}

// NewIndex 构造尚未安装任何条目的索引。base 是安装期回源的站点源。
func NewIndex(store cache.Store, fetch strategy.Fetcher, base *url.URL, logger *logrus.Logger) (*Index, error) {
	if store == nil {
		return nil, errors.New("cache store required")
	}
	if fetch == nil {
		return nil, errors.New("fetcher required")
	}
	if base == nil {
		return nil, errors.New("base url required")
	}
	return &Index{
		store:     store,
		fetch:     fetch,
		base:      base,
		logger:    logger,
		revisions: make(map[string]string),
	}, nil
}

// Install 以清单整体替换索引内容：修订号未变的条目原样保留，变化或新增
// 的路径逐一回源，清单中消失的路径从分区删除。任何一条回源失败都会使
// 安装整体失败，索引维持上一次成功安装的状态。
func (ix *Index) Install(ctx context.Context, manifest []ManifestEntry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := make(map[string]string, len(manifest))
	for _, item := range manifest {
		next[item.Path] = item.Revision

		locator := cache.Locator{Cache: CacheName, Key: item.Path}
		if existing, err := ix.store.Get(ctx, locator); err == nil {
			if existing.Header.Get(revisionHeader) == item.Revision {
				continue
			}
		}

		if err := ix.fetchAndStore(ctx, locator, item); err != nil {
			return err
		}
	}

	// 清单整体替换：上一次部署遗留的条目一并清掉。
	infos, err := ix.store.List(ctx, CacheName)
	if err != nil {
		return fmt.Errorf("list precache partition: %w", err)
	}
	for _, info := range infos {
		if _, keep := next[info.Key]; keep {
			continue
		}
		if err := ix.store.Delete(ctx, cache.Locator{Cache: CacheName, Key: info.Key}); err != nil {
			return fmt.Errorf("remove stale precache entry %s: %w", info.Key, err)
		}
	}

	ix.revisions = next
	if ix.logger != nil {
		ix.logger.WithFields(logrus.Fields{
			"action":  "precache_install",
			"entries": len(next),
		}).Info("precache index installed")
	}
	return nil
}

func (ix *Index) fetchAndStore(ctx context.Context, locator cache.Locator, item ManifestEntry) error {
	target := *ix.base
	target.Path = item.Path
	target.RawQuery = "rev=" + url.QueryEscape(item.Revision)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build precache request %s: %w", item.Path, err)
	}

	resp, err := ix.fetch.Do(req)
	if err != nil {
		return fmt.Errorf("precache fetch %s: %w", item.Path, err)
	}
	entry, err := entryFromResponse(resp, item.Revision)
	if err != nil {
		return fmt.Errorf("precache read %s: %w", item.Path, err)
	}
	if entry.Status != http.StatusOK {
		return fmt.Errorf("precache fetch %s: unexpected status %d", item.Path, entry.Status)
	}

	if err := ix.store.Put(ctx, locator, *entry); err != nil {
		return fmt.Errorf("precache store %s: %w", item.Path, err)
	}
	return nil
}

// Has 报告路径是否在索引内，不触达磁盘。
func (ix *Index) Has(path string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.revisions[path]
	return ok
}

// Lookup 返回路径对应的完整缓存条目。索引外的路径或磁盘读失败都视为未命中。
func (ix *Index) Lookup(ctx context.Context, path string) (*cache.Entry, bool) {
	if !ix.Has(path) {
		return nil, false
	}
	entry, err := ix.store.Get(ctx, cache.Locator{Cache: CacheName, Key: path})
	if err != nil {
		if ix.logger != nil && !errors.Is(err, cache.ErrNotFound) {
			ix.logger.WithError(err).WithFields(logrus.Fields{
				"action": "precache_lookup",
				"path":   path,
			}).Warn("precache_read_failed")
		}
		return nil, false
	}
	return entry, true
}

// Paths 返回索引内全部路径，按字典序排序，供诊断端输出。
func (ix *Index) Paths() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	paths := make([]string, 0, len(ix.revisions))
	for path := range ix.revisions {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Handler 将索引适配成调度器可用的处理器，直接回放条目，绕过策略引擎。
func (ix *Index) Handler() strategy.Handler {
	return strategy.HandlerFunc(func(ctx context.Context, req *http.Request) (*strategy.Response, error) {
		entry, ok := ix.Lookup(ctx, req.URL.Path)
		if !ok {
			return nil, fmt.Errorf("precache entry vanished: %s", req.URL.Path)
		}
		header := http.Header{}
		for key, values := range entry.Header {
			if key == revisionHeader {
				continue
			}
			for _, value := range values {
				header.Add(key, value)
			}
		}
		return &strategy.Response{Status: entry.Status, Header: header, Body: entry.Body}, nil
	})
}

func entryFromResponse(resp *http.Response, revision string) (*cache.Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	header := resp.Header.Clone()
	header.Set(revisionHeader, revision)
	return &cache.Entry{Status: resp.StatusCode, Header: header, Body: body}, nil
}
