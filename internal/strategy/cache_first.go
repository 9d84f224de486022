package strategy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
)

// CacheFirst 优先返回缓存条目；未命中或条目过期时回源，
// 回源结果经过滤器判定后写入分区。无缓存且网络失败为硬失败。
type CacheFirst struct {
	cfg Config
}

// NewCacheFirst 构造 Cache-First 策略。
func NewCacheFirst(cfg Config) *CacheFirst {
	return &CacheFirst{cfg: cfg}
}

// Name returns the strategy identifier used in logs and diagnostics.
func (s *CacheFirst) Name() string { return "cache-first" }

func (s *CacheFirst) Handle(ctx context.Context, req *http.Request) (*Response, error) {
	key := cache.RequestKey(req)
	locator := cache.Locator{Cache: s.cfg.Cache, Key: key}

	entry, err := s.cfg.Store.Get(ctx, locator)
	switch {
	case err == nil:
		if !s.cfg.Expiration.Expired(entry.StoredAt, time.Now().UTC()) {
			return responseFromEntry(entry), nil
		}
		// 过期条目惰性清理后按未命中处理。
		if err := s.cfg.Store.Delete(ctx, locator); err != nil {
			s.cfg.log().WithError(err).WithFields(logrus.Fields{
				"action": "cache_expire",
				"cache":  s.cfg.Cache,
				"key":    key,
			}).Warn("cache_expire_failed")
		}
	case errors.Is(err, cache.ErrNotFound):
		// miss, continue
	default:
		s.cfg.log().WithError(err).WithFields(logrus.Fields{
			"action": "cache_get",
			"cache":  s.cfg.Cache,
			"key":    key,
		}).Warn("cache_get_failed")
	}

	resp, err := fetchResponse(s.cfg.Fetch, req)
	if err != nil {
		return nil, err
	}
	s.cfg.storeResponse(ctx, key, resp)
	return resp, nil
}
