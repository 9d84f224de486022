package strategy

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
)

// StaleWhileRevalidate 命中时立即返回缓存值，同时在后台无条件回源刷新；
// 未命中时调用方等待网络结果。后台刷新是 fire-and-forget 的：
// 不被请求等待、失败只记日志，写入与并发读之间 last-write-wins。
type StaleWhileRevalidate struct {
	cfg Config
}

// NewStaleWhileRevalidate 构造 Stale-While-Revalidate 策略。
func NewStaleWhileRevalidate(cfg Config) *StaleWhileRevalidate {
	return &StaleWhileRevalidate{cfg: cfg}
}

// Name returns the strategy identifier used in logs and diagnostics.
func (s *StaleWhileRevalidate) Name() string { return "stale-while-revalidate" }

func (s *StaleWhileRevalidate) Handle(ctx context.Context, req *http.Request) (*Response, error) {
	key := cache.RequestKey(req)

	entry, err := s.cfg.Store.Get(ctx, cache.Locator{Cache: s.cfg.Cache, Key: key})
	if err == nil {
		s.revalidate(ctx, req, key)
		return responseFromEntry(entry), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.cfg.log().WithError(err).WithFields(logrus.Fields{
			"action": "cache_get",
			"cache":  s.cfg.Cache,
			"key":    key,
		}).Warn("cache_get_failed")
	}

	resp, fetchErr := fetchResponse(s.cfg.Fetch, req)
	if fetchErr != nil {
		return nil, fetchErr
	}
	s.cfg.storeResponse(ctx, key, resp)
	return resp, nil
}

// revalidate 在独立任务中回源刷新条目。取消不随原请求传播：
// 即使调用方已经拿到缓存响应离开，刷新仍会跑完并落盘。
func (s *StaleWhileRevalidate) revalidate(ctx context.Context, req *http.Request, key string) {
	bgReq := req.Clone(context.WithoutCancel(ctx))
	go func() {
		resp, err := fetchResponse(s.cfg.Fetch, bgReq)
		if err != nil {
			s.cfg.log().WithError(err).WithFields(logrus.Fields{
				"action": "revalidate",
				"cache":  s.cfg.Cache,
				"key":    key,
			}).Debug("background revalidation failed")
			return
		}
		s.cfg.storeResponse(bgReq.Context(), key, resp)
	}()
}
