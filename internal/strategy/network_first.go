package strategy

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
)

// NetworkFirst 在有限等待内尝试回源；成功则写缓存并返回，
// 失败或超时回退到缓存条目，两者皆无则硬失败。
type NetworkFirst struct {
	cfg Config
}

// NewNetworkFirst 构造 Network-First 策略。
func NewNetworkFirst(cfg Config) *NetworkFirst {
	return &NetworkFirst{cfg: cfg}
}

// Name returns the strategy identifier used in logs and diagnostics.
func (s *NetworkFirst) Name() string { return "network-first" }

func (s *NetworkFirst) Handle(ctx context.Context, req *http.Request) (*Response, error) {
	key := cache.RequestKey(req)

	fetchReq := req
	if s.cfg.Timeout > 0 {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		fetchReq = req.Clone(fetchCtx)
	}

	resp, fetchErr := fetchResponse(s.cfg.Fetch, fetchReq)
	if fetchErr == nil {
		s.cfg.storeResponse(ctx, key, resp)
		return resp, nil
	}

	entry, err := s.cfg.Store.Get(ctx, cache.Locator{Cache: s.cfg.Cache, Key: key})
	if err == nil {
		s.cfg.log().WithFields(logrus.Fields{
			"action": "network_first_fallback",
			"cache":  s.cfg.Cache,
			"key":    key,
		}).Debug("serving cached entry after network failure")
		return responseFromEntry(entry), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.cfg.log().WithError(err).WithFields(logrus.Fields{
			"action": "cache_get",
			"cache":  s.cfg.Cache,
			"key":    key,
		}).Warn("cache_get_failed")
	}

	return nil, fetchErr
}
