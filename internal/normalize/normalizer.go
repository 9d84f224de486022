package normalize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/precache"
	"github.com/page-hub/page-hub/internal/strategy"
)

// Normalizer 处理缺少尾斜杠的站内路径。预缓存中存在对应的
// path/index.html 只作为"规范资源存在"的信号，命中时直接重定向而不是
// 回放缓存正文；索引未命中时先给网络一次机会，保留服务端自己的跳转
// 规则（如 vanity URL），网络失败才落到 301。
type Normalizer struct {
	index  *precache.Index
	fetch  strategy.Fetcher
	logger *logrus.Logger
}

// NewNormalizer 构造路径规范化处理器。
func NewNormalizer(index *precache.Index, fetch strategy.Fetcher, logger *logrus.Logger) (*Normalizer, error) {
	if index == nil {
		return nil, errors.New("precache index required")
	}
	if fetch == nil {
		return nil, errors.New("fetcher required")
	}
	return &Normalizer{index: index, fetch: fetch, logger: logger}, nil
}

// Handle 实现 strategy.Handler。
func (n *Normalizer) Handle(ctx context.Context, req *http.Request) (*strategy.Response, error) {
	if n.index.Has(req.URL.Path + "/index.html") {
		return redirectResponse(req), nil
	}

	resp, err := n.direct(ctx, req)
	if err == nil {
		return resp, nil
	}
	if n.logger != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"action": "normalize",
			"path":   req.URL.Path,
		}).Debug("direct fetch failed, issuing redirect")
	}
	return redirectResponse(req), nil
}

// direct 原样回源，任何 HTTP 状态都按原响应返回。
func (n *Normalizer) direct(ctx context.Context, req *http.Request) (*strategy.Response, error) {
	fetchReq := req.Clone(ctx)
	resp, err := n.fetch.Do(fetchReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.String(), err)
	}
	return &strategy.Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

func redirectResponse(req *http.Request) *strategy.Response {
	target := *req.URL
	target.Path += "/"

	resp := strategy.NewResponse(http.StatusMovedPermanently, "", nil)
	resp.Header.Set("Location", target.String())
	return resp
}
