package dispatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/strategy"
)

// Matcher 判断一条规则是否认领当前请求。
type Matcher func(*http.Request) bool

// Rule 将匹配谓词与处理器（策略或自定义逻辑）绑定为一条路由规则。
type Rule struct {
	Name    string
	Match   Matcher
	Handler strategy.Handler
}

// CatchHandler 在已匹配规则的处理器失败时获得一次兜底机会。
// 返回 (resp, nil) 表示已恢复；返回 (nil, err) 则失败继续向上传播。
type CatchHandler func(ctx context.Context, req *http.Request, cause error) (*strategy.Response, error)

// PassthroughName 是未命中任何规则时记录的伪规则名。
const PassthroughName = "network"

// Dispatcher 按注册顺序线性扫描规则表，第一条命中的规则独占响应权。
// 规则表是启动期构造的固定数据，运行期只读，天然支持并发调度。
type Dispatcher struct {
	rules       []Rule
	passthrough strategy.Handler
	catch       CatchHandler
	logger      *logrus.Logger
}

// Options bundles the dispatcher dependencies.
type Options struct {
	Rules       []Rule
	Passthrough strategy.Handler
	Catch       CatchHandler
	Logger      *logrus.Logger
}

// New 构造调度器。Passthrough 是未命中规则时的网络直通处理器，必填。
func New(opts Options) (*Dispatcher, error) {
	if opts.Passthrough == nil {
		return nil, errors.New("passthrough handler required")
	}
	for _, rule := range opts.Rules {
		if rule.Name == "" {
			return nil, errors.New("rule name required")
		}
		if rule.Match == nil || rule.Handler == nil {
			return nil, errors.New("rule " + rule.Name + " incomplete")
		}
	}
	return &Dispatcher{
		rules:       opts.Rules,
		passthrough: opts.Passthrough,
		catch:       opts.Catch,
		logger:      opts.Logger,
	}, nil
}

// RuleNames 按优先级返回规则名，供诊断端输出。
func (d *Dispatcher) RuleNames() []string {
	names := make([]string, len(d.rules))
	for i, rule := range d.rules {
		names[i] = rule.Name
	}
	return names
}

// Dispatch 返回响应、命中的规则名以及可能的失败。
// 首条命中规则拥有请求；其处理器失败时 catch 兜底一次，未兜住则失败上抛。
func (d *Dispatcher) Dispatch(ctx context.Context, req *http.Request) (*strategy.Response, string, error) {
	for _, rule := range d.rules {
		if !rule.Match(req) {
			continue
		}

		resp, err := rule.Handler.Handle(ctx, req)
		if err == nil {
			return resp, rule.Name, nil
		}

		if d.logger != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"action": "dispatch",
				"rule":   rule.Name,
				"url":    req.URL.String(),
			}).Warn("route_handler_failed")
		}
		if d.catch != nil {
			recovered, catchErr := d.catch(ctx, req, err)
			if catchErr == nil && recovered != nil {
				return recovered, rule.Name, nil
			}
		}
		return nil, rule.Name, err
	}

	resp, err := d.passthrough.Handle(ctx, req)
	return resp, PassthroughName, err
}
