package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/dispatch"
	"github.com/page-hub/page-hub/internal/logging"
	"github.com/page-hub/page-hub/internal/strategy"
)

// Engine 是路由层需要的调度入口，允许测试注入桩实现。
type Engine interface {
	Dispatch(ctx context.Context, req *http.Request) (*strategy.Response, string, error)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Engine     Engine
	ListenPort int
}

const contextKeyRequestID = "_pagehub_request_id"

// NewApp builds a Fiber application that funnels every intercepted
// request through the dispatch engine.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("dispatch engine is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return serveDispatch(c, opts)
	})

	return app, nil
}

// serveDispatch 把 Fiber 请求还原成 *http.Request，交给调度器，
// 再把缓冲响应写回连接。
func serveDispatch(c fiber.Ctx, opts AppOptions) error {
	req, err := httpRequestFromCtx(c)
	if err != nil {
		opts.Logger.WithError(err).Warn("request_decode_failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request"})
	}

	resp, route, err := opts.Engine.Dispatch(c.Context(), req)
	if err != nil {
		opts.Logger.WithError(err).WithFields(logging.RequestFields(
			RequestID(c), route, fiber.StatusBadGateway, false,
		)).Error("dispatch_failed")
		c.Set("X-Page-Hub-Route", route)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	}

	cacheHit := resp.Header.Get(strategy.CacheHitHeader) == "true"
	// hop-by-hop 头只约束上游那一跳的连接，不能原样转交客户端。
	headers := make(http.Header, len(resp.Header))
	CopyHeaders(headers, resp.Header)
	for key, values := range headers {
		for _, value := range values {
			c.Set(key, value)
		}
	}
	c.Set("X-Page-Hub-Route", route)
	if reqID := RequestID(c); reqID != "" {
		c.Set("X-Request-ID", reqID)
	}

	opts.Logger.WithFields(logging.RequestFields(
		RequestID(c), route, resp.Status, cacheHit,
	)).Debug("request_served")

	// 状态 0 是字体源不透明响应的内部表示，写回连接时落为 200。
	status := resp.Status
	if status == 0 {
		status = fiber.StatusOK
	}
	c.Status(status)
	_, err = c.Response().BodyWriter().Write(resp.Body)
	return err
}

// httpRequestFromCtx 从 Fiber 上下文重建标准库请求。
func httpRequestFromCtx(c fiber.Ctx) (*http.Request, error) {
	host := strings.TrimSpace(getHostHeader(c))
	rawURL := "http://" + host + string(c.Request().URI().Path())
	if qs := string(c.Request().URI().QueryString()); qs != "" {
		rawURL += "?" + qs
	}

	// 非 GET 请求的载荷随透传原样转发。
	var body io.Reader
	if payload := c.Body(); len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(c.Context(), c.Method(), rawURL, body)
	if err != nil {
		return nil, err
	}
	c.Request().Header.VisitAll(func(key, value []byte) {
		req.Header.Add(string(key), string(value))
	})
	req.Host = host
	return req, nil
}

// requestContextMiddleware 负责生成请求 ID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

var _ Engine = (*dispatch.Dispatcher)(nil)
