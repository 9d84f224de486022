package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/page-hub/page-hub/internal/cache"
	"github.com/page-hub/page-hub/internal/compose"
	"github.com/page-hub/page-hub/internal/config"
	"github.com/page-hub/page-hub/internal/dispatch"
	"github.com/page-hub/page-hub/internal/lifecycle"
	"github.com/page-hub/page-hub/internal/logging"
	"github.com/page-hub/page-hub/internal/precache"
	"github.com/page-hub/page-hub/internal/server"
	"github.com/page-hub/page-hub/internal/server/routes"
	"github.com/page-hub/page-hub/internal/version"
	"github.com/page-hub/page-hub/internal/versionstore"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["site"] = cfg.Site.Host
		fields["upstream"] = cfg.Site.Upstream
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循"配置 → 磁盘缓存 → 安装 → 激活 → Fiber server"顺序，
	// 对应拦截引擎的 install/activate/fetch 三个阶段。
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	versions, err := versionstore.Open(filepath.Join(cfg.Global.StoragePath, "versions.db"))
	if err != nil {
		fmt.Fprintf(stdErr, "初始化版本存储失败: %v\n", err)
		return 1
	}
	defer versions.Close()

	upstreamURL, err := url.Parse(cfg.Site.Upstream)
	if err != nil {
		fmt.Fprintf(stdErr, "解析上游地址失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)
	fetch := server.NewUpstreamFetcher(httpClient, cfg.Site.Host, upstreamURL)

	template, err := loadTemplate(cfg.Site.TemplatePath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载页面模板失败: %v\n", err)
		return 1
	}

	manifest, err := precache.LoadManifest(cfg.Site.ManifestPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载预缓存清单失败: %v\n", err)
		return 1
	}

	index, err := precache.NewIndex(store, fetch, upstreamURL, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建预缓存索引失败: %v\n", err)
		return 1
	}

	ctx := context.Background()
	marker := lifecycle.NewGenerationMarker(cfg.Global.StoragePath)

	state, err := lifecycle.Install(ctx, index, manifest, marker)
	if err != nil {
		fmt.Fprintf(stdErr, "安装阶段失败: %v\n", err)
		return 1
	}

	hub := server.NewClientHub()
	migrator, err := lifecycle.NewMigrator(versions, hub, version.Arch, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建迁移器失败: %v\n", err)
		return 1
	}
	if err := migrator.Activate(ctx, state); err != nil {
		fmt.Fprintf(stdErr, "激活阶段失败: %v\n", err)
		return 1
	}
	if err := marker.Write(); err != nil {
		fmt.Fprintf(stdErr, "写入代际标记失败: %v\n", err)
		return 1
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
		fmt.Fprintf(stdErr, "装配调度引擎失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["site"] = cfg.Site.Host
	fields["listen_port"] = cfg.Global.ListenPort
	fields["precached"] = len(index.Paths())
	fields["prior_generation"] = state.HadPriorActiveWorker
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, engine, hub, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("page-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PAGE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("PAGE_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// loadTemplate 在未配置模板路径时退回开发模式外壳。
func loadTemplate(path string) (*compose.Template, error) {
	if path == "" {
		return compose.DefaultTemplate(), nil
	}
	return compose.LoadTemplate(path)
}

func startHTTPServer(cfg *config.Config, engine *dispatch.Dispatcher, hub *server.ClientHub, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Engine:     engine,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, engine.RuleNames())
	routes.RegisterClientRoutes(app, hub)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
