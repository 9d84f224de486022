package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// archKey 是版本存储中记录构建架构的键。
const archKey = "arch"

// VersionStore 是激活阶段需要的最小键值接口。
type VersionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Client 描述一个已注册的窗口客户端。
type Client struct {
	ID  string
	URL string
}

// ClientGateway 抽象对已注册客户端的控制面。
type ClientGateway interface {
	// Claim 让本代引擎立即接管所有客户端。
	Claim(ctx context.Context) error
	// WindowClients 列出当前注册的窗口客户端。
	WindowClients(ctx context.Context) ([]Client, error)
	// Navigate 指示客户端重新加载到给定地址。
	Navigate(ctx context.Context, clientID, url string) error
}

// Migrator 在激活阶段执行架构迁移检查。
type Migrator struct {
	store   VersionStore
	clients ClientGateway
	arch    string
	logger  *logrus.Logger
}

// NewMigrator 构造迁移器。arch 是本次构建的目标架构标识。
func NewMigrator(store VersionStore, clients ClientGateway, arch string, logger *logrus.Logger) (*Migrator, error) {
	if store == nil {
		return nil, errors.New("version store required")
	}
	if clients == nil {
		return nil, errors.New("client gateway required")
	}
	if arch == "" {
		return nil, errors.New("arch identifier required")
	}
	return &Migrator{store: store, clients: clients, arch: arch, logger: logger}, nil
}

// Activate 执行激活阶段的迁移决策：
//
//   - 全新安装（此前没有激活过的引擎）：什么都不做，也不写存储。
//   - 已记录架构与当前不同：接管客户端并要求所有窗口重新加载。
//   - 无论是否触发迁移，只要存在前代引擎，就把当前架构写回存储，
//     值相同时写入是幂等的。
func (m *Migrator) Activate(ctx context.Context, state InstallState) error {
	if !state.HadPriorActiveWorker {
		// 新装客户端拿到的已经是当前版本的内容，无需迁移，
		// 此时也刻意不写存储。
		return nil
	}

	stored, found, err := m.store.Get(ctx, archKey)
	if err != nil {
		return fmt.Errorf("read recorded arch: %w", err)
	}

	if found && stored != m.arch {
		m.log().WithFields(logrus.Fields{
			"action":   "migrate",
			"recorded": stored,
			"current":  m.arch,
		}).Info("architecture changed, reloading clients")
		m.reloadClients(ctx)
	}

	if err := m.store.Set(ctx, archKey, m.arch); err != nil {
		return fmt.Errorf("record arch: %w", err)
	}
	return nil
}

// reloadClients 接管并逐个通知客户端重载。通知是尽力而为的：
// 单个客户端失败只记日志，不影响激活流程。
func (m *Migrator) reloadClients(ctx context.Context) {
	if err := m.clients.Claim(ctx); err != nil {
		m.log().WithError(err).Warn("claim clients failed")
	}
	clients, err := m.clients.WindowClients(ctx)
	if err != nil {
		m.log().WithError(err).Warn("list window clients failed")
		return
	}

	notify := context.WithoutCancel(ctx)
	for _, client := range clients {
		client := client
		go func() {
			if err := m.clients.Navigate(notify, client.ID, client.URL); err != nil {
				m.log().WithError(err).WithFields(logrus.Fields{
					"action": "migrate",
					"client": client.ID,
				}).Warn("client navigate failed")
			}
		}()
	}
}

func (m *Migrator) log() *logrus.Logger {
	if m.logger != nil {
		return m.logger
	}
	return logrus.StandardLogger()
}
