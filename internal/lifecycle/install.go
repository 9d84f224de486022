// Package lifecycle 实现引擎的安装与激活两个阶段：安装阶段全量铺设
// 预缓存并探测代际标记，激活阶段执行架构迁移检查并在必要时通知所有
// 已注册客户端重新加载。
package lifecycle

import (
	"context"
	"fmt"

	"github.com/page-hub/page-hub/internal/precache"
)

// InstallState 携带安装阶段观测到的事实，供激活阶段决策。
type InstallState struct {
	// HadPriorActiveWorker 表示本次安装之前已有一代引擎激活过。
	// 全新部署时为 false，此时激活阶段完全跳过迁移检查。
	HadPriorActiveWorker bool
}

// Install 执行安装阶段：先探测代际标记（必须在任何写入之前），
// 再全量安装预缓存清单。清单中任何一项失败都会使安装整体失败。
func Install(ctx context.Context, index *precache.Index, manifest []precache.ManifestEntry, marker *GenerationMarker) (InstallState, error) {
	state := InstallState{HadPriorActiveWorker: marker.Exists()}
	if err := index.Install(ctx, manifest); err != nil {
		return state, fmt.Errorf("precache install: %w", err)
	}
	return state, nil
}
