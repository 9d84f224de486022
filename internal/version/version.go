package version

import (
	"fmt"
	"runtime"
)

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
// Arch 是迁移检查比对的架构标识，默认跟随编译目标。
var (
	Version = "0.1.0"
	Commit  = "dev"
	Arch    = runtime.GOARCH
)

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("page-hub %s (%s, %s)", Version, Commit, Arch)
}
