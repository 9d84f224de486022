package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
)

// markerFileName 位于存储目录下，存在即表示此前有一代引擎完成过激活。
const markerFileName = "generation"

// GenerationMarker 记录"上一代引擎是否激活过"。它在安装阶段被探测、
// 在激活完成后被写入，构成跨进程重启的代际信号。
type GenerationMarker struct {
	path string
}

// NewGenerationMarker 返回指向 storagePath 下代际标记文件的句柄。
func NewGenerationMarker(storagePath string) *GenerationMarker {
	return &GenerationMarker{path: filepath.Join(storagePath, markerFileName)}
}

// Exists 探测标记是否存在。必须在本代写入标记之前调用。
func (m *GenerationMarker) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Write 落下本代的标记。重复写入是幂等的。
func (m *GenerationMarker) Write() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	if err := os.WriteFile(m.path, []byte("1\n"), 0o644); err != nil {
		return fmt.Errorf("write generation marker: %w", err)
	}
	return nil
}
