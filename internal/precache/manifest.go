package precache

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ManifestEntry 是构建产物清单中的一项：逻辑路径 + 内容修订号。
// 清单由站点构建流程产出，对本引擎是只读输入。
type ManifestEntry struct {
	Path     string `json:"path"`
	Revision string `json:"revision"`
}

// LoadManifest 读取并校验 JSON 清单文件。路径为空表示站点未提供清单
// （开发模式），返回空清单。
func LoadManifest(path string) ([]ManifestEntry, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取清单失败: %w", err)
	}

	var entries []ManifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("解析清单失败: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		if !strings.HasPrefix(entry.Path, "/") {
			return nil, fmt.Errorf("清单第 %d 项路径必须以 / 开头: %q", i, entry.Path)
		}
		if entry.Revision == "" {
			return nil, fmt.Errorf("清单第 %d 项缺少 revision: %s", i, entry.Path)
		}
		if _, dup := seen[entry.Path]; dup {
			return nil, fmt.Errorf("清单路径重复: %s", entry.Path)
		}
		seen[entry.Path] = struct{}{}
	}
	return entries, nil
}
