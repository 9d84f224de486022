package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Store 负责管理命名缓存分区的读写。磁盘布局遵循：
//
//	<StoragePath>/<CacheName>/<sha1(key)>.body       # 响应正文
//	<StoragePath>/<CacheName>/<sha1(key)>.meta.json  # 状态码/响应头/写入时间
//
// 同一分区内 key（method+URL）唯一，重复写入会整体覆盖旧条目。
type Store interface {
	// Get 返回完整的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*Entry, error)

	// Put 将响应写入缓存。实现需通过临时文件 + rename 保证正文与元数据
	// 的写入原子性，并在失败时清理临时文件。
	Put(ctx context.Context, locator Locator, entry Entry) error

	// Delete 删除条目（正文与元数据），条目不存在时不视为错误。
	Delete(ctx context.Context, locator Locator) error

	// List 返回分区内全部条目的摘要，按 StoredAt 从旧到新排序，
	// 供过期策略做惰性清理使用。
	List(ctx context.Context, cacheName string) ([]EntryInfo, error)
}

// Locator 唯一定位一个缓存条目（分区名 + 请求标识）。
type Locator struct {
	Cache string
	Key   string
}

// Entry 表示一条完整的缓存响应。
type Entry struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"-"`
	StoredAt time.Time   `json:"stored_at"`
}

// EntryInfo 是 List 输出的条目摘要，不携带正文。
type EntryInfo struct {
	Key      string
	StoredAt time.Time
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// RequestKey 返回请求在分区内的唯一标识（method + URL）。
func RequestKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}
