package cache

import (
	"context"
	"net/http"
	"time"
)

// ExpirationPolicy 约束单个分区的条目数量与存活时间。
// 过期检查是惰性的：由策略在读写路径上触发，不做后台扫描。
type ExpirationPolicy struct {
	MaxAge     time.Duration
	MaxEntries int
}

// Expired 判断条目在 now 时刻是否超过 MaxAge。MaxAge<=0 表示不限时。
func (p *ExpirationPolicy) Expired(storedAt, now time.Time) bool {
	if p == nil || p.MaxAge <= 0 {
		return false
	}
	return now.After(storedAt.Add(p.MaxAge))
}

// Prune 清理分区内的过期条目，并在条目数超过 MaxEntries 时按
// StoredAt 从旧到新逐出多余部分。清理失败只影响本次调用，不影响分区可用性。
func (p *ExpirationPolicy) Prune(ctx context.Context, store Store, cacheName string, now time.Time) error {
	if p == nil || store == nil {
		return nil
	}

	infos, err := store.List(ctx, cacheName)
	if err != nil {
		return err
	}

	kept := infos[:0]
	for _, info := range infos {
		if p.Expired(info.StoredAt, now) {
			if err := store.Delete(ctx, Locator{Cache: cacheName, Key: info.Key}); err != nil {
				return err
			}
			continue
		}
		kept = append(kept, info)
	}

	if p.MaxEntries <= 0 {
		return nil
	}
	for len(kept) > p.MaxEntries {
		oldest := kept[0]
		if err := store.Delete(ctx, Locator{Cache: cacheName, Key: oldest.Key}); err != nil {
			return err
		}
		kept = kept[1:]
	}
	return nil
}

// ResponseFilter 决定哪些响应状态码允许写入缓存。
type ResponseFilter struct {
	Statuses []int
}

// Allows 判断状态码是否可缓存。nil 过滤器退化为仅缓存 200。
func (f *ResponseFilter) Allows(status int) bool {
	if f == nil || len(f.Statuses) == 0 {
		return status == http.StatusOK
	}
	for _, allowed := range f.Statuses {
		if status == allowed {
			return true
		}
	}
	return false
}
