// Package cache defines the disk-backed named cache partitions used by the
// request strategies and the precache index. Each entry keeps the full
// response (status, headers, body) as a body file plus a JSON metadata
// sidecar, written atomically via temp file + rename. The package also hosts
// the per-partition expiration policy (max age / max entries, applied lazily)
// and the cacheable-response status filter, so higher layers never duplicate
// filesystem or eviction logic.
package cache
