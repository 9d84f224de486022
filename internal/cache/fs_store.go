package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整个进程复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一 Locator 并发写入，同时复用 basePath。
// 并发读与写之间依赖 rename 的原子性保证 last-write-wins。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// entryMeta 是 .meta.json 的磁盘结构，正文放在同名 .body 文件中。
type entryMeta struct {
	Key      string              `json:"key"`
	Status   int                 `json:"status"`
	Header   map[string][]string `json:"header,omitempty"`
	StoredAt time.Time           `json:"stored_at"`
}

const (
	bodySuffix = ".body"
	metaSuffix = ".meta.json"
)

func (s *fileStore) Get(ctx context.Context, locator Locator) (*Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bodyPath, metaPath, err := s.entryPaths(locator)
	if err != nil {
		return nil, err
	}

	rawMeta, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var meta entryMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, fmt.Errorf("decode cache metadata: %w", err)
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &Entry{
		Key:      meta.Key,
		Status:   meta.Status,
		Header:   meta.Header,
		Body:     body,
		StoredAt: meta.StoredAt,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, entry Entry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	bodyPath, metaPath, err := s.entryPaths(locator)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return err
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	meta := entryMeta{
		Key:      locator.Key,
		Status:   entry.Status,
		Header:   entry.Header,
		StoredAt: storedAt,
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode cache metadata: %w", err)
	}

	// 先落正文再落元数据：元数据是条目存在的判定依据，避免读到半成品。
	if err := writeAtomic(bodyPath, entry.Body); err != nil {
		return err
	}
	if err := writeAtomic(metaPath, rawMeta); err != nil {
		os.Remove(bodyPath)
		return err
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, locator Locator) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	bodyPath, metaPath, err := s.entryPaths(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) List(ctx context.Context, cacheName string) ([]EntryInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if cacheName == "" {
		return nil, errors.New("cache name required")
	}

	dir := filepath.Join(s.basePath, cacheName)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	infos := make([]EntryInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), metaSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			continue
		}
		var meta entryMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		infos = append(infos, EntryInfo{Key: meta.Key, StoredAt: meta.StoredAt})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StoredAt.Before(infos[j].StoredAt)
	})
	return infos, nil
}

func (s *fileStore) lockEntry(locator Locator) func() {
	key := locator.Cache + "::" + locator.Key
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// entryPaths 返回正文与元数据的绝对路径。key 经 sha1 摘要后落盘，
// 避免 URL 中的特殊字符穿透目录结构。
func (s *fileStore) entryPaths(locator Locator) (string, string, error) {
	if locator.Cache == "" {
		return "", "", errors.New("cache name required")
	}
	if locator.Key == "" {
		return "", "", errors.New("cache key required")
	}

	sum := sha1.Sum([]byte(locator.Key))
	name := hex.EncodeToString(sum[:])
	dir := filepath.Join(s.basePath, locator.Cache)
	return filepath.Join(dir, name+bodySuffix), filepath.Join(dir, name+metaSuffix), nil
}

func writeAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempName)
		return writeErr
	}

	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
