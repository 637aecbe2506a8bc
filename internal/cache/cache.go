// Package cache 提供按文件身份索引的提取结果缓存
// 键是 (路径, 大小, 修改时间) 三元组：文件内容一变，旧条目立即失效并被清除
package cache

import (
	"os"
	"sync"

	"docAnalyzer/internal/logger"
	"docAnalyzer/internal/metrics"
	"docAnalyzer/internal/model"
)

// Key 文件身份键
type Key struct {
	Path  string
	Size  int64
	MTime int64 // UnixNano
}

// KeyFor 对文件取身份键
func KeyFor(path string) (Key, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Key{}, err
	}
	return Key{
		Path:  path,
		Size:  info.Size(),
		MTime: info.ModTime().UnixNano(),
	}, nil
}

type entry struct {
	key Key
	doc *model.Document
}

// Cache 结果缓存
// 内存层必有；store 非空时条目同步落盘，进程重启后可恢复
type Cache struct {
	mu          sync.Mutex
	entries     map[string]entry
	order       []string // 插入顺序，容量超限时先进先出淘汰
	memoryLimit int
	store       *Store
}

// New 创建内存缓存
// memoryLimit <= 0 表示不限制条目数
func New(memoryLimit int) *Cache {
	return &Cache{
		entries:     make(map[string]entry),
		memoryLimit: memoryLimit,
	}
}

// NewWithStore 创建带持久层的缓存，并从持久层恢复条目
// 恢复的条目不做提前校验：Get 时的重新 stat 自然会淘汰过期条目
func NewWithStore(memoryLimit int, store *Store) (*Cache, error) {
	c := New(memoryLimit)
	c.store = store

	entries, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		c.entries[e.key.Path] = e
		c.order = append(c.order, e.key.Path)
	}
	logger.Info("Cache restored from store", "entries", len(entries))
	return c, nil
}

// Get 查询缓存
// 每次查询都重新 stat 文件：身份不符的条目按过期处理，当场淘汰并回报 miss
func (c *Cache) Get(path string) (*model.Document, bool, error) {
	current, err := KeyFor(path)
	if err != nil {
		// 文件都读不了，按 miss 处理，由上层的提取流程去报错
		metrics.Default().CacheMissesTotal.Inc()
		return nil, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		metrics.Default().CacheMissesTotal.Inc()
		return nil, false, nil
	}

	// 不变量：条目里的文档必须属于这个键
	if e.doc == nil || e.doc.SourcePath != path {
		c.evictLocked(path)
		metrics.Default().CacheMissesTotal.Inc()
		return nil, false, &CacheInconsistencyError{
			Path:   path,
			Detail: "条目内容与键不匹配",
		}
	}

	if e.key != current {
		// 过期：淘汰 + miss
		c.evictLocked(path)
		metrics.Default().CacheEvictionsTotal.Inc()
		metrics.Default().CacheMissesTotal.Inc()
		return nil, false, nil
	}

	metrics.Default().CacheHitsTotal.Inc()
	return e.doc, true, nil
}

// Put 写入缓存
// 只应在任务成功后调用；写入时按当前文件状态取键
func (c *Cache) Put(path string, doc *model.Document) error {
	if doc == nil || doc.SourcePath != path {
		return &CacheInconsistencyError{
			Path:   path,
			Detail: "写入的文档不属于这个键",
		}
	}

	key, err := KeyFor(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[path]; !exists {
		c.order = append(c.order, path)
	}
	c.entries[path] = entry{key: key, doc: doc}

	// 容量超限先进先出淘汰
	for c.memoryLimit > 0 && len(c.entries) > c.memoryLimit {
		oldest := c.order[0]
		c.evictLocked(oldest)
		metrics.Default().CacheEvictionsTotal.Inc()
	}

	if c.store != nil {
		if err := c.store.Save(key, doc); err != nil {
			logger.Warn("Cache store save failed", "path", path, "error", err)
		}
	}
	return nil
}

// Invalidate 手动淘汰一个条目
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(path)
}

// Clear 清空缓存
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.order = nil
	if c.store != nil {
		if err := c.store.Reset(); err != nil {
			logger.Warn("Cache store reset failed", "error", err)
		}
	}
}

// Len 当前条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked 删除条目，调用方持锁
func (c *Cache) evictLocked(path string) {
	delete(c.entries, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.store != nil {
		if err := c.store.Delete(path); err != nil {
			logger.Warn("Cache store delete failed", "path", path, "error", err)
		}
	}
}
