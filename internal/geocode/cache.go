package geocode

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"ContractSync/internal/model"

	"github.com/cockroachdb/pebble"
)

// Cache 查询串到坐标的缓存，只保存服务真实返回的结果
type Cache interface {
	Get(query string) (model.Point, bool)
	Put(query string, p model.Point) error
	Close() error
}

// PebbleCache 磁盘缓存，跨进程重启保留
type PebbleCache struct {
	db *pebble.DB
}

func OpenPebbleCache(dir string) (*PebbleCache, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleCache{db: db}, nil
}

func (c *PebbleCache) Get(query string) (model.Point, bool) {
	v, closer, err := c.db.Get([]byte(query))
	if err != nil {
		return model.Point{}, false
	}
	defer closer.Close()
	var p model.Point
	if err := json.Unmarshal(v, &p); err != nil {
		return model.Point{}, false
	}
	return p, true
}

func (c *PebbleCache) Put(query string, p model.Point) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	// WAL 负责持久化，这里不强制 fsync
	return c.db.Set([]byte(query), b, pebble.NoSync)
}

func (c *PebbleCache) Close() error { return c.db.Close() }

// MemoryCache 进程内缓存
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]model.Point
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]model.Point)}
}

func (c *MemoryCache) Get(query string) (model.Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.m[query]
	return p, ok
}

func (c *MemoryCache) Put(query string, p model.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[query] = p
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// OpenCache 配置了目录时用 pebble，否则用内存缓存
func OpenCache(dir string) (Cache, error) {
	if dir == "" {
		return NewMemoryCache(), nil
	}
	c, err := OpenPebbleCache(dir)
	if err != nil {
		return nil, fmt.Errorf("打开地理编码缓存失败: %w", err)
	}
	return c, nil
}
