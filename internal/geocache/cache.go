// 包 geocache：地名到 GCJ-02 坐标的两级缓存（进程内 + 持久化 blob）
package geocache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"route-api/internal/coord"
	"route-api/internal/kv"
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/model"
)

type Tier string

const (
	TierMemory Tier = "mem"
	TierDisk   Tier = "disk"
)

// Entry：持久化条目，坐标已是 GCJ-02 且保留 6 位小数
type Entry struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (e Entry) Coordinate() coord.Coordinate {
	return coord.Coordinate{Lat: e.Latitude, Lon: e.Longitude}
}

type Options struct {
	// TTL 为 0 表示不过期
	TTL time.Duration
	// MaxEntries 为 0 表示不限条数
	MaxEntries  int
	MemCapacity int
}

// 文档注释：两级地理编码缓存
// 背景：先查进程内 LRU，再查持久化表；持久化命中回填进程内层。写入同时落两层并立即保存 blob。
// 约束：持久化读失败或解码失败按空表处理；Load 时按 TTL 与条数上限裁剪。
type Cache struct {
	store kv.Store
	opts  Options
	now   func() time.Time

	mem  *lru
	mu   sync.Mutex
	disk map[string]Entry
}

func New(store kv.Store, opts Options) *Cache {
	return &Cache{
		store: store,
		opts:  opts,
		now:   time.Now,
		mem:   newLRU(opts.MemCapacity),
		disk:  map[string]Entry{},
	}
}

// NormalizeKey：去首尾空白并小写
func NormalizeKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Load：读取持久化表并执行一次过期裁剪
func (c *Cache) Load(ctx context.Context) error {
	m := map[string]Entry{}
	var loadErr error
	if c.store != nil {
		b, ok, err := c.store.Load(ctx, model.GeocodeCacheKey)
		switch {
		case err != nil:
			metrics.KVErrorsTotal.WithLabelValues("load").Inc()
			loadErr = fmt.Errorf("load geocode cache: %w", err)
		case ok && len(b) > 0:
			if err := json.Unmarshal(b, &m); err != nil {
				m = map[string]Entry{}
				loadErr = fmt.Errorf("decode geocode cache: %w", err)
			}
		}
	}
	c.mu.Lock()
	c.disk = m
	removed := c.expireLocked(c.now())
	c.mu.Unlock()
	logger.L().Debug("geocode_cache_loaded", "entries", len(m), "expired", removed)
	return loadErr
}

func (c *Cache) Get(name string) (coord.Coordinate, Tier, bool) {
	k := NormalizeKey(name)
	if v, ok := c.mem.get(k); ok {
		metrics.GeocodeCacheHitsTotal.WithLabelValues(string(TierMemory)).Inc()
		return v, TierMemory, true
	}
	c.mu.Lock()
	e, ok := c.disk[k]
	c.mu.Unlock()
	if !ok {
		return coord.Coordinate{}, "", false
	}
	if c.opts.TTL > 0 && c.now().Sub(e.UpdatedAt) > c.opts.TTL {
		return coord.Coordinate{}, "", false
	}
	v := e.Coordinate()
	c.mem.set(k, v)
	metrics.GeocodeCacheHitsTotal.WithLabelValues(string(TierDisk)).Inc()
	return v, TierDisk, true
}

// Put：写入两级缓存并立即持久化
func (c *Cache) Put(ctx context.Context, name string, v coord.Coordinate) error {
	k := NormalizeKey(name)
	v = v.Rounded()
	c.mem.set(k, v)
	c.mu.Lock()
	c.disk[k] = Entry{Latitude: v.Lat, Longitude: v.Lon, UpdatedAt: c.now()}
	c.expireLocked(c.now())
	b, err := json.Marshal(c.disk)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode geocode cache: %w", err)
	}
	return c.persist(ctx, b)
}

// ResetMemory：清空进程内层（导入新行程时调用）
func (c *Cache) ResetMemory() { c.mem.reset() }

// Expire：按 TTL 与条数上限裁剪持久化表，有变化时保存，返回删除条数
func (c *Cache) Expire(ctx context.Context, now time.Time) (int, error) {
	c.mu.Lock()
	removed := c.expireLocked(now)
	var b []byte
	var err error
	if removed > 0 {
		b, err = json.Marshal(c.disk)
	}
	c.mu.Unlock()
	if removed == 0 {
		return 0, nil
	}
	if err != nil {
		return removed, fmt.Errorf("encode geocode cache: %w", err)
	}
	return removed, c.persist(ctx, b)
}

// Flush：把当前持久化表整体写回（维护工具在 Load 裁剪后落盘）
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	b, err := json.Marshal(c.disk)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode geocode cache: %w", err)
	}
	return c.persist(ctx, b)
}

// Len：返回 (进程内条数, 持久化条数)
func (c *Cache) Len() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mem.len(), len(c.disk)
}

func (c *Cache) persist(ctx context.Context, b []byte) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, model.GeocodeCacheKey, b); err != nil {
		metrics.KVErrorsTotal.WithLabelValues("save").Inc()
		return fmt.Errorf("save geocode cache: %w", err)
	}
	return nil
}

func (c *Cache) expireLocked(now time.Time) int {
	removed := 0
	if c.opts.TTL > 0 {
		for k, e := range c.disk {
			if now.Sub(e.UpdatedAt) > c.opts.TTL {
				delete(c.disk, k)
				removed++
			}
		}
	}
	if c.opts.MaxEntries > 0 && len(c.disk) > c.opts.MaxEntries {
		keys := make([]string, 0, len(c.disk))
		for k := range c.disk {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, b := c.disk[keys[i]].UpdatedAt, c.disk[keys[j]].UpdatedAt
			if a.Equal(b) {
				return keys[i] < keys[j]
			}
			return a.Before(b)
		})
		for _, k := range keys[:len(keys)-c.opts.MaxEntries] {
			delete(c.disk, k)
			removed++
		}
	}
	return removed
}
