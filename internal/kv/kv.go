// 包 kv：持久化键值端口与多种后端实现（内存、目录文件、Redis、Postgres、链式组合）
package kv

import (
	"context"
	"sort"
	"sync"
)

// 文档注释：键值存储端口
// 背景：路线存储只以整块 blob 读写三类状态（校准表、完成集合、地理编码缓存），不关心底层介质。
// 约束：Load 未命中返回 (nil, false, nil)；错误仅表示介质故障，调用方按“无历史状态”降级。
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, b []byte) error
	Delete(ctx context.Context, key string) error
}

// Lister：可枚举键的后端（维护工具使用）
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: map[string][]byte{}} }

func (s *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Memory) Save(_ context.Context, key string, b []byte) error {
	s.mu.Lock()
	s.m[key] = append([]byte(nil), b...)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
