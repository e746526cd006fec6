package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix：Redis/Postgres 后端的默认键前缀
const DefaultPrefix = "routeplan:"

// 文档注释：Redis 后端
// 背景：blob 以字符串值存放，键加前缀以便与其他业务共用实例；枚举使用 SCAN 避免 KEYS 阻塞。
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Load(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv redis: get %s: %w", key, err)
	}
	return b, true, nil
}

func (r *Redis) Save(ctx context.Context, key string, b []byte) error {
	if err := r.rdb.Set(ctx, r.key(key), b, 0).Err(); err != nil {
		return fmt.Errorf("kv redis: set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("kv redis: del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("kv redis: scan: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
