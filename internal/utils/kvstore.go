package utils

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"route-api/internal/kv"
	"route-api/internal/logger"
	"route-api/internal/migrate"
)

// 文档注释：按 KV_BACKEND 打开持久化后端
// 背景：memory|file|redis|postgres|chain 五种取值；chain 依次叠加 redis、postgres、file，
// 其中 redis 与 postgres 连接失败时跳过该层并记 warn，file 层始终存在。
// 约束：返回的 closer 负责释放数据库与 Redis 连接，调用方须在退出前调用。
func OpenKVFromEnv(ctx context.Context) (kv.Store, func(), error) {
	backend := strings.ToLower(EnvString("KV_BACKEND", "file"))
	prefix := EnvString("KV_PREFIX", kv.DefaultPrefix)
	dir := EnvString("KV_DIR", filepath.Join("data", "kv"))
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	openRedis := func() (*kv.Redis, error) {
		rdb, err := OpenRedisFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		return kv.NewRedis(rdb, prefix), nil
	}
	openPostgres := func() (*kv.Postgres, error) {
		db, err := OpenPostgresFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		return kv.NewPostgres(db, prefix), nil
	}

	l := logger.L()
	switch backend {
	case "memory":
		l.Info("kv_backend", "backend", backend)
		return kv.NewMemory(), closeAll, nil
	case "file":
		f, err := kv.NewFile(dir)
		if err != nil {
			return nil, closeAll, err
		}
		l.Info("kv_backend", "backend", backend, "dir", dir)
		return f, closeAll, nil
	case "redis":
		r, err := openRedis()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		l.Info("kv_backend", "backend", backend, "prefix", prefix)
		return r, closeAll, nil
	case "postgres":
		p, err := openPostgres()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		l.Info("kv_backend", "backend", backend, "prefix", prefix)
		return p, closeAll, nil
	case "chain":
		var tiers []kv.Store
		if r, err := openRedis(); err != nil {
			l.Warn("kv_tier_skipped", "tier", "redis", "err", err)
		} else {
			tiers = append(tiers, r)
		}
		if p, err := openPostgres(); err != nil {
			l.Warn("kv_tier_skipped", "tier", "postgres", "err", err)
		} else {
			tiers = append(tiers, p)
		}
		f, err := kv.NewFile(dir)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		tiers = append(tiers, f)
		l.Info("kv_backend", "backend", backend, "tiers", len(tiers), "dir", dir)
		return kv.NewChain(tiers...), closeAll, nil
	}
	return nil, func() {}, fmt.Errorf("kv backend %q: %w", backend, ErrUnknownBackend)
}

var ErrUnknownBackend = errors.New("unknown kv backend")
