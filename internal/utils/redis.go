// 包 utils：环境变量读取，以及 Redis 与 Postgres 连接工具
package utils

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	"route-api/internal/logger"
)

// 文档注释：从环境变量打开 Redis 客户端并探活
// 背景：REDIS_HOST/REDIS_PORT/REDIS_PASS/REDIS_DB 与其他服务共用同一组变量名。
// 约束：REDIS_DB 非法时回退 0；Ping 失败时关闭客户端并返回错误。
func OpenRedisFromEnv(ctx context.Context) (*redis.Client, error) {
	addr := net.JoinHostPort(EnvString("REDIS_HOST", "127.0.0.1"), EnvString("REDIS_PORT", "6379"))
	db := EnvInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: EnvString("REDIS_PASS", ""), DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return rdb, nil
}
