package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"route-api/internal/logger"
)

// 背景：首次运行自动创建键值表，供 kv.Postgres 存放校准表、完成集合与地理编码缓存
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _route_kv (
            k TEXT PRIMARY KEY,
            v BYTEA NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_route_kv_updated ON _route_kv(updated_at)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.L().Debug("schema_ready", "tables", "_route_kv")
	return nil
}
