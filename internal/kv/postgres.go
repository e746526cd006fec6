package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// 文档注释：Postgres 后端
// 背景：表结构由 migrate.EnsureSchema 创建（_route_kv）；写入使用 upsert 覆盖旧值并刷新 updated_at。
// 约束：prefix 直接拼接到主键，用于多套部署共用同一库。
type Postgres struct {
	db     *sql.DB
	prefix string
}

func NewPostgres(db *sql.DB, prefix string) *Postgres {
	return &Postgres{db: db, prefix: prefix}
}

func (p *Postgres) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	err := p.db.QueryRowContext(ctx, `SELECT v FROM _route_kv WHERE k=$1`, p.prefix+key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv postgres: load %s: %w", key, err)
	}
	return b, true, nil
}

func (p *Postgres) Save(ctx context.Context, key string, b []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO _route_kv(k, v, updated_at) VALUES($1, $2, NOW())
		 ON CONFLICT (k) DO UPDATE SET v=EXCLUDED.v, updated_at=NOW()`,
		p.prefix+key, b)
	if err != nil {
		return fmt.Errorf("kv postgres: save %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM _route_kv WHERE k=$1`, p.prefix+key); err != nil {
		return fmt.Errorf("kv postgres: delete %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Keys(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT k FROM _route_kv WHERE starts_with(k, $1) ORDER BY k`, p.prefix)
	if err != nil {
		return nil, fmt.Errorf("kv postgres: list: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k[len(p.prefix):])
	}
	return out, rows.Err()
}
