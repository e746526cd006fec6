package kv

import (
	"context"
	"errors"
	"sort"

	"route-api/internal/logger"
	"route-api/internal/metrics"
)

// 文档注释：链式存储
// 背景：读按顺序逐层尝试，命中下层时回填上层（如内存 -> Redis -> Postgres）；写与删作用于全部层。
// 约束：任一层写失败时其余层仍会写入，错误合并返回；读时某层报错记日志后继续下一层。
type Chain struct {
	list []Store
}

func NewChain(list ...Store) *Chain {
	var ss []Store
	for _, s := range list {
		if s != nil {
			ss = append(ss, s)
		}
	}
	return &Chain{list: ss}
}

func (c *Chain) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var errs []error
	for i, s := range c.list {
		b, ok, err := s.Load(ctx, key)
		if err != nil {
			metrics.KVErrorsTotal.WithLabelValues("load").Inc()
			logger.L().Warn("kv_chain_load_error", "key", key, "tier", i, "err", err)
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		for j := 0; j < i; j++ {
			if err := c.list[j].Save(ctx, key, b); err != nil {
				logger.L().Debug("kv_chain_backfill_error", "key", key, "tier", j, "err", err)
			}
		}
		return b, true, nil
	}
	return nil, false, errors.Join(errs...)
}

func (c *Chain) Save(ctx context.Context, key string, b []byte) error {
	var errs []error
	for _, s := range c.list {
		if err := s.Save(ctx, key, b); err != nil {
			metrics.KVErrorsTotal.WithLabelValues("save").Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, s := range c.list {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys：合并所有可枚举层的键
func (c *Chain) Keys(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, s := range c.list {
		l, ok := s.(Lister)
		if !ok {
			continue
		}
		ks, err := l.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range ks {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
