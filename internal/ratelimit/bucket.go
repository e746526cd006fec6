// 包 ratelimit：按自然秒重置的计数令牌桶，入口限流与出站调用共用
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// 文档注释：每秒令牌桶
// 背景：入口限流用 Allow 直接丢弃超额请求；出站调用用 Wait 等到下一秒再发。
// 约束：capacity<=0 时不限速；nil 桶同样不限速。
type Bucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func New(qps int) *Bucket { return NewWithClock(qps, time.Now) }

// NewWithClock：使用给定时钟（测试固定时间）
func NewWithClock(qps int, now func() time.Time) *Bucket {
	return &Bucket{capacity: qps, tokens: qps, lastSec: now().Unix(), now: now}
}

// reserve：取得令牌返回 0，否则返回到下一秒的等待时长
func (b *Bucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if sec := now.Unix(); sec != b.lastSec {
		b.lastSec = sec
		b.tokens = b.capacity
	}
	if b.tokens > 0 {
		b.tokens--
		return 0
	}
	return time.Unix(b.lastSec+1, 0).Sub(now)
}

func (b *Bucket) unlimited() bool { return b == nil || b.capacity <= 0 }

// Allow：本秒仍有配额时消耗一个令牌并返回 true
func (b *Bucket) Allow() bool {
	if b.unlimited() {
		return true
	}
	return b.reserve() == 0
}

// Wait：阻塞直到取得令牌或 ctx 结束
func (b *Bucket) Wait(ctx context.Context) error {
	if b.unlimited() {
		return ctx.Err()
	}
	for {
		d := b.reserve()
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
