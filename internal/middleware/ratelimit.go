// 包 middleware：入口 HTTP 中间件
package middleware

import (
	"net/http"

	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/ratelimit"
	"route-api/internal/utils"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：前端在拖动校准与切换出行方式时会密集触发请求，入口限速避免反复压到路线规划上游。
// 约束：不做排队，超出配额直接返回 429。
func Limit(b *ratelimit.Bucket, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.Allow() {
			metrics.RequestsTotal.WithLabelValues("rate_limited").Inc()
			logger.L().Debug("rate_limited", "path", r.URL.Path, "ip", r.RemoteAddr)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Wrap：按 RATE_LIMIT_ENABLED / RATE_LIMIT_QPS 决定是否启用限流，未启用时原样返回
func Wrap(next http.Handler) http.Handler {
	if !utils.EnvBool("RATE_LIMIT_ENABLED", false) {
		return next
	}
	qps := utils.EnvInt("RATE_LIMIT_QPS", 200)
	if qps <= 0 {
		qps = 200
	}
	logger.L().Info("rate_limit_enabled", "qps", qps)
	return Limit(ratelimit.New(qps), next)
}
