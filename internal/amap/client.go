// 包 amap：高德 Web 服务 REST 适配器，实现地理编码与路线规划端口
package amap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"route-api/internal/coord"
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/ratelimit"
)

const DefaultBaseURL = "https://restapi.amap.com"

var (
	ErrMissingKey = errors.New("amap: missing key")
	ErrStatus     = errors.New("amap: status not ok")
)

// envelope：所有接口共有的状态字段
type envelope struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	Infocode string `json:"infocode"`
}

type Options struct {
	Key     string
	BaseURL string
	// QPS<=0 表示不限速
	QPS     int
	Timeout time.Duration
	Client  *http.Client
}

// 文档注释：高德 REST 客户端
// 背景：地理编码与路线规划共用同一个 HTTP 客户端与每秒限速器；高德免费配额按秒计数，超限返回 infocode 10021。
// 约束：Key 必填；响应 status!="1" 视为失败并包装 ErrStatus。
type Client struct {
	key     string
	base    string
	http    *http.Client
	limiter *ratelimit.Bucket
}

func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		key:     o.Key,
		base:    strings.TrimRight(o.BaseURL, "/"),
		http:    o.Client,
		limiter: ratelimit.New(o.QPS),
	}
}

// get：发起 GET 请求并把响应解码到 out，out 须内嵌 envelope
func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{ status() envelope }) error {
	if c.key == "" {
		return ErrMissingKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	q.Set("key", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	t0 := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.AMapRequestsTotal.WithLabelValues(path, "http_error").Inc()
		logger.L().Debug("amap_http_error", "path", path, "err", err)
		return fmt.Errorf("amap %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.AMapRequestsTotal.WithLabelValues(path, "http_error").Inc()
		return fmt.Errorf("amap %s: http %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.AMapRequestsTotal.WithLabelValues(path, "decode_error").Inc()
		return fmt.Errorf("amap %s: decode: %w", path, err)
	}
	env := out.status()
	logger.L().Debug("amap_resp", "path", path, "status", env.Status, "infocode", env.Infocode, "duration_ms", time.Since(t0).Milliseconds())
	if env.Status != "1" {
		metrics.AMapRequestsTotal.WithLabelValues(path, "status_error").Inc()
		return fmt.Errorf("%w: %s (%s)", ErrStatus, env.Info, env.Infocode)
	}
	metrics.AMapRequestsTotal.WithLabelValues(path, "ok").Inc()
	return nil
}

func (e envelope) status() envelope { return e }

// lonLat：高德坐标串格式“经度,纬度”，保留 6 位小数
func lonLat(c coord.Coordinate) string {
	return strconv.FormatFloat(c.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}

// parseLonLat：解析“经度,纬度”
func parseLonLat(s string) (coord.Coordinate, bool) {
	lon, lat, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return coord.Coordinate{}, false
	}
	x, err1 := strconv.ParseFloat(lon, 64)
	y, err2 := strconv.ParseFloat(lat, 64)
	if err1 != nil || err2 != nil {
		return coord.Coordinate{}, false
	}
	c := coord.Coordinate{Lat: y, Lon: x}
	return c, c.Valid()
}

// parsePolyline：解析“经度,纬度;经度,纬度”，跳过非法片段
func parsePolyline(s string) []coord.Coordinate {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]coord.Coordinate, 0, len(parts))
	for _, p := range parts {
		if c, ok := parseLonLat(p); ok {
			out = append(out, c)
		}
	}
	return out
}

// atoi：高德数值字段多以字符串返回，空串或非法时为 0
func atoi(s string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return int(f)
	}
	return 0
}
