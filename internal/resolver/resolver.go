// 包 resolver：把行程活动解析为有序航点（显式坐标规整、地名地理编码、重试与兜底坐标）
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"route-api/internal/coord"
	"route-api/internal/geocache"
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/model"
)

// Geocoder：地名检索端口，返回 GCJ-02 坐标，city 为空表示不限城市
type Geocoder interface {
	Search(ctx context.Context, name, city string) ([]coord.Coordinate, error)
}

// FallbackAdvisory：存在兜底坐标时给出的提示
const FallbackAdvisory = "部分地点无法定位，已用默认位置展示"

// KnownCities：城市提示候选，按此顺序尝试
var KnownCities = []string{
	"潮州", "汕头", "揭阳", "普宁", "广州", "深圳", "珠海", "佛山", "东莞",
	"北京", "上海", "杭州", "南京", "苏州", "武汉", "长沙", "成都", "重庆",
	"西安", "天津", "青岛", "大连", "厦门", "福州", "昆明", "海口", "三亚",
}

// DefaultFallbackCenter：潮州古城附近
var DefaultFallbackCenter = coord.Coordinate{Lat: 23.657, Lon: 116.621}

const fallbackStep = 0.004

type Options struct {
	Attempts       int
	RetryDelay     time.Duration
	CityHints      []string
	FallbackCenter coord.Coordinate
}

func DefaultOptions() Options {
	return Options{
		Attempts:       2,
		RetryDelay:     600 * time.Millisecond,
		CityHints:      KnownCities,
		FallbackCenter: DefaultFallbackCenter,
	}
}

type Result struct {
	Waypoints []model.Waypoint
	Failed    int
	Advisory  string
}

type Resolver struct {
	geo   Geocoder
	cache *geocache.Cache
	opts  Options
}

// New：geo 为 nil 时所有需编码的活动都落到兜底坐标；cache 可为 nil
func New(geo Geocoder, cache *geocache.Cache, opts Options) *Resolver {
	d := DefaultOptions()
	if opts.Attempts <= 0 {
		opts.Attempts = d.Attempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.CityHints == nil {
		opts.CityHints = d.CityHints
	}
	if opts.FallbackCenter == (coord.Coordinate{}) {
		opts.FallbackCenter = d.FallbackCenter
	}
	return &Resolver{geo: geo, cache: cache, opts: opts}
}

// 文档注释：解析行程
// 背景：按天升序、天内原序逐个处理活动；显式坐标直接规整，否则查缓存再逐个城市候选调用地理编码；
// 全部失败时使用按序号偏移的兜底坐标，保证路线仍可渲染。
// 约束：每个活动之间及每次调用前检查 ctx；被取消时返回 model.ErrCanceled 且不返回部分结果。
func (r *Resolver) Resolve(ctx context.Context, it model.Itinerary) (Result, error) {
	acts := it.OrderedActivities()
	logger.Component("resolver").Debug("resolve_begin", "activities", len(acts), "title", it.Title)
	out := make([]model.Waypoint, 0, len(acts))
	failed := 0
	for i, a := range acts {
		if ctx.Err() != nil {
			return Result{}, model.ErrCanceled
		}
		if a.HasCoordinate() {
			c := coord.Normalize(*a.Latitude, *a.Longitude)
			if c.Valid() {
				sys, auto := model.DeclaredSystem(a)
				out = append(out, model.NewWaypoint(a, c, sys, auto))
				continue
			}
			// 交换后仍越界的坐标不进入路线与推断，按失败处理使用兜底坐标
			logger.Component("resolver").Warn("coordinate_invalid", "name", a.POIName, "lat", *a.Latitude, "lon", *a.Longitude)
			failed++
			metrics.GeocodeFallbackTotal.Inc()
			out = append(out, model.NewWaypoint(a, r.fallback(i), coord.GCJ02, false))
			continue
		}
		c, err := r.geocode(ctx, a.POIName, r.cityHints(a, it.Title))
		if errors.Is(err, model.ErrCanceled) {
			return Result{}, err
		}
		if err == nil {
			logger.Component("resolver").Debug("geocode_success", "name", a.POIName, "lat", c.Lat, "lon", c.Lon)
			out = append(out, model.NewWaypoint(a, c, coord.GCJ02, false))
			continue
		}
		logger.Component("resolver").Info("geocode_failed", "name", a.POIName, "err", err)
		failed++
		metrics.GeocodeFallbackTotal.Inc()
		out = append(out, model.NewWaypoint(a, r.fallback(i), coord.GCJ02, false))
	}
	model.AssignRoles(out)
	res := Result{Waypoints: out, Failed: failed}
	if failed > 0 {
		res.Advisory = FallbackAdvisory
	}
	logger.Component("resolver").Debug("resolve_done", "waypoints", len(out), "failed", failed)
	return res, nil
}

func (r *Resolver) fallback(index int) coord.Coordinate {
	off := float64(index) * fallbackStep
	return r.opts.FallbackCenter.Add(off, off*0.6).Rounded()
}

// cityHints：活动名、描述与行程标题中出现过的已知城市，保持列表顺序且去重
func (r *Resolver) cityHints(a model.Activity, title string) []string {
	corpus := a.POIName + " " + a.Description + " " + title
	seen := map[string]struct{}{}
	var out []string
	for _, c := range r.opts.CityHints {
		if _, ok := seen[c]; ok || !strings.Contains(corpus, c) {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// 文档注释：单个地名的地理编码
// 背景：候选顺序为命中的城市提示，最后一次不限城市；每个候选最多 Attempts 次，仅在调用出错时间隔 RetryDelay 重试，
// 空结果直接进入下一候选。
// 返回：首个非空结果的首个坐标（6 位小数）；全部失败返回 model.ErrNoResult。
func (r *Resolver) geocode(ctx context.Context, name string, hints []string) (coord.Coordinate, error) {
	if r.cache != nil {
		if c, tier, ok := r.cache.Get(name); ok {
			logger.Component("resolver").Debug("geocode_cache_hit", "name", name, "tier", tier)
			return c, nil
		}
	}
	if r.geo == nil {
		return coord.Coordinate{}, model.ErrNoResult
	}
	candidates := append(append([]string(nil), hints...), "")
	var lastErr error
	for _, city := range candidates {
		for attempt := 0; attempt < r.opts.Attempts; attempt++ {
			if ctx.Err() != nil {
				return coord.Coordinate{}, model.ErrCanceled
			}
			metrics.GeocodeRequestsTotal.Inc()
			start := time.Now()
			res, err := r.geo.Search(ctx, name, city)
			metrics.GeocodeDurationMs.Observe(float64(time.Since(start).Milliseconds()))
			if err != nil {
				if ctx.Err() != nil {
					return coord.Coordinate{}, model.ErrCanceled
				}
				metrics.GeocodeFailTotal.Inc()
				lastErr = err
				logger.Component("resolver").Debug("geocode_error", "name", name, "city", city, "attempt", attempt+1, "err", err)
				if attempt < r.opts.Attempts-1 && !sleep(ctx, r.opts.RetryDelay) {
					return coord.Coordinate{}, model.ErrCanceled
				}
				continue
			}
			if len(res) == 0 {
				logger.Component("resolver").Debug("geocode_empty", "name", name, "city", city)
				break
			}
			metrics.GeocodeSuccessTotal.Inc()
			c := res[0].Rounded()
			if ctx.Err() != nil {
				return coord.Coordinate{}, model.ErrCanceled
			}
			if r.cache != nil {
				if err := r.cache.Put(ctx, name, c); err != nil {
					logger.Component("resolver").Warn("geocode_cache_save_error", "name", name, "err", err)
				}
			}
			return c, nil
		}
	}
	if lastErr != nil {
		return coord.Coordinate{}, errors.Join(model.ErrNoResult, lastErr)
	}
	return coord.Coordinate{}, model.ErrNoResult
}

// sleep：可取消的等待，被取消返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
