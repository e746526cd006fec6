package routeplan

import (
	"sort"
	"time"

	"route-api/internal/coord"
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/model"
)

const (
	// inferenceStride：折线降采样步长
	inferenceStride = 4
	// inferenceMarginMeters：换算后中位距离需至少领先该值才判定为 WGS84
	inferenceMarginMeters = 20.0
)

// 文档注释：在条件满足时请求路线规划
// 背景：少于两个航点时清空路线；否则把应用坐标系覆盖后的航点交给规划端口，后台完成后写回并触发坐标系推断。
// 约束：结果回写前核对列表版本与请求序号，过期结果丢弃；失败时保留旧路线，只记录错误文本。
func (s *Store) OptimizeRouteIfPossible() {
	s.mu.Lock()
	if len(s.waypoints) < 2 {
		had := s.route != nil
		s.route = nil
		s.optimizeSeq++
		s.isOptimizing = false
		s.mu.Unlock()
		if had {
			s.emit(EventRoute)
		}
		return
	}
	if s.opt == nil {
		s.lastError = model.ErrNoOptimizer.Error()
		s.mu.Unlock()
		s.emit(EventError)
		return
	}
	input := make([]model.Waypoint, len(s.waypoints))
	for i, w := range s.waypoints {
		input[i] = w.WithCoordinateSystem(s.systemForLocked(w), w.IsAutoCoordinateSystem)
	}
	mode := s.transport
	version := s.listVersion
	s.optimizeSeq++
	seq := s.optimizeSeq
	s.isOptimizing = true
	s.lastError = ""
	s.mu.Unlock()

	metrics.RouteRequestsTotal.WithLabelValues(string(mode)).Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		route, err := s.opt.Optimize(s.ctx, input, mode)
		metrics.RouteDurationMs.Observe(float64(time.Since(start).Milliseconds()))
		s.applyRoute(version, seq, route, err)
	}()
}

func (s *Store) applyRoute(version, seq uint64, route model.OptimizedRoute, err error) {
	s.mu.Lock()
	if version != s.listVersion || seq != s.optimizeSeq {
		if seq == s.optimizeSeq {
			s.isOptimizing = false
		}
		cur := s.listVersion
		s.mu.Unlock()
		metrics.RouteStaleTotal.Inc()
		logger.Component("routeplan").Debug("route_result_stale", "version", version, "current", cur)
		return
	}
	s.isOptimizing = false
	if err != nil {
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.lastError = err.Error()
		s.mu.Unlock()
		metrics.RouteFailTotal.Inc()
		logger.Component("routeplan").Warn("route_optimize_failed", "err", err)
		s.emit(EventError)
		return
	}
	r := route.Clone()
	s.route = &r
	changed := s.inferCoordinateSystemLocked(r)
	s.mu.Unlock()
	logger.Component("routeplan").Info("route_optimized", "polyline", len(r.Polyline), "distance", r.TotalDistanceMeters, "duration", r.TotalDurationSeconds)
	if changed {
		s.emit(EventRoute, EventAdjustments)
		return
	}
	s.emit(EventRoute)
}

// 文档注释：坐标系自动推断
// 背景：只考察自动判定的航点。分别计算原始坐标与 WGS84->GCJ-02 换算后坐标到降采样折线的最近距离，
// 比较两组中位数：换算后中位数加 20 米仍小于原始中位数时判定为 WGS84，否则为 GCJ-02。
// 约束：锁定的航点不写入推断结果；仅在结果变化时持久化并清空展示缓存。
// 返回：是否有校准记录被改写。
func (s *Store) inferCoordinateSystemLocked(r model.OptimizedRoute) bool {
	var auto []model.Waypoint
	for _, w := range s.waypoints {
		if w.IsAutoCoordinateSystem {
			auto = append(auto, w)
		}
	}
	if len(auto) == 0 || len(r.Polyline) == 0 {
		return false
	}
	sampled := make([]coord.Coordinate, 0, len(r.Polyline)/inferenceStride+1)
	for i := 0; i < len(r.Polyline); i += inferenceStride {
		sampled = append(sampled, r.Polyline[i])
	}
	raw := make([]float64, len(auto))
	conv := make([]float64, len(auto))
	for i, w := range auto {
		raw[i] = nearestDistance(w.Raw(), sampled)
		conv[i] = nearestDistance(coord.WGS84ToGCJ02(w.Raw()), sampled)
	}
	rawMed, convMed := median(raw), median(conv)
	sys := coord.GCJ02
	if convMed+inferenceMarginMeters < rawMed {
		sys = coord.WGS84
	}
	metrics.InferenceTotal.WithLabelValues(string(sys)).Inc()
	logger.Component("routeplan").Debug("coord_system_inferred", "system", sys, "raw_median", rawMed, "converted_median", convMed, "auto", len(auto))

	changed := false
	for _, w := range auto {
		k := w.StableKey()
		adj := s.adjustments[k]
		if adj.IsLocked || adj.ResolvedCoordinateSystem == sys {
			continue
		}
		adj.ResolvedCoordinateSystem = sys
		s.adjustments[k] = adj
		changed = true
	}
	if changed {
		s.display = map[string]displayEntry{}
		s.saveAdjustmentsLocked()
	}
	return changed
}

func nearestDistance(p coord.Coordinate, line []coord.Coordinate) float64 {
	best := -1.0
	for _, q := range line {
		if d := coord.Distance(p, q); best < 0 || d < best {
			best = d
		}
	}
	return best
}

func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := append([]float64(nil), vs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
