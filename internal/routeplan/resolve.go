package routeplan

import (
	"context"

	"route-api/internal/coord"
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/model"
)

// 文档注释：导入新行程
// 背景：取消进行中的解析，清空当前航点、路线与展示缓存，后台解析完成后按旅行方式重排、
// 裁剪完成集合并触发路线规划。
// 约束：解析结果回写前核对代次，被新行程取代的结果整体丢弃，不会与新列表混合。
func (s *Store) UpdateFromItinerary(it model.Itinerary) {
	s.mu.Lock()
	gen := s.bumpGenerationLocked()
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelResolve = cancel
	s.waypoints = nil
	s.listVersion++
	s.route = nil
	s.advisory = ""
	s.lastError = ""
	s.display = map[string]displayEntry{}
	s.isResolving = true
	version := s.listVersion
	s.mu.Unlock()

	s.geoCache.ResetMemory()
	metrics.ResolutionsTotal.WithLabelValues("started").Inc()
	s.emit(EventWaypoints, EventRoute)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		res, err := s.res.Resolve(ctx, it)

		s.mu.Lock()
		if err != nil || gen != s.generation || version != s.listVersion {
			s.mu.Unlock()
			metrics.ResolutionsTotal.WithLabelValues("canceled").Inc()
			logger.Component("routeplan").Debug("resolve_discarded", "generation", gen, "err", err)
			return
		}
		ws := res.Waypoints
		if s.travel == model.TravelWalking {
			ws = reorderForWalking(ws)
		}
		s.setWaypointsLocked(ws)
		s.display = map[string]displayEntry{}
		s.cancelResolve = nil
		s.isResolving = false
		s.advisory = res.Advisory
		s.pruneCompletedLocked()
		s.mu.Unlock()

		metrics.ResolutionsTotal.WithLabelValues("completed").Inc()
		logger.Component("routeplan").Info("resolve_applied", "waypoints", len(ws), "failed", res.Failed)
		events := []EventKind{EventWaypoints, EventCompletion}
		if res.Advisory != "" {
			events = append(events, EventAdvisory)
		}
		s.emit(events...)
		s.OptimizeRouteIfPossible()
	}()
}

// supersedeResolveLocked：解析进行中时作废之，供增删单个航点调用
func (s *Store) supersedeResolveLocked() {
	if s.isResolving {
		s.bumpGenerationLocked()
		logger.Component("routeplan").Debug("resolve_superseded", "generation", s.generation)
	}
}

// bumpGenerationLocked：作废进行中的解析，返回新代次
func (s *Store) bumpGenerationLocked() uint64 {
	s.generation++
	if s.cancelResolve != nil {
		s.cancelResolve()
		s.cancelResolve = nil
	}
	s.isResolving = false
	return s.generation
}

// setWaypointsLocked：替换列表、重新分配角色并推进列表版本
func (s *Store) setWaypointsLocked(ws []model.Waypoint) {
	s.waypoints = ws
	model.AssignRoles(s.waypoints)
	s.listVersion++
}

// pruneCompletedLocked：只保留当前列表中仍存在的完成键
func (s *Store) pruneCompletedLocked() {
	keep := make(map[string]struct{}, len(s.completed))
	for _, w := range s.waypoints {
		k := w.StableKey()
		if _, ok := s.completed[k]; ok {
			keep[k] = struct{}{}
		}
	}
	if len(keep) == len(s.completed) {
		return
	}
	s.completed = keep
	s.saveCompletedLocked()
}

// 文档注释：步行顺序重排
// 背景：首尾固定，从起点出发每次选择距当前位置最近的未访问途经点（原始坐标的球面距离）。
// 约束：不超过两个航点时原样返回；距离相同时保留原顺序中靠前者。
func reorderForWalking(ws []model.Waypoint) []model.Waypoint {
	if len(ws) <= 2 {
		return ws
	}
	stops := append([]model.Waypoint(nil), ws[1:len(ws)-1]...)
	out := make([]model.Waypoint, 0, len(ws))
	out = append(out, ws[0])
	cur := ws[0]
	for len(stops) > 0 {
		best := 0
		bestD := coord.Distance(cur.Raw(), stops[0].Raw())
		for i := 1; i < len(stops); i++ {
			if d := coord.Distance(cur.Raw(), stops[i].Raw()); d < bestD {
				best, bestD = i, d
			}
		}
		cur = stops[best]
		out = append(out, cur)
		stops = append(stops[:best], stops[best+1:]...)
	}
	return append(out, ws[len(ws)-1])
}

func (s *Store) SetTravelMode(m model.TravelMode) {
	s.mu.Lock()
	s.travel = m
	s.mu.Unlock()
}

// SetTransportMode：切换出行方式并重新规划
func (s *Store) SetTransportMode(m model.TransportMode) {
	s.mu.Lock()
	s.transport = m
	s.mu.Unlock()
	s.OptimizeRouteIfPossible()
}
