package routeplan

import (
	"github.com/google/uuid"

	"route-api/internal/coord"
	"route-api/internal/model"
)

// AddWaypoint：追加航点并重新规划；ID 为空时分配新 ID
// 约束：解析进行中时作废该次解析，用户的编辑不会被旧结果覆盖。
func (s *Store) AddWaypoint(w model.Waypoint) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	s.mu.Lock()
	s.supersedeResolveLocked()
	ws := append(append([]model.Waypoint(nil), s.waypoints...), w)
	s.setWaypointsLocked(ws)
	s.mu.Unlock()
	s.emit(EventWaypoints)
	s.OptimizeRouteIfPossible()
}

// RemoveWaypoint：按 ID 删除，返回是否删除了航点
func (s *Store) RemoveWaypoint(id uuid.UUID) bool {
	return s.removeWhere(func(w model.Waypoint) bool { return w.ID == id }) > 0
}

// RemoveWaypointByKey：按稳定键删除（同键航点全部删除），返回删除个数
func (s *Store) RemoveWaypointByKey(key string) int {
	return s.removeWhere(func(w model.Waypoint) bool { return w.StableKey() == key })
}

func (s *Store) removeWhere(match func(model.Waypoint) bool) int {
	s.mu.Lock()
	ws := make([]model.Waypoint, 0, len(s.waypoints))
	for _, w := range s.waypoints {
		if !match(w) {
			ws = append(ws, w)
		}
	}
	removed := len(s.waypoints) - len(ws)
	if removed > 0 {
		s.supersedeResolveLocked()
		s.setWaypointsLocked(ws)
	}
	s.mu.Unlock()
	if removed > 0 {
		s.emit(EventWaypoints)
	}
	s.OptimizeRouteIfPossible()
	return removed
}

// ReplaceWaypoints：整体替换列表（作废进行中的解析）并重新规划
func (s *Store) ReplaceWaypoints(ws []model.Waypoint) {
	cp := make([]model.Waypoint, len(ws))
	for i, w := range ws {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		cp[i] = w
	}
	s.mu.Lock()
	s.bumpGenerationLocked()
	s.setWaypointsLocked(cp)
	s.mu.Unlock()
	s.emit(EventWaypoints)
	s.OptimizeRouteIfPossible()
}

// ClearWaypoints：清空列表与路线，不触发规划
func (s *Store) ClearWaypoints() {
	s.mu.Lock()
	s.bumpGenerationLocked()
	s.setWaypointsLocked(nil)
	s.route = nil
	s.optimizeSeq++
	s.isOptimizing = false
	s.mu.Unlock()
	s.emit(EventWaypoints, EventRoute)
}

func (s *Store) MarkCompleted(w model.Waypoint) {
	s.mu.Lock()
	s.completed[w.StableKey()] = struct{}{}
	s.saveCompletedLocked()
	s.mu.Unlock()
	s.emit(EventCompletion)
}

func (s *Store) UnmarkCompleted(w model.Waypoint) {
	s.mu.Lock()
	delete(s.completed, w.StableKey())
	s.saveCompletedLocked()
	s.mu.Unlock()
	s.emit(EventCompletion)
}

func (s *Store) IsCompleted(w model.Waypoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[w.StableKey()]
	return ok
}

// NextUncompletedIndex：首个未完成航点的位置，全部完成或列表为空时返回 false
func (s *Store) NextUncompletedIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waypoints {
		if _, ok := s.completed[w.StableKey()]; !ok {
			return i, true
		}
	}
	return 0, false
}

// 文档注释：地图定位
// 背景：设置单元素高亮列表并递增两个令牌；展示层以令牌递增作为镜头移动信号，而不是比较坐标值。
func (s *Store) JumpToMapTarget(t model.MapJumpTarget) (uint64, uint64) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	c := coord.Coordinate{Lat: t.Latitude, Lon: t.Longitude}.Rounded()
	hl := model.Waypoint{
		ID:                  uuid.New(),
		Name:                t.Name,
		Latitude:            c.Lat,
		Longitude:           c.Lon,
		ETA:                 "定位结果",
		StayDurationMinutes: 30,
		Role:                model.RoleStop,
		CoordinateSystem:    coord.GCJ02,
	}
	s.mu.Lock()
	s.jumpTarget = &t
	s.highlight = []model.Waypoint{hl}
	s.focusToken++
	s.tabJumpToken++
	focus, tab := s.focusToken, s.tabJumpToken
	s.mu.Unlock()
	s.emit(EventFocus)
	return focus, tab
}
