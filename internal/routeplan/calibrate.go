package routeplan

import (
	"time"

	"github.com/google/uuid"

	"route-api/internal/coord"
	"route-api/internal/logger"
	"route-api/internal/model"
)

// systemForLocked：推断结果优先，否则用航点声明的坐标系
func (s *Store) systemForLocked(w model.Waypoint) coord.System {
	if adj, ok := s.adjustments[w.StableKey()]; ok && adj.ResolvedCoordinateSystem != "" {
		return adj.ResolvedCoordinateSystem
	}
	return w.CoordinateSystem
}

func (s *Store) baseLocked(w model.Waypoint) coord.Coordinate {
	return coord.ToGCJ02(w.Raw(), s.systemForLocked(w))
}

// 文档注释：航点展示坐标（GCJ-02）
// 背景：原始坐标按当前坐标系换算为基准坐标，再叠加人工偏移；按稳定键缓存，基准与偏移均未变化时直接返回缓存值。
// 约束：重新计算时同步更新偏离告警；返回值保留 6 位小数。
func (s *Store) DisplayCoordinate(w model.Waypoint) coord.Coordinate {
	s.mu.Lock()
	key := w.StableKey()
	base := s.baseLocked(w)
	adj := s.adjustments[key]
	if e, ok := s.display[key]; ok && e.base == base && e.offLat == adj.OffsetLatitude && e.offLon == adj.OffsetLongitude {
		s.mu.Unlock()
		return e.value
	}
	adjusted := base.Add(adj.OffsetLatitude, adj.OffsetLongitude)
	v := adjusted.Rounded()
	s.display[key] = displayEntry{base: base, offLat: adj.OffsetLatitude, offLon: adj.OffsetLongitude, value: v}
	changed := s.updateDeviationLocked(key, w.Name, base, adjusted)
	s.mu.Unlock()
	if changed {
		s.emit(EventDeviation)
	}
	return v
}

// updateDeviationLocked：超过阈值时设置告警；同一航点回落到阈值内时清除，返回告警是否变化
func (s *Store) updateDeviationLocked(key, name string, base, adjusted coord.Coordinate) bool {
	d := coord.Distance(base, adjusted)
	if d > model.DeviationThresholdMeters {
		s.deviation = &model.DeviationWarning{Key: key, Name: name, Meters: d}
		return true
	}
	if s.deviation != nil && s.deviation.Key == key {
		s.deviation = nil
		return true
	}
	return false
}

// 文档注释：人工校准
// 背景：偏移 = 目标坐标 - 基准坐标；recordHistory 为真时追加一条历史（只保留最近 20 条）。
// 约束：目标坐标须为合法经纬度；写入后立即持久化并使该航点的展示缓存失效。
func (s *Store) applyAdjustment(w model.Waypoint, target coord.Coordinate, recordHistory, lock bool) error {
	if !target.Valid() {
		return model.ErrInvalidCoordinate
	}
	s.mu.Lock()
	key := w.StableKey()
	base := s.baseLocked(w)
	adj := s.adjustments[key]
	adj.OffsetLatitude = target.Lat - base.Lat
	adj.OffsetLongitude = target.Lon - base.Lon
	if recordHistory {
		adj.AppendHistory(model.AdjustmentRecord{
			ID:        uuid.New(),
			Timestamp: time.Now(),
			Latitude:  target.Lat,
			Longitude: target.Lon,
		})
	}
	if lock {
		adj.IsLocked = true
	}
	s.adjustments[key] = adj
	delete(s.display, key)
	devChanged := s.updateDeviationLocked(key, w.Name, base, target)
	s.saveAdjustmentsLocked()
	s.mu.Unlock()

	logger.Component("routeplan").Debug("waypoint_adjusted", "key", key, "offset_lat", adj.OffsetLatitude, "offset_lon", adj.OffsetLongitude, "history", recordHistory)
	if devChanged {
		s.emit(EventAdjustments, EventDeviation)
	} else {
		s.emit(EventAdjustments)
	}
	return nil
}

// ApplyManualAdjustment：把航点展示位置校准到目标 GCJ-02 坐标
func (s *Store) ApplyManualAdjustment(w model.Waypoint, target coord.Coordinate) error {
	return s.applyAdjustment(w, target, true, false)
}

// ApplyKnownCoordinate：已知任意坐标系下的准确位置，先换算为 GCJ-02 再校准；lock 为真时同时锁定
func (s *Store) ApplyKnownCoordinate(w model.Waypoint, c coord.Coordinate, sys coord.System, lock bool) error {
	if !c.Valid() {
		return model.ErrInvalidCoordinate
	}
	return s.applyAdjustment(w, coord.ToGCJ02(c, sys), true, lock)
}

// RestoreHistory：重新应用某条历史记录的目标坐标，不追加新记录
func (s *Store) RestoreHistory(w model.Waypoint, recordID uuid.UUID) error {
	s.mu.Lock()
	rec, ok := s.adjustments[w.StableKey()].FindRecord(recordID)
	s.mu.Unlock()
	if !ok {
		return model.ErrNotFound
	}
	return s.applyAdjustment(w, rec.Coordinate(), false, false)
}

// ToggleLock：切换锁定状态并返回新状态
func (s *Store) ToggleLock(w model.Waypoint) bool {
	s.mu.Lock()
	key := w.StableKey()
	adj := s.adjustments[key]
	adj.IsLocked = !adj.IsLocked
	s.adjustments[key] = adj
	s.saveAdjustmentsLocked()
	s.mu.Unlock()
	s.emit(EventAdjustments)
	return adj.IsLocked
}

func (s *Store) IsLocked(w model.Waypoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustments[w.StableKey()].IsLocked
}

// History：校准历史（旧到新）
func (s *Store) History(w model.Waypoint) []model.AdjustmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AdjustmentRecord(nil), s.adjustments[w.StableKey()].History...)
}

// Adjustment：航点的校准状态，未创建时返回 false
func (s *Store) Adjustment(w model.Waypoint) (model.WaypointAdjustment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	adj, ok := s.adjustments[w.StableKey()]
	if !ok {
		return model.WaypointAdjustment{}, false
	}
	adj.History = append([]model.AdjustmentRecord(nil), adj.History...)
	return adj, true
}

// 文档注释：清理孤立校准
// 背景：校准表从不自动删除；此处删除当前列表中不存在且未锁定的条目。
// 返回：删除条数。
func (s *Store) PruneAdjustments() int {
	s.mu.Lock()
	live := make(map[string]struct{}, len(s.waypoints))
	for _, w := range s.waypoints {
		live[w.StableKey()] = struct{}{}
	}
	n := PruneOrphaned(s.adjustments, live)
	if n > 0 {
		s.saveAdjustmentsLocked()
	}
	s.mu.Unlock()
	if n > 0 {
		logger.Component("routeplan").Info("adjustments_pruned", "removed", n)
		s.emit(EventAdjustments)
	}
	return n
}

// PruneOrphaned：从校准表删除不在 live 中且未锁定的条目，返回删除条数（维护工具复用）
func PruneOrphaned(m map[string]model.WaypointAdjustment, live map[string]struct{}) int {
	n := 0
	for k, adj := range m {
		if _, ok := live[k]; ok || adj.IsLocked {
			continue
		}
		delete(m, k)
		n++
	}
	return n
}
