package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"route-api/internal/coord"
)

type Role string

const (
	RoleStart Role = "start"
	RoleStop  Role = "stop"
	RoleEnd   Role = "end"
)

// 文档注释：航点
// 背景：Latitude/Longitude 为原始输入坐标（6 位小数），其坐标系由 CoordinateSystem 声明或推断；
// 展示坐标由路线存储按当前坐标系与人工偏移另行计算，不回写本结构。
type Waypoint struct {
	ID                     uuid.UUID    `json:"id"`
	Name                   string       `json:"name"`
	Latitude               float64      `json:"latitude"`
	Longitude              float64      `json:"longitude"`
	ETA                    string       `json:"eta"`
	StayDurationMinutes    int          `json:"stayDurationMinutes"`
	Role                   Role         `json:"kind"`
	CoordinateSystem       coord.System `json:"coordinateSystem"`
	IsAutoCoordinateSystem bool         `json:"isAutoCoordinateSystem"`
}

// NewWaypoint：由活动与已解析坐标构建航点，角色待 AssignRoles 统一分配
func NewWaypoint(a Activity, c coord.Coordinate, sys coord.System, auto bool) Waypoint {
	return Waypoint{
		ID:                     uuid.New(),
		Name:                   a.POIName,
		Latitude:               coord.Round6(c.Lat),
		Longitude:              coord.Round6(c.Lon),
		ETA:                    a.EffectiveETA(),
		StayDurationMinutes:    a.EffectiveStay(),
		Role:                   RoleStop,
		CoordinateSystem:       sys,
		IsAutoCoordinateSystem: auto,
	}
}

func (w Waypoint) Raw() coord.Coordinate { return coord.Coordinate{Lat: w.Latitude, Lon: w.Longitude} }

// 文档注释：稳定键
// 背景：名称去首尾空白并小写，拼接 6 位小数经纬度；作为校准、完成状态的关联键。
// 约束：同名同坐标的两个航点共享同一键。
func (w Waypoint) StableKey() string {
	name := strings.ToLower(strings.TrimSpace(w.Name))
	return fmt.Sprintf("%s|%.6f|%.6f", name, keyPart(w.Latitude), keyPart(w.Longitude))
}

// keyPart：-0 与 +0 以及舍入后为零的负小值使用同一键
func keyPart(v float64) float64 {
	if coord.Round6(v) == 0 {
		return 0
	}
	return v
}

func (w Waypoint) WithCoordinateSystem(sys coord.System, auto bool) Waypoint {
	w.CoordinateSystem = sys
	w.IsAutoCoordinateSystem = auto
	return w
}

// 文档注释：按位置分配角色
// 约束：非空列表恰有一个 start（首位）与一个 end（末位）；单元素列表仅有 start。
func AssignRoles(ws []Waypoint) {
	for i := range ws {
		switch {
		case i == 0:
			ws[i].Role = RoleStart
		case i == len(ws)-1:
			ws[i].Role = RoleEnd
		default:
			ws[i].Role = RoleStop
		}
	}
}

// MaxHistory：每个航点保留的人工校准记录上限
const MaxHistory = 20

// AdjustmentRecord：一次人工校准，记录设置的目标绝对坐标（GCJ-02）
type AdjustmentRecord struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

func (r AdjustmentRecord) Coordinate() coord.Coordinate {
	return coord.Coordinate{Lat: r.Latitude, Lon: r.Longitude}
}

// 文档注释：航点校准状态（以稳定键索引）
// 背景：偏移叠加到坐标系换算后的基准坐标上得到展示坐标；ResolvedCoordinateSystem 非空时覆盖航点声明的坐标系。
// 约束：IsLocked 为真时自动推断不得改写 ResolvedCoordinateSystem。
type WaypointAdjustment struct {
	OffsetLatitude           float64            `json:"offsetLatitude"`
	OffsetLongitude          float64            `json:"offsetLongitude"`
	IsLocked                 bool               `json:"isLocked"`
	History                  []AdjustmentRecord `json:"history"`
	ResolvedCoordinateSystem coord.System       `json:"resolvedCoordinateSystem,omitempty"`
}

// AppendHistory：追加记录并只保留最近 MaxHistory 条
func (a *WaypointAdjustment) AppendHistory(r AdjustmentRecord) {
	a.History = append(a.History, r)
	if n := len(a.History); n > MaxHistory {
		a.History = append([]AdjustmentRecord(nil), a.History[n-MaxHistory:]...)
	}
}

func (a WaypointAdjustment) FindRecord(id uuid.UUID) (AdjustmentRecord, bool) {
	for _, r := range a.History {
		if r.ID == id {
			return r, true
		}
	}
	return AdjustmentRecord{}, false
}

// DeviationThresholdMeters：展示坐标偏离基准坐标超过该距离时产生告警
const DeviationThresholdMeters = 5.0

type DeviationWarning struct {
	Key    string  `json:"key"`
	Name   string  `json:"name"`
	Meters float64 `json:"meters"`
}

// MapJumpTarget：一次性定位目标（GCJ-02），Source 描述来源（搜索、导入等）
type MapJumpTarget struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Source    string    `json:"source"`
}
