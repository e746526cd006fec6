// 包 model：行程、航点、校准记录与路线结果等实体定义，以及持久化编解码
package model

import (
	"sort"

	"route-api/internal/coord"
)

// DefaultStayMinutes：行程未给出停留时长时的默认值
const DefaultStayMinutes = 60

// Itinerary：外部生成的行程（按天组织）
type Itinerary struct {
	Title string    `json:"title"`
	Days  []DayPlan `json:"days"`
}

type DayPlan struct {
	Day        int        `json:"day"`
	Activities []Activity `json:"activities"`
}

// 文档注释：单个活动
// 约束：Latitude/Longitude 同时非空才视为显式坐标；CoordinateSystem 为空表示未声明，由后续自动推断。
type Activity struct {
	Time                string       `json:"time"`
	POIName             string       `json:"poiName"`
	Description         string       `json:"description"`
	Type                string       `json:"type"`
	Latitude            *float64     `json:"latitude,omitempty"`
	Longitude           *float64     `json:"longitude,omitempty"`
	ETA                 string       `json:"eta,omitempty"`
	StayDurationMinutes *int         `json:"stayDurationMinutes,omitempty"`
	CoordinateSystem    coord.System `json:"coordinateSystem,omitempty"`
}

// HasCoordinate：是否携带显式经纬度
func (a Activity) HasCoordinate() bool { return a.Latitude != nil && a.Longitude != nil }

// EffectiveETA：未给出 eta 时回退为计划时间
func (a Activity) EffectiveETA() string {
	if a.ETA != "" {
		return a.ETA
	}
	return a.Time
}

func (a Activity) EffectiveStay() int {
	if a.StayDurationMinutes != nil {
		return *a.StayDurationMinutes
	}
	return DefaultStayMinutes
}

// 文档注释：按天升序展开活动
// 背景：天内顺序保持原样；相同天号按出现顺序稳定排序。
func (it Itinerary) OrderedActivities() []Activity {
	days := make([]DayPlan, len(it.Days))
	copy(days, it.Days)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	var out []Activity
	for _, d := range days {
		out = append(out, d.Activities...)
	}
	return out
}

// 文档注释：仅使用显式坐标生成航点（不做地理编码）
// 背景：用于已带坐标的行程快速预览；缺坐标或坐标越界的活动被跳过，角色在过滤后按位置分配。
func (it Itinerary) ToWaypoints() []Waypoint {
	acts := it.OrderedActivities()
	out := make([]Waypoint, 0, len(acts))
	for _, a := range acts {
		if !a.HasCoordinate() {
			continue
		}
		c := coord.Normalize(*a.Latitude, *a.Longitude)
		if !c.Valid() {
			continue
		}
		sys, auto := DeclaredSystem(a)
		out = append(out, NewWaypoint(a, c, sys, auto))
	}
	AssignRoles(out)
	return out
}

// DeclaredSystem：活动声明的坐标系，未声明时默认 WGS84 并标记为自动
func DeclaredSystem(a Activity) (coord.System, bool) {
	if a.CoordinateSystem == "" {
		return coord.WGS84, true
	}
	return a.CoordinateSystem, false
}
