package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// 持久化键：三类状态各自独立存取，任一损坏不影响其余两类
const (
	AdjustmentsKey  = "route_waypoint_adjustments_v1"
	CompletedKey    = "route_completed_v1"
	GeocodeCacheKey = "route_geocode_cache_v1"
)

func EncodeAdjustments(m map[string]WaypointAdjustment) ([]byte, error) {
	if m == nil {
		m = map[string]WaypointAdjustment{}
	}
	return json.Marshal(m)
}

// 文档注释：解码校准表
// 约束：空数据返回空表；解码失败返回空表与错误，由调用方记录后按“无历史状态”处理。
func DecodeAdjustments(b []byte) (map[string]WaypointAdjustment, error) {
	out := map[string]WaypointAdjustment{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]WaypointAdjustment{}, fmt.Errorf("decode adjustments: %w", err)
	}
	if out == nil {
		out = map[string]WaypointAdjustment{}
	}
	return out, nil
}

// EncodeKeySet：按字典序输出，保证同一集合编码结果稳定
func EncodeKeySet(set map[string]struct{}) ([]byte, error) {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return json.Marshal(keys)
}

func DecodeKeySet(b []byte) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if len(b) == 0 {
		return out, nil
	}
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return out, fmt.Errorf("decode key set: %w", err)
	}
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}
