package model

import (
	"strings"

	"route-api/internal/coord"
)

// TransportMode：请求路线规划时的出行方式
type TransportMode string

const (
	TransportDriving TransportMode = "driving"
	TransportWalking TransportMode = "walking"
	TransportCycling TransportMode = "cycling"
)

func ParseTransportMode(s string) (TransportMode, bool) {
	switch TransportMode(strings.ToLower(strings.TrimSpace(s))) {
	case TransportDriving:
		return TransportDriving, true
	case TransportWalking:
		return TransportWalking, true
	case TransportCycling:
		return TransportCycling, true
	}
	return "", false
}

// TravelMode：用户偏好的旅行方式，walking 时对航点做就近重排
type TravelMode string

const (
	TravelDriving TravelMode = "driving"
	TravelTaxi    TravelMode = "taxi"
	TravelTransit TravelMode = "transit"
	TravelWalking TravelMode = "walking"
)

func ParseTravelMode(s string) (TravelMode, bool) {
	switch TravelMode(strings.ToLower(strings.TrimSpace(s))) {
	case TravelDriving:
		return TravelDriving, true
	case TravelTaxi:
		return TravelTaxi, true
	case TravelTransit:
		return TravelTransit, true
	case TravelWalking:
		return TravelWalking, true
	}
	return "", false
}

// 文档注释：路线规划结果
// 约束：Polyline 为 GCJ-02；整体替换，不做局部修改。
type OptimizedRoute struct {
	Polyline             []coord.Coordinate `json:"polyline"`
	TotalDistanceMeters  int                `json:"totalDistanceMeters"`
	TotalDurationSeconds int                `json:"totalDurationSeconds"`
	CongestionIndex      float64            `json:"congestionIndex"`
	TrafficLightCount    int                `json:"trafficLightCount"`
	Segments             []RouteSegment     `json:"segments,omitempty"`
}

type RouteSegment struct {
	Instruction     string `json:"instruction"`
	DistanceMeters  int    `json:"distanceMeters"`
	DurationSeconds int    `json:"durationSeconds"`
	Action          string `json:"action,omitempty"`
}

// Clone：深拷贝，避免调用方持有内部切片
func (r OptimizedRoute) Clone() OptimizedRoute {
	r.Polyline = append([]coord.Coordinate(nil), r.Polyline...)
	r.Segments = append([]RouteSegment(nil), r.Segments...)
	return r
}
