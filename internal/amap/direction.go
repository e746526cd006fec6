package amap

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"route-api/internal/coord"
	"route-api/internal/model"
)

// MaxVia：驾车途经点上限
const MaxVia = 16

type cost struct {
	Duration      string `json:"duration"`
	TrafficLights string `json:"traffic_lights"`
}

type tmc struct {
	Status   string `json:"tmc_status"`
	Distance string `json:"tmc_distance"`
}

type step struct {
	Instruction  string `json:"instruction"`
	StepDistance string `json:"step_distance"`
	Duration     string `json:"duration"`
	Cost         cost   `json:"cost"`
	Polyline     string `json:"polyline"`
	Navi         struct {
		Action string `json:"action"`
	} `json:"navi"`
	Tmcs []tmc `json:"tmcs"`
}

type path struct {
	Distance string `json:"distance"`
	Duration string `json:"duration"`
	Cost     cost   `json:"cost"`
	Steps    []step `json:"steps"`
}

type directionResponse struct {
	envelope
	Route struct {
		Paths []path `json:"paths"`
	} `json:"route"`
}

// 文档注释：路线规划（v5/direction）
// 背景：驾车支持途经点（超过 16 个时均匀抽样）；步行与骑行只用起终点。航点按各自坐标系换算为 GCJ-02 后提交。
// 返回：首条方案的折线、总里程、总时长、红绿灯数与分段；拥堵指数为缓行/拥堵路段按里程加权的占比（0~1）。
func (c *Client) Optimize(ctx context.Context, ws []model.Waypoint, mode model.TransportMode) (model.OptimizedRoute, error) {
	if len(ws) < 2 {
		return model.OptimizedRoute{}, model.ErrTooFewWaypoints
	}
	pts := make([]coord.Coordinate, len(ws))
	for i, w := range ws {
		pts[i] = coord.ToGCJ02(w.Raw(), w.CoordinateSystem)
	}
	q := url.Values{}
	q.Set("origin", lonLat(pts[0]))
	q.Set("destination", lonLat(pts[len(pts)-1]))
	q.Set("show_fields", "cost,polyline,navi")
	var p string
	switch mode {
	case model.TransportWalking:
		p = "/v5/direction/walking"
	case model.TransportCycling:
		p = "/v5/direction/bicycling"
	default:
		p = "/v5/direction/driving"
		q.Set("show_fields", "cost,polyline,navi,tmcs")
		if via := SampleVia(pts[1:len(pts)-1], MaxVia); len(via) > 0 {
			parts := make([]string, len(via))
			for i, v := range via {
				parts[i] = lonLat(v)
			}
			q.Set("waypoints", strings.Join(parts, ";"))
		}
	}
	var r directionResponse
	if err := c.get(ctx, p, q, &r); err != nil {
		return model.OptimizedRoute{}, err
	}
	if len(r.Route.Paths) == 0 {
		return model.OptimizedRoute{}, fmt.Errorf("amap %s: %w", p, model.ErrNoResult)
	}
	return convertPath(r.Route.Paths[0]), nil
}

func convertPath(pa path) model.OptimizedRoute {
	out := model.OptimizedRoute{
		TotalDistanceMeters:  atoi(pa.Distance),
		TotalDurationSeconds: atoi(pa.Cost.Duration),
		TrafficLightCount:    atoi(pa.Cost.TrafficLights),
	}
	if out.TotalDurationSeconds == 0 {
		out.TotalDurationSeconds = atoi(pa.Duration)
	}
	var slow, total float64
	for _, s := range pa.Steps {
		out.Polyline = append(out.Polyline, parsePolyline(s.Polyline)...)
		d := atoi(s.Cost.Duration)
		if d == 0 {
			d = atoi(s.Duration)
		}
		out.Segments = append(out.Segments, model.RouteSegment{
			Instruction:     s.Instruction,
			DistanceMeters:  atoi(s.StepDistance),
			DurationSeconds: d,
			Action:          s.Navi.Action,
		})
		for _, t := range s.Tmcs {
			m := float64(atoi(t.Distance))
			total += m
			switch t.Status {
			case "缓行":
				slow += m * 0.5
			case "拥堵", "严重拥堵":
				slow += m
			}
		}
	}
	if total > 0 {
		out.CongestionIndex = slow / total
	}
	return out
}

// SampleVia：途经点超过上限时按等间距抽样，保持原顺序
func SampleVia(via []coord.Coordinate, max int) []coord.Coordinate {
	if len(via) <= max || max <= 0 {
		return append([]coord.Coordinate(nil), via...)
	}
	out := make([]coord.Coordinate, 0, max)
	for i := 0; i < max; i++ {
		out = append(out, via[i*len(via)/max])
	}
	return out
}
