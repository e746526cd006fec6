package api

import (
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"route-api/internal/model"
)

// 文档注释：路线 GeoJSON 导出
// 背景：折线作为 LineString，航点按展示坐标作为 Point，供通用地图组件直接加载。
// 约束：坐标均为 GCJ-02；没有路线时只输出航点。
func (h *handler) routeGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := geojson.NewFeatureCollection()
	if rt, ok := h.st.Route(); ok && len(rt.Polyline) > 0 {
		line := make(orb.LineString, len(rt.Polyline))
		for i, c := range rt.Polyline {
			line[i] = c.Point()
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["distanceMeters"] = rt.TotalDistanceMeters
		f.Properties["durationSeconds"] = rt.TotalDurationSeconds
		f.Properties["trafficLights"] = rt.TrafficLightCount
		f.Properties["congestionIndex"] = rt.CongestionIndex
		fc.Append(f)
	}
	for i, wp := range h.st.Waypoints() {
		fc.Append(h.waypointFeature(i, wp))
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("content-type", "application/geo+json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(b)
}

func (h *handler) waypointFeature(i int, wp model.Waypoint) *geojson.Feature {
	f := geojson.NewFeature(h.st.DisplayCoordinate(wp).Point())
	f.ID = wp.ID.String()
	f.Properties["kind"] = string(wp.Role)
	f.Properties["index"] = i
	f.Properties["name"] = wp.Name
	f.Properties["eta"] = wp.ETA
	f.Properties["completed"] = h.st.IsCompleted(wp)
	return f
}
