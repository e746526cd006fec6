// 包 api：路线规划的 JSON HTTP 接口，供前端展示层调用
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"route-api/internal/cluster"
	"route-api/internal/coord"
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/model"
	"route-api/internal/routeplan"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

type handler struct {
	st *routeplan.Store
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(st *routeplan.Store) *http.ServeMux {
	h := &handler{st: st}
	mux := http.NewServeMux()
	handle := func(pattern, name string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			metrics.RequestsTotal.WithLabelValues(name).Inc()
			fn(w, r)
		})
	}
	handle("POST /itinerary", "itinerary", h.postItinerary)
	handle("POST /itinerary/preview", "itinerary_preview", h.previewItinerary)
	handle("GET /state", "state", h.state)
	handle("GET /events", "events", h.events)
	handle("GET /waypoints", "waypoints", h.listWaypoints)
	handle("POST /waypoints", "waypoint_add", h.addWaypoint)
	handle("PUT /waypoints", "waypoint_replace", h.replaceWaypoints)
	handle("DELETE /waypoints", "waypoint_clear", h.clearWaypoints)
	handle("DELETE /waypoints/{id}", "waypoint_remove", h.removeWaypoint)
	handle("DELETE /waypoints/by-key", "waypoint_remove_key", h.removeWaypointByKey)
	handle("POST /waypoints/{id}/adjust", "waypoint_adjust", h.adjust)
	handle("POST /waypoints/{id}/restore", "waypoint_restore", h.restore)
	handle("POST /waypoints/{id}/lock", "waypoint_lock", h.toggleLock)
	handle("GET /waypoints/{id}/history", "waypoint_history", h.history)
	handle("POST /waypoints/{id}/complete", "waypoint_complete", h.complete)
	handle("DELETE /waypoints/{id}/complete", "waypoint_uncomplete", h.uncomplete)
	handle("GET /next", "next", h.next)
	handle("GET /route", "route", h.route)
	handle("GET /route.geojson", "route_geojson", h.routeGeoJSON)
	handle("POST /route/optimize", "route_optimize", h.optimize)
	handle("POST /mode", "mode", h.setMode)
	handle("POST /jump", "jump", h.jump)
	handle("POST /cluster", "cluster", h.cluster)
	handle("POST /adjustments/prune", "adjustments_prune", h.prune)
	return mux
}

func (h *handler) postItinerary(w http.ResponseWriter, r *http.Request) {
	var it model.Itinerary
	if !decode(w, r, &it) {
		return
	}
	h.st.UpdateFromItinerary(it)
	logger.Component("api").Debug("itinerary_accepted", "title", it.Title, "days", len(it.Days))
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *handler) previewItinerary(w http.ResponseWriter, r *http.Request) {
	var it model.Itinerary
	if !decode(w, r, &it) {
		return
	}
	writeJSON(w, http.StatusOK, it.ToWaypoints())
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.st.Snapshot())
}

func (h *handler) view(wp model.Waypoint) waypointView {
	return waypointView{
		Waypoint:  wp,
		Key:       wp.StableKey(),
		Display:   h.st.DisplayCoordinate(wp),
		Completed: h.st.IsCompleted(wp),
		Locked:    h.st.IsLocked(wp),
	}
}

func (h *handler) listWaypoints(w http.ResponseWriter, r *http.Request) {
	ws := h.st.Waypoints()
	out := make([]waypointView, len(ws))
	for i, wp := range ws {
		out[i] = h.view(wp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) addWaypoint(w http.ResponseWriter, r *http.Request) {
	var wp model.Waypoint
	if !decode(w, r, &wp) {
		return
	}
	if !wp.Raw().Valid() {
		writeError(w, http.StatusBadRequest, model.ErrInvalidCoordinate)
		return
	}
	if wp.CoordinateSystem == "" {
		wp.CoordinateSystem = coord.GCJ02
	}
	h.st.AddWaypoint(wp)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *handler) replaceWaypoints(w http.ResponseWriter, r *http.Request) {
	var ws []model.Waypoint
	if !decode(w, r, &ws) {
		return
	}
	for i := range ws {
		if !ws[i].Raw().Valid() {
			writeError(w, http.StatusBadRequest, model.ErrInvalidCoordinate)
			return
		}
		if ws[i].CoordinateSystem == "" {
			ws[i].CoordinateSystem = coord.GCJ02
		}
	}
	h.st.ReplaceWaypoints(ws)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *handler) clearWaypoints(w http.ResponseWriter, r *http.Request) {
	h.st.ClearWaypoints()
	w.WriteHeader(http.StatusNoContent)
}

// waypoint：按路径中的 id 定位当前列表中的航点
func (h *handler) waypoint(w http.ResponseWriter, r *http.Request) (model.Waypoint, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return model.Waypoint{}, false
	}
	for _, wp := range h.st.Waypoints() {
		if wp.ID == id {
			return wp, true
		}
	}
	writeError(w, http.StatusNotFound, model.ErrNotFound)
	return model.Waypoint{}, false
}

func (h *handler) removeWaypoint(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !h.st.RemoveWaypoint(id) {
		writeError(w, http.StatusNotFound, model.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeWaypointByKey(w http.ResponseWriter, r *http.Request) {
	n := h.st.RemoveWaypointByKey(r.URL.Query().Get("key"))
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (h *handler) adjust(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.waypoint(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if !decode(w, r, &req) {
		return
	}
	target := coord.Coordinate{Lat: req.Latitude, Lon: req.Longitude}
	var err error
	if req.System == "" {
		err = h.st.ApplyManualAdjustment(wp, target)
		if err == nil && req.Lock && !h.st.IsLocked(wp) {
			h.st.ToggleLock(wp)
		}
	} else {
		sys, ok := coord.ParseSystem(req.System)
		if !ok {
			writeError(w, http.StatusBadRequest, errors.New("unknown coordinate system"))
			return
		}
		err = h.st.ApplyKnownCoordinate(wp, target, sys, req.Lock)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(wp))
}

func (h *handler) restore(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.waypoint(w, r)
	if !ok {
		return
	}
	var req restoreRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.st.RestoreHistory(wp, req.RecordID); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, model.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(wp))
}

func (h *handler) toggleLock(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.waypoint(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": h.st.ToggleLock(wp)})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.waypoint(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.st.History(wp))
}

func (h *handler) complete(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.waypoint(w, r)
	if !ok {
		return
	}
	h.st.MarkCompleted(wp)
	writeJSON(w, http.StatusOK, h.view(wp))
}

func (h *handler) uncomplete(w http.ResponseWriter, r *http.Request) {
	wp, ok := h.waypoint(w, r)
	if !ok {
		return
	}
	h.st.UnmarkCompleted(wp)
	writeJSON(w, http.StatusOK, h.view(wp))
}

func (h *handler) next(w http.ResponseWriter, r *http.Request) {
	i, ok := h.st.NextUncompletedIndex()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"index": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": i})
}

func (h *handler) route(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.st.Route()
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *handler) optimize(w http.ResponseWriter, r *http.Request) {
	h.st.OptimizeRouteIfPossible()
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *handler) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TravelMode != "" {
		m, ok := model.ParseTravelMode(req.TravelMode)
		if !ok {
			writeError(w, http.StatusBadRequest, errors.New("unknown travel mode"))
			return
		}
		h.st.SetTravelMode(m)
	}
	if req.TransportMode != "" {
		m, ok := model.ParseTransportMode(req.TransportMode)
		if !ok {
			writeError(w, http.StatusBadRequest, errors.New("unknown transport mode"))
			return
		}
		h.st.SetTransportMode(m)
	}
	writeJSON(w, http.StatusOK, modeRequest{TransportMode: string(h.st.TransportMode()), TravelMode: string(h.st.TravelMode())})
}

func (h *handler) jump(w http.ResponseWriter, r *http.Request) {
	var t model.MapJumpTarget
	if !decode(w, r, &t) {
		return
	}
	if !(coord.Coordinate{Lat: t.Latitude, Lon: t.Longitude}).Valid() {
		writeError(w, http.StatusBadRequest, model.ErrInvalidCoordinate)
		return
	}
	focus, tab := h.st.JumpToMapTarget(t)
	writeJSON(w, http.StatusOK, map[string]uint64{"mapFocusToken": focus, "mapTabJumpToken": tab})
}

func (h *handler) cluster(w http.ResponseWriter, r *http.Request) {
	var req clusterRequest
	if !decode(w, r, &req) {
		return
	}
	cs := cluster.Build(req.Items, req.Points, req.BucketSize)
	logger.Component("api").Debug("cluster_built", "items", len(req.Items), "clusters", len(cs), "sizes", cluster.Sizes(cs))
	writeJSON(w, http.StatusOK, cs)
}

func (h *handler) prune(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": h.st.PruneAdjustments()})
}
