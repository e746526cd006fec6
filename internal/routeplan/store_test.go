package routeplan

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"testing"

	"route-api/internal/coord"
	"route-api/internal/kv"
	"route-api/internal/model"
	"route-api/internal/resolver"
)

type optCall struct {
	waypoints []model.Waypoint
	mode      model.TransportMode
}

type fakeOptimizer struct {
	mu    sync.Mutex
	calls []optCall
	fn    func(n int, ws []model.Waypoint) (model.OptimizedRoute, error)
}

// polylineThrough：每个点重复 inferenceStride 次，降采样后仍经过全部点
func polylineThrough(pts []coord.Coordinate) []coord.Coordinate {
	var out []coord.Coordinate
	for _, p := range pts {
		for i := 0; i < inferenceStride; i++ {
			out = append(out, p)
		}
	}
	return out
}

// snapRoute：折线经过各航点按声明坐标系换算后的 GCJ-02 位置
func snapRoute(ws []model.Waypoint) model.OptimizedRoute {
	pts := make([]coord.Coordinate, len(ws))
	for i, w := range ws {
		pts[i] = coord.ToGCJ02(w.Raw(), w.CoordinateSystem)
	}
	return model.OptimizedRoute{Polyline: polylineThrough(pts), TotalDistanceMeters: 1000 * len(ws), TotalDurationSeconds: 600}
}

func (f *fakeOptimizer) Optimize(ctx context.Context, ws []model.Waypoint, mode model.TransportMode) (model.OptimizedRoute, error) {
	f.mu.Lock()
	f.calls = append(f.calls, optCall{waypoints: ws, mode: mode})
	n := len(f.calls)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return snapRoute(ws), nil
	}
	return fn(n, ws)
}

func (f *fakeOptimizer) Calls() []optCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]optCall(nil), f.calls...)
}

func (f *fakeOptimizer) setFn(fn func(n int, ws []model.Waypoint) (model.OptimizedRoute, error)) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

type blockingGeocoder struct{}

func (blockingGeocoder) Search(ctx context.Context, name, city string) ([]coord.Coordinate, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func fp(v float64) *float64 { return &v }

func act(name string, lat, lon float64, sys coord.System) model.Activity {
	return model.Activity{POIName: name, Time: "09:00", Latitude: fp(lat), Longitude: fp(lon), CoordinateSystem: sys}
}

func itinerary(acts ...model.Activity) model.Itinerary {
	return model.Itinerary{Title: "潮州一日游", Days: []model.DayPlan{{Day: 1, Activities: acts}}}
}

func newStore(t *testing.T, opt RouteOptimizer, store kv.Store, opts Options) *Store {
	t.Helper()
	s := New(context.Background(), nil, opt, store, opts)
	t.Cleanup(s.Close)
	return s
}

func TestUpdateFromItineraryOptimizes(t *testing.T) {
	opt := &fakeOptimizer{}
	s := newStore(t, opt, nil, Options{TransportMode: model.TransportWalking})
	s.UpdateFromItinerary(itinerary(
		act("牌坊街", 23.6645, 116.6405, coord.GCJ02),
		act("广济桥", 23.6612, 116.6502, coord.GCJ02),
		act("韩文公祠", 23.6585, 116.6551, coord.GCJ02),
	))
	s.Wait()
	snap := s.Snapshot()
	if len(snap.Waypoints) != 3 || snap.Waypoints[0].Role != model.RoleStart || snap.Waypoints[2].Role != model.RoleEnd {
		t.Fatalf("unexpected waypoints %+v", snap.Waypoints)
	}
	if snap.Route == nil || len(snap.Route.Polyline) != 3*inferenceStride {
		t.Fatalf("route missing: %+v", snap.Route)
	}
	if snap.IsResolving || snap.IsOptimizing {
		t.Fatal("flags should be cleared")
	}
	calls := opt.Calls()
	if len(calls) != 1 || calls[0].mode != model.TransportWalking || len(calls[0].waypoints) != 3 {
		t.Fatalf("unexpected optimizer calls %+v", calls)
	}
}

func TestSingleWaypointClearsRoute(t *testing.T) {
	opt := &fakeOptimizer{}
	s := newStore(t, opt, nil, Options{})
	s.UpdateFromItinerary(itinerary(act("A", 23.66, 116.64, coord.GCJ02)))
	s.Wait()
	if _, ok := s.Route(); ok {
		t.Fatal("route should be empty with one waypoint")
	}
	if len(opt.Calls()) != 0 {
		t.Fatal("optimizer must not be called")
	}
}

func TestNewItineraryCancelsPrevious(t *testing.T) {
	opt := &fakeOptimizer{}
	s := New(context.Background(), blockingGeocoder{}, opt, nil, Options{})
	defer s.Close()
	s.UpdateFromItinerary(itinerary(
		act("Old", 23.1, 116.1, coord.GCJ02),
		model.Activity{POIName: "needs geocoding"},
	))
	s.UpdateFromItinerary(itinerary(
		act("New1", 23.66, 116.64, coord.GCJ02),
		act("New2", 23.67, 116.65, coord.GCJ02),
	))
	s.Wait()
	ws := s.Waypoints()
	if len(ws) != 2 || ws[0].Name != "New1" || ws[1].Name != "New2" {
		t.Fatalf("expected only the second itinerary, got %+v", ws)
	}
}

func TestInferenceResolvesWGS84(t *testing.T) {
	opt := &fakeOptimizer{}
	store := kv.NewMemory()
	s := newStore(t, opt, store, Options{})
	it := itinerary(
		act("A", 23.6645, 116.6405, ""),
		act("B", 23.6612, 116.6502, ""),
		act("C", 23.6585, 116.6551, ""),
	)
	s.UpdateFromItinerary(it)
	s.Wait()
	ws := s.Waypoints()
	for _, w := range ws {
		adj, ok := s.Adjustment(w)
		if !ok || adj.ResolvedCoordinateSystem != coord.WGS84 {
			t.Fatalf("%s not resolved to wgs84: %+v", w.Name, adj)
		}
		got := s.DisplayCoordinate(w)
		want := coord.WGS84ToGCJ02(w.Raw()).Rounded()
		if got != want {
			t.Fatalf("display %v, want %v", got, want)
		}
	}
	b, ok, _ := store.Load(context.Background(), model.AdjustmentsKey)
	if !ok {
		t.Fatal("inference result not persisted")
	}
	m, _ := model.DecodeAdjustments(b)
	if len(m) != 3 {
		t.Fatalf("persisted %d entries", len(m))
	}
}

func TestInferenceResolvesGCJ02AndSkipsLocked(t *testing.T) {
	opt := &fakeOptimizer{fn: func(_ int, ws []model.Waypoint) (model.OptimizedRoute, error) {
		pts := make([]coord.Coordinate, len(ws))
		for i, w := range ws {
			pts[i] = w.Raw()
		}
		return model.OptimizedRoute{Polyline: polylineThrough(pts)}, nil
	}}
	s := newStore(t, opt, nil, Options{})
	locked := model.Waypoint{Name: "B", Latitude: 23.6612, Longitude: 116.6502}
	s.ToggleLock(locked)
	s.UpdateFromItinerary(itinerary(
		act("A", 23.6645, 116.6405, ""),
		act("B", 23.6612, 116.6502, ""),
		act("C", 23.6585, 116.6551, ""),
	))
	s.Wait()
	ws := s.Waypoints()
	if adj, _ := s.Adjustment(ws[0]); adj.ResolvedCoordinateSystem != coord.GCJ02 {
		t.Fatalf("expected gcj02, got %+v", adj)
	}
	if adj, _ := s.Adjustment(ws[1]); adj.ResolvedCoordinateSystem != "" || !adj.IsLocked {
		t.Fatalf("locked waypoint must not be resolved: %+v", adj)
	}
}

func TestManualAdjustmentHistoryAndDeviation(t *testing.T) {
	s := newStore(t, &fakeOptimizer{}, nil, Options{})
	w := model.Waypoint{Name: "广济桥", Latitude: 23.6612, Longitude: 116.6502, CoordinateSystem: coord.GCJ02}
	if got := s.DisplayCoordinate(w); got != w.Raw() {
		t.Fatalf("unadjusted display %v", got)
	}
	target := coord.Coordinate{Lat: 23.6622, Lon: 116.6502}
	if err := s.ApplyManualAdjustment(w, target); err != nil {
		t.Fatal(err)
	}
	if got := s.DisplayCoordinate(w); got != target {
		t.Fatalf("display %v, want %v", got, target)
	}
	dev, ok := s.DeviationWarning()
	if !ok || dev.Name != "广济桥" || dev.Meters < 100 || dev.Meters > 120 {
		t.Fatalf("unexpected deviation %+v %v", dev, ok)
	}

	if err := s.ApplyManualAdjustment(w, w.Raw()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.DeviationWarning(); ok {
		t.Fatal("deviation should clear once back under threshold")
	}
	hist := s.History(w)
	if len(hist) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(hist))
	}
	if err := s.RestoreHistory(w, hist[0].ID); err != nil {
		t.Fatal(err)
	}
	if got := s.DisplayCoordinate(w); got != target {
		t.Fatalf("restore display %v", got)
	}
	if len(s.History(w)) != 2 {
		t.Fatal("restore must not append history")
	}
	if err := s.ApplyManualAdjustment(w, coord.Coordinate{Lat: 95, Lon: 0}); !errors.Is(err, model.ErrInvalidCoordinate) {
		t.Fatalf("expected invalid coordinate, got %v", err)
	}
}

func TestRestoreHistoryUnknownRecord(t *testing.T) {
	s := newStore(t, &fakeOptimizer{}, nil, Options{})
	w := model.Waypoint{Name: "x", Latitude: 23, Longitude: 116}
	if err := s.RestoreHistory(w, [16]byte{1}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyKnownCoordinateLocks(t *testing.T) {
	s := newStore(t, &fakeOptimizer{}, nil, Options{})
	w := model.Waypoint{Name: "韩文公祠", Latitude: 23.6585, Longitude: 116.6551, CoordinateSystem: coord.GCJ02}
	known := coord.Coordinate{Lat: 23.6560, Lon: 116.6500}
	if err := s.ApplyKnownCoordinate(w, known, coord.WGS84, true); err != nil {
		t.Fatal(err)
	}
	if !s.IsLocked(w) {
		t.Fatal("expected lock")
	}
	want := coord.WGS84ToGCJ02(known)
	got := s.DisplayCoordinate(w)
	if math.Abs(got.Lat-want.Lat) > 1e-6 || math.Abs(got.Lon-want.Lon) > 1e-6 {
		t.Fatalf("display %v, want %v", got, want)
	}
	if s.ToggleLock(w) {
		t.Fatal("toggle should unlock")
	}
}

func TestCompletionAndPrune(t *testing.T) {
	store := kv.NewMemory()
	s := newStore(t, &fakeOptimizer{}, store, Options{})
	s.UpdateFromItinerary(itinerary(
		act("A", 23.66, 116.64, coord.GCJ02),
		act("B", 23.67, 116.65, coord.GCJ02),
	))
	s.Wait()
	ws := s.Waypoints()
	s.MarkCompleted(ws[0])
	if !s.IsCompleted(ws[0]) {
		t.Fatal("mark")
	}
	if i, ok := s.NextUncompletedIndex(); !ok || i != 1 {
		t.Fatalf("next %d %v", i, ok)
	}
	s.MarkCompleted(ws[1])
	if _, ok := s.NextUncompletedIndex(); ok {
		t.Fatal("all completed")
	}
	s.UnmarkCompleted(ws[1])

	s.UpdateFromItinerary(itinerary(
		act("B", 23.67, 116.65, coord.GCJ02),
		act("C", 23.68, 116.66, coord.GCJ02),
	))
	s.Wait()
	if s.IsCompleted(ws[0]) {
		t.Fatal("stale completion should be pruned")
	}
	b, _, _ := store.Load(context.Background(), model.CompletedKey)
	if string(b) != "[]" {
		t.Fatalf("persisted completion %s", b)
	}
}

func TestOptimizeFailureKeepsRoute(t *testing.T) {
	opt := &fakeOptimizer{}
	s := newStore(t, opt, nil, Options{})
	s.UpdateFromItinerary(itinerary(
		act("A", 23.66, 116.64, coord.GCJ02),
		act("B", 23.67, 116.65, coord.GCJ02),
	))
	s.Wait()
	before, ok := s.Route()
	if !ok {
		t.Fatal("route expected")
	}
	opt.setFn(func(int, []model.Waypoint) (model.OptimizedRoute, error) {
		return model.OptimizedRoute{}, errors.New("amap: status 0")
	})
	s.SetTransportMode(model.TransportCycling)
	s.Wait()
	after, ok := s.Route()
	if !ok || after.TotalDistanceMeters != before.TotalDistanceMeters {
		t.Fatal("previous route must be preserved")
	}
	if s.LastError() == "" {
		t.Fatal("error text expected")
	}
	if calls := opt.Calls(); calls[len(calls)-1].mode != model.TransportCycling {
		t.Fatal("transport mode not forwarded")
	}
}

func TestStaleRouteDiscarded(t *testing.T) {
	gate := make(chan struct{})
	opt := &fakeOptimizer{fn: func(n int, ws []model.Waypoint) (model.OptimizedRoute, error) {
		if n == 1 {
			<-gate
		}
		return snapRoute(ws), nil
	}}
	s := newStore(t, opt, nil, Options{})
	s.ReplaceWaypoints([]model.Waypoint{
		{Name: "A", Latitude: 23.66, Longitude: 116.64, CoordinateSystem: coord.GCJ02},
		{Name: "B", Latitude: 23.67, Longitude: 116.65, CoordinateSystem: coord.GCJ02},
	})
	s.AddWaypoint(model.Waypoint{Name: "C", Latitude: 23.68, Longitude: 116.66, CoordinateSystem: coord.GCJ02})
	for len(opt.Calls()) < 2 {
		runtime.Gosched()
	}
	close(gate)
	s.Wait()
	r, ok := s.Route()
	if !ok || len(r.Polyline) != 3*inferenceStride {
		t.Fatalf("newest route expected, got %+v", r)
	}
	ws := s.Waypoints()
	if ws[1].Role != model.RoleStop || ws[2].Role != model.RoleEnd {
		t.Fatal("roles not reassigned after add")
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := newStore(t, &fakeOptimizer{}, nil, Options{})
	a := model.Waypoint{Name: "A", Latitude: 23.66, Longitude: 116.64, CoordinateSystem: coord.GCJ02}
	b := model.Waypoint{Name: "B", Latitude: 23.67, Longitude: 116.65, CoordinateSystem: coord.GCJ02}
	c := model.Waypoint{Name: "C", Latitude: 23.68, Longitude: 116.66, CoordinateSystem: coord.GCJ02}
	s.ReplaceWaypoints([]model.Waypoint{a, b, c})
	s.Wait()
	ws := s.Waypoints()
	if !s.RemoveWaypoint(ws[1].ID) {
		t.Fatal("remove by id")
	}
	if n := s.RemoveWaypointByKey(c.StableKey()); n != 1 {
		t.Fatalf("remove by key removed %d", n)
	}
	s.Wait()
	ws = s.Waypoints()
	if len(ws) != 1 || ws[0].Role != model.RoleStart {
		t.Fatalf("unexpected %+v", ws)
	}
	if _, ok := s.Route(); ok {
		t.Fatal("route should clear below two waypoints")
	}
	s.ClearWaypoints()
	if len(s.Waypoints()) != 0 {
		t.Fatal("clear")
	}
}

func TestWalkingReorder(t *testing.T) {
	ws := []model.Waypoint{
		{Name: "start", Latitude: 23.60, Longitude: 116.60},
		{Name: "far", Latitude: 23.70, Longitude: 116.60},
		{Name: "near", Latitude: 23.61, Longitude: 116.60},
		{Name: "mid", Latitude: 23.65, Longitude: 116.60},
		{Name: "end", Latitude: 23.50, Longitude: 116.60},
	}
	got := reorderForWalking(ws)
	want := []string{"start", "near", "mid", "far", "end"}
	for i, w := range got {
		if w.Name != want[i] {
			t.Fatalf("position %d: %s, want %s", i, w.Name, want[i])
		}
	}
	if len(reorderForWalking(ws[:2])) != 2 {
		t.Fatal("short list unchanged")
	}
}

func TestWalkingTravelModeReordersItinerary(t *testing.T) {
	s := newStore(t, &fakeOptimizer{}, nil, Options{TravelMode: model.TravelWalking})
	s.UpdateFromItinerary(itinerary(
		act("start", 23.60, 116.60, coord.GCJ02),
		act("far", 23.70, 116.60, coord.GCJ02),
		act("near", 23.61, 116.60, coord.GCJ02),
		act("end", 23.50, 116.60, coord.GCJ02),
	))
	s.Wait()
	ws := s.Waypoints()
	if ws[1].Name != "near" || ws[1].Role != model.RoleStop || ws[3].Role != model.RoleEnd {
		t.Fatalf("unexpected order %+v", ws)
	}
}

func TestJumpToMapTarget(t *testing.T) {
	s := newStore(t, &fakeOptimizer{}, nil, Options{})
	var mu sync.Mutex
	var events []EventKind
	cancel := s.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e.Kind)
		mu.Unlock()
	})
	f1, t1 := s.JumpToMapTarget(model.MapJumpTarget{Name: "搜索结果", Latitude: 23.66, Longitude: 116.64, Source: "search"})
	f2, t2 := s.JumpToMapTarget(model.MapJumpTarget{Name: "搜索结果", Latitude: 23.66, Longitude: 116.64, Source: "search"})
	if f2 != f1+1 || t2 != t1+1 {
		t.Fatal("tokens must increase even for identical targets")
	}
	snap := s.Snapshot()
	if len(snap.Highlight) != 1 || snap.Highlight[0].ETA != "定位结果" || snap.Highlight[0].StayDurationMinutes != 30 {
		t.Fatalf("unexpected highlight %+v", snap.Highlight)
	}
	cancel()
	s.JumpToMapTarget(model.MapJumpTarget{Name: "x", Latitude: 1, Longitude: 1})
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != EventFocus {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestCorruptPersistedState(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()
	_ = store.Save(ctx, model.AdjustmentsKey, []byte("not json"))
	_ = store.Save(ctx, model.CompletedKey, []byte("{"))
	s := newStore(t, &fakeOptimizer{}, store, Options{})
	w := model.Waypoint{Name: "x", Latitude: 23, Longitude: 116}
	if s.IsLocked(w) || s.IsCompleted(w) {
		t.Fatal("corrupt state should load as empty")
	}
}

func TestAdjustmentsSurviveRestartAndPrune(t *testing.T) {
	store := kv.NewMemory()
	w := model.Waypoint{Name: "A", Latitude: 23.66, Longitude: 116.64, CoordinateSystem: coord.GCJ02}
	orphan := model.Waypoint{Name: "gone", Latitude: 23.1, Longitude: 116.1, CoordinateSystem: coord.GCJ02}
	lockedOrphan := model.Waypoint{Name: "kept", Latitude: 23.2, Longitude: 116.2, CoordinateSystem: coord.GCJ02}

	s1 := newStore(t, &fakeOptimizer{}, store, Options{})
	_ = s1.ApplyManualAdjustment(w, coord.Coordinate{Lat: 23.661, Lon: 116.64})
	_ = s1.ApplyManualAdjustment(orphan, coord.Coordinate{Lat: 23.101, Lon: 116.1})
	s1.ToggleLock(lockedOrphan)

	s2 := newStore(t, &fakeOptimizer{}, store, Options{})
	if len(s2.History(w)) != 1 {
		t.Fatal("history should survive restart")
	}
	s2.ReplaceWaypoints([]model.Waypoint{w})
	if n := s2.PruneAdjustments(); n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if !s2.IsLocked(lockedOrphan) {
		t.Fatal("locked entry must survive prune")
	}
	if len(s2.History(w)) != 1 {
		t.Fatal("live entry must survive prune")
	}
}

func TestOutOfRangeCoordinateNeverReachesRoute(t *testing.T) {
	opt := &fakeOptimizer{}
	s := newStore(t, opt, nil, Options{})
	s.UpdateFromItinerary(itinerary(
		act("a", 23.6, 116.6, coord.GCJ02),
		model.Activity{POIName: "bad", Time: "10:00", Latitude: fp(200), Longitude: fp(300)},
		act("c", 23.7, 116.7, coord.GCJ02),
	))
	s.Wait()

	ws := s.Waypoints()
	if len(ws) != 3 || s.Advisory() != resolver.FallbackAdvisory {
		t.Fatalf("expected fallback advisory, got %d waypoints %q", len(ws), s.Advisory())
	}
	for _, w := range ws {
		if d := s.DisplayCoordinate(w); !d.Valid() {
			t.Fatalf("invalid display coordinate for %s: %v", w.Name, d)
		}
	}
	calls := opt.Calls()
	if len(calls) == 0 {
		t.Fatal("route should still be optimized")
	}
	for _, w := range calls[len(calls)-1].waypoints {
		if !w.Raw().Valid() {
			t.Fatalf("optimizer received invalid coordinate %s %v", w.Name, w.Raw())
		}
	}
	if _, ok := s.Route(); !ok {
		t.Fatal("route missing")
	}
}

func TestAddDuringResolutionIsKept(t *testing.T) {
	opt := &fakeOptimizer{}
	s := New(context.Background(), blockingGeocoder{}, opt, nil, Options{})
	defer s.Close()
	s.UpdateFromItinerary(itinerary(
		model.Activity{POIName: "needs geocoding 1"},
		model.Activity{POIName: "needs geocoding 2"},
	))
	s.AddWaypoint(model.Waypoint{Name: "user-added", Latitude: 23.66, Longitude: 116.64, CoordinateSystem: coord.GCJ02})
	s.Wait()

	ws := s.Waypoints()
	if len(ws) != 1 || ws[0].Name != "user-added" {
		t.Fatalf("user edit was overwritten: %+v", ws)
	}
	if s.Snapshot().IsResolving {
		t.Fatal("superseded resolution should not be reported as running")
	}
}
