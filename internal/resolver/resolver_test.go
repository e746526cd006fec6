package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"route-api/internal/coord"
	"route-api/internal/geocache"
	"route-api/internal/kv"
	"route-api/internal/model"
)

type call struct{ name, city string }

type fakeGeocoder struct {
	mu    sync.Mutex
	calls []call
	fn    func(name, city string, n int) ([]coord.Coordinate, error)
}

func (f *fakeGeocoder) Search(ctx context.Context, name, city string) ([]coord.Coordinate, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, city})
	n := len(f.calls)
	f.mu.Unlock()
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(name, city, n)
}

func (f *fakeGeocoder) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func fp(v float64) *float64 { return &v }

func TestResolveExplicitCoordinates(t *testing.T) {
	geo := &fakeGeocoder{}
	r := New(geo, nil, Options{})
	it := model.Itinerary{Days: []model.DayPlan{{Day: 1, Activities: []model.Activity{
		{POIName: "A", Latitude: fp(116.1234567), Longitude: fp(23.5)},
		{POIName: "B", Latitude: fp(23.6), Longitude: fp(116.6), CoordinateSystem: coord.GCJ02},
	}}}}
	res, err := r.Resolve(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if len(geo.Calls()) != 0 {
		t.Fatal("explicit coordinates must not call the geocoder")
	}
	a := res.Waypoints[0]
	if a.Latitude != 23.5 || a.Longitude != 116.123457 {
		t.Fatalf("swap/round failed: %+v", a)
	}
	if a.CoordinateSystem != coord.WGS84 || !a.IsAutoCoordinateSystem || a.Role != model.RoleStart {
		t.Fatalf("unexpected %+v", a)
	}
	if b := res.Waypoints[1]; b.IsAutoCoordinateSystem || b.Role != model.RoleEnd {
		t.Fatalf("unexpected %+v", b)
	}
	if res.Advisory != "" || res.Failed != 0 {
		t.Fatal("no advisory expected")
	}
}

func TestResolveCityHintOrderAndCache(t *testing.T) {
	geo := &fakeGeocoder{fn: func(name, city string, n int) ([]coord.Coordinate, error) {
		if city == "" {
			return []coord.Coordinate{{Lat: 23.6612345678, Lon: 116.6398765432}}, nil
		}
		return nil, nil
	}}
	cache := geocache.New(kv.NewMemory(), geocache.Options{})
	r := New(geo, cache, Options{})
	it := model.Itinerary{Title: "汕头潮州两日游", Days: []model.DayPlan{{Day: 1, Activities: []model.Activity{
		{POIName: "广济桥", Description: "潮州古城"},
		{POIName: " 广济桥 "},
	}}}}
	res, err := r.Resolve(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	calls := geo.Calls()
	want := []call{{"广济桥", "潮州"}, {"广济桥", "汕头"}, {"广济桥", ""}}
	if fmt.Sprint(calls) != fmt.Sprint(want) {
		t.Fatalf("calls %v, want %v", calls, want)
	}
	w := res.Waypoints[0]
	if w.Latitude != 23.661235 || w.Longitude != 116.639877 || w.CoordinateSystem != coord.GCJ02 || w.IsAutoCoordinateSystem {
		t.Fatalf("unexpected %+v", w)
	}
	if res.Waypoints[1].Latitude != w.Latitude {
		t.Fatal("second lookup should come from cache")
	}
}

func TestResolveOutOfRangeCoordinateFallsBack(t *testing.T) {
	geo := &fakeGeocoder{}
	r := New(geo, nil, Options{})
	it := model.Itinerary{Days: []model.DayPlan{{Day: 1, Activities: []model.Activity{
		{POIName: "a", Latitude: fp(23.6), Longitude: fp(116.6)},
		{POIName: "bad", Latitude: fp(200), Longitude: fp(300)},
		{POIName: "c", Latitude: fp(23.7), Longitude: fp(116.7)},
	}}}}
	res, err := r.Resolve(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if len(geo.Calls()) != 0 {
		t.Fatal("out-of-range explicit coordinates must not call the geocoder")
	}
	if len(res.Waypoints) != 3 || res.Failed != 1 || res.Advisory != FallbackAdvisory {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, w := range res.Waypoints {
		if !w.Raw().Valid() {
			t.Fatalf("invalid coordinate leaked: %+v", w)
		}
	}
	if w := res.Waypoints[1]; w.Latitude != 23.661 || w.Longitude != 116.6234 || w.CoordinateSystem != coord.GCJ02 || w.IsAutoCoordinateSystem {
		t.Fatalf("expected indexed fallback, got %+v", w)
	}
}

func TestResolveRetriesThenFallback(t *testing.T) {
	geo := &fakeGeocoder{fn: func(string, string, int) ([]coord.Coordinate, error) {
		return nil, errors.New("network down")
	}}
	r := New(geo, nil, Options{Attempts: 2, RetryDelay: time.Millisecond})
	it := model.Itinerary{Days: []model.DayPlan{{Day: 1, Activities: []model.Activity{
		{POIName: "A", Latitude: fp(23.1), Longitude: fp(116.1)},
		{POIName: "Nowhere"},
		{POIName: "Elsewhere"},
	}}}}
	res, err := r.Resolve(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if len(geo.Calls()) != 4 {
		t.Fatalf("expected 2 attempts per activity, got %d", len(geo.Calls()))
	}
	if res.Failed != 2 || res.Advisory != FallbackAdvisory {
		t.Fatalf("unexpected result %+v", res)
	}
	w := res.Waypoints[1]
	if w.Latitude != 23.661 || w.Longitude != 116.6234 || w.CoordinateSystem != coord.GCJ02 {
		t.Fatalf("fallback for index 1: %+v", w)
	}
	w = res.Waypoints[2]
	if w.Latitude != 23.665 || w.Longitude != 116.6258 {
		t.Fatalf("fallback for index 2: %+v", w)
	}
}

func TestResolveNilGeocoderUsesFallback(t *testing.T) {
	r := New(nil, nil, Options{})
	res, err := r.Resolve(context.Background(), model.Itinerary{Days: []model.DayPlan{{Activities: []model.Activity{{POIName: "X"}}}}})
	if err != nil || res.Failed != 1 || len(res.Waypoints) != 1 {
		t.Fatalf("unexpected %+v %v", res, err)
	}
}

func TestResolveEmptyItinerary(t *testing.T) {
	res, err := New(nil, nil, Options{}).Resolve(context.Background(), model.Itinerary{Title: "empty"})
	if err != nil || len(res.Waypoints) != 0 {
		t.Fatalf("unexpected %+v %v", res, err)
	}
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	geo := &fakeGeocoder{fn: func(string, string, int) ([]coord.Coordinate, error) {
		cancel()
		return nil, context.Canceled
	}}
	store := kv.NewMemory()
	r := New(geo, geocache.New(store, geocache.Options{}), Options{RetryDelay: time.Second})
	_, err := r.Resolve(ctx, model.Itinerary{Days: []model.DayPlan{{Activities: []model.Activity{{POIName: "A"}, {POIName: "B"}}}}})
	if !errors.Is(err, model.ErrCanceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(geo.Calls()) != 1 {
		t.Fatalf("no calls expected after cancellation, got %d", len(geo.Calls()))
	}
	if _, ok, _ := store.Load(context.Background(), model.GeocodeCacheKey); ok {
		t.Fatal("canceled pass must not write the cache")
	}
}

func TestResolveThousandExplicitWaypoints(t *testing.T) {
	acts := make([]model.Activity, 1000)
	for i := range acts {
		acts[i] = model.Activity{POIName: fmt.Sprintf("P%d", i), Latitude: fp(23 + float64(i)*1e-4), Longitude: fp(116 + float64(i)*1e-4)}
	}
	geo := &fakeGeocoder{}
	start := time.Now()
	res, err := New(geo, nil, Options{}).Resolve(context.Background(), model.Itinerary{Days: []model.DayPlan{{Day: 1, Activities: acts}}})
	if err != nil || len(res.Waypoints) != 1000 {
		t.Fatalf("unexpected %d %v", len(res.Waypoints), err)
	}
	if len(geo.Calls()) != 0 {
		t.Fatal("no geocoding expected")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("too slow: %v", time.Since(start))
	}
	if res.Waypoints[999].Role != model.RoleEnd {
		t.Fatal("last role")
	}
}
