package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeapi_requests_total",
		Help: "Total number of API requests by endpoint",
	}, []string{"endpoint"})
	GeocodeRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routeapi_geocode_requests_total",
		Help: "Total geocode requests sent to the vendor",
	})
	GeocodeSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routeapi_geocode_success_total",
		Help: "Total geocode requests returning at least one location",
	})
	GeocodeFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routeapi_geocode_fail_total",
		Help: "Total geocode requests failing with a transport or vendor error",
	})
	GeocodeDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "routeapi_geocode_duration_ms",
		Help:    "Geocode call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	})
	GeocodeCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeapi_geocode_cache_hits_total",
		Help: "Geocode cache hits by tier",
	}, []string{"tier"})
	GeocodeFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routeapi_geocode_fallback_total",
		Help: "Activities placed at a fallback coordinate",
	})
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeapi_resolutions_total",
		Help: "Itinerary resolutions by outcome",
	}, []string{"outcome"})
	RouteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeapi_route_requests_total",
		Help: "Route optimization requests by transport mode",
	}, []string{"mode"})
	RouteFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routeapi_route_fail_total",
		Help: "Route optimization failures",
	})
	RouteStaleTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routeapi_route_stale_total",
		Help: "Route results dropped because the waypoint list changed",
	})
	RouteDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "routeapi_route_duration_ms",
		Help:    "Route optimization duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000},
	})
	InferenceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeapi_coord_inference_total",
		Help: "Coordinate-system inference results",
	}, []string{"system"})
	AMapRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeapi_amap_requests_total",
		Help: "AMap REST calls by path and outcome",
	}, []string{"path", "outcome"})
	KVErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeapi_kv_errors_total",
		Help: "Persistence errors by operation",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(GeocodeRequestsTotal)
	prometheus.MustRegister(GeocodeSuccessTotal)
	prometheus.MustRegister(GeocodeFailTotal)
	prometheus.MustRegister(GeocodeDurationMs)
	prometheus.MustRegister(GeocodeCacheHitsTotal)
	prometheus.MustRegister(GeocodeFallbackTotal)
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(RouteRequestsTotal)
	prometheus.MustRegister(RouteFailTotal)
	prometheus.MustRegister(RouteStaleTotal)
	prometheus.MustRegister(RouteDurationMs)
	prometheus.MustRegister(InferenceTotal)
	prometheus.MustRegister(AMapRequestsTotal)
	prometheus.MustRegister(KVErrorsTotal)
}

// Handler：Prometheus 抓取端点
func Handler() http.Handler { return promhttp.Handler() }
