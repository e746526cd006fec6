package main

import (
	"testing"
	"time"

	"route-api/internal/model"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "API_BASE", "GEOCODE_ATTEMPTS", "GEOCODE_RETRY_DELAY_MS", "GEOCODE_CACHE_TTL_H", "TRAVEL_MODE", "TRANSPORT_MODE"} {
		t.Setenv(k, "")
	}
	c := loadConfig()
	if c.Addr != ":8080" || c.APIBase != "/api" {
		t.Fatalf("unexpected %+v", c)
	}
	if c.Store.Resolver.Attempts != 2 || c.Store.Resolver.RetryDelay != 600*time.Millisecond {
		t.Fatalf("resolver %+v", c.Store.Resolver)
	}
	if c.Store.GeocodeCache.TTL != 720*time.Hour || c.Store.GeocodeCache.MaxEntries != 5000 {
		t.Fatalf("cache %+v", c.Store.GeocodeCache)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GEOCODE_ATTEMPTS", "4")
	t.Setenv("GEOCODE_RETRY_DELAY_MS", "0")
	t.Setenv("TRAVEL_MODE", "walking")
	t.Setenv("TRANSPORT_MODE", "boat")
	c := loadConfig()
	if c.Store.Resolver.Attempts != 4 || c.Store.Resolver.RetryDelay != 0 {
		t.Fatalf("resolver %+v", c.Store.Resolver)
	}
	if c.Store.TravelMode != model.TravelWalking || c.Store.TransportMode != "" {
		t.Fatalf("modes %q %q", c.Store.TravelMode, c.Store.TransportMode)
	}
}
