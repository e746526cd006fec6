package main

import (
	"time"

	"route-api/internal/amap"
	"route-api/internal/geocache"
	"route-api/internal/logger"
	"route-api/internal/model"
	"route-api/internal/resolver"
	"route-api/internal/routeplan"
	"route-api/internal/utils"
)

// config：服务启动参数，全部来自环境变量（可由 .env 预置）
type config struct {
	Addr    string
	APIBase string
	UIDir   string
	AMap    amap.Options
	Store   routeplan.Options
}

func loadConfig() config {
	l := logger.L()
	c := config{
		Addr:    utils.EnvString("ADDR", ":8080"),
		APIBase: utils.EnvString("API_BASE", "/api"),
		UIDir:   utils.EnvString("UI_DIST", ""),
		AMap: amap.Options{
			Key:     utils.EnvString("AMAP_SERVER_KEY", ""),
			BaseURL: utils.EnvString("AMAP_BASE_URL", amap.DefaultBaseURL),
			QPS:     utils.EnvInt("AMAP_RATE_LIMIT_QPS", 3),
			Timeout: utils.EnvMillis("AMAP_TIMEOUT_MS", 5*time.Second),
		},
	}
	ro := resolver.DefaultOptions()
	ro.Attempts = utils.EnvInt("GEOCODE_ATTEMPTS", ro.Attempts)
	ro.RetryDelay = utils.EnvMillis("GEOCODE_RETRY_DELAY_MS", ro.RetryDelay)
	c.Store.Resolver = ro
	c.Store.GeocodeCache = geocache.Options{
		TTL:         time.Duration(utils.EnvInt("GEOCODE_CACHE_TTL_H", 720)) * time.Hour,
		MaxEntries:  utils.EnvInt("GEOCODE_CACHE_MAX", 5000),
		MemCapacity: utils.EnvInt("GEOCODE_CACHE_MEM", 1024),
	}
	if s := utils.EnvString("TRAVEL_MODE", ""); s != "" {
		if m, ok := model.ParseTravelMode(s); ok {
			c.Store.TravelMode = m
		} else {
			l.Warn("config_invalid", "name", "TRAVEL_MODE", "value", s)
		}
	}
	if s := utils.EnvString("TRANSPORT_MODE", ""); s != "" {
		if m, ok := model.ParseTransportMode(s); ok {
			c.Store.TransportMode = m
		} else {
			l.Warn("config_invalid", "name", "TRANSPORT_MODE", "value", s)
		}
	}
	return c
}
