package coord

import (
	"math"

	"github.com/paulmach/orb/geo"
)

// Precision：持久化与稳定键使用的小数位数（约 0.1 米）
const Precision = 6

// RoundPlaces：四舍五入到指定小数位，places<0 原样返回
func RoundPlaces(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	d := math.Pow(10, float64(places))
	return math.Round(v*d) / d
}

func Round6(v float64) float64 { return RoundPlaces(v, Precision) }

// Rounded：经纬度同时保留 6 位小数
func (c Coordinate) Rounded() Coordinate {
	return Coordinate{Lat: Round6(c.Lat), Lon: Round6(c.Lon)}
}

// 文档注释：显式坐标规整
// 背景：上游行程生成偶发经纬度字段互换；纬度绝对值超过 90 而经度不超过 90 时判定为互换并纠正。
// 返回：纠正后并保留 6 位小数的坐标。
func Normalize(lat, lon float64) Coordinate {
	if math.Abs(lat) > 90 && math.Abs(lon) <= 90 {
		lat, lon = lon, lat
	}
	return Coordinate{Lat: Round6(lat), Lon: Round6(lon)}
}

// Valid：经纬度在合法范围内且为有限值
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Distance：两点球面距离（米）
func Distance(a, b Coordinate) float64 { return geo.Distance(a.Point(), b.Point()) }

// Add：逐分量相加，用于基准坐标叠加人工偏移
func (c Coordinate) Add(dLat, dLon float64) Coordinate {
	return Coordinate{Lat: c.Lat + dLat, Lon: c.Lon + dLon}
}
