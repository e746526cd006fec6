// 包 coord：WGS84 / GCJ-02 / BD-09 三种坐标系互转、精度处理与测距；全部为无状态纯函数
package coord

import (
	"math"

	"github.com/paulmach/orb"
)

// System：坐标参考系标识，取值与持久化/接口字段一致
type System string

const (
	WGS84 System = "wgs84"
	GCJ02 System = "gcj02"
	BD09  System = "bd09"
)

// ParseSystem：宽松解析坐标系名称（兼容 "GCJ-02"、"BD-09" 等写法），未知返回 false
func ParseSystem(s string) (System, bool) {
	switch normalizeName(s) {
	case "wgs84":
		return WGS84, true
	case "gcj02":
		return GCJ02, true
	case "bd09":
		return BD09, true
	}
	return "", false
}

func normalizeName(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'A' && ch <= 'Z' {
			ch += 32
		}
		if ch == '-' || ch == '_' || ch == ' ' {
			continue
		}
		out = append(out, ch)
	}
	return string(out)
}

// Coordinate：经纬度对（度）
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Point：转为 orb.Point（经度在前）
func (c Coordinate) Point() orb.Point { return orb.Point{c.Lon, c.Lat} }

// FromPoint：orb.Point 转回经纬度
func FromPoint(p orb.Point) Coordinate { return Coordinate{Lat: p.Lat(), Lon: p.Lon()} }

const (
	krasovskyA = 6378245.0
	krasovskyE = 0.00669342162296594323

	bdZ     = 0.00002
	bdTheta = 0.000003
	bdDLon  = 0.0065
	bdDLat  = 0.006
)

// 文档注释：国内加偏适用范围
// 约束：边界取闭区间，区间外坐标不做任何偏移；与 outOfChina 的严格不等式判定等价。
var chinaBound = orb.Bound{
	Min: orb.Point{72.004, 0.8293},
	Max: orb.Point{137.8347, 55.8271},
}

// OutOfChina：是否位于国内加偏范围之外
func OutOfChina(c Coordinate) bool { return !chinaBound.Contains(c.Point()) }

// 文档注释：WGS84 → GCJ-02
// 背景：国测局加偏算法（克拉索夫斯基椭球），自动推断坐标系依赖其精确数值，不可替换为近似实现。
// 约束：境外坐标原样返回。
func WGS84ToGCJ02(c Coordinate) Coordinate {
	if OutOfChina(c) {
		return c
	}
	return shift(c)
}

// 文档注释：GCJ-02 → WGS84（近似逆变换）
// 背景：在 GCJ-02 点上再算一次偏移并以 2*c - shift(c) 回推；非精确逆，国内典型误差 30 米以内。
func GCJ02ToWGS84(c Coordinate) Coordinate {
	if OutOfChina(c) {
		return c
	}
	m := shift(c)
	return Coordinate{Lat: c.Lat*2 - m.Lat, Lon: c.Lon*2 - m.Lon}
}

// GCJ02ToBD09：百度极坐标偏移
func GCJ02ToBD09(c Coordinate) Coordinate {
	x := c.Lon
	y := c.Lat
	z := math.Sqrt(x*x+y*y) + bdZ*math.Sin(y*math.Pi)
	theta := math.Atan2(y, x) + bdTheta*math.Cos(x*math.Pi)
	return Coordinate{Lat: z*math.Sin(theta) + bdDLat, Lon: z*math.Cos(theta) + bdDLon}
}

// BD09ToGCJ02：GCJ02ToBD09 的反向偏移
func BD09ToGCJ02(c Coordinate) Coordinate {
	x := c.Lon - bdDLon
	y := c.Lat - bdDLat
	z := math.Sqrt(x*x+y*y) - bdZ*math.Sin(y*math.Pi)
	theta := math.Atan2(y, x) - bdTheta*math.Cos(x*math.Pi)
	return Coordinate{Lat: z * math.Sin(theta), Lon: z * math.Cos(theta)}
}

func WGS84ToBD09(c Coordinate) Coordinate { return GCJ02ToBD09(WGS84ToGCJ02(c)) }

func BD09ToWGS84(c Coordinate) Coordinate { return GCJ02ToWGS84(BD09ToGCJ02(c)) }

// 文档注释：任意坐标系 → 渲染坐标系（GCJ-02）
// 背景：地图底图为高德，所有展示坐标统一落到 GCJ-02；未知坐标系按 GCJ-02 原样处理。
func ToGCJ02(c Coordinate, sys System) Coordinate {
	switch sys {
	case WGS84:
		return WGS84ToGCJ02(c)
	case BD09:
		return BD09ToGCJ02(c)
	default:
		return c
	}
}

// shift：在 c 处计算加偏后的点
func shift(c Coordinate) Coordinate {
	dLat := transformLat(c.Lon-105.0, c.Lat-35.0)
	dLon := transformLon(c.Lon-105.0, c.Lat-35.0)
	radLat := c.Lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - krasovskyE*magic*magic
	sqrtMagic := math.Sqrt(magic)
	mgLat := c.Lat + (dLat*180.0)/((krasovskyA*(1-krasovskyE))/(magic*sqrtMagic)*math.Pi)
	mgLon := c.Lon + (dLon*180.0)/(krasovskyA/sqrtMagic*math.Cos(radLat)*math.Pi)
	return Coordinate{Lat: mgLat, Lon: mgLon}
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
