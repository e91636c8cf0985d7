package geo

import (
	"math"
	"strings"
)

// CoordSystem：客户端声明的坐标系
type CoordSystem string

const (
	WGS84 CoordSystem = "WGS-84"
	GCJ02 CoordSystem = "GCJ-02"
	BD09  CoordSystem = "BD-09"
)

// ParseCoordSystem：大小写不敏感解析；空串与未知名称按 WGS-84 处理
func ParseCoordSystem(s string) CoordSystem {
	switch {
	case strings.EqualFold(s, string(GCJ02)), strings.EqualFold(s, "gcj02"):
		return GCJ02
	case strings.EqualFold(s, string(BD09)), strings.EqualFold(s, "bd09"):
		return BD09
	}
	return WGS84
}

// 文档注释：坐标系转换（GCJ-02/BD-09 → WGS84）
// 背景：国内移动端地图 SDK 多以 GCJ-02/BD-09 上报，围栏数据为 WGS84，需先转换再判定。
// 约束：简化逆变换，误差在数米到数十米；仅当来源明确声明时启用；保留原坐标的精度与海拔。
func ToWGS84(c Coordinate, sys CoordSystem) Coordinate {
	switch sys {
	case GCJ02:
		c.Lat, c.Lon = gcj02ToWGS84(c.Lat, c.Lon)
	case BD09:
		c.Lat, c.Lon = bd09ToWGS84(c.Lat, c.Lon)
	}
	return c
}

func gcj02ToWGS84(lat, lon float64) (float64, float64) {
	glat, glon := transformGCJ(lat, lon)
	return lat*2 - glat, lon*2 - glon
}

func bd09ToWGS84(lat, lon float64) (float64, float64) {
	// BD-09 -> GCJ-02 -> WGS84
	x := lon - 0.0065
	y := lat - 0.006
	z := math.Sqrt(x*x+y*y) - 0.00002*math.Sin(y*math.Pi)
	theta := math.Atan2(y, x) - 0.000003*math.Cos(x*math.Pi)
	return gcj02ToWGS84(z*math.Sin(theta), z*math.Cos(theta))
}

// 克拉索夫斯基椭球参数
const (
	krasovskyA  = 6378245.0
	krasovskyEE = 0.00669342162296594323
)

func transformGCJ(lat, lon float64) (float64, float64) {
	if outOfChina(lat, lon) {
		return lat, lon
	}
	dLat := transformLat(lon-105.0, lat-35.0)
	dLon := transformLon(lon-105.0, lat-35.0)
	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - krasovskyEE*magic*magic
	sqrtMagic := math.Sqrt(magic)
	dLat = (dLat * 180.0) / ((krasovskyA * (1 - krasovskyEE)) / (magic * sqrtMagic) * math.Pi)
	dLon = (dLon * 180.0) / (krasovskyA / sqrtMagic * math.Cos(radLat) * math.Pi)
	return lat + dLat, lon + dLon
}

func outOfChina(lat, lon float64) bool {
	return lon < 72.004 || lon > 137.8347 || lat < 0.8293 || lat > 55.8271
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
