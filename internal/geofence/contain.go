package geofence

import (
	"math"

	"geo-attendance/internal/geo"
)

// 文档注释：点是否位于围栏内
// 背景：圆形按球面距离判定，边界点（距离恰等于半径）视为在内；多边形用射线法（Even-Odd）。
// 约束：多边形在（经度, 纬度）平面上近似判定，仅适用于楼宇/校园尺度；边界上的点结果不作保证。
func IsInside(point geo.Coordinate, fence Geofence) bool {
	switch f := fence.(type) {
	case Circle:
		return geo.DistanceMeters(point, f.Center) <= f.RadiusMeters
	case *Circle:
		return geo.DistanceMeters(point, f.Center) <= f.RadiusMeters
	case Polygon:
		return f.bounds.Contains(point) && pointInRing(point, f.vertices)
	case *Polygon:
		return f.bounds.Contains(point) && pointInRing(point, f.vertices)
	}
	return false
}

// 射线法判定点是否在环内
func pointInRing(pt geo.Coordinate, ring []geo.Coordinate) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x, y := pt.Lon, pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		// (yi > y) != (yj > y) 保证 yj != yi，不会除零
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// 文档注释：点到围栏边界的距离（米，非负）
// 背景：圆形为 |d - r|；多边形取点到各条边的最小距离，在以该点为原点的局部等距平面上计算。
// 约束：不区分内外，调用方结合 IsInside 判断方向。
func DistanceToBoundary(point geo.Coordinate, fence Geofence) float64 {
	switch f := fence.(type) {
	case Circle:
		return math.Abs(geo.DistanceMeters(point, f.Center) - f.RadiusMeters)
	case *Circle:
		return math.Abs(geo.DistanceMeters(point, f.Center) - f.RadiusMeters)
	case Polygon:
		return distanceToRing(point, f.vertices)
	case *Polygon:
		return distanceToRing(point, f.vertices)
	}
	return math.Inf(1)
}

// Reference：围栏参考点（圆心或质心）
func Reference(fence Geofence) geo.Coordinate { return fence.Reference() }

func distanceToRing(pt geo.Coordinate, ring []geo.Coordinate) float64 {
	kx := geo.EarthRadiusMeters * math.Pi / 180 * math.Cos(pt.Lat*math.Pi/180)
	ky := geo.EarthRadiusMeters * math.Pi / 180
	best := math.Inf(1)
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		ax, ay := (ring[j].Lon-pt.Lon)*kx, (ring[j].Lat-pt.Lat)*ky
		bx, by := (ring[i].Lon-pt.Lon)*kx, (ring[i].Lat-pt.Lat)*ky
		best = math.Min(best, originToSegment(ax, ay, bx, by))
	}
	return best
}

// 原点到线段 AB 的平面距离
func originToSegment(ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(ax, ay)
	}
	t := -(ax*dx + ay*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(ax+t*dx, ay+t*dy)
}
