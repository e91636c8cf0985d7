// 包 geofence：圆形/多边形围栏的构造与点位包含判定
package geofence

import (
	"fmt"
	"math"

	"geo-attendance/internal/geo"
)

// 圆形转多边形的默认分段数
const DefaultSegments = 32

// 文档注释：围栏（圆形或多边形）
// 背景：课程签到范围既可由中心+半径定义，也可由教学楼轮廓多边形定义；判定逻辑按具体类型分派。
// 约束：仅 Circle 与 Polygon 两种实现；构造后只读，可在多个协程间共享。
type Geofence interface {
	Kind() string
	// Reference：圆心或多边形质心，用于报告距离
	Reference() geo.Coordinate
	Bounds() geo.Bounds
	sealed()
}

// Circle：中心 + 半径（米）
type Circle struct {
	Center       geo.Coordinate
	RadiusMeters float64
}

// NewCircle：校验中心坐标与半径（> 0）
func NewCircle(center geo.Coordinate, radiusMeters float64) (Circle, error) {
	if err := center.Validate(); err != nil {
		return Circle{}, fmt.Errorf("%w: circle center: %v", geo.ErrInvalidParameter, err)
	}
	if !(radiusMeters > 0) || math.IsInf(radiusMeters, 1) {
		return Circle{}, fmt.Errorf("%w: radius %v must be > 0", geo.ErrInvalidParameter, radiusMeters)
	}
	return Circle{Center: center, RadiusMeters: radiusMeters}, nil
}

func (c Circle) Kind() string              { return "circle" }
func (c Circle) Reference() geo.Coordinate { return c.Center }
func (c Circle) sealed()                   {}

// Bounds：按四个正方位投影得到外接盒
func (c Circle) Bounds() geo.Bounds {
	n := geo.DestinationPoint(c.Center, c.RadiusMeters, 0)
	e := geo.DestinationPoint(c.Center, c.RadiusMeters, 90)
	s := geo.DestinationPoint(c.Center, c.RadiusMeters, 180)
	w := geo.DestinationPoint(c.Center, c.RadiusMeters, 270)
	return geo.Bounds{MinLat: s.Lat, MaxLat: n.Lat, MinLon: w.Lon, MaxLon: e.Lon}
}

// 文档注释：多边形围栏
// 背景：顶点按顺序组成隐式闭合环（末点连回首点），不要求凸。
// 约束：至少 3 个顶点；不支持跨 ±180 经线的多边形（调用方需保证）。
type Polygon struct {
	vertices []geo.Coordinate
	bounds   geo.Bounds
	centroid geo.Coordinate
}

// 文档注释：由显式顶点构造多边形
// 背景：GeoJSON 环会重复首点收尾，此处去掉重复的闭合点后再计数。
// 异常：顶点不足 3 个或存在非法经纬度时返回 ErrInvalidParameter。
func NewPolygon(vertices []geo.Coordinate) (Polygon, error) {
	vs := append([]geo.Coordinate(nil), vertices...)
	if len(vs) > 1 && vs[0].SamePosition(vs[len(vs)-1]) {
		vs = vs[:len(vs)-1]
	}
	if len(vs) < 3 {
		return Polygon{}, fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", geo.ErrInvalidParameter, len(vs))
	}
	for i, v := range vs {
		if err := v.Validate(); err != nil {
			return Polygon{}, fmt.Errorf("%w: vertex %d: %v", geo.ErrInvalidParameter, i, err)
		}
	}
	b, _ := geo.BoundingBox(vs)
	return Polygon{vertices: vs, bounds: b, centroid: ringCentroid(vs)}, nil
}

// Vertices：返回顶点副本
func (p Polygon) Vertices() []geo.Coordinate {
	return append([]geo.Coordinate(nil), p.vertices...)
}

func (p Polygon) Kind() string              { return "polygon" }
func (p Polygon) Reference() geo.Coordinate { return p.centroid }
func (p Polygon) Bounds() geo.Bounds        { return p.bounds }
func (p Polygon) sealed()                   {}

// 文档注释：圆形围栏的多边形近似
// 背景：在方位角 i*360/segments 处前向投影采样；用于渲染或与多边形统一处理。
// 异常：segments < 3 返回 ErrInvalidParameter。
func CircleToPolygon(c Circle, segments int) (Polygon, error) {
	if segments < 3 {
		return Polygon{}, fmt.Errorf("%w: segments %d must be >= 3", geo.ErrInvalidParameter, segments)
	}
	vs := make([]geo.Coordinate, segments)
	for i := 0; i < segments; i++ {
		vs[i] = geo.DestinationPoint(c.Center, c.RadiusMeters, float64(i)*360/float64(segments))
	}
	return NewPolygon(vs)
}

// 平面（经度, 纬度）面积加权质心；退化（面积近零）时回退为顶点均值
func ringCentroid(vs []geo.Coordinate) geo.Coordinate {
	var a, cx, cy float64
	n := len(vs)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		cross := vs[j].Lon*vs[i].Lat - vs[i].Lon*vs[j].Lat
		a += cross
		cx += (vs[j].Lon + vs[i].Lon) * cross
		cy += (vs[j].Lat + vs[i].Lat) * cross
	}
	if math.Abs(a) < 1e-18 {
		var sLat, sLon float64
		for _, v := range vs {
			sLat += v.Lat
			sLon += v.Lon
		}
		return geo.Coordinate{Lat: sLat / float64(n), Lon: sLon / float64(n)}
	}
	return geo.Coordinate{Lat: cy / (3 * a), Lon: cx / (3 * a)}
}
