package geo

import "math"

// 球面地球半径（米），所有距离计算共用
const EarthRadiusMeters = 6371000.0

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

// 文档注释：球面距离（Haversine），返回米
// 背景：围栏判定、速度估算与聚类都依赖此函数；同一经纬度严格返回 0。
// 约束：球面模型，误差在千分之三以内；不处理跨 ±180 经线的特殊情况。
func DistanceMeters(a, b Coordinate) float64 {
	if a.SamePosition(b) {
		return 0
	}
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	h := sLat*sLat + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*sLon*sLon
	// 浮点误差可能使 h 略超出 [0,1]
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// 文档注释：初始方位角（度，[0,360)）
// 背景：正北为 0，顺时针递增；a 与 b 重合时返回 0。
func BearingDegrees(a, b Coordinate) float64 {
	if a.SamePosition(b) {
		return 0
	}
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	deg := math.Mod(toDeg(math.Atan2(y, x))+360, 360)
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// 文档注释：前向投影
// 背景：从 origin 沿 bearing 方向移动 distance 米得到目标点；用于圆形围栏的多边形近似与测试造点。
// 约束：结果经度归一化到 [-180,180)；不复制 origin 的精度/海拔。
func DestinationPoint(origin Coordinate, distanceMeters, bearingDegrees float64) Coordinate {
	delta := distanceMeters / EarthRadiusMeters
	theta := toRad(bearingDegrees)
	phi1 := toRad(origin.Lat)
	lambda1 := toRad(origin.Lon)
	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	sinPhi2 = math.Min(1, math.Max(-1, sinPhi2))
	phi2 := math.Asin(sinPhi2)
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*sinPhi2,
	)
	lon := math.Mod(toDeg(lambda2)+540, 360) - 180
	return Coordinate{Lat: toDeg(phi2), Lon: lon}
}

// Bounds：经纬度包围盒（度）
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains：闭区间包含判定，用于候选快速过滤
func (b Bounds) Contains(c Coordinate) bool {
	return c.Lon >= b.MinLon && c.Lon <= b.MaxLon && c.Lat >= b.MinLat && c.Lat <= b.MaxLat
}

// 文档注释：计算点集包围盒
// 异常：空点集返回 ErrEmptyInput，避免调用方把"无数据"当作合法的空结果。
func BoundingBox(points []Coordinate) (Bounds, error) {
	if len(points) == 0 {
		return Bounds{}, ErrEmptyInput
	}
	b := Bounds{MinLat: points[0].Lat, MaxLat: points[0].Lat, MinLon: points[0].Lon, MaxLon: points[0].Lon}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b, nil
}
