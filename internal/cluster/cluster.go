// 包 cluster：上报点的空间聚类，用于发现多台设备上报同一伪造位置
package cluster

import "geo-attendance/internal/geo"

// Result：一个聚类（成员为输入点下标，升序）
type Result struct {
	Center  geo.Coordinate
	Members []int
	Count   int
}

// Has：成员判定
func (r Result) Has(idx int) bool {
	for _, m := range r.Members {
		if m == idx {
			return true
		}
	}
	return false
}

// 文档注释：以种子点为中心的贪心聚类
// 背景：按输入顺序遍历，未归类的点成为新簇种子；再扫描其余未归类点，距种子不超过 maxDistanceMeters 的吸收进簇。
// 约束：只与种子比较，不对新成员做传递扩展；与种子远、但与成员近的点不会被纳入。复杂度 O(n²)。
// 簇中心为成员经纬度算术平均（非测地质心），簇范围很小时误差可忽略。空输入返回空切片。
func Cluster(points []geo.Coordinate, maxDistanceMeters float64) []Result {
	out := []Result{}
	assigned := make([]bool, len(points))
	for i, seed := range points {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []int{i}
		for j := i + 1; j < len(points); j++ {
			if assigned[j] {
				continue
			}
			if geo.DistanceMeters(seed, points[j]) <= maxDistanceMeters {
				assigned[j] = true
				members = append(members, j)
			}
		}
		out = append(out, Result{Center: mean(points, members), Members: members, Count: len(members)})
	}
	return out
}

// Find：返回包含下标 idx 的簇
func Find(results []Result, idx int) (Result, bool) {
	for _, r := range results {
		if r.Has(idx) {
			return r, true
		}
	}
	return Result{}, false
}

func mean(points []geo.Coordinate, members []int) geo.Coordinate {
	var lat, lon float64
	for _, m := range members {
		lat += points[m].Lat
		lon += points[m].Lon
	}
	n := float64(len(members))
	return geo.Coordinate{Lat: lat / n, Lon: lon / n}
}
