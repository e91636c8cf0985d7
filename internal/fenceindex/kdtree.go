package fenceindex

import (
	"math"

	"geo-attendance/internal/geo"
)

// 文档注释：KD-Tree 最近邻（围栏参考点，二维经纬）
// 背景：上报不在任何围栏内时，找出最近的围栏作为比对对象，超出最大半径则视为无归属。
// 约束：按经度/纬度交替分割；距离以米计（Haversine）；剪枝以纬向米距为下界，经向按查询纬度带放宽。
type kdNode struct {
	p   geo.Coordinate
	idx int
	ax  int // 0:lon,1:lat
	l   *kdNode
	r   *kdNode
}

type refPoint struct {
	p   geo.Coordinate
	idx int
}

func buildKD(ps []refPoint, depth int) *kdNode {
	if len(ps) == 0 {
		return nil
	}
	ax := depth % 2
	mid := len(ps) / 2
	selectNth(ps, mid, ax)
	node := &kdNode{p: ps[mid].p, idx: ps[mid].idx, ax: ax}
	node.l = buildKD(ps[:mid], depth+1)
	node.r = buildKD(ps[mid+1:], depth+1)
	return node
}

// 原地 nth 元素选择
func selectNth(a []refPoint, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []refPoint, lo, hi, pivot, ax int) int {
	pv := a[pivot]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if axisValue(a[j].p, ax) < axisValue(pv.p, ax) {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func axisValue(c geo.Coordinate, ax int) float64 {
	if ax == 0 {
		return c.Lon
	}
	return c.Lat
}

const metersPerDegree = geo.EarthRadiusMeters * math.Pi / 180

// 最近邻查询，返回参考点下标与距离（米）；空树返回 -1
func nearest(node *kdNode, pt geo.Coordinate) (int, float64) {
	best := -1
	bestD := math.MaxFloat64
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		if d := geo.DistanceMeters(pt, n.p); d < bestD {
			bestD, best = d, n.idx
		}
		key, q := axisValue(pt, n.ax), axisValue(n.p, n.ax)
		first, second := n.l, n.r
		if key > q {
			first, second = n.r, n.l
		}
		dfs(first)
		if math.Abs(key-q)*axisScale(pt, n.ax, bestD) < bestD {
			dfs(second)
		}
	}
	dfs(node)
	return best, bestD
}

// 分割平面方向上每度对应的最小米数
func axisScale(pt geo.Coordinate, ax int, bestD float64) float64 {
	if ax == 1 {
		return metersPerDegree
	}
	band := math.Abs(pt.Lat) + bestD/metersPerDegree
	if band >= 90 {
		return 0
	}
	return metersPerDegree * math.Cos(band*math.Pi/180)
}
