package report

import "math"

// 文档注释：以 ts 为中心、半宽 widthMs 的闭区间 [from, to]
// 约束：端点在 int64 范围内饱和，极端时间戳不会回绕；widthMs 为负时按 0 处理。
func TimeWindow(ts, widthMs int64) (from, to int64) {
	if widthMs < 0 {
		widthMs = 0
	}
	from, to = math.MinInt64, math.MaxInt64
	if ts >= math.MinInt64+widthMs {
		from = ts - widthMs
	}
	if ts <= math.MaxInt64-widthMs {
		to = ts + widthMs
	}
	return from, to
}
