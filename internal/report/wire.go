package report

import "geo-attendance/internal/geo"

// 文档注释：上报的 JSON 形态（NDJSON 输入、Redis 缓存）
// 约束：可选字段缺省即为未提供；时间戳为 Unix 毫秒。
type Wire struct {
	SubjectID       string   `json:"subject_id"`
	Lat             float64  `json:"lat"`
	Lon             float64  `json:"lon"`
	AccuracyMeters  *float64 `json:"accuracy_m,omitempty"`
	ElevationMeters *float64 `json:"elevation_m,omitempty"`
	TimestampUnixMs int64    `json:"timestamp_ms"`
	Signature       string   `json:"signature"`
}

// Report：转为领域值（不做坐标校验）
func (w Wire) Report() LocationReport {
	c := geo.Coordinate{Lat: w.Lat, Lon: w.Lon}
	if w.AccuracyMeters != nil {
		c = c.WithAccuracy(*w.AccuracyMeters)
	}
	if w.ElevationMeters != nil {
		c = c.WithElevation(*w.ElevationMeters)
	}
	return LocationReport{SubjectID: w.SubjectID, Coordinate: c, TimestampUnixMs: w.TimestampUnixMs, Signature: w.Signature}
}

// ToWire：领域值转 JSON 形态
func ToWire(r LocationReport) Wire {
	w := Wire{
		SubjectID:       r.SubjectID,
		Lat:             r.Coordinate.Lat,
		Lon:             r.Coordinate.Lon,
		TimestampUnixMs: r.TimestampUnixMs,
		Signature:       r.Signature,
	}
	if r.Coordinate.AccuracyMeters != nil {
		v := *r.Coordinate.AccuracyMeters
		w.AccuracyMeters = &v
	}
	if r.Coordinate.ElevationMeters != nil {
		v := *r.Coordinate.ElevationMeters
		w.ElevationMeters = &v
	}
	return w
}
