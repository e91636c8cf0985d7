package intake

import (
	"context"

	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/geo"
	"geo-attendance/internal/report"
	"geo-attendance/internal/verify"
)

// Input：NDJSON 输入的一行
type Input struct {
	report.Wire
	// 缺省时按位置定位围栏
	FenceID string `json:"fence_id,omitempty"`
	// WGS-84（缺省）、GCJ-02、BD-09
	CRS string `json:"crs,omitempty"`
}

// 围栏匹配方式
const (
	MatchExplicit  = "explicit"
	MatchContained = "contained"
	MatchNearest   = "nearest"
)

// 文档注释：NDJSON 输出的一行
// 约束：按输入顺序输出；Error 非空时表示上报被拒绝，校验结果字段无意义。
type Result struct {
	Line                   int                 `json:"line"`
	SubjectID              string              `json:"subject_id,omitempty"`
	TimestampUnixMs        int64               `json:"timestamp_ms,omitempty"`
	FenceID                string              `json:"fence_id,omitempty"`
	FenceMatch             string              `json:"fence_match,omitempty"`
	InsideGeofence         bool                `json:"inside_geofence"`
	DistanceMeters         float64             `json:"distance_m"`
	BoundaryDistanceMeters float64             `json:"boundary_distance_m"`
	Flagged                bool                `json:"flagged"`
	FlagReasons            []verify.FlagReason `json:"flag_reasons"`
	Duplicate              bool                `json:"duplicate,omitempty"`
	Error                  string              `json:"error,omitempty"`
}

// Summary：一次批处理的计数
type Summary struct {
	Total      int `json:"total"`
	Verified   int `json:"verified"`
	Flagged    int `json:"flagged"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
}

// FenceResolver：*fenceindex.Index 满足
type FenceResolver interface {
	Get(id string) (fenceindex.Fence, error)
	Locate(pt geo.Coordinate) (fenceindex.Match, bool)
}

// LastSeenStore：*reportcache.LastSeen 满足
type LastSeenStore interface {
	Get(ctx context.Context, subjectID string) (report.LocationReport, bool, error)
	Put(ctx context.Context, r report.LocationReport) error
}

// ReplayChecker：*reportcache.ReplayGuard 满足
type ReplayChecker interface {
	Seen(ctx context.Context, signature string) (bool, error)
}
