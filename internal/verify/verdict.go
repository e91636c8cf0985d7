package verify

// FlagReason：非致命异常标记，供人工复核
type FlagReason string

const (
	OutsideGeofence     FlagReason = "outside_geofence"
	SignatureInvalid    FlagReason = "signature_invalid"
	StaleTimestamp      FlagReason = "stale_timestamp"
	LowAccuracy         FlagReason = "low_accuracy"
	ImpossibleSpeed     FlagReason = "impossible_speed"
	ClusteredWithOthers FlagReason = "clustered_with_others"
)

// AllFlagReasons：按校验步骤顺序排列，与 Verdict.FlagReasons 的顺序一致
var AllFlagReasons = []FlagReason{
	SignatureInvalid,
	StaleTimestamp,
	LowAccuracy,
	OutsideGeofence,
	ImpossibleSpeed,
	ClusteredWithOthers,
}

// 文档注释：一次校验的结论
// 背景：交由外部考勤记录方持久化并展示给教师/管理员；引擎不做接受/拒绝决定。
// 约束：每次调用新建；FlagReasons 按 AllFlagReasons 顺序排列。
type Verdict struct {
	InsideGeofence bool
	// 到围栏参考点（圆心或质心）的距离
	DistanceMeters float64
	// 到围栏边界的距离，便于复核边界附近的 GPS 漂移
	BoundaryDistanceMeters float64
	Flagged                bool
	FlagReasons            []FlagReason
}

// Has：是否包含指定标记
func (v Verdict) Has(f FlagReason) bool {
	for _, r := range v.FlagReasons {
		if r == f {
			return true
		}
	}
	return false
}
