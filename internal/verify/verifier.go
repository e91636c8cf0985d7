// 包 verify：考勤上报校验编排（签名 → 时效 → 精度 → 围栏 → 速度 → 聚类）
package verify

import (
	"fmt"
	"time"

	"geo-attendance/internal/cluster"
	"geo-attendance/internal/geo"
	"geo-attendance/internal/geofence"
	"geo-attendance/internal/report"
	"geo-attendance/internal/signature"
)

// 文档注释：考勤校验器
// 背景：无调用间状态，仅持有只读配置与签名服务；可被任意多个协程并发调用。
type Verifier struct {
	cfg    Config
	signer *signature.Service
	now    func() time.Time
}

// New：校验配置并构造校验器
func New(cfg Config) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	signer, err := signature.New(cfg.Secret)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cfg.Secret = nil
	return &Verifier{cfg: cfg, signer: signer, now: now}, nil
}

// Signer：共享的签名服务（测试与调用方造数使用）
func (v *Verifier) Signer() *signature.Service { return v.signer }

// Config：返回配置副本（不含密钥）
func (v *Verifier) Config() Config { return v.cfg }

type options struct {
	previous   *report.LocationReport
	concurrent []report.LocationReport
	nowMs      *int64
}

// Option：可选输入
type Option func(*options)

// WithPrevious：同一对象的上一次上报，用于速度校验
func WithPrevious(prev report.LocationReport) Option {
	return func(o *options) { o.previous = &prev }
}

// WithConcurrent：同一围栏、同一时间窗的其他上报，用于聚类校验
func WithConcurrent(reports []report.LocationReport) Option {
	return func(o *options) { o.concurrent = reports }
}

// WithNow：覆盖本次调用的当前时间
func WithNow(t time.Time) Option {
	return func(o *options) {
		ms := t.UnixMilli()
		o.nowMs = &ms
	}
}

// 文档注释：校验一次上报
// 背景：所有异常（签名、时效、精度、围栏、速度、聚类）都降级为标记并继续判定，一次返回全部问题。
// 异常：仅坐标越界（含上一次上报与并发集合中的坐标）返回 ErrInvalidCoordinate；围栏为空返回 ErrInvalidParameter。
func (v *Verifier) Verify(r report.LocationReport, fence geofence.Geofence, opts ...Option) (Verdict, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if fence == nil {
		return Verdict{}, fmt.Errorf("%w: geofence is nil", geo.ErrInvalidParameter)
	}
	if err := r.Coordinate.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("report %s: %w", r.SubjectID, err)
	}
	if o.previous != nil {
		if err := o.previous.Coordinate.Validate(); err != nil {
			return Verdict{}, fmt.Errorf("previous report %s: %w", o.previous.SubjectID, err)
		}
	}
	for i := range o.concurrent {
		if err := o.concurrent[i].Coordinate.Validate(); err != nil {
			return Verdict{}, fmt.Errorf("concurrent report %d (%s): %w", i, o.concurrent[i].SubjectID, err)
		}
	}

	nowMs := v.now().UnixMilli()
	if o.nowMs != nil {
		nowMs = *o.nowMs
	}

	var flags []FlagReason
	// 1. 签名
	if !v.signer.Verify(r) {
		flags = append(flags, SignatureInvalid)
	}
	// 2. 时效
	if from, to := report.TimeWindow(nowMs, v.cfg.MaxClockSkewMs); r.TimestampUnixMs < from || r.TimestampUnixMs > to {
		flags = append(flags, StaleTimestamp)
	}
	// 3. 精度
	if acc, ok := r.Coordinate.Accuracy(); ok && acc > v.cfg.MaxAccuracyMeters {
		flags = append(flags, LowAccuracy)
	}
	// 4. 围栏
	inside := geofence.IsInside(r.Coordinate, fence)
	if !inside {
		flags = append(flags, OutsideGeofence)
	}
	// 5. 速度
	if o.previous != nil && v.impossibleSpeed(*o.previous, r) {
		flags = append(flags, ImpossibleSpeed)
	}
	// 6. 聚类
	if len(o.concurrent) > 0 && v.clusteredOutside(r, o.concurrent, fence) {
		flags = append(flags, ClusteredWithOthers)
	}

	return Verdict{
		InsideGeofence:         inside,
		DistanceMeters:         geo.DistanceMeters(r.Coordinate, geofence.Reference(fence)),
		BoundaryDistanceMeters: geofence.DistanceToBoundary(r.Coordinate, fence),
		Flagged:                len(flags) > 0,
		FlagReasons:            flags,
	}, nil
}

// 时间差非正（乱序或同一时刻）时跳过
func (v *Verifier) impossibleSpeed(prev, cur report.LocationReport) bool {
	// 整数相减在极端时间戳下会回绕
	elapsed := (float64(cur.TimestampUnixMs) - float64(prev.TimestampUnixMs)) / 1000
	if elapsed <= 0 {
		return false
	}
	return geo.DistanceMeters(prev.Coordinate, cur.Coordinate)/elapsed > v.cfg.MaxPlausibleSpeedMps
}

// 文档注释：是否与其他对象聚集在围栏外同一点
// 背景：本次上报放在首位作为种子，其余对象的上报按调用方顺序排在其后；同一对象的其他上报不计入。
// 约束：簇成员数 > 1 且簇中心不在围栏内才标记。
func (v *Verifier) clusteredOutside(r report.LocationReport, concurrent []report.LocationReport, fence geofence.Geofence) bool {
	pts := make([]geo.Coordinate, 0, len(concurrent)+1)
	pts = append(pts, r.Coordinate)
	for _, c := range concurrent {
		if c.SubjectID == r.SubjectID {
			continue
		}
		pts = append(pts, c.Coordinate)
	}
	if len(pts) < 2 {
		return false
	}
	cl, ok := cluster.Find(cluster.Cluster(pts, v.cfg.ClusterMaxDistanceMeters), 0)
	return ok && cl.Count > 1 && !geofence.IsInside(cl.Center, fence)
}
