// 包 reportcache：基于 Redis 的上报缓存（每个对象最近一次上报、签名重放检测）
package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"geo-attendance/internal/metrics"
	"geo-attendance/internal/report"

	"github.com/redis/go-redis/v9"
)

// Store：本包用到的 Redis 命令子集，*redis.Client 满足
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetBit(ctx context.Context, key string, offset int64) *redis.IntCmd
	SetBit(ctx context.Context, key string, offset int64, value int) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// 未配置 Redis 时 *redis.Client 可能以带类型的 nil 传入
func normalize(s Store) Store {
	if rc, ok := s.(*redis.Client); ok && rc == nil {
		return nil
	}
	return s
}

const (
	DefaultLastSeenTTL = 24 * time.Hour
	lastSeenPrefix     = "att:last:"
)

// 文档注释：对象最近一次上报
// 背景：为速度校验提供上一次上报；批处理之间通过 Redis 共享，TTL 过期后视为无历史。
// 约束：Store 为空时禁用（Get 恒未命中，Put 不写入），不阻断主流程。
type LastSeen struct {
	rc  Store
	ttl time.Duration
}

func NewLastSeen(s Store, ttl time.Duration) *LastSeen {
	if ttl <= 0 {
		ttl = DefaultLastSeenTTL
	}
	return &LastSeen{rc: normalize(s), ttl: ttl}
}

func (l *LastSeen) Enabled() bool { return l.rc != nil }

// Get：读取对象最近一次上报；不存在时 ok=false
func (l *LastSeen) Get(ctx context.Context, subjectID string) (report.LocationReport, bool, error) {
	if l.rc == nil {
		return report.LocationReport{}, false, nil
	}
	b, err := l.rc.Get(ctx, lastSeenPrefix+subjectID).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.LastSeenMissesTotal.Inc()
		return report.LocationReport{}, false, nil
	}
	if err != nil {
		return report.LocationReport{}, false, err
	}
	var w report.Wire
	if err := json.Unmarshal(b, &w); err != nil {
		metrics.LastSeenMissesTotal.Inc()
		return report.LocationReport{}, false, err
	}
	r := w.Report()
	// 损坏的缓存项按未命中处理，不能拖累本次上报的校验
	if err := r.Coordinate.Validate(); err != nil {
		metrics.LastSeenMissesTotal.Inc()
		return report.LocationReport{}, false, fmt.Errorf("lastseen %s: %w", subjectID, err)
	}
	metrics.LastSeenHitsTotal.Inc()
	return r, true, nil
}

// Put：写入对象最近一次上报并刷新 TTL
func (l *LastSeen) Put(ctx context.Context, r report.LocationReport) error {
	if l.rc == nil {
		return nil
	}
	b, err := json.Marshal(report.ToWire(r))
	if err != nil {
		return err
	}
	return l.rc.Set(ctx, lastSeenPrefix+r.SubjectID, b, l.ttl).Err()
}
