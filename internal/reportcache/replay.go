package reportcache

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"geo-attendance/internal/metrics"
)

// 默认布隆参数：约 1600 万位（2MB）/ 4 次哈希，单窗口百万级签名时误判率约千分之一
const (
	DefaultBloomBits   uint32 = 1 << 24
	DefaultBloomHashes        = 4
	DefaultReplayWindow       = 24 * time.Hour
	replayPrefix              = "att:replay:"
)

// 文档注释：计算布隆过滤器位置
// 参数：data 为参与哈希的字节序列，m 为位图大小，k 为哈希次数。
// 背景：使用 FNV64a 结合索引扰动生成 k 个位置，用于 GetBit/SetBit。
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// 文档注释：签名重放检测
// 背景：同一签名只对应一次上报，重复提交（抓包重放）需要标出；按时间窗轮换位图键，当前窗与上一窗共同判定。
// 约束：布隆过滤器只会误报“已见过”，不会漏报；Store 为空时视为首次出现。
type ReplayGuard struct {
	rc     Store
	m      uint32
	k      int
	window time.Duration
	now    func() time.Time
}

func NewReplayGuard(s Store, window time.Duration) *ReplayGuard {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &ReplayGuard{rc: normalize(s), m: DefaultBloomBits, k: DefaultBloomHashes, window: window, now: time.Now}
}

func (g *ReplayGuard) Enabled() bool { return g.rc != nil }

func (g *ReplayGuard) bucketKey(offset int64) string {
	b := g.now().UnixMilli()/g.window.Milliseconds() + offset
	return replayPrefix + strconv.FormatInt(b, 10)
}

// 文档注释：检查并记录签名
// 返回：true 表示签名已出现过（疑似重放）；首次出现时写入当前窗位图。
// 异常：Redis 交互错误时返回 error，调用方按未重放处理。
func (g *ReplayGuard) Seen(ctx context.Context, signature string) (bool, error) {
	if g.rc == nil || signature == "" {
		return false, nil
	}
	pos := bloomPositions([]byte(signature), g.m, g.k)
	cur := g.bucketKey(0)
	for _, key := range []string{cur, g.bucketKey(-1)} {
		all := true
		for _, p := range pos {
			b, err := g.rc.GetBit(ctx, key, p).Result()
			if err != nil {
				return false, err
			}
			if b == 0 {
				all = false
				break
			}
		}
		if all {
			metrics.ReplayTotal.Inc()
			return true, nil
		}
	}
	for _, p := range pos {
		if err := g.rc.SetBit(ctx, cur, p, 1).Err(); err != nil {
			return false, err
		}
	}
	return false, g.rc.Expire(ctx, cur, 2*g.window).Err()
}
