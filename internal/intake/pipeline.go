// 包 intake：考勤上报批处理（解码 → 坐标系转换 → 围栏定位 → 重放检测 → 关联历史与同窗上报 → 并发校验 → 输出）
package intake

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/geo"
	"geo-attendance/internal/logger"
	"geo-attendance/internal/metrics"
	"geo-attendance/internal/report"
	"geo-attendance/internal/verify"
)

const maxLineBytes = 1 << 20

// Options：批处理参数；LastSeen 与 Replay 可为空（对应功能关闭）
type Options struct {
	Workers       int
	ClusterWindow time.Duration
	LastSeen      LastSeenStore
	Replay        ReplayChecker
	Logger        *slog.Logger
}

// 文档注释：批处理器
// 背景：校验引擎无状态，历史上报、同窗上报与围栏由本层负责准备；一个批次内的上报同时参与彼此的速度与聚类判定。
// 约束：单条上报的错误只影响该条（输出 error 字段），不中断批次；上下文取消时中止并返回错误。
type Processor struct {
	verifier *verify.Verifier
	fences   FenceResolver
	opts     Options
	log      *slog.Logger
}

func New(v *verify.Verifier, fences FenceResolver, opts Options) (*Processor, error) {
	if v == nil || fences == nil {
		return nil, errors.New("intake: verifier and fence resolver are required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ClusterWindow <= 0 {
		opts.ClusterWindow = time.Minute
	}
	l := opts.Logger
	if l == nil {
		l = logger.L()
	}
	return &Processor{verifier: v, fences: fences, opts: opts, log: l}, nil
}

type item struct {
	res        Result
	rep        report.LocationReport
	sys        geo.CoordSystem
	fence      fenceindex.Fence
	prev       *report.LocationReport
	concurrent []report.LocationReport
	rejected   bool
}

func (it *item) reject(err error) {
	it.rejected = true
	it.res.Error = err.Error()
}

// usable：参与关联与校验（未拒绝且非重复）
func (it *item) usable() bool { return !it.rejected && !it.res.Duplicate }

// Run：处理一批 NDJSON 上报并按输入顺序写出结果
func (p *Processor) Run(ctx context.Context, in io.Reader, out io.Writer) (Summary, error) {
	start := time.Now()
	items, err := decode(in)
	if err != nil {
		return Summary{}, err
	}
	p.prepare(ctx, items)
	lastTs := p.link(ctx, items)
	if err := p.verifyAll(ctx, items); err != nil {
		return Summary{}, err
	}
	p.persist(ctx, items, lastTs)

	var sum Summary
	enc := json.NewEncoder(out)
	for _, it := range items {
		sum.Total++
		switch {
		case it.rejected:
			sum.Rejected++
			metrics.InvalidReportsTotal.Inc()
		default:
			sum.Verified++
			if it.res.Flagged {
				sum.Flagged++
			}
		}
		if it.res.Duplicate {
			sum.Duplicates++
		}
		if it.res.FlagReasons == nil {
			it.res.FlagReasons = []verify.FlagReason{}
		}
		if err := enc.Encode(it.res); err != nil {
			return sum, err
		}
	}
	p.log.Info("intake_done",
		"total", sum.Total,
		"verified", sum.Verified,
		"flagged", sum.Flagged,
		"rejected", sum.Rejected,
		"duplicates", sum.Duplicates,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

func decode(in io.Reader) ([]*item, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	var items []*item
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(trimSpace(b)) == 0 {
			continue
		}
		it := &item{res: Result{Line: line}}
		items = append(items, it)
		var rec Input
		if err := json.Unmarshal(b, &rec); err != nil {
			it.reject(fmt.Errorf("decode: %w", err))
			continue
		}
		it.rep = rec.Report()
		it.res.SubjectID = rec.SubjectID
		it.res.TimestampUnixMs = rec.TimestampUnixMs
		it.res.FenceID = rec.FenceID
		if rec.SubjectID == "" {
			it.reject(errors.New("subject_id is empty"))
			continue
		}
		if err := it.rep.Coordinate.Validate(); err != nil {
			it.reject(err)
			continue
		}
		it.sys = geo.ParseCoordSystem(rec.CRS)
	}
	return items, sc.Err()
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t' || b[0] == '\r') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// 转换坐标系后签名按原坐标作废；原签名有效时以转换后的坐标重新签名，保持签名结论不变
func (p *Processor) normalize(r report.LocationReport, sys geo.CoordSystem) report.LocationReport {
	if sys == geo.WGS84 {
		return r
	}
	signer := p.verifier.Signer()
	valid := signer.Verify(r)
	r.Coordinate = geo.ToWGS84(r.Coordinate, sys)
	if valid {
		r.Signature = signer.Sign(r.SubjectID, r.Coordinate, r.TimestampUnixMs)
	}
	return r
}

// 文档注释：围栏定位与重放检测
// 约束：按输入顺序执行，同一签名第一次出现的上报不算重复。
func (p *Processor) prepare(ctx context.Context, items []*item) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.rejected {
			continue
		}
		it.rep = p.normalize(it.rep, it.sys)
		if it.res.FenceID != "" {
			f, err := p.fences.Get(it.res.FenceID)
			if err != nil {
				it.reject(err)
				continue
			}
			it.fence = f
			it.res.FenceMatch = MatchExplicit
		} else {
			m, ok := p.fences.Locate(it.rep.Coordinate)
			if !ok {
				it.reject(errors.New("no geofence near report"))
				continue
			}
			it.fence = m.Fence
			it.res.FenceID = m.Fence.ID
			it.res.FenceMatch = MatchNearest
			if m.Contained {
				it.res.FenceMatch = MatchContained
			}
		}
		if it.rep.Signature == "" {
			continue
		}
		if _, dup := seen[it.rep.Signature]; dup {
			it.res.Duplicate = true
			metrics.ReplayTotal.Inc()
			continue
		}
		seen[it.rep.Signature] = struct{}{}
		if p.opts.Replay != nil {
			dup, err := p.opts.Replay.Seen(ctx, it.rep.Signature)
			if err != nil {
				p.log.Warn("replay_check_error", "line", it.res.Line, "err", err)
			}
			it.res.Duplicate = dup
		}
	}
}

// 文档注释：关联上一次上报与同窗上报
// 背景：同一对象按时间排序，批内前一条作为上一次上报，批内第一条取 LastSeen；同一围栏内时间差不超过窗口的其他上报作为聚类输入。
// 返回：每个对象在 LastSeen 中已有上报的时间戳，供写回时比较。
func (p *Processor) link(ctx context.Context, items []*item) map[string]int64 {
	bySubject := map[string][]*item{}
	byFence := map[string][]*item{}
	for _, it := range items {
		if !it.usable() {
			continue
		}
		bySubject[it.rep.SubjectID] = append(bySubject[it.rep.SubjectID], it)
		byFence[it.fence.ID] = append(byFence[it.fence.ID], it)
	}

	lastTs := make(map[string]int64, len(bySubject))
	for subject, group := range bySubject {
		sortByTime(group)
		if p.opts.LastSeen != nil {
			prev, ok, err := p.opts.LastSeen.Get(ctx, subject)
			if err != nil {
				p.log.Warn("lastseen_get_error", "subject", subject, "err", err)
			}
			if ok {
				lastTs[subject] = prev.TimestampUnixMs
				if prev.TimestampUnixMs < group[0].rep.TimestampUnixMs {
					group[0].prev = &prev
				}
			}
		}
		for i := 1; i < len(group); i++ {
			prev := group[i-1].rep
			group[i].prev = &prev
		}
	}

	window := p.opts.ClusterWindow.Milliseconds()
	for _, group := range byFence {
		sortByTime(group)
		lo := 0
		for i, it := range group {
			from, to := report.TimeWindow(it.rep.TimestampUnixMs, window)
			for lo < i && group[lo].rep.TimestampUnixMs < from {
				lo++
			}
			for j := lo; j < len(group) && group[j].rep.TimestampUnixMs <= to; j++ {
				if j != i {
					it.concurrent = append(it.concurrent, group[j].rep)
				}
			}
		}
	}
	return lastTs
}

func sortByTime(group []*item) {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].rep.TimestampUnixMs < group[j].rep.TimestampUnixMs
	})
}

// 文档注释：并发校验
// 背景：校验器无状态可共享；工作协程从任务通道领取下标，结果写回各自的槽位，无需加锁。
func (p *Processor) verifyAll(ctx context.Context, items []*item) error {
	jobs := make(chan *item, 256)
	var wg sync.WaitGroup
	var done int64
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				p.verifyOne(it)
				if n := atomic.AddInt64(&done, 1); n%10000 == 0 {
					p.log.Debug("intake_progress", "verified", n)
				}
			}
		}()
	}
	var err error
feed:
	for _, it := range items {
		if it.rejected {
			continue
		}
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- it:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

func (p *Processor) verifyOne(it *item) {
	var opts []verify.Option
	if it.prev != nil {
		opts = append(opts, verify.WithPrevious(*it.prev))
	}
	if len(it.concurrent) > 0 {
		opts = append(opts, verify.WithConcurrent(it.concurrent))
	}
	start := time.Now()
	v, err := p.verifier.Verify(it.rep, it.fence.Shape, opts...)
	if err != nil {
		it.reject(err)
		return
	}
	metrics.ObserveVerdict(v, float64(time.Since(start).Microseconds())/1000)
	it.res.InsideGeofence = v.InsideGeofence
	it.res.DistanceMeters = v.DistanceMeters
	it.res.BoundaryDistanceMeters = v.BoundaryDistanceMeters
	it.res.Flagged = v.Flagged
	it.res.FlagReasons = v.FlagReasons
}

// persist：每个对象批内最新的一条写回 LastSeen（不早于已存上报）
func (p *Processor) persist(ctx context.Context, items []*item, lastTs map[string]int64) {
	if p.opts.LastSeen == nil {
		return
	}
	latest := map[string]report.LocationReport{}
	for _, it := range items {
		if !it.usable() {
			continue
		}
		cur, ok := latest[it.rep.SubjectID]
		if !ok || it.rep.TimestampUnixMs >= cur.TimestampUnixMs {
			latest[it.rep.SubjectID] = it.rep
		}
	}
	for subject, r := range latest {
		if ts, ok := lastTs[subject]; ok && ts > r.TimestampUnixMs {
			continue
		}
		if err := p.opts.LastSeen.Put(ctx, r); err != nil {
			p.log.Warn("lastseen_put_error", "subject", subject, "err", err)
		}
	}
}
