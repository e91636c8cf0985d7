package metrics

import (
	"net/http"

	"geo-attendance/internal/verify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VerifyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_verify_total",
		Help: "Total number of verified location reports",
	})
	VerifyDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_verify_duration_ms",
		Help:    "Verify call duration in milliseconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 50, 100},
	})
	FlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_flagged_total",
		Help: "Total number of verdicts with at least one flag",
	})
	FlagsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_flags_total",
		Help: "Total flags raised by reason",
	}, []string{"reason"})
	InvalidReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_invalid_reports_total",
		Help: "Total reports rejected before verification (bad coordinate, unknown fence, decode error)",
	})
	ReplayTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_replay_total",
		Help: "Total reports whose signature was already seen",
	})
	FenceCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_fence_cache_hits_total",
		Help: "Total fence lookup cache hits",
	})
	FenceCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_fence_cache_misses_total",
		Help: "Total fence lookup cache misses",
	})
	LastSeenHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_lastseen_hits_total",
		Help: "Total previous-report lookups served from redis",
	})
	LastSeenMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_lastseen_misses_total",
		Help: "Total previous-report lookups without a stored report",
	})
)

func init() {
	prometheus.MustRegister(VerifyTotal)
	prometheus.MustRegister(VerifyDurationMs)
	prometheus.MustRegister(FlaggedTotal)
	prometheus.MustRegister(FlagsTotal)
	prometheus.MustRegister(InvalidReportsTotal)
	prometheus.MustRegister(ReplayTotal)
	prometheus.MustRegister(FenceCacheHitsTotal)
	prometheus.MustRegister(FenceCacheMissesTotal)
	prometheus.MustRegister(LastSeenHitsTotal)
	prometheus.MustRegister(LastSeenMissesTotal)
}

// ObserveVerdict：按结论累加校验与标记计数
func ObserveVerdict(v verify.Verdict, durationMs float64) {
	VerifyTotal.Inc()
	VerifyDurationMs.Observe(durationMs)
	if v.Flagged {
		FlaggedTotal.Inc()
	}
	for _, r := range v.FlagReasons {
		FlagsTotal.WithLabelValues(string(r)).Inc()
	}
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
