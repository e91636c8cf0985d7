// 程序入口：读取一批 NDJSON 考勤上报，逐条校验后输出 NDJSON 结论；围栏来自目录或 PostgreSQL，历史与重放检测使用可选的 Redis
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"geo-attendance/internal/config"
	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/intake"
	"geo-attendance/internal/logger"
	"geo-attendance/internal/metrics"
	"geo-attendance/internal/migrate"
	"geo-attendance/internal/reportcache"
	"geo-attendance/internal/store"
	"geo-attendance/internal/utils"
	"geo-attendance/internal/verify"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

var (
	flagInput = &cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Value:   "-",
		Usage:   "NDJSON report file, - for stdin",
	}
	flagOutput = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   "-",
		Usage:   "NDJSON verdict file, - for stdout",
	}
	flagFenceSource = &cli.StringFlag{
		Name:    "fence-source",
		EnvVars: []string{"FENCE_SOURCE"},
		Value:   config.FenceSourceDir,
		Usage:   "where geofences are loaded from: dir or db",
	}
	flagFenceDir = &cli.StringFlag{
		Name:    "fence-dir",
		EnvVars: []string{"FENCE_DIR"},
		Value:   "data/fences",
		Usage:   "directory with fences.json or *.geojson",
	}
	flagWorkers = &cli.IntFlag{
		Name:    "workers",
		EnvVars: []string{"VERIFY_WORKERS"},
		Usage:   "verification goroutines (default: number of CPUs)",
	}
	flagMetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		EnvVars: []string{"METRICS_ADDR"},
		Usage:   "serve Prometheus metrics on this address while the batch runs",
	}
	flagLogLevel = &cli.StringFlag{
		Name:    "log-level",
		EnvVars: []string{"LOG_LEVEL"},
		Value:   "info",
	}
	flagLogJSON = &cli.BoolFlag{
		Name:  "log-json",
		Usage: "log in JSON format",
	}
	flagLogUID = &cli.BoolFlag{
		Name:  "log-uid",
		Value: true,
		Usage: "generate a run id and add it to all log messages",
	}
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))

	app := &cli.App{
		Name:  "attendance-verify",
		Usage: "verify signed attendance location reports against geofences",
		Flags: []cli.Flag{
			flagInput, flagOutput, flagFenceSource, flagFenceDir, flagWorkers,
			flagMetricsAddr, flagLogLevel, flagLogJSON, flagLogUID,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cCtx *cli.Context) error {
	format := os.Getenv("LOG_FORMAT")
	if cCtx.Bool(flagLogJSON.Name) {
		format = "json"
	}
	l := logger.SetupWith(os.Stderr, cCtx.String(flagLogLevel.Name), format)
	if cCtx.Bool(flagLogUID.Name) {
		l = logger.WithRun(uuid.Must(uuid.NewRandom()).String())
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cCtx.IsSet(flagFenceSource.Name) {
		cfg.FenceSource = cCtx.String(flagFenceSource.Name)
	}
	if cCtx.IsSet(flagFenceDir.Name) {
		cfg.FenceDir = cCtx.String(flagFenceDir.Name)
	}
	if n := cCtx.Int(flagWorkers.Name); n > 0 {
		cfg.Workers = n
	}
	if a := cCtx.String(flagMetricsAddr.Name); a != "" {
		cfg.MetricsAddr = a
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := verify.New(cfg.Verify)
	if err != nil {
		return err
	}
	l.Info("verifier_ready", "signer", v.Signer(), "max_skew_ms", cfg.Verify.MaxClockSkewMs, "max_speed_mps", cfg.Verify.MaxPlausibleSpeedMps)
	if v.Signer().WeakKey() {
		l.Warn("secret_weak", "min_len", 32)
	}

	fences, err := loadFences(ctx, l, cfg)
	if err != nil {
		return err
	}
	ix, err := fenceindex.New(fences, fenceindex.Options{MaxRadiusMeters: cfg.FenceMaxRadiusM, CacheTTL: cfg.FenceCacheTTL})
	if err != nil {
		return err
	}
	l.Info("fences_ready", "source", cfg.FenceSource, "count", ix.Len())

	rc := openRedis(ctx, l)
	if rc != nil {
		defer rc.Close()
	}

	if cfg.MetricsAddr != "" {
		srv := startMetrics(l, cfg.MetricsAddr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	p, err := intake.New(v, ix, intake.Options{
		Workers:       cfg.Workers,
		ClusterWindow: cfg.ClusterWindow,
		LastSeen:      reportcache.NewLastSeen(rc, cfg.LastSeenTTL),
		Replay:        reportcache.NewReplayGuard(rc, cfg.ReplayWindow),
		Logger:        l,
	})
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(cCtx.String(flagInput.Name))
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openOutput(cCtx.String(flagOutput.Name))
	if err != nil {
		return err
	}
	_, err = p.Run(ctx, in, out)
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

func loadFences(ctx context.Context, l *slog.Logger, cfg config.Config) ([]fenceindex.Fence, error) {
	if cfg.FenceSource != config.FenceSourceDB {
		return fenceindex.LoadDir(cfg.FenceDir)
	}
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
		return nil, err
	}
	l.Info("db_ping_ok")
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return store.AttachDB(db).LoadFences(ctx)
}

// Redis 不可用时降级为关闭历史与重放检测，不阻断校验
func openRedis(ctx context.Context, l *slog.Logger) *redis.Client {
	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
		return nil
	}
	if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
		_ = rc.Close()
		return nil
	}
	l.Info("redis_ping_ok")
	return rc
}

func startMetrics(l *slog.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: logger.AccessMiddleware(l)(mux), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		l.Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics_listen_error", "err", err)
		}
	}()
	return srv
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
