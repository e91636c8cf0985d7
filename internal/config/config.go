// 包 config：从环境变量汇总校验器与基础设施配置；解析失败回退默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/logger"
	"geo-attendance/internal/reportcache"
	"geo-attendance/internal/verify"
)

var ErrMissingSecret = errors.New("ATTENDANCE_SECRET or ATTENDANCE_SECRET_FILE must be set")

// 围栏来源
const (
	FenceSourceDir = "dir"
	FenceSourceDB  = "db"
)

const DefaultClusterWindow = time.Minute

// 文档注释：进程级配置
// 背景：命令行参数在此基础上覆盖；密钥只进入 Verify.Secret，不出现在日志中。
type Config struct {
	Verify verify.Config

	FenceSource     string
	FenceDir        string
	FenceMaxRadiusM float64
	FenceCacheTTL   time.Duration

	Workers       int
	ClusterWindow time.Duration
	LastSeenTTL   time.Duration
	ReplayWindow  time.Duration

	MetricsAddr string
}

// 文档注释：读取环境变量构建配置
// 约束：ATTENDANCE_SECRET_FILE 优先于 ATTENDANCE_SECRET（文件内容去除首尾空白）；数值解析失败或非正时使用默认值。
func FromEnv() (Config, error) {
	secret, err := secretFromEnv()
	if err != nil {
		return Config{}, err
	}
	vc := verify.DefaultConfig(secret)
	vc.MaxClockSkewMs = int64(envInt("MAX_CLOCK_SKEW_MS", int(verify.DefaultMaxClockSkewMs)))
	vc.MaxAccuracyMeters = envFloat("MAX_ACCURACY_M", verify.DefaultMaxAccuracyMeters)
	vc.MaxPlausibleSpeedMps = envFloat("MAX_SPEED_MPS", verify.DefaultMaxPlausibleSpeedMps)
	vc.ClusterMaxDistanceMeters = envFloat("CLUSTER_MAX_DISTANCE_M", verify.DefaultClusterMaxDistanceMeters)

	c := Config{
		Verify:          vc,
		FenceSource:     strings.ToLower(envString("FENCE_SOURCE", FenceSourceDir)),
		FenceDir:        envString("FENCE_DIR", "data/fences"),
		FenceMaxRadiusM: envFloat("FENCE_MAX_RADIUS_M", fenceindex.DefaultMaxRadiusMeters),
		FenceCacheTTL:   envSeconds("FENCE_CACHE_TTL_S", fenceindex.DefaultCacheTTL),
		Workers:         envInt("VERIFY_WORKERS", runtime.NumCPU()),
		ClusterWindow:   envMillis("CLUSTER_WINDOW_MS", DefaultClusterWindow),
		LastSeenTTL:     envSeconds("LASTSEEN_TTL_S", reportcache.DefaultLastSeenTTL),
		ReplayWindow:    envSeconds("REPLAY_WINDOW_S", reportcache.DefaultReplayWindow),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
	}
	if c.FenceSource != FenceSourceDir && c.FenceSource != FenceSourceDB {
		return Config{}, fmt.Errorf("FENCE_SOURCE %q: want %s or %s", c.FenceSource, FenceSourceDir, FenceSourceDB)
	}
	return c, c.Verify.Validate()
}

func secretFromEnv() ([]byte, error) {
	if p := os.Getenv("ATTENDANCE_SECRET_FILE"); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read secret file: %w", err)
		}
		s := strings.TrimSpace(string(b))
		if s == "" {
			return nil, ErrMissingSecret
		}
		return []byte(s), nil
	}
	if s := os.Getenv("ATTENDANCE_SECRET"); s != "" {
		return []byte(s), nil
	}
	return nil, ErrMissingSecret
}

func envString(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.L().Warn("config_invalid", "key", k, "value", v, "default", def)
		return def
	}
	return n
}

func envFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f > 0) {
		logger.L().Warn("config_invalid", "key", k, "value", v, "default", def)
		return def
	}
	return f
}

func envSeconds(k string, def time.Duration) time.Duration {
	return time.Duration(envInt(k, int(def/time.Second))) * time.Second
}

func envMillis(k string, def time.Duration) time.Duration {
	return time.Duration(envInt(k, int(def/time.Millisecond))) * time.Millisecond
}
