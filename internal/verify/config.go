package verify

import (
	"errors"
	"fmt"
	"time"
)

// 默认阈值
const (
	DefaultMaxClockSkewMs           int64   = 5 * 60 * 1000
	DefaultMaxAccuracyMeters        float64 = 100
	DefaultMaxPlausibleSpeedMps     float64 = 30
	DefaultClusterMaxDistanceMeters float64 = 25
)

var ErrInvalidConfig = errors.New("invalid verifier config")

// 文档注释：校验器配置
// 背景：构造时注入，生命周期内只读；测试可替换密钥、阈值与时钟。
// 约束：数值阈值必须为正；Now 为空时使用 time.Now。
type Config struct {
	Secret                   []byte
	MaxClockSkewMs           int64
	MaxAccuracyMeters        float64
	MaxPlausibleSpeedMps     float64
	ClusterMaxDistanceMeters float64
	Now                      func() time.Time
}

// DefaultConfig：以默认阈值构造配置
func DefaultConfig(secret []byte) Config {
	return Config{
		Secret:                   secret,
		MaxClockSkewMs:           DefaultMaxClockSkewMs,
		MaxAccuracyMeters:        DefaultMaxAccuracyMeters,
		MaxPlausibleSpeedMps:     DefaultMaxPlausibleSpeedMps,
		ClusterMaxDistanceMeters: DefaultClusterMaxDistanceMeters,
	}
}

func (c Config) Validate() error {
	if len(c.Secret) == 0 {
		return fmt.Errorf("%w: secret is empty", ErrInvalidConfig)
	}
	if c.MaxClockSkewMs <= 0 {
		return fmt.Errorf("%w: max clock skew %dms must be > 0", ErrInvalidConfig, c.MaxClockSkewMs)
	}
	if !(c.MaxAccuracyMeters > 0) {
		return fmt.Errorf("%w: max accuracy %v must be > 0", ErrInvalidConfig, c.MaxAccuracyMeters)
	}
	if !(c.MaxPlausibleSpeedMps > 0) {
		return fmt.Errorf("%w: max speed %v must be > 0", ErrInvalidConfig, c.MaxPlausibleSpeedMps)
	}
	if !(c.ClusterMaxDistanceMeters > 0) {
		return fmt.Errorf("%w: cluster distance %v must be > 0", ErrInvalidConfig, c.ClusterMaxDistanceMeters)
	}
	return nil
}
