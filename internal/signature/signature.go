// 包 signature：位置上报的 HMAC-SHA256 签名与校验
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"geo-attendance/internal/geo"
	"geo-attendance/internal/report"
)

// 规范串版本；字段顺序或分隔符变更必须递增
const CanonicalVersion = 1

// 推荐的最小密钥长度（字节）
const RecommendedKeyLen = 32

var ErrEmptyKey = errors.New("signature: empty secret key")

// 文档注释：签名服务
// 背景：密钥在构造时载入，进程内只读共享；防篡改与重放，不防恶意客户端（密钥随客户端分发）。
// 约束：密钥不出现在日志与序列化结果中。
type Service struct {
	key []byte
}

// New：复制密钥构造服务；空密钥返回 ErrEmptyKey
func New(key []byte) (*Service, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return &Service{key: append([]byte(nil), key...)}, nil
}

// WeakKey：密钥短于推荐长度
func (s *Service) WeakKey() bool { return len(s.key) < RecommendedKeyLen }

// 文档注释：规范串 subjectId|longitude|latitude|timestampUnixMs
// 约束：经纬度使用最短可往返十进制表示（strconv 'f', -1）。
func Canonical(subjectID string, c geo.Coordinate, timestampUnixMs int64) string {
	var b strings.Builder
	b.WriteString(subjectID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(c.Lon, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(c.Lat, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(timestampUnixMs, 10))
	return b.String()
}

func (s *Service) mac(msg string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

// Sign：返回小写十六进制摘要
func (s *Service) Sign(subjectID string, c geo.Coordinate, timestampUnixMs int64) string {
	return hex.EncodeToString(s.mac(Canonical(subjectID, c, timestampUnixMs)))
}

// 文档注释：校验上报签名
// 背景：由上报字段重算摘要后做常量时间比较；非法十六进制或长度不符直接返回 false，不报错。
func (s *Service) Verify(r report.LocationReport) bool {
	got, err := hex.DecodeString(r.Signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, s.mac(Canonical(r.SubjectID, r.Coordinate, r.TimestampUnixMs)))
}

func (s *Service) String() string { return "signature.Service{key:REDACTED}" }

// LogValue：slog 输出时隐藏密钥
func (s *Service) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("version", CanonicalVersion), slog.Bool("weak_key", s.WeakKey()))
}
