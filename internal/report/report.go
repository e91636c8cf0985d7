// 包 report：客户端位置上报的数据模型
package report

import "geo-attendance/internal/geo"

// 文档注释：一次位置上报
// 背景：由客户端签名后发送，校验器只读消费一次；任何修改都应产生新值。
type LocationReport struct {
	SubjectID       string
	Coordinate      geo.Coordinate
	TimestampUnixMs int64
	Signature       string
}
