// 包 geo：坐标值类型与基础球面几何（距离、方位角、前向投影、包围盒）
package geo

import (
	"errors"
	"fmt"
	"math"
)

// 文档注释：错误分类
// 背景：调用方通过 errors.Is 区分输入错误类型；具体信息经 %w 包装附带。
var (
	// 经纬度越界或非数值；调用方应直接拒收该上报
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// 围栏定义或算法参数非法（顶点不足、半径非正、分段数过少）
	ErrInvalidParameter = errors.New("invalid parameter")
	// 需要非空点集的操作收到空输入
	ErrEmptyInput = errors.New("empty input")
)

// 文档注释：WGS84 坐标（度）
// 背景：统一承载客户端上报的位置；精度与海拔为可选字段，nil 表示未上报。
// 约束：按值传递，不修改已构造的值；可选字段通过 WithAccuracy/WithElevation 产生新值。
type Coordinate struct {
	Lat             float64
	Lon             float64
	AccuracyMeters  *float64
	ElevationMeters *float64
}

// NewCoordinate：构造并校验坐标
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate：经纬度范围与精度非负校验
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90,90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of [-180,180]", ErrInvalidCoordinate, c.Lon)
	}
	if c.AccuracyMeters != nil && (math.IsNaN(*c.AccuracyMeters) || *c.AccuracyMeters < 0) {
		return fmt.Errorf("%w: accuracy %v must be >= 0", ErrInvalidCoordinate, *c.AccuracyMeters)
	}
	return nil
}

// WithAccuracy：返回带水平精度（米）的副本
func (c Coordinate) WithAccuracy(m float64) Coordinate {
	c.AccuracyMeters = &m
	return c
}

// WithElevation：返回带海拔（米）的副本
func (c Coordinate) WithElevation(m float64) Coordinate {
	c.ElevationMeters = &m
	return c
}

// Accuracy：返回精度与是否上报
func (c Coordinate) Accuracy() (float64, bool) {
	if c.AccuracyMeters == nil {
		return 0, false
	}
	return *c.AccuracyMeters, true
}

// SamePosition：仅比较经纬度
func (c Coordinate) SamePosition(o Coordinate) bool {
	return c.Lat == o.Lat && c.Lon == o.Lon
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lon)
}
