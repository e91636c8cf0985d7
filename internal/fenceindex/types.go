package fenceindex

import (
	"errors"
	"fmt"
	"strings"

	"geo-attendance/internal/geo"
	"geo-attendance/internal/geofence"
)

var (
	ErrUnknownKind  = errors.New("unknown geofence kind")
	ErrDuplicateID  = errors.New("duplicate geofence id")
	ErrMissingID    = errors.New("geofence id is empty")
	ErrFenceUnknown = errors.New("geofence not found")
)

// 文档注释：具名围栏（一个班级/场地一条）
// 约束：ID 全局唯一；Shape 为已校验的圆形或多边形。
type Fence struct {
	ID    string
	Name  string
	Shape geofence.Geofence
}

// 文档注释：围栏的存储/交换形态（fences.json、数据库行）
// 背景：坐标对统一为 [lon, lat]，与 GeoJSON 顺序一致。
// 约束：Kind 为 circle 时使用 Center 与 RadiusMeters；为 polygon 时使用 Vertices。
type Record struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Kind         string       `json:"kind"`
	Center       *[2]float64  `json:"center,omitempty"`
	RadiusMeters float64      `json:"radius_m,omitempty"`
	Vertices     [][2]float64 `json:"vertices,omitempty"`
}

// Build：校验并构造围栏
func (r Record) Build() (Fence, error) {
	if strings.TrimSpace(r.ID) == "" {
		return Fence{}, ErrMissingID
	}
	switch strings.ToLower(r.Kind) {
	case "circle":
		if r.Center == nil {
			return Fence{}, fmt.Errorf("fence %s: %w: circle without center", r.ID, geo.ErrInvalidParameter)
		}
		c, err := geofence.NewCircle(geo.Coordinate{Lat: r.Center[1], Lon: r.Center[0]}, r.RadiusMeters)
		if err != nil {
			return Fence{}, fmt.Errorf("fence %s: %w", r.ID, err)
		}
		return Fence{ID: r.ID, Name: r.Name, Shape: c}, nil
	case "polygon":
		vs := make([]geo.Coordinate, len(r.Vertices))
		for i, v := range r.Vertices {
			vs[i] = geo.Coordinate{Lat: v[1], Lon: v[0]}
		}
		p, err := geofence.NewPolygon(vs)
		if err != nil {
			return Fence{}, fmt.Errorf("fence %s: %w", r.ID, err)
		}
		return Fence{ID: r.ID, Name: r.Name, Shape: p}, nil
	}
	return Fence{}, fmt.Errorf("fence %s: %w: %q", r.ID, ErrUnknownKind, r.Kind)
}

// ToRecord：围栏转回存储形态
func ToRecord(f Fence) Record {
	r := Record{ID: f.ID, Name: f.Name}
	switch s := f.Shape.(type) {
	case geofence.Circle:
		r.Kind = "circle"
		r.Center = &[2]float64{s.Center.Lon, s.Center.Lat}
		r.RadiusMeters = s.RadiusMeters
	case geofence.Polygon:
		r.Kind = "polygon"
		for _, v := range s.Vertices() {
			r.Vertices = append(r.Vertices, [2]float64{v.Lon, v.Lat})
		}
	}
	return r
}
