package fenceindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"geo-attendance/internal/logger"
)

// 文档注释：从数据目录加载围栏
// 背景：围栏由教务系统导出为 fences.json（Record 数组），或由地图工具绘制为 *.geojson。
// 约束：优先 fences.json，不存在时按文件名顺序扫描 .geojson；单个要素解析失败记日志并跳过，文件级错误直接返回。
func LoadDir(dir string) ([]Fence, error) {
	b, err := os.ReadFile(filepath.Join(dir, "fences.json"))
	if err == nil {
		return parseRecords(b)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(strings.ToLower(ent.Name()), ".geojson") {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)
	var out []Fence
	for _, name := range names {
		bs, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		fs, err := ParseGeoJSON(bs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, fs...)
	}
	logger.L().Info("fences_loaded", "dir", dir, "files", len(names), "fences", len(out))
	return out, nil
}

func parseRecords(b []byte) ([]Fence, error) {
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("fences.json: %w", err)
	}
	out := make([]Fence, 0, len(recs))
	for _, r := range recs {
		f, err := r.Build()
		if err != nil {
			logger.L().Warn("fence_skip", "id", r.ID, "err", err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

type gjObject struct {
	Type       string          `json:"type"`
	Features   []gjObject      `json:"features"`
	Properties map[string]any  `json:"properties"`
	Geometry   *gjGeometry     `json:"geometry"`
	ID         json.RawMessage `json:"id"`
}

type gjGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// 文档注释：解析 GeoJSON 围栏
// 背景：Polygon 取外环（洞忽略）；Point 需在 properties 中给出 radius_m 作为圆形围栏。
// 约束：围栏 ID 取 properties.id，其次为要素 id；名称取 properties.name。
func ParseGeoJSON(b []byte) ([]Fence, error) {
	var obj gjObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, err
	}
	var feats []gjObject
	switch strings.ToLower(obj.Type) {
	case "featurecollection":
		feats = obj.Features
	case "feature":
		feats = []gjObject{obj}
	default:
		return nil, fmt.Errorf("unsupported geojson type %q", obj.Type)
	}
	out := make([]Fence, 0, len(feats))
	for i, ft := range feats {
		rec, err := featureRecord(ft)
		if err == nil {
			var f Fence
			if f, err = rec.Build(); err == nil {
				out = append(out, f)
				continue
			}
		}
		logger.L().Warn("fence_skip", "feature", i, "err", err)
	}
	return out, nil
}

func featureRecord(ft gjObject) (Record, error) {
	rec := Record{ID: propString(ft.Properties, "id"), Name: propString(ft.Properties, "name")}
	if rec.ID == "" && len(ft.ID) > 0 {
		var s string
		if json.Unmarshal(ft.ID, &s) == nil {
			rec.ID = s
		} else {
			rec.ID = string(ft.ID)
		}
	}
	if ft.Geometry == nil {
		return rec, fmt.Errorf("feature %s: no geometry", rec.ID)
	}
	switch strings.ToLower(ft.Geometry.Type) {
	case "polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(ft.Geometry.Coordinates, &rings); err != nil {
			return rec, fmt.Errorf("feature %s: %w", rec.ID, err)
		}
		if len(rings) == 0 {
			return rec, fmt.Errorf("feature %s: empty polygon", rec.ID)
		}
		rec.Kind = "polygon"
		rec.Vertices = rings[0]
	case "point":
		var pt [2]float64
		if err := json.Unmarshal(ft.Geometry.Coordinates, &pt); err != nil {
			return rec, fmt.Errorf("feature %s: %w", rec.ID, err)
		}
		rec.Kind = "circle"
		rec.Center = &pt
		rec.RadiusMeters = propFloat(ft.Properties, "radius_m")
	default:
		return rec, fmt.Errorf("feature %s: %w: %q", rec.ID, ErrUnknownKind, ft.Geometry.Type)
	}
	return rec, nil
}

func propString(m map[string]any, k string) string {
	switch v := m[k].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func propFloat(m map[string]any, k string) float64 {
	if v, ok := m[k].(float64); ok {
		return v
	}
	return 0
}
