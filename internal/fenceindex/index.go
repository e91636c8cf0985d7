// 包 fenceindex：多围栏只读快照与定位（包围盒候选 → 精确判定 → 最近邻兜底）
package fenceindex

import (
	"fmt"
	"time"

	"geo-attendance/internal/geo"
	"geo-attendance/internal/geofence"
	"geo-attendance/internal/metrics"
)

// 默认参数
const (
	DefaultMaxRadiusMeters = 2000.0
	DefaultCacheSize       = 4096
	DefaultCacheTTL        = time.Hour
	cachePrecision         = 7
)

// Options：定位参数；零值字段取默认值
type Options struct {
	MaxRadiusMeters float64
	CacheSize       int
	CacheTTL        time.Duration
}

// Match：定位结果
type Match struct {
	Fence Fence
	// 点是否在该围栏内；false 表示最近邻兜底
	Contained bool
}

// 文档注释：围栏索引
// 背景：批量校验时上报往往不带围栏 ID，按位置找出所属班级围栏；构建后只读，可被并发查询。
// 约束：多个围栏同时包含某点时取加载顺序中的第一个。
type Index struct {
	fences    []Fence
	byID      map[string]int
	kd        *kdNode
	cache     *lru
	maxRadius float64
}

// New：构建索引；ID 为空或重复时返回错误
func New(fences []Fence, opts Options) (*Index, error) {
	if opts.MaxRadiusMeters <= 0 {
		opts.MaxRadiusMeters = DefaultMaxRadiusMeters
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	ix := &Index{
		fences:    append([]Fence(nil), fences...),
		byID:      make(map[string]int, len(fences)),
		cache:     newLRU(opts.CacheSize, opts.CacheTTL),
		maxRadius: opts.MaxRadiusMeters,
	}
	refs := make([]refPoint, 0, len(fences))
	for i, f := range ix.fences {
		if f.ID == "" {
			return nil, ErrMissingID
		}
		if f.Shape == nil {
			return nil, fmt.Errorf("fence %s: %w: nil shape", f.ID, geo.ErrInvalidParameter)
		}
		if _, dup := ix.byID[f.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, f.ID)
		}
		ix.byID[f.ID] = i
		refs = append(refs, refPoint{p: geofence.Reference(f.Shape), idx: i})
	}
	ix.kd = buildKD(refs, 0)
	return ix, nil
}

func (ix *Index) Len() int { return len(ix.fences) }

// Fences：加载顺序的围栏副本
func (ix *Index) Fences() []Fence { return append([]Fence(nil), ix.fences...) }

// Get：按 ID 取围栏
func (ix *Index) Get(id string) (Fence, error) {
	i, ok := ix.byID[id]
	if !ok {
		return Fence{}, fmt.Errorf("%w: %s", ErrFenceUnknown, id)
	}
	return ix.fences[i], nil
}

// 文档注释：按位置定位围栏
// 背景：先以包围盒过滤候选，再做精确包含判定；未命中时取参考点最近且在最大半径内的围栏。
// 约束：包含判定每次按本点计算；缓存只保存找到的最近邻结果，同一 geohash 格子（约 150m）共用，命中后按本点复核半径；未找到不缓存。
// 返回：ok=false 表示附近没有围栏。
func (ix *Index) Locate(pt geo.Coordinate) (Match, bool) {
	if m, ok := ix.contained(pt); ok {
		return m, true
	}
	key := geo.Geohash(pt, cachePrecision)
	// 同格子内的点离缓存的围栏可能已超出最大半径，此时重新查找
	if v, ok := ix.cache.get(key); ok {
		if f := ix.fences[v.idx]; geo.DistanceMeters(pt, f.Shape.Reference()) <= ix.maxRadius {
			metrics.FenceCacheHitsTotal.Inc()
			return Match{Fence: f}, true
		}
	}
	metrics.FenceCacheMissesTotal.Inc()
	if ix.kd != nil {
		idx, d := nearest(ix.kd, pt)
		if idx >= 0 && d <= ix.maxRadius {
			ix.cache.set(key, cached{idx: idx})
			return Match{Fence: ix.fences[idx]}, true
		}
	}
	return Match{}, false
}

func (ix *Index) contained(pt geo.Coordinate) (Match, bool) {
	for _, f := range ix.fences {
		if !f.Shape.Bounds().Contains(pt) {
			continue
		}
		if geofence.IsInside(pt, f.Shape) {
			return Match{Fence: f, Contained: true}, true
		}
	}
	return Match{}, false
}
