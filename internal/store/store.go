// 包 store: 提供与 PostgreSQL 的数据访问层，承载围栏定义的读写
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/logger"

	_ "github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }


// 文档注释：读取全部围栏定义
// 背景：校验命令启动时加载一次，构建只读索引；按 id 排序保证加载顺序稳定。
func (s *Store) ListFences(ctx context.Context) ([]fenceindex.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind, center_lon, center_lat, radius_m, vertices FROM _geofences ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fenceindex.Record
	for rows.Next() {
		var (
			rec         fenceindex.Record
			lon, lat    sql.NullFloat64
			radius      sql.NullFloat64
			rawVertices []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Kind, &lon, &lat, &radius, &rawVertices); err != nil {
			return nil, err
		}
		if lon.Valid && lat.Valid {
			rec.Center = &[2]float64{lon.Float64, lat.Float64}
		}
		rec.RadiusMeters = radius.Float64
		if len(rawVertices) > 0 {
			if err := json.Unmarshal(rawVertices, &rec.Vertices); err != nil {
				return nil, fmt.Errorf("fence %s vertices: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("db_fences_loaded", "count", len(out))
	return out, nil
}

// LoadFences：读取并构造围栏；非法行记日志并跳过
func (s *Store) LoadFences(ctx context.Context) ([]fenceindex.Fence, error) {
	recs, err := s.ListFences(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]fenceindex.Fence, 0, len(recs))
	for _, r := range recs {
		f, err := r.Build()
		if err != nil {
			logger.L().Warn("db_fence_invalid", "id", r.ID, "err", err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

const upsertFenceSQL = `INSERT INTO _geofences(id, name, kind, center_lon, center_lat, radius_m, vertices, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, kind=EXCLUDED.kind, center_lon=EXCLUDED.center_lon,
  center_lat=EXCLUDED.center_lat, radius_m=EXCLUDED.radius_m, vertices=EXCLUDED.vertices, updated_at=now()`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, ex execer, rec fenceindex.Record) error {
	args, err := upsertArgs(rec)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, upsertFenceSQL, args...)
	return err
}

// 围栏行参数：圆形写中心与半径，多边形写顶点 JSON，其余列置 NULL
func upsertArgs(rec fenceindex.Record) ([]any, error) {
	var lon, lat, radius, vertices any
	if rec.Center != nil {
		lon, lat = rec.Center[0], rec.Center[1]
	}
	if rec.RadiusMeters > 0 {
		radius = rec.RadiusMeters
	}
	if len(rec.Vertices) > 0 {
		b, err := json.Marshal(rec.Vertices)
		if err != nil {
			return nil, err
		}
		vertices = string(b)
	}
	return []any{rec.ID, rec.Name, rec.Kind, lon, lat, radius, vertices}, nil
}

// UpsertFence：写入或覆盖一条围栏定义
func (s *Store) UpsertFence(ctx context.Context, rec fenceindex.Record) error {
	return upsert(ctx, s.db, rec)
}

// 文档注释：批量写入围栏定义
// 背景：导入命令一次提交整个目录，任一行失败则整体回滚，避免半套围栏生效。
func (s *Store) UpsertFences(ctx context.Context, recs []fenceindex.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	for i, r := range recs {
		if err := upsert(ctx, tx, r); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("fence %d (%s): %w", i, r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("db_fences_upserted", "count", len(recs))
	return len(recs), nil
}

// DeleteFence：删除围栏定义，返回是否存在
func (s *Store) DeleteFence(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM _geofences WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
