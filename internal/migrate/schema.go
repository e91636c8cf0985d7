package migrate

import (
	"context"
	"database/sql"

	"geo-attendance/internal/logger"
)

// 背景：首次运行自动创建围栏表与索引，保障后续导入与加载
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；只建围栏定义，不存考勤结果
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _geofences (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL CHECK (kind IN ('circle', 'polygon')),
            center_lon DOUBLE PRECISION,
            center_lat DOUBLE PRECISION,
            radius_m DOUBLE PRECISION,
            vertices JSONB,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_geofences_updated ON _geofences(updated_at)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
