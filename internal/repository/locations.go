package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// LocationRepository 定位历史仓库（location_fixes 表）
// 核心层只需要最新定位，历史记录供监护人界面回看
type LocationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLocationRepository 创建定位仓库
func NewLocationRepository(db *sql.DB, logger *zap.Logger) *LocationRepository {
	return &LocationRepository{
		db:     db,
		logger: logger,
	}
}

// InsertFix 写入一次定位采样
func (r *LocationRepository) InsertFix(ctx context.Context, fix *models.LocationFix) error {
	if fix.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO location_fixes (
			device_id,
			latitude,
			longitude,
			accuracy_meters,
			observed_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		fix.DeviceID,
		fix.Latitude,
		fix.Longitude,
		fix.AccuracyMeters,
		fix.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert location fix: %w", err)
	}

	return nil
}

// GetRecentFixes 查询设备在 since 之后的定位历史，按时间倒序，最多 limit 条
func (r *LocationRepository) GetRecentFixes(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.LocationFix, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			device_id,
			latitude,
			longitude,
			accuracy_meters,
			observed_at
		FROM location_fixes
		WHERE device_id = $1
		  AND observed_at >= $2
		ORDER BY observed_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query location fixes: %w", err)
	}
	defer rows.Close()

	var fixes []models.LocationFix
	for rows.Next() {
		var fix models.LocationFix
		if err := rows.Scan(
			&fix.DeviceID,
			&fix.Latitude,
			&fix.Longitude,
			&fix.AccuracyMeters,
			&fix.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan location fix: %w", err)
		}
		fixes = append(fixes, fix)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate location fixes: %w", err)
	}

	return fixes, nil
}
