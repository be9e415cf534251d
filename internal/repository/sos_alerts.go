package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// SOSAlertRepository 紧急求助仓库（sos_alerts 表）
// 核心层不删除求助记录，保留策略由存储层负责
type SOSAlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSOSAlertRepository 创建求助仓库
func NewSOSAlertRepository(db *sql.DB, logger *zap.Logger) *SOSAlertRepository {
	return &SOSAlertRepository{
		db:     db,
		logger: logger,
	}
}

// InsertAlert 写入求助记录
func (r *SOSAlertRepository) InsertAlert(ctx context.Context, alert *models.SOSAlert) error {
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if alert.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO sos_alerts (
			alert_id,
			device_id,
			latitude,
			longitude,
			accuracy_meters,
			observed_at,
			raised_at,
			acknowledged
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.DeviceID,
		alert.Location.Latitude,
		alert.Location.Longitude,
		alert.Location.AccuracyMeters,
		alert.Location.ObservedAt,
		alert.RaisedAt,
		alert.Acknowledged,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sos alert: %w", err)
	}

	return nil
}

// SetAcknowledged 标记求助已确认（重复确认是空操作）
func (r *SOSAlertRepository) SetAcknowledged(ctx context.Context, alertID string) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `
		UPDATE sos_alerts
		SET acknowledged = true
		WHERE alert_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge sos alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: sos alert %s", models.ErrNotFound, alertID)
	}

	return nil
}

// ListAlerts 查询求助记录，按触发时间倒序
// acknowledged 为 nil 时不过滤确认状态
func (r *SOSAlertRepository) ListAlerts(ctx context.Context, acknowledged *bool, limit int) ([]models.SOSAlert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			alert_id,
			device_id,
			latitude,
			longitude,
			accuracy_meters,
			observed_at,
			raised_at,
			acknowledged
		FROM sos_alerts
	`
	args := []interface{}{}
	if acknowledged != nil {
		query += ` WHERE acknowledged = $1`
		args = append(args, *acknowledged)
	}
	query += fmt.Sprintf(` ORDER BY raised_at DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sos alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.SOSAlert
	for rows.Next() {
		var alert models.SOSAlert
		if err := rows.Scan(
			&alert.AlertID,
			&alert.DeviceID,
			&alert.Location.Latitude,
			&alert.Location.Longitude,
			&alert.Location.AccuracyMeters,
			&alert.Location.ObservedAt,
			&alert.RaisedAt,
			&alert.Acknowledged,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sos alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sos alerts: %w", err)
	}

	return alerts, nil
}
