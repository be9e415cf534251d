package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// TransitionRepository 越界事件仓库（transition_events 表）
// 事件一旦落库即为权威记录，与通知是否送达无关
type TransitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransitionRepository 创建越界事件仓库
func NewTransitionRepository(db *sql.DB, logger *zap.Logger) *TransitionRepository {
	return &TransitionRepository{
		db:     db,
		logger: logger,
	}
}

// InsertTransition 写入越界事件
func (r *TransitionRepository) InsertTransition(ctx context.Context, ev *models.TransitionEvent) error {
	if ev.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if ev.GeofenceID == "" {
		return fmt.Errorf("geofence_id is required")
	}

	query := `
		INSERT INTO transition_events (
			device_id,
			geofence_id,
			geofence_name,
			geofence_kind,
			kind,
			occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		ev.DeviceID,
		ev.GeofenceID,
		ev.GeofenceName,
		string(ev.GeofenceKind),
		string(ev.Kind),
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition event: %w", err)
	}

	return nil
}

// ListRecentTransitions 查询设备最近的越界事件，按时间倒序
func (r *TransitionRepository) ListRecentTransitions(ctx context.Context, deviceID string, limit int) ([]models.TransitionEvent, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			device_id,
			geofence_id,
			geofence_name,
			geofence_kind,
			kind,
			occurred_at
		FROM transition_events
		WHERE device_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transition events: %w", err)
	}
	defer rows.Close()

	var events []models.TransitionEvent
	for rows.Next() {
		var ev models.TransitionEvent
		var gfKind, kind string
		if err := rows.Scan(
			&ev.DeviceID,
			&ev.GeofenceID,
			&ev.GeofenceName,
			&gfKind,
			&kind,
			&ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition event: %w", err)
		}
		ev.GeofenceKind = models.GeofenceKind(gfKind)
		ev.Kind = models.TransitionKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transition events: %w", err)
	}

	return events, nil
}
