package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// GeofenceRepository 围栏仓库（geofences 表）
type GeofenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGeofenceRepository 创建围栏仓库
func NewGeofenceRepository(db *sql.DB, logger *zap.Logger) *GeofenceRepository {
	return &GeofenceRepository{
		db:     db,
		logger: logger,
	}
}

// InsertGeofence 写入围栏记录
func (r *GeofenceRepository) InsertGeofence(ctx context.Context, gf *models.Geofence) error {
	if gf.GeofenceID == "" {
		return fmt.Errorf("geofence_id is required")
	}
	if gf.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO geofences (
			geofence_id,
			device_id,
			name,
			kind,
			latitude,
			longitude,
			radius_meters,
			alert_on_entry,
			alert_on_exit,
			active,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		gf.GeofenceID,
		gf.DeviceID,
		gf.Name,
		string(gf.Kind),
		gf.Latitude,
		gf.Longitude,
		gf.RadiusMeters,
		gf.AlertOnEntry,
		gf.AlertOnExit,
		gf.Active,
		gf.CreatedAt,
		gf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert geofence: %w", err)
	}

	return nil
}

// UpdateGeofence 按 geofence_id 覆盖可变字段
func (r *GeofenceRepository) UpdateGeofence(ctx context.Context, gf *models.Geofence) error {
	if gf.GeofenceID == "" {
		return fmt.Errorf("geofence_id is required")
	}

	query := `
		UPDATE geofences
		SET name = $2,
		    kind = $3,
		    latitude = $4,
		    longitude = $5,
		    radius_meters = $6,
		    alert_on_entry = $7,
		    alert_on_exit = $8,
		    active = $9,
		    updated_at = $10
		WHERE geofence_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		gf.GeofenceID,
		gf.Name,
		string(gf.Kind),
		gf.Latitude,
		gf.Longitude,
		gf.RadiusMeters,
		gf.AlertOnEntry,
		gf.AlertOnExit,
		gf.Active,
		gf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update geofence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: geofence %s", models.ErrNotFound, gf.GeofenceID)
	}

	return nil
}

// ListActiveGeofences 返回所有活跃围栏（注册表启动预热用）
func (r *GeofenceRepository) ListActiveGeofences(ctx context.Context) ([]models.Geofence, error) {
	query := `
		SELECT
			geofence_id,
			device_id,
			name,
			kind,
			latitude,
			longitude,
			radius_meters,
			alert_on_entry,
			alert_on_exit,
			active,
			created_at,
			updated_at
		FROM geofences
		WHERE active = true
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}
	defer rows.Close()

	var geofences []models.Geofence
	for rows.Next() {
		var gf models.Geofence
		var kind string
		if err := rows.Scan(
			&gf.GeofenceID,
			&gf.DeviceID,
			&gf.Name,
			&kind,
			&gf.Latitude,
			&gf.Longitude,
			&gf.RadiusMeters,
			&gf.AlertOnEntry,
			&gf.AlertOnExit,
			&gf.Active,
			&gf.CreatedAt,
			&gf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		gf.Kind = models.GeofenceKind(kind)
		geofences = append(geofences, gf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate geofences: %w", err)
	}

	return geofences, nil
}
