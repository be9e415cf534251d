package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// DeviceRepository 设备仓库（devices 表）
// 身份管理属于外部协作方，这里只读取展示名
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// GetDeviceName 获取设备展示名
func (r *DeviceRepository) GetDeviceName(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}

	query := `
		SELECT device_name
		FROM devices
		WHERE device_id = $1
	`

	var name string
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: device %s", models.ErrNotFound, deviceID)
		}
		return "", fmt.Errorf("failed to get device name: %w", err)
	}

	return name, nil
}
