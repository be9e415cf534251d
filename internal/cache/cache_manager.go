package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"guardian-view/internal/config"
	"guardian-view/internal/models"
)

// CacheManager Redis 缓存管理器
// 缓存每台设备的最新定位（监护人"当前位置"界面读取）
// 和未确认的求助事件（监护人打开应用时快速展示）
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// fixKey 最新定位缓存键
func (c *CacheManager) fixKey(deviceID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Cache.FixKeyPrefix,
		deviceID,
		c.config.Cache.FixSuffix,
	)
}

// alertKey 活跃求助缓存键
func (c *CacheManager) alertKey(deviceID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Cache.AlertKeyPrefix,
		deviceID,
		c.config.Cache.AlertSuffix,
	)
}

// SetLatestFix 写入设备最新定位（带 TTL，新定位总是覆盖旧定位）
func (c *CacheManager) SetLatestFix(ctx context.Context, fix *models.LocationFix) error {
	jsonData, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("failed to marshal location fix: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		c.fixKey(fix.DeviceID),
		jsonData,
		time.Duration(c.config.Cache.FixTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set latest fix: %w", err)
	}

	return nil
}

// GetLatestFix 读取设备最新定位
func (c *CacheManager) GetLatestFix(ctx context.Context, deviceID string) (*models.LocationFix, error) {
	val, err := c.redisClient.Get(ctx, c.fixKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("latest fix not found for device: %s", deviceID)
		}
		return nil, fmt.Errorf("failed to get latest fix: %w", err)
	}

	var fix models.LocationFix
	if err := json.Unmarshal([]byte(val), &fix); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location fix: %w", err)
	}

	return &fix, nil
}

// UpdateAlertCache 更新设备的活跃求助缓存
func (c *CacheManager) UpdateAlertCache(ctx context.Context, deviceID string, alerts []models.SOSAlert) error {
	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal sos alerts: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		c.alertKey(deviceID),
		jsonData,
		time.Duration(c.config.Cache.AlertTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	c.logger.Debug("Updated alert cache",
		zap.String("device_id", deviceID),
		zap.Int("alert_count", len(alerts)),
	)

	return nil
}

// GetAlertCache 读取设备的活跃求助缓存
func (c *CacheManager) GetAlertCache(ctx context.Context, deviceID string) ([]models.SOSAlert, error) {
	val, err := c.redisClient.Get(ctx, c.alertKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alerts []models.SOSAlert
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sos alerts: %w", err)
	}

	return alerts, nil
}
