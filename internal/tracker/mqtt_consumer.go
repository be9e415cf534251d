package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"guardian-view/internal/config"
	"guardian-view/internal/models"
	"guardian-view/pkg/mqtt"
)

// BackgroundConsumer 后台定位消费者
// 被监护设备不在前台时由平台按批调度上报，定位作为带外消息
// 到达 MQTT 主题 location/{device_id}/fix，与前台定位走同一条
// 检测路径（同一个检测器串行化同一设备的处理）
// 后台节流阈值比前台更粗（默认 60秒/100米）
type BackgroundConsumer struct {
	config     *config.Config
	mqttClient *mqtt.Client
	processor  FixProcessor
	logger     *zap.Logger

	mu        sync.Mutex
	lastFixes map[string]models.LocationFix // device_id -> 最近一次投递的定位
}

// fixPayload 后台上报的定位消息体
type fixPayload struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	ObservedAt     int64   `json:"observed_at"` // Unix 时间戳（秒）
}

// NewBackgroundConsumer 创建后台定位消费者
func NewBackgroundConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	processor FixProcessor,
	logger *zap.Logger,
) *BackgroundConsumer {
	return &BackgroundConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		processor:  processor,
		logger:     logger,
		lastFixes:  make(map[string]models.LocationFix),
	}
}

// Start 订阅定位主题并阻塞到上下文取消
func (c *BackgroundConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.Tracking.LocationTopic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to location topic: %w", err)
	}

	c.logger.Info("Background location consumer started",
		zap.String("topic", c.config.Tracking.LocationTopic),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *BackgroundConsumer) Stop() {
	if err := c.mqttClient.Unsubscribe(c.config.Tracking.LocationTopic); err != nil {
		c.logger.Error("Failed to unsubscribe from location topic", zap.Error(err))
	}

	c.logger.Info("Background location consumer stopped")
}

// handleMessage 处理一条定位消息
// 主题格式: location/{device_id}/fix
func (c *BackgroundConsumer) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "location" || parts[2] != "fix" {
		return fmt.Errorf("unexpected location topic: %s", topic)
	}
	deviceID := parts[1]
	if deviceID == "" {
		return fmt.Errorf("empty device_id in topic: %s", topic)
	}

	var p fixPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal fix payload: %w", err)
	}

	observedAt := time.Now()
	if p.ObservedAt > 0 {
		observedAt = time.Unix(p.ObservedAt, 0)
	}

	fix := models.LocationFix{
		DeviceID:       deviceID,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		AccuracyMeters: p.AccuracyMeters,
		ObservedAt:     observedAt,
	}

	if !c.admit(fix) {
		c.logger.Debug("Background fix throttled",
			zap.String("device_id", deviceID),
		)
		return nil
	}

	if _, err := c.processor.ProcessFix(context.Background(), fix); err != nil {
		return fmt.Errorf("failed to process background fix: %w", err)
	}

	c.logger.Debug("Background fix processed",
		zap.String("device_id", deviceID),
		zap.Float64("latitude", fix.Latitude),
		zap.Float64("longitude", fix.Longitude),
	)

	return nil
}

// admit 后台节流判定，通过时记录为该设备最近一次投递的定位
// 与前台共用 shouldDeliver：首个定位总是投递，其后时间或距离任一
// 阈值超出即投递
func (c *BackgroundConsumer) admit(fix models.LocationFix) bool {
	interval := time.Duration(c.config.Tracking.BackgroundIntervalSec) * time.Second
	minDistance := c.config.Tracking.BackgroundDistanceM

	c.mu.Lock()
	defer c.mu.Unlock()

	var last *models.LocationFix
	if prev, ok := c.lastFixes[fix.DeviceID]; ok {
		last = &prev
	}
	if !shouldDeliver(last, &fix, interval, minDistance) {
		return false
	}
	c.lastFixes[fix.DeviceID] = fix
	return true
}
