package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"guardian-view/internal/config"
	"guardian-view/internal/geofence"
	"guardian-view/internal/models"
)

// LocationProvider 平台定位能力边界
// Watch 返回的 channel 随 ctx 取消而关闭；慢消费者跟不上时
// 提供方可以丢弃旧定位，新定位总是取代旧定位
type LocationProvider interface {
	RequestForegroundAccess(ctx context.Context) (bool, error)
	RequestBackgroundAccess(ctx context.Context) (bool, error)
	Watch(ctx context.Context, deviceID string) (<-chan models.LocationFix, error)
}

// FixProcessor 定位消费入口（由 TransitionDetector 实现）
type FixProcessor interface {
	ProcessFix(ctx context.Context, fix models.LocationFix) ([]models.TransitionEvent, error)
}

// Tracker 前台追踪会话管理器
// 每台设备一个会话 goroutine；定位先过节流再交给检测器，
// 节流只限制频率，每次投递仍对全部围栏重新计算包含关系
type Tracker struct {
	config    *config.Config
	provider  LocationProvider
	processor FixProcessor
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]context.CancelFunc
}

// NewTracker 创建追踪管理器
func NewTracker(cfg *config.Config, provider LocationProvider, processor FixProcessor, logger *zap.Logger) *Tracker {
	return &Tracker{
		config:    cfg,
		provider:  provider,
		processor: processor,
		logger:    logger,
		sessions:  make(map[string]context.CancelFunc),
	}
}

// StartTracking 开始追踪设备
// 权限被拒时软失败返回 (false, nil)：引擎对未授权设备保持可用，
// 只是永远不会有定位和越界事件，这是合法的稳定状态不是错误
// 后台权限单独被拒时降级为仅前台追踪
func (t *Tracker) StartTracking(ctx context.Context, deviceID string) (bool, error) {
	granted, err := t.provider.RequestForegroundAccess(ctx)
	if err != nil {
		return false, err
	}
	if !granted {
		t.logger.Warn("Foreground location permission denied, tracking not started",
			zap.String("device_id", deviceID),
		)
		return false, nil
	}

	if bgGranted, err := t.provider.RequestBackgroundAccess(ctx); err != nil || !bgGranted {
		t.logger.Warn("Background location permission denied, foreground only",
			zap.String("device_id", deviceID),
		)
	}

	t.mu.Lock()
	if _, exists := t.sessions[deviceID]; exists {
		t.mu.Unlock()
		return true, nil
	}
	// 会话生命周期独立于调用方的 ctx
	sessionCtx, cancel := context.WithCancel(context.Background())
	t.sessions[deviceID] = cancel
	t.mu.Unlock()

	fixes, err := t.provider.Watch(sessionCtx, deviceID)
	if err != nil {
		t.removeSession(deviceID)
		cancel()
		return false, err
	}

	go t.consume(sessionCtx, deviceID, fixes)

	t.logger.Info("Tracking started",
		zap.String("device_id", deviceID),
	)
	return true, nil
}

// StopTracking 停止追踪（幂等，随时可调用）
// 只释放定位订阅，包含状态保留：之后恢复追踪不会对设备仍在其中的
// 围栏重复报进入
func (t *Tracker) StopTracking(deviceID string) {
	t.mu.Lock()
	cancel, exists := t.sessions[deviceID]
	if exists {
		delete(t.sessions, deviceID)
	}
	t.mu.Unlock()

	if exists {
		cancel()
		t.logger.Info("Tracking stopped",
			zap.String("device_id", deviceID),
		)
	}
}

// StopAll 停止所有追踪会话
func (t *Tracker) StopAll() {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.sessions))
	for id, cancel := range t.sessions {
		cancels = append(cancels, cancel)
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// IsTracking 检查设备是否在追踪中
func (t *Tracker) IsTracking(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.sessions[deviceID]
	return exists
}

func (t *Tracker) removeSession(deviceID string) {
	t.mu.Lock()
	delete(t.sessions, deviceID)
	t.mu.Unlock()
}

// consume 会话循环：节流后交给检测器
func (t *Tracker) consume(ctx context.Context, deviceID string, fixes <-chan models.LocationFix) {
	interval := time.Duration(t.config.Tracking.ForegroundIntervalSec) * time.Second
	minDistance := t.config.Tracking.ForegroundDistanceM

	var last *models.LocationFix
	for fix := range fixes {
		if !shouldDeliver(last, &fix, interval, minDistance) {
			continue
		}

		if _, err := t.processor.ProcessFix(ctx, fix); err != nil {
			t.logger.Error("Failed to process location fix",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			continue
		}
		delivered := fix
		last = &delivered
	}

	t.logger.Debug("Fix stream closed",
		zap.String("device_id", deviceID),
	)
}

// shouldDeliver 节流判定：首个定位总是投递，其后时间或距离
// 任一阈值超出即投递（按定位自带的 ObservedAt 计算，与墙钟无关）
func shouldDeliver(last, next *models.LocationFix, interval time.Duration, minDistance float64) bool {
	if last == nil {
		return true
	}
	if next.ObservedAt.Sub(last.ObservedAt) >= interval {
		return true
	}
	moved := geofence.Distance(last.Latitude, last.Longitude, next.Latitude, next.Longitude)
	return moved >= minDistance
}
