package broadcast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// AlertStore 求助记录持久化接口
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *models.SOSAlert) error
	SetAcknowledged(ctx context.Context, alertID string) error
}

// AlertCache 活跃求助缓存接口
type AlertCache interface {
	UpdateAlertCache(ctx context.Context, deviceID string, alerts []models.SOSAlert) error
}

// SOSDispatcher 求助通知派发接口
type SOSDispatcher interface {
	DispatchSOS(alert models.SOSAlert)
}

// OnAlert 监护人回调，收到完整的求助记录
type OnAlert func(alert models.SOSAlert)

// subscription 一次订阅登记
// 退订凭指针判等：旧订阅被替换后，旧的退订函数不会误删新订阅
type subscription struct {
	callback OnAlert
}

// EmergencyBroadcast 紧急求助广播
// 独占求助台账和监护人订阅表；每个监护人同时只有一个活跃订阅，
// 重复订阅替换旧回调
type EmergencyBroadcast struct {
	store      AlertStore
	cache      AlertCache
	dispatcher SOSDispatcher
	logger     *zap.Logger

	mu          sync.RWMutex
	alerts      map[string]*models.SOSAlert // alert_id -> 求助记录
	subscribers map[string]*subscription    // guardian_id -> 订阅
}

// NewEmergencyBroadcast 创建求助广播
// store/cache/dispatcher 可以为 nil（纯内存模式，测试用）
func NewEmergencyBroadcast(store AlertStore, cache AlertCache, dispatcher SOSDispatcher, logger *zap.Logger) *EmergencyBroadcast {
	return &EmergencyBroadcast{
		store:       store,
		cache:       cache,
		dispatcher:  dispatcher,
		logger:      logger,
		alerts:      make(map[string]*models.SOSAlert),
		subscribers: make(map[string]*subscription),
	}
}

// Subscribe 登记监护人回调，返回退订函数
// 同一监护人再次订阅会替换旧回调
func (b *EmergencyBroadcast) Subscribe(guardianID string, onAlert OnAlert) func() {
	sub := &subscription{callback: onAlert}

	b.mu.Lock()
	b.subscribers[guardianID] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.subscribers[guardianID] == sub {
			delete(b.subscribers, guardianID)
		}
	}
}

// Raise 触发紧急求助
// 先落库（失败只记日志，台账照常更新），再异步派发通知，
// 最后同步回调所有当前订阅的监护人；回调在锁外执行
func (b *EmergencyBroadcast) Raise(ctx context.Context, deviceID string, location models.SOSPoint) (*models.SOSAlert, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", models.ErrValidation)
	}

	alert := &models.SOSAlert{
		AlertID:      uuid.New().String(),
		DeviceID:     deviceID,
		Location:     location,
		RaisedAt:     time.Now(),
		Acknowledged: false,
	}

	if b.store != nil {
		if err := b.store.InsertAlert(ctx, alert); err != nil {
			b.logger.Error("Failed to persist sos alert",
				zap.String("alert_id", alert.AlertID),
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}

	b.mu.Lock()
	b.alerts[alert.AlertID] = alert
	callbacks := make([]OnAlert, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		callbacks = append(callbacks, sub.callback)
	}
	b.mu.Unlock()

	b.logger.Info("SOS alert raised",
		zap.String("alert_id", alert.AlertID),
		zap.String("device_id", deviceID),
		zap.Float64("latitude", location.Latitude),
		zap.Float64("longitude", location.Longitude),
	)

	if b.dispatcher != nil {
		b.dispatcher.DispatchSOS(*alert)
	}

	snapshot := *alert
	for _, callback := range callbacks {
		callback(snapshot)
	}

	b.refreshAlertCache(ctx, deviceID)

	return &snapshot, nil
}

// Acknowledge 确认求助（幂等：重复确认是空操作）
// 未知 id 返回 models.ErrNotFound
func (b *EmergencyBroadcast) Acknowledge(ctx context.Context, alertID string) error {
	b.mu.Lock()
	alert, ok := b.alerts[alertID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: sos alert %s", models.ErrNotFound, alertID)
	}
	alreadyAcked := alert.Acknowledged
	alert.Acknowledged = true
	deviceID := alert.DeviceID
	b.mu.Unlock()

	if alreadyAcked {
		return nil
	}

	if b.store != nil {
		if err := b.store.SetAcknowledged(ctx, alertID); err != nil {
			b.logger.Error("Failed to persist sos acknowledgement",
				zap.String("alert_id", alertID),
				zap.Error(err),
			)
		}
	}

	b.refreshAlertCache(ctx, deviceID)

	b.logger.Info("SOS alert acknowledged",
		zap.String("alert_id", alertID),
	)
	return nil
}

// List 返回求助记录，按触发时间倒序
// acknowledged 为 nil 时不过滤确认状态
func (b *EmergencyBroadcast) List(acknowledged *bool) []models.SOSAlert {
	b.mu.RLock()
	result := make([]models.SOSAlert, 0, len(b.alerts))
	for _, alert := range b.alerts {
		if acknowledged != nil && alert.Acknowledged != *acknowledged {
			continue
		}
		result = append(result, *alert)
	}
	b.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].RaisedAt.After(result[j].RaisedAt)
	})
	return result
}

// refreshAlertCache 刷新设备的未确认求助缓存（尽力而为）
func (b *EmergencyBroadcast) refreshAlertCache(ctx context.Context, deviceID string) {
	if b.cache == nil {
		return
	}

	b.mu.RLock()
	var active []models.SOSAlert
	for _, alert := range b.alerts {
		if alert.DeviceID == deviceID && !alert.Acknowledged {
			active = append(active, *alert)
		}
	}
	b.mu.RUnlock()

	if err := b.cache.UpdateAlertCache(ctx, deviceID, active); err != nil {
		b.logger.Error("Failed to refresh alert cache",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}
