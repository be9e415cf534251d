package tracker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"guardian-view/internal/geofence"
	"guardian-view/internal/models"
)

// FixStore 定位落库接口（失败不影响检测）
type FixStore interface {
	InsertFix(ctx context.Context, fix *models.LocationFix) error
}

// TransitionStore 越界事件落库接口（失败不影响检测）
type TransitionStore interface {
	InsertTransition(ctx context.Context, ev *models.TransitionEvent) error
}

// FixCache 最新定位缓存接口（失败不影响检测）
type FixCache interface {
	SetLatestFix(ctx context.Context, fix *models.LocationFix) error
}

// Dispatcher 通知派发接口（入队即返回，不阻塞检测）
type Dispatcher interface {
	DispatchTransition(ev models.TransitionEvent)
}

// containmentState 单台设备的包含状态
// 互斥锁覆盖整个"读 inside 集合、判定、写回"过程：
// 同一设备的两个并发定位若都读到旧集合，会产生重复事件
type containmentState struct {
	mu            sync.Mutex
	lastLatitude  float64
	lastLongitude float64
	inside        map[string]struct{} // 当前所在的围栏 id 集合
}

// TransitionDetector 围栏越界检测器
// 同一设备的定位串行处理，不同设备完全并行（状态互不共享）
type TransitionDetector struct {
	registry    *geofence.Registry
	dispatcher  Dispatcher
	fixes       FixStore
	transitions TransitionStore
	cache       FixCache
	logger      *zap.Logger

	mu     sync.RWMutex
	states map[string]*containmentState // device_id -> 包含状态
}

// NewTransitionDetector 创建越界检测器
// fixes/transitions/cache 可以为 nil（纯内存模式，测试用）
func NewTransitionDetector(
	registry *geofence.Registry,
	disp Dispatcher,
	fixes FixStore,
	transitions TransitionStore,
	cache FixCache,
	logger *zap.Logger,
) *TransitionDetector {
	return &TransitionDetector{
		registry:    registry,
		dispatcher:  disp,
		fixes:       fixes,
		transitions: transitions,
		cache:       cache,
		logger:      logger,
		states:      make(map[string]*containmentState),
	}
}

// state 获取或懒创建设备的包含状态
func (d *TransitionDetector) state(deviceID string) *containmentState {
	d.mu.RLock()
	st, ok := d.states[deviceID]
	d.mu.RUnlock()
	if ok {
		return st
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok = d.states[deviceID]; ok {
		return st
	}
	st = &containmentState{inside: make(map[string]struct{})}
	d.states[deviceID] = st
	return st
}

// ProcessFix 处理一次定位，返回本次产生的越界事件
//
// 对设备的每个活跃围栏重新计算包含关系并与 inside 集合比对：
//   - 首次见到某围栏且已在其中：只记录，不产生事件（追踪开始时已在
//     区域内不算越界）
//   - 包含关系不变：无事件（同一区域内的重复定位不会重复报警）
//   - 进入/离开：更新集合；AlertOnEntry/AlertOnExit 只控制是否对外
//     发出事件，集合本身无条件更新，这样事后切换报警开关行为仍正确
//
// 停用的围栏不参与评估，其集合成员保持原样；重新启用后下一次定位
// 会用新鲜的包含计算自然纠正，无需额外清理
func (d *TransitionDetector) ProcessFix(ctx context.Context, fix models.LocationFix) ([]models.TransitionEvent, error) {
	if fix.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", models.ErrValidation)
	}

	st := d.state(fix.DeviceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	var events []models.TransitionEvent
	for _, gf := range d.registry.ListActive(fix.DeviceID) {
		isInside := geofence.Contains(fix.Latitude, fix.Longitude, &gf)
		_, wasInside := st.inside[gf.GeofenceID]

		switch {
		case isInside && !wasInside:
			st.inside[gf.GeofenceID] = struct{}{}
			if gf.AlertOnEntry {
				events = append(events, models.TransitionEvent{
					DeviceID:     fix.DeviceID,
					GeofenceID:   gf.GeofenceID,
					GeofenceName: gf.Name,
					GeofenceKind: gf.Kind,
					Kind:         models.TransitionEntered,
					OccurredAt:   fix.ObservedAt,
				})
			}
		case !isInside && wasInside:
			delete(st.inside, gf.GeofenceID)
			if gf.AlertOnExit {
				events = append(events, models.TransitionEvent{
					DeviceID:     fix.DeviceID,
					GeofenceID:   gf.GeofenceID,
					GeofenceName: gf.Name,
					GeofenceKind: gf.Kind,
					Kind:         models.TransitionExited,
					OccurredAt:   fix.ObservedAt,
				})
			}
		}
	}

	st.lastLatitude = fix.Latitude
	st.lastLongitude = fix.Longitude

	// 尽力而为的副作用：任何一项失败都不影响检测结果
	d.persistFix(ctx, &fix)
	for i := range events {
		d.persistTransition(ctx, &events[i])
		if d.dispatcher != nil {
			d.dispatcher.DispatchTransition(events[i])
		}
		d.logger.Info("Transition detected",
			zap.String("device_id", events[i].DeviceID),
			zap.String("geofence_name", events[i].GeofenceName),
			zap.String("kind", string(events[i].Kind)),
		)
	}

	return events, nil
}

// LastPosition 返回设备最近一次处理过的坐标
func (d *TransitionDetector) LastPosition(deviceID string) (lat, lon float64, ok bool) {
	d.mu.RLock()
	st, exists := d.states[deviceID]
	d.mu.RUnlock()
	if !exists {
		return 0, 0, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastLatitude, st.lastLongitude, true
}

func (d *TransitionDetector) persistFix(ctx context.Context, fix *models.LocationFix) {
	if d.fixes != nil {
		if err := d.fixes.InsertFix(ctx, fix); err != nil {
			d.logger.Error("Failed to persist location fix",
				zap.String("device_id", fix.DeviceID),
				zap.Error(err),
			)
		}
	}
	if d.cache != nil {
		if err := d.cache.SetLatestFix(ctx, fix); err != nil {
			d.logger.Error("Failed to cache latest fix",
				zap.String("device_id", fix.DeviceID),
				zap.Error(err),
			)
		}
	}
}

func (d *TransitionDetector) persistTransition(ctx context.Context, ev *models.TransitionEvent) {
	if d.transitions == nil {
		return
	}
	if err := d.transitions.InsertTransition(ctx, ev); err != nil {
		d.logger.Error("Failed to persist transition event",
			zap.String("device_id", ev.DeviceID),
			zap.String("geofence_id", ev.GeofenceID),
			zap.Error(err),
		)
	}
}
