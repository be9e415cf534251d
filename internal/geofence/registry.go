package geofence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// Store 围栏持久化接口（由 repository 层实现）
// 落库失败只记日志，内存表仍是评估时的权威数据
type Store interface {
	InsertGeofence(ctx context.Context, gf *models.Geofence) error
	UpdateGeofence(ctx context.Context, gf *models.Geofence) error
	ListActiveGeofences(ctx context.Context) ([]models.Geofence, error)
}

// Registry 地理围栏注册表
// 内存表加读写锁：检测器并发读取时看到的是单次变更的完整结果，
// 不会观察到写到一半的围栏
type Registry struct {
	store  Store
	logger *zap.Logger

	mu        sync.RWMutex
	geofences map[string]*models.Geofence // geofence_id -> 围栏
	byDevice  map[string][]string         // device_id -> geofence_id 列表
}

// NewRegistry 创建围栏注册表
// store 可以为 nil（纯内存模式，测试用）
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		logger:    logger,
		geofences: make(map[string]*models.Geofence),
		byDevice:  make(map[string][]string),
	}
}

// LoadFromStore 从持久层加载所有活跃围栏（服务启动时调用）
func (r *Registry) LoadFromStore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	records, err := r.store.ListActiveGeofences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load geofences: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range records {
		gf := records[i]
		r.geofences[gf.GeofenceID] = &gf
		r.byDevice[gf.DeviceID] = append(r.byDevice[gf.DeviceID], gf.GeofenceID)
	}

	r.logger.Info("Geofences loaded from store",
		zap.Int("count", len(records)),
	)
	return nil
}

// Create 创建围栏
// 校验失败返回 models.ErrValidation
func (r *Registry) Create(ctx context.Context, deviceID string, spec models.GeofenceSpec) (*models.Geofence, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", models.ErrValidation)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	if spec.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius_meters must be positive", models.ErrValidation)
	}
	if spec.Kind != models.GeofenceKindSafe && spec.Kind != models.GeofenceKindUnsafe {
		return nil, fmt.Errorf("%w: kind must be safe or unsafe", models.ErrValidation)
	}

	now := time.Now()
	gf := &models.Geofence{
		GeofenceID:   uuid.New().String(),
		DeviceID:     deviceID,
		Name:         spec.Name,
		Kind:         spec.Kind,
		Latitude:     spec.Latitude,
		Longitude:    spec.Longitude,
		RadiusMeters: spec.RadiusMeters,
		AlertOnEntry: spec.AlertOnEntry,
		AlertOnExit:  spec.AlertOnExit,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	r.geofences[gf.GeofenceID] = gf
	r.byDevice[deviceID] = append(r.byDevice[deviceID], gf.GeofenceID)
	r.mu.Unlock()

	r.persist(ctx, gf, true)

	r.logger.Info("Geofence created",
		zap.String("geofence_id", gf.GeofenceID),
		zap.String("device_id", deviceID),
		zap.String("name", gf.Name),
		zap.String("kind", string(gf.Kind)),
		zap.Float64("radius_meters", gf.RadiusMeters),
	)

	result := *gf
	return &result, nil
}

// ListActive 返回设备的所有活跃围栏（副本，顺序不保证）
func (r *Registry) ListActive(deviceID string) []models.Geofence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byDevice[deviceID]
	result := make([]models.Geofence, 0, len(ids))
	for _, id := range ids {
		gf := r.geofences[id]
		if gf != nil && gf.Active {
			result = append(result, *gf)
		}
	}
	return result
}

// Update 更新围栏（patch 中的 nil 字段不修改）
// 未知 id 返回 models.ErrNotFound
func (r *Registry) Update(ctx context.Context, geofenceID string, patch models.GeofencePatch) (*models.Geofence, error) {
	if patch.Name != nil && *patch.Name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	if patch.RadiusMeters != nil && *patch.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius_meters must be positive", models.ErrValidation)
	}

	r.mu.Lock()
	gf, ok := r.geofences[geofenceID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: geofence %s", models.ErrNotFound, geofenceID)
	}

	if patch.Name != nil {
		gf.Name = *patch.Name
	}
	if patch.Kind != nil {
		gf.Kind = *patch.Kind
	}
	if patch.Latitude != nil {
		gf.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		gf.Longitude = *patch.Longitude
	}
	if patch.RadiusMeters != nil {
		gf.RadiusMeters = *patch.RadiusMeters
	}
	if patch.AlertOnEntry != nil {
		gf.AlertOnEntry = *patch.AlertOnEntry
	}
	if patch.AlertOnExit != nil {
		gf.AlertOnExit = *patch.AlertOnExit
	}
	gf.UpdatedAt = time.Now()
	snapshot := *gf
	r.mu.Unlock()

	r.persist(ctx, &snapshot, false)

	return &snapshot, nil
}

// Deactivate 停用围栏（软删除，幂等）
// 停用后的围栏不再参与评估，记录保留用于审计
func (r *Registry) Deactivate(ctx context.Context, geofenceID string) error {
	r.mu.Lock()
	gf, ok := r.geofences[geofenceID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: geofence %s", models.ErrNotFound, geofenceID)
	}
	if !gf.Active {
		r.mu.Unlock()
		return nil
	}
	gf.Active = false
	gf.UpdatedAt = time.Now()
	snapshot := *gf
	r.mu.Unlock()

	r.persist(ctx, &snapshot, false)

	r.logger.Info("Geofence deactivated",
		zap.String("geofence_id", geofenceID),
	)
	return nil
}

// Reactivate 重新启用围栏（幂等）
func (r *Registry) Reactivate(ctx context.Context, geofenceID string) error {
	r.mu.Lock()
	gf, ok := r.geofences[geofenceID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: geofence %s", models.ErrNotFound, geofenceID)
	}
	if gf.Active {
		r.mu.Unlock()
		return nil
	}
	gf.Active = true
	gf.UpdatedAt = time.Now()
	snapshot := *gf
	r.mu.Unlock()

	r.persist(ctx, &snapshot, false)

	return nil
}

// Stats 返回设备的围栏统计（活跃围栏按类型计数）
func (r *Registry) Stats(deviceID string) models.GeofenceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats models.GeofenceStats
	for _, id := range r.byDevice[deviceID] {
		gf := r.geofences[id]
		if gf == nil || !gf.Active {
			continue
		}
		stats.Total++
		switch gf.Kind {
		case models.GeofenceKindSafe:
			stats.SafeZones++
		case models.GeofenceKindUnsafe:
			stats.UnsafeZones++
		}
	}
	return stats
}

// persist 写入持久层，失败只记日志不回滚内存状态
func (r *Registry) persist(ctx context.Context, gf *models.Geofence, isNew bool) {
	if r.store == nil {
		return
	}

	var err error
	if isNew {
		err = r.store.InsertGeofence(ctx, gf)
	} else {
		err = r.store.UpdateGeofence(ctx, gf)
	}
	if err != nil {
		r.logger.Error("Failed to persist geofence",
			zap.String("geofence_id", gf.GeofenceID),
			zap.Bool("is_new", isNew),
			zap.Error(err),
		)
	}
}
