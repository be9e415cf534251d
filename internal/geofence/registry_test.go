package geofence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// 纬度方向 1 度对应约 111194.93 米（球面近似）
// 0.00539593 度即约 600 米
const lat600mOffset = 0.00539593

func newTestRegistry() *Registry {
	return NewRegistry(nil, zap.NewNop())
}

func safeZoneSpec(name string) models.GeofenceSpec {
	return models.GeofenceSpec{
		Name:         name,
		Kind:         models.GeofenceKindSafe,
		Latitude:     37.7749,
		Longitude:    -122.4194,
		RadiusMeters: 500,
		AlertOnEntry: true,
		AlertOnExit:  true,
	}
}

func TestDistance_Haversine(t *testing.T) {
	// 同一点距离为 0
	assert.Equal(t, 0.0, Distance(37.7749, -122.4194, 37.7749, -122.4194))

	// 纬度偏移 0.00539593 度约等于 600 米
	d := Distance(37.7749, -122.4194, 37.7749+lat600mOffset, -122.4194)
	assert.InDelta(t, 600.0, d, 0.5)
}

func TestContains_RadiusBoundary(t *testing.T) {
	gf := &models.Geofence{
		Latitude:     37.7749,
		Longitude:    -122.4194,
		RadiusMeters: 500,
	}

	// 圆心本身在围栏内
	assert.True(t, Contains(37.7749, -122.4194, gf))

	// 600 米外的点不在 500 米围栏内
	assert.False(t, Contains(37.7749+lat600mOffset, -122.4194, gf))
}

func TestRegistry_Create(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	gf, err := r.Create(ctx, "device-1", safeZoneSpec("Home"))
	require.NoError(t, err)
	assert.NotEmpty(t, gf.GeofenceID)
	assert.Equal(t, "device-1", gf.DeviceID)
	assert.Equal(t, "Home", gf.Name)
	assert.True(t, gf.Active)

	active := r.ListActive("device-1")
	require.Len(t, active, 1)
	assert.Equal(t, gf.GeofenceID, active[0].GeofenceID)
}

func TestRegistry_Create_Validation(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	// 空名称
	spec := safeZoneSpec("")
	_, err := r.Create(ctx, "device-1", spec)
	assert.ErrorIs(t, err, models.ErrValidation)

	// 非法半径
	spec = safeZoneSpec("Home")
	spec.RadiusMeters = 0
	_, err = r.Create(ctx, "device-1", spec)
	assert.ErrorIs(t, err, models.ErrValidation)

	spec = safeZoneSpec("Home")
	spec.RadiusMeters = -10
	_, err = r.Create(ctx, "device-1", spec)
	assert.ErrorIs(t, err, models.ErrValidation)

	// 非法类型
	spec = safeZoneSpec("Home")
	spec.Kind = "neutral"
	_, err = r.Create(ctx, "device-1", spec)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegistry_ListActive_DeviceScoped(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, "device-1", safeZoneSpec("Home"))
	require.NoError(t, err)
	_, err = r.Create(ctx, "device-2", safeZoneSpec("School"))
	require.NoError(t, err)

	// 每个设备只能看到自己的围栏
	assert.Len(t, r.ListActive("device-1"), 1)
	assert.Len(t, r.ListActive("device-2"), 1)
	assert.Empty(t, r.ListActive("device-3"))
	assert.Equal(t, "Home", r.ListActive("device-1")[0].Name)
}

func TestRegistry_Update(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	gf, err := r.Create(ctx, "device-1", safeZoneSpec("Home"))
	require.NoError(t, err)

	newName := "Grandma"
	newRadius := 250.0
	updated, err := r.Update(ctx, gf.GeofenceID, models.GeofencePatch{
		Name:         &newName,
		RadiusMeters: &newRadius,
	})
	require.NoError(t, err)
	assert.Equal(t, "Grandma", updated.Name)
	assert.Equal(t, 250.0, updated.RadiusMeters)
	// 未指定的字段保持不变
	assert.Equal(t, models.GeofenceKindSafe, updated.Kind)
	assert.True(t, updated.AlertOnEntry)
}

func TestRegistry_Update_NotFound(t *testing.T) {
	r := newTestRegistry()

	name := "x"
	_, err := r.Update(context.Background(), "missing-id", models.GeofencePatch{Name: &name})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegistry_Deactivate_Idempotent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	gf, err := r.Create(ctx, "device-1", safeZoneSpec("Home"))
	require.NoError(t, err)

	require.NoError(t, r.Deactivate(ctx, gf.GeofenceID))
	assert.Empty(t, r.ListActive("device-1"))

	// 重复停用不报错
	require.NoError(t, r.Deactivate(ctx, gf.GeofenceID))

	// 未知 id 返回 not found
	assert.ErrorIs(t, r.Deactivate(ctx, "missing-id"), models.ErrNotFound)
}

func TestRegistry_Reactivate(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	gf, err := r.Create(ctx, "device-1", safeZoneSpec("Home"))
	require.NoError(t, err)

	require.NoError(t, r.Deactivate(ctx, gf.GeofenceID))
	require.NoError(t, r.Reactivate(ctx, gf.GeofenceID))

	active := r.ListActive("device-1")
	require.Len(t, active, 1)
	assert.Equal(t, gf.GeofenceID, active[0].GeofenceID)
}

func TestRegistry_Stats(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.Create(ctx, "device-1", safeZoneSpec("Home"))
	require.NoError(t, err)

	unsafeSpec := safeZoneSpec("Construction site")
	unsafeSpec.Kind = models.GeofenceKindUnsafe
	gf, err := r.Create(ctx, "device-1", unsafeSpec)
	require.NoError(t, err)

	stats := r.Stats("device-1")
	assert.Equal(t, models.GeofenceStats{Total: 2, SafeZones: 1, UnsafeZones: 1}, stats)

	// 停用后统计随之减少
	require.NoError(t, r.Deactivate(ctx, gf.GeofenceID))
	stats = r.Stats("device-1")
	assert.Equal(t, models.GeofenceStats{Total: 1, SafeZones: 1}, stats)
}
