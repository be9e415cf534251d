package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guardian-view/internal/config"
	"guardian-view/internal/models"
)

// fakeProvider 测试用定位提供方
type fakeProvider struct {
	foregroundGranted bool
	backgroundGranted bool
	fixes             chan models.LocationFix
}

func (p *fakeProvider) RequestForegroundAccess(context.Context) (bool, error) {
	return p.foregroundGranted, nil
}

func (p *fakeProvider) RequestBackgroundAccess(context.Context) (bool, error) {
	return p.backgroundGranted, nil
}

func (p *fakeProvider) Watch(ctx context.Context, deviceID string) (<-chan models.LocationFix, error) {
	out := make(chan models.LocationFix)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-p.fixes:
				if !ok {
					return
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// countingProcessor 记录处理过的定位
type countingProcessor struct {
	mu    sync.Mutex
	fixes []models.LocationFix
}

func (c *countingProcessor) ProcessFix(_ context.Context, fix models.LocationFix) ([]models.TransitionEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixes = append(c.fixes, fix)
	return nil, nil
}

func (c *countingProcessor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fixes)
}

func trackingConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Tracking.ForegroundIntervalSec = 30
	cfg.Tracking.ForegroundDistanceM = 50
	return cfg
}

func TestStartTracking_PermissionDenied(t *testing.T) {
	provider := &fakeProvider{foregroundGranted: false}
	processor := &countingProcessor{}
	tr := NewTracker(trackingConfig(), provider, processor, zap.NewNop())

	started, err := tr.StartTracking(context.Background(), "dev-1")

	// 软失败：不是错误
	require.NoError(t, err)
	assert.False(t, started)
	assert.False(t, tr.IsTracking("dev-1"))
}

func TestStartTracking_BackgroundDeniedDegrades(t *testing.T) {
	provider := &fakeProvider{
		foregroundGranted: true,
		backgroundGranted: false,
		fixes:             make(chan models.LocationFix),
	}
	processor := &countingProcessor{}
	tr := NewTracker(trackingConfig(), provider, processor, zap.NewNop())
	defer tr.StopAll()

	started, err := tr.StartTracking(context.Background(), "dev-1")

	// 后台被拒不阻止前台追踪
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, tr.IsTracking("dev-1"))
}

func TestTracker_DebounceByTimeAndDistance(t *testing.T) {
	provider := &fakeProvider{
		foregroundGranted: true,
		backgroundGranted: true,
		fixes:             make(chan models.LocationFix),
	}
	processor := &countingProcessor{}
	tr := NewTracker(trackingConfig(), provider, processor, zap.NewNop())
	defer tr.StopAll()

	started, err := tr.StartTracking(context.Background(), "dev-1")
	require.NoError(t, err)
	require.True(t, started)

	base := time.Now()
	at := func(sec int, lat float64) models.LocationFix {
		return models.LocationFix{
			DeviceID:   "dev-1",
			Latitude:   lat,
			Longitude:  -122.4194,
			ObservedAt: base.Add(time.Duration(sec) * time.Second),
		}
	}

	// 首个定位总是投递
	provider.fixes <- at(0, 37.7749)
	// 5 秒后原地：时间和距离都未超阈值，被节流
	provider.fixes <- at(5, 37.7749)
	// 10 秒后移动约 100 米：距离超阈值，投递
	provider.fixes <- at(10, 37.7749+0.0009)
	// 45 秒后原地：时间超阈值，投递
	provider.fixes <- at(45, 37.7749+0.0009)

	require.Eventually(t, func() bool {
		return processor.count() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopTracking_ReleasesSubscription(t *testing.T) {
	provider := &fakeProvider{
		foregroundGranted: true,
		backgroundGranted: true,
		fixes:             make(chan models.LocationFix, 4),
	}
	processor := &countingProcessor{}
	tr := NewTracker(trackingConfig(), provider, processor, zap.NewNop())

	started, err := tr.StartTracking(context.Background(), "dev-1")
	require.NoError(t, err)
	require.True(t, started)

	provider.fixes <- models.LocationFix{DeviceID: "dev-1", Latitude: 1, ObservedAt: time.Now()}
	require.Eventually(t, func() bool {
		return processor.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	tr.StopTracking("dev-1")
	assert.False(t, tr.IsTracking("dev-1"))

	// 幂等：重复停止无副作用
	tr.StopTracking("dev-1")

	// 再次开始追踪会建立新会话
	started, err = tr.StartTracking(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, started)
	tr.StopAll()
}

func TestShouldDeliver(t *testing.T) {
	base := time.Now()
	interval := 30 * time.Second

	last := &models.LocationFix{Latitude: 37.7749, Longitude: -122.4194, ObservedAt: base}

	// 首个定位
	assert.True(t, shouldDeliver(nil, &models.LocationFix{}, interval, 50))

	// 未超任何阈值
	near := &models.LocationFix{Latitude: 37.7749, Longitude: -122.4194, ObservedAt: base.Add(5 * time.Second)}
	assert.False(t, shouldDeliver(last, near, interval, 50))

	// 超时间阈值
	lateFix := &models.LocationFix{Latitude: 37.7749, Longitude: -122.4194, ObservedAt: base.Add(31 * time.Second)}
	assert.True(t, shouldDeliver(last, lateFix, interval, 50))

	// 超距离阈值（约 100 米）
	farFix := &models.LocationFix{Latitude: 37.7749 + 0.0009, Longitude: -122.4194, ObservedAt: base.Add(time.Second)}
	assert.True(t, shouldDeliver(last, farFix, interval, 50))
}
