package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"guardian-view/internal/broadcast"
	"guardian-view/internal/cache"
	"guardian-view/internal/config"
	"guardian-view/internal/dispatcher"
	"guardian-view/internal/geofence"
	"guardian-view/internal/repository"
	"guardian-view/internal/tracker"
	"guardian-view/pkg/database"
	"guardian-view/pkg/mqtt"
	"guardian-view/pkg/redis"
)

// TrackingService 守护服务（整合各层）
type TrackingService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	geofenceRepo   *repository.GeofenceRepository
	locationRepo   *repository.LocationRepository
	transitionRepo *repository.TransitionRepository
	sosAlertRepo   *repository.SOSAlertRepository
	deviceRepo     *repository.DeviceRepository
	cacheManager   *cache.CacheManager
	registry       *geofence.Registry
	dispatcher     *dispatcher.AlertDispatcher
	detector       *tracker.TransitionDetector
	broadcast      *broadcast.EmergencyBroadcast
	consumer       *tracker.BackgroundConsumer

	// 前台追踪在运行期接入（EnableForegroundTracking），
	// 与 Stop 可能并发，读写都要持锁
	mu         sync.Mutex
	foreground *tracker.Tracker
}

// NewTrackingService 创建守护服务
func NewTrackingService(cfg *config.Config, logger *zap.Logger) (*TrackingService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewRedisClient(&cfg.Redis)
	if err := redis.Ping(context.Background(), redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		redis.Close(redisClient)
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	// 4. 创建 Repository 层
	geofenceRepo := repository.NewGeofenceRepository(db, logger)
	locationRepo := repository.NewLocationRepository(db, logger)
	transitionRepo := repository.NewTransitionRepository(db, logger)
	sosAlertRepo := repository.NewSOSAlertRepository(db, logger)
	deviceRepo := repository.NewDeviceRepository(db, logger)

	// 5. 创建缓存和围栏注册表
	cacheManager := cache.NewCacheManager(cfg, redisClient, logger)
	registry := geofence.NewRegistry(geofenceRepo, logger)
	if err := registry.LoadFromStore(context.Background()); err != nil {
		mqttClient.Disconnect()
		redis.Close(redisClient)
		database.Close(db)
		return nil, fmt.Errorf("failed to load geofences: %w", err)
	}

	// 6. 创建通知派发器（按配置选择投递通道）
	notifier := buildNotifier(cfg, mqttClient)
	disp := dispatcher.NewAlertDispatcher(notifier, deviceRepo, cfg.Notify.QueueSize, logger)

	// 7. 创建检测器和求助广播
	detector := tracker.NewTransitionDetector(registry, disp, locationRepo, transitionRepo, cacheManager, logger)
	emergency := broadcast.NewEmergencyBroadcast(sosAlertRepo, cacheManager, disp, logger)

	// 8. 创建后台定位消费者
	consumer := tracker.NewBackgroundConsumer(cfg, mqttClient, detector, logger)

	return &TrackingService{
		config:         cfg,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		logger:         logger,
		geofenceRepo:   geofenceRepo,
		locationRepo:   locationRepo,
		transitionRepo: transitionRepo,
		sosAlertRepo:   sosAlertRepo,
		deviceRepo:     deviceRepo,
		cacheManager:   cacheManager,
		registry:       registry,
		dispatcher:     disp,
		detector:       detector,
		broadcast:      emergency,
		consumer:       consumer,
	}, nil
}

// buildNotifier 按配置选择通知投递通道
// push 通道需要配置网关地址，否则退回 MQTT
func buildNotifier(cfg *config.Config, mqttClient *mqtt.Client) dispatcher.Notifier {
	if cfg.Notify.Channel == "push" && cfg.Notify.PushGatewayURL != "" {
		timeout := time.Duration(cfg.Notify.PushTimeoutSec) * time.Second
		return dispatcher.NewPushNotifier(cfg.Notify.PushGatewayURL, timeout)
	}
	return dispatcher.NewMQTTNotifier(mqttClient, cfg.Notify.TopicPrefix, cfg.MQTT.QoS)
}

// Start 启动服务（阻塞到上下文取消）
func (s *TrackingService) Start(ctx context.Context) error {
	s.logger.Info("Starting tracking service")

	s.dispatcher.Start()

	// 后台定位消费者（阻塞）
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start background consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *TrackingService) Stop() error {
	s.logger.Info("Stopping tracking service")

	if fg := s.Foreground(); fg != nil {
		fg.StopAll()
	}
	s.consumer.Stop()
	s.dispatcher.Stop()

	s.mqttClient.Disconnect()

	if err := redis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	return nil
}

// EnableForegroundTracking 接入前台定位提供方
// 前台追踪走节流后的直连路径，与后台 MQTT 上报共用同一个检测器
func (s *TrackingService) EnableForegroundTracking(provider tracker.LocationProvider) *tracker.Tracker {
	fg := tracker.NewTracker(s.config, provider, s.detector, s.logger)

	s.mu.Lock()
	s.foreground = fg
	s.mu.Unlock()

	return fg
}

// Foreground 当前接入的前台追踪器（未接入时为 nil）
func (s *TrackingService) Foreground() *tracker.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreground
}

// Geofences 围栏注册表
func (s *TrackingService) Geofences() *geofence.Registry {
	return s.registry
}

// Emergency 紧急求助广播
func (s *TrackingService) Emergency() *broadcast.EmergencyBroadcast {
	return s.broadcast
}

// Detector 越界检测器
func (s *TrackingService) Detector() *tracker.TransitionDetector {
	return s.detector
}

// Locations 定位历史仓库（监护人"历史轨迹"界面读取）
func (s *TrackingService) Locations() *repository.LocationRepository {
	return s.locationRepo
}

// Transitions 越界事件仓库（监护人"最近动态"界面读取）
func (s *TrackingService) Transitions() *repository.TransitionRepository {
	return s.transitionRepo
}
