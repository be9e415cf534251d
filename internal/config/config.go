package config

import (
	"os"
	"strconv"

	"guardian-view/pkg/config"
)

// Config 守护服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 定位追踪配置
	Tracking struct {
		// 前台模式节流阈值：两者任一超出即投递下一个定位
		ForegroundIntervalSec int     // 时间阈值（秒），默认 30秒
		ForegroundDistanceM   float64 // 距离阈值（米），默认 50米
		// 后台模式由平台按批调度，阈值更粗
		BackgroundIntervalSec int     // 时间阈值（秒），默认 60秒
		BackgroundDistanceM   float64 // 距离阈值（米），默认 100米

		// 后台定位上报主题，格式 location/{device_id}/fix
		LocationTopic string
	}

	// Redis 缓存配置
	Cache struct {
		FixKeyPrefix   string // 最新定位缓存键前缀，如 "guardian:device:"
		FixSuffix      string // 最新定位缓存键后缀，如 ":location"
		FixTTL         int    // 最新定位 TTL（秒），默认 300秒
		AlertKeyPrefix string // 活跃求助缓存键前缀，如 "guardian:device:"
		AlertSuffix    string // 活跃求助缓存键后缀，如 ":sos"
		AlertTTL       int    // 活跃求助 TTL（秒），默认 3600秒
	}

	// 通知派发配置
	Notify struct {
		Channel        string // 通知通道："mqtt" 或 "push"
		TopicPrefix    string // MQTT 通知主题前缀，如 "guardian/alerts/"
		PushGatewayURL string // HTTP 推送网关地址（push 通道使用）
		PushTimeoutSec int    // 推送请求超时（秒），默认 10秒
		QueueSize      int    // 派发队列长度，默认 256
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "guardianview")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "guardian-view")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 追踪配置
	cfg.Tracking.ForegroundIntervalSec = getEnvInt("TRACK_FG_INTERVAL_SEC", 30)
	cfg.Tracking.ForegroundDistanceM = float64(getEnvInt("TRACK_FG_DISTANCE_M", 50))
	cfg.Tracking.BackgroundIntervalSec = getEnvInt("TRACK_BG_INTERVAL_SEC", 60)
	cfg.Tracking.BackgroundDistanceM = float64(getEnvInt("TRACK_BG_DISTANCE_M", 100))
	cfg.Tracking.LocationTopic = getEnv("TRACK_LOCATION_TOPIC", "location/+/fix")

	// 缓存配置
	cfg.Cache.FixKeyPrefix = getEnv("CACHE_FIX_PREFIX", "guardian:device:")
	cfg.Cache.FixSuffix = ":location"
	cfg.Cache.FixTTL = getEnvInt("CACHE_FIX_TTL", 300)
	cfg.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "guardian:device:")
	cfg.Cache.AlertSuffix = ":sos"
	cfg.Cache.AlertTTL = getEnvInt("CACHE_ALERT_TTL", 3600)

	// 通知配置
	cfg.Notify.Channel = getEnv("NOTIFY_CHANNEL", "mqtt")
	cfg.Notify.TopicPrefix = getEnv("NOTIFY_TOPIC_PREFIX", "guardian/alerts/")
	cfg.Notify.PushGatewayURL = getEnv("NOTIFY_PUSH_GATEWAY_URL", "")
	cfg.Notify.PushTimeoutSec = getEnvInt("NOTIFY_PUSH_TIMEOUT_SEC", 10)
	cfg.Notify.QueueSize = getEnvInt("NOTIFY_QUEUE_SIZE", 256)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
