package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "guardianview", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "guardian-view", cfg.MQTT.ClientID)

	assert.Equal(t, 30, cfg.Tracking.ForegroundIntervalSec)
	assert.Equal(t, 50.0, cfg.Tracking.ForegroundDistanceM)
	assert.Equal(t, 60, cfg.Tracking.BackgroundIntervalSec)
	assert.Equal(t, 100.0, cfg.Tracking.BackgroundDistanceM)
	assert.Equal(t, "location/+/fix", cfg.Tracking.LocationTopic)

	assert.Equal(t, "guardian:device:", cfg.Cache.FixKeyPrefix)
	assert.Equal(t, ":location", cfg.Cache.FixSuffix)
	assert.Equal(t, 300, cfg.Cache.FixTTL)
	assert.Equal(t, ":sos", cfg.Cache.AlertSuffix)
	assert.Equal(t, 3600, cfg.Cache.AlertTTL)

	assert.Equal(t, "mqtt", cfg.Notify.Channel)
	assert.Equal(t, "guardian/alerts/", cfg.Notify.TopicPrefix)
	assert.Equal(t, 256, cfg.Notify.QueueSize)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("TRACK_FG_INTERVAL_SEC", "15")
	os.Setenv("TRACK_FG_DISTANCE_M", "25")
	os.Setenv("NOTIFY_CHANNEL", "push")
	os.Setenv("NOTIFY_PUSH_GATEWAY_URL", "https://push.example.com/v2/send")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-db", cfg.Database.Database)

	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)

	assert.Equal(t, 15, cfg.Tracking.ForegroundIntervalSec)
	assert.Equal(t, 25.0, cfg.Tracking.ForegroundDistanceM)

	assert.Equal(t, "push", cfg.Notify.Channel)
	assert.Equal(t, "https://push.example.com/v2/send", cfg.Notify.PushGatewayURL)

	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestGetEnvInt(t *testing.T) {
	os.Clearenv()

	// 测试默认值
	assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 42))

	// 测试环境变量存在
	os.Setenv("TEST_INT_KEY", "7")
	assert.Equal(t, 7, getEnvInt("TEST_INT_KEY", 42))

	// 非法值回退到默认值
	os.Setenv("TEST_INT_KEY", "not-a-number")
	assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 42))

	// 清理
	os.Unsetenv("TEST_INT_KEY")
}
