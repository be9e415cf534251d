package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"guardian-view/pkg/mqtt"
)

// MQTTNotifier 通过 MQTT 投递通知
// 监护人应用订阅 {topicPrefix}{device_id} 主题接收所关注设备的报警
type MQTTNotifier struct {
	client      *mqtt.Client
	topicPrefix string
	qos         byte
}

// NewMQTTNotifier 创建 MQTT 通知器
func NewMQTTNotifier(client *mqtt.Client, topicPrefix string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         qos,
	}
}

// Send 发布通知消息，返回本次投递 id
func (n *MQTTNotifier) Send(ctx context.Context, notification Notification) (string, error) {
	deliveryID := uuid.New().String()

	payload, err := json.Marshal(struct {
		Notification
		DeliveryID string `json:"delivery_id"`
	}{
		Notification: notification,
		DeliveryID:   deliveryID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification: %w", err)
	}

	topic := n.topicPrefix + notification.DeviceID
	if err := n.client.Publish(topic, n.qos, false, payload); err != nil {
		return "", fmt.Errorf("failed to publish notification: %w", err)
	}

	return deliveryID, nil
}
