package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// PushNotifier 通过 HTTP 推送网关投递通知
// 网关负责把通知转成移动端推送（如 FCM/APNs），这里只关心提交是否被接受
type PushNotifier struct {
	client     *resty.Client
	gatewayURL string
}

// pushResponse 网关响应
type pushResponse struct {
	ID string `json:"id"`
}

// NewPushNotifier 创建推送通知器
func NewPushNotifier(gatewayURL string, timeout time.Duration) *PushNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &PushNotifier{
		client:     client,
		gatewayURL: gatewayURL,
	}
}

// Send 提交通知到推送网关，返回网关分配的投递 id
func (n *PushNotifier) Send(ctx context.Context, notification Notification) (string, error) {
	var result pushResponse

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(notification).
		SetResult(&result).
		Post(n.gatewayURL)
	if err != nil {
		return "", fmt.Errorf("failed to post notification: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("push gateway returned status %d", resp.StatusCode())
	}

	return result.ID, nil
}
