package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"guardian-view/internal/models"
)

// 通知分类
const (
	CategoryGeofence = "geofence"
	CategorySOS      = "sos"
)

// 通知优先级
const (
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Notification 出站通知
type Notification struct {
	DeviceID string `json:"device_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Sound    string `json:"sound,omitempty"`
}

// Notifier 通知投递通道（MQTT 或 HTTP 推送网关）
type Notifier interface {
	Send(ctx context.Context, n Notification) (string, error)
}

// NameResolver 设备展示名解析（由 repository.DeviceRepository 实现）
type NameResolver interface {
	GetDeviceName(ctx context.Context, deviceID string) (string, error)
}

// AlertDispatcher 报警派发器
// 入队不阻塞调用方：检测器和求助广播把事件丢进队列即返回，
// 单个 worker 串行投递；队列满时丢弃并记日志（通知是尽力而为，
// 权威记录是已落库的事件本身）
type AlertDispatcher struct {
	notifier Notifier
	names    NameResolver
	logger   *zap.Logger

	queue  chan Notification
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewAlertDispatcher 创建派发器
// names 可以为 nil（通知中直接使用设备 id）
func NewAlertDispatcher(notifier Notifier, names NameResolver, queueSize int, logger *zap.Logger) *AlertDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &AlertDispatcher{
		notifier: notifier,
		names:    names,
		logger:   logger,
		queue:    make(chan Notification, queueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start 启动投递 worker
func (d *AlertDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	d.wg.Add(1)
	go d.run()
}

// Stop 停止投递（队列中未投递的通知被放弃）
func (d *AlertDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
}

// DispatchTransition 派发围栏越界通知
// 危险区域的越界按高优先级投递
func (d *AlertDispatcher) DispatchTransition(ev models.TransitionEvent) {
	verb := "entered"
	if ev.Kind == models.TransitionExited {
		verb = "left"
	}

	priority := PriorityNormal
	if ev.GeofenceKind == models.GeofenceKindUnsafe {
		priority = PriorityHigh
	}

	d.enqueue(Notification{
		DeviceID: ev.DeviceID,
		Title:    "Location Alert",
		Body:     fmt.Sprintf("{device} has %s %s", verb, ev.GeofenceName),
		Category: CategoryGeofence,
		Priority: priority,
	})
}

// DispatchSOS 派发紧急求助通知（始终最高优先级，带提示音）
func (d *AlertDispatcher) DispatchSOS(alert models.SOSAlert) {
	d.enqueue(Notification{
		DeviceID: alert.DeviceID,
		Title:    "SOS Alert",
		Body: fmt.Sprintf("EMERGENCY! {device} sent an SOS from %.4f,%.4f",
			alert.Location.Latitude, alert.Location.Longitude),
		Category: CategorySOS,
		Priority: PriorityCritical,
		Sound:    "default",
	})
}

// enqueue 非阻塞入队，队列满则丢弃
func (d *AlertDispatcher) enqueue(n Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("Notification queue full, dropping",
			zap.String("device_id", n.DeviceID),
			zap.String("category", n.Category),
		)
	}
}

// run 投递循环
func (d *AlertDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

// deliver 投递单条通知，失败只记日志不重试
func (d *AlertDispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n.Body = d.expandDeviceName(ctx, n)

	deliveryID, err := d.notifier.Send(ctx, n)
	if err != nil {
		d.logger.Error("Failed to send notification",
			zap.String("device_id", n.DeviceID),
			zap.String("category", n.Category),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("Notification sent",
		zap.String("device_id", n.DeviceID),
		zap.String("category", n.Category),
		zap.String("priority", n.Priority),
		zap.String("delivery_id", deliveryID),
	)
}

// expandDeviceName 把消息中的 {device} 占位符替换为设备展示名
// 解析失败时退回到设备 id
func (d *AlertDispatcher) expandDeviceName(ctx context.Context, n Notification) string {
	name := n.DeviceID
	if d.names != nil {
		if resolved, err := d.names.GetDeviceName(ctx, n.DeviceID); err == nil && resolved != "" {
			name = resolved
		}
	}
	return strings.Replace(n.Body, "{device}", name, 1)
}
