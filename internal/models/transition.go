package models

import (
	"time"
)

// TransitionKind 越界事件类型
type TransitionKind string

const (
	TransitionEntered TransitionKind = "entered" // 进入围栏
	TransitionExited  TransitionKind = "exited"  // 离开围栏
)

// TransitionEvent 围栏越界事件（对应 transition_events 表）
// 由检测器产生，每次状态变化恰好产生一次；派发失败不重试
type TransitionEvent struct {
	DeviceID     string         `json:"device_id" db:"device_id"`
	GeofenceID   string         `json:"geofence_id" db:"geofence_id"`
	GeofenceName string         `json:"geofence_name" db:"geofence_name"`
	GeofenceKind GeofenceKind   `json:"geofence_kind" db:"geofence_kind"`
	Kind         TransitionKind `json:"kind" db:"kind"`
	OccurredAt   time.Time      `json:"occurred_at" db:"occurred_at"`
}
