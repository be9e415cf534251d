package models

import (
	"time"
)

// SOSAlert 紧急求助事件（对应 sos_alerts 表）
// 由被监护设备主动触发；只能通过 Acknowledge 修改，核心层不删除
type SOSAlert struct {
	AlertID      string    `json:"alert_id" db:"alert_id"`
	DeviceID     string    `json:"device_id" db:"device_id"`
	Location     SOSPoint  `json:"location"`
	RaisedAt     time.Time `json:"raised_at" db:"raised_at"`
	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
}

// SOSPoint 求助时刻的定位快照
type SOSPoint struct {
	Latitude       float64   `json:"latitude" db:"latitude"`
	Longitude      float64   `json:"longitude" db:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters" db:"accuracy_meters"`
	ObservedAt     time.Time `json:"observed_at" db:"observed_at"`
}
