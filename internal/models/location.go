package models

import (
	"time"
)

// LocationFix 一次定位采样（对应 location_fixes 表）
// 产生后不可变；同一设备按 ObservedAt 有序
type LocationFix struct {
	DeviceID       string    `json:"device_id" db:"device_id"`
	Latitude       float64   `json:"latitude" db:"latitude"`
	Longitude      float64   `json:"longitude" db:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters" db:"accuracy_meters"`
	ObservedAt     time.Time `json:"observed_at" db:"observed_at"`
}
