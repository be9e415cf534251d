package models

import (
	"time"
)

// GeofenceKind 围栏类型
type GeofenceKind string

const (
	GeofenceKindSafe   GeofenceKind = "safe"   // 安全区域（如家、学校）
	GeofenceKindUnsafe GeofenceKind = "unsafe" // 危险区域
)

// Geofence 地理围栏（对应 geofences 表）
// 由监护人创建，绑定到被监护设备；软删除通过 active=false 实现
type Geofence struct {
	GeofenceID   string       `json:"geofence_id" db:"geofence_id"`
	DeviceID     string       `json:"device_id" db:"device_id"`
	Name         string       `json:"name" db:"name"`
	Kind         GeofenceKind `json:"kind" db:"kind"`
	Latitude     float64      `json:"latitude" db:"latitude"`   // 圆心纬度
	Longitude    float64      `json:"longitude" db:"longitude"` // 圆心经度
	RadiusMeters float64      `json:"radius_meters" db:"radius_meters"`
	AlertOnEntry bool         `json:"alert_on_entry" db:"alert_on_entry"`
	AlertOnExit  bool         `json:"alert_on_exit" db:"alert_on_exit"`
	Active       bool         `json:"active" db:"active"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// GeofenceSpec 创建围栏时的参数
type GeofenceSpec struct {
	Name         string       `json:"name"`
	Kind         GeofenceKind `json:"kind"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	RadiusMeters float64      `json:"radius_meters"`
	AlertOnEntry bool         `json:"alert_on_entry"`
	AlertOnExit  bool         `json:"alert_on_exit"`
}

// GeofencePatch 更新围栏时的参数（nil 表示不修改）
type GeofencePatch struct {
	Name         *string       `json:"name,omitempty"`
	Kind         *GeofenceKind `json:"kind,omitempty"`
	Latitude     *float64      `json:"latitude,omitempty"`
	Longitude    *float64      `json:"longitude,omitempty"`
	RadiusMeters *float64      `json:"radius_meters,omitempty"`
	AlertOnEntry *bool         `json:"alert_on_entry,omitempty"`
	AlertOnExit  *bool         `json:"alert_on_exit,omitempty"`
}

// GeofenceStats 设备围栏统计
type GeofenceStats struct {
	Total       int `json:"total"`
	SafeZones   int `json:"safe_zones"`
	UnsafeZones int `json:"unsafe_zones"`
}
