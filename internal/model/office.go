package model

import (
	"time"

	"gorm.io/datatypes"
)

// 办公室配置项名称
const (
	SettingOfficeLocation      = "office_location"
	SettingAllowedRadiusMeters = "allowed_radius_meters"
	SettingWifiAllowlist       = "wifi_allowlist"
	SettingWorkingHours        = "working_hours"
)

// SettingNames 全部合法配置项
var SettingNames = []string{
	SettingOfficeLocation,
	SettingAllowedRadiusMeters,
	SettingWifiAllowlist,
	SettingWorkingHours,
}

// OfficeSetting 办公室配置表，一项一行，值为 JSON
type OfficeSetting struct {
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	Name      string         `gorm:"primaryKey;type:varchar(64)" json:"name"`
	UpdatedBy string         `gorm:"type:varchar(64)" json:"updated_by,omitempty"`
	Value     datatypes.JSON `gorm:"not null" json:"value"`
}

// TableName 指定表名
func (OfficeSetting) TableName() string {
	return "office_settings"
}

// WorkingHours 工作时间，格式 "15:04" 或 "15:04:05"
type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// OfficeConfig 由配置表组装出的办公室配置，只读
type OfficeConfig struct {
	WorkingHours        WorkingHours `json:"working_hours"`
	WifiAllowlist       []string     `json:"wifi_allowlist"`
	Location            GeoPoint     `json:"office_location"`
	AllowedRadiusMeters float64      `json:"allowed_radius_meters"`
}

// AllowsSSID 白名单为空时不做网络校验，由调用方先判断
func (c *OfficeConfig) AllowsSSID(ssid string) bool {
	for _, s := range c.WifiAllowlist {
		if s == ssid {
			return true
		}
	}
	return false
}
