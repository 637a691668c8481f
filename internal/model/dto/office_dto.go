package dto

import "encoding/json"

// UpdateSettingRequest 更新办公室配置项
type UpdateSettingRequest struct {
	Value json.RawMessage `json:"value"`
}
