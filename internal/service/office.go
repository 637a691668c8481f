package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"AttendGate/internal/admission"
	"AttendGate/internal/model"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/logger"
)

// 未配置时的工作时间
const (
	DefaultWorkStart = "09:00"
	DefaultWorkEnd   = "18:00"
)

// OfficeSettingStore 办公室配置表
type OfficeSettingStore interface {
	List(ctx context.Context) ([]model.OfficeSetting, error)
	Upsert(ctx context.Context, setting *model.OfficeSetting) error
}

// OfficeConfigCache 组装后配置的共享缓存
// Get 返回的版本号在 Invalidate 后失效，用旧版本号 Set 的值不会再被读到
type OfficeConfigCache interface {
	Get(ctx context.Context) (*model.OfficeConfig, int64, bool, error)
	Set(ctx context.Context, version int64, cfg *model.OfficeConfig) error
	Invalidate(ctx context.Context) error
}

// OfficeConfigService 服务端权威的办公室配置，准入引擎只从这里读取
type OfficeConfigService struct {
	store OfficeSettingStore
	cache OfficeConfigCache
}

// NewOfficeConfigService cache 为空时每次都回源
func NewOfficeConfigService(store OfficeSettingStore, cache OfficeConfigCache) *OfficeConfigService {
	return &OfficeConfigService{store: store, cache: cache}
}

var _ admission.OfficeConfigSource = (*OfficeConfigService)(nil)

// Current 先读缓存，缓存故障时降级为直接查库
func (s *OfficeConfigService) Current(ctx context.Context) (*model.OfficeConfig, error) {
	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		cfg, v, hit, err := s.cache.Get(ctx)
		if err != nil {
			logger.Logger.Warn("Office config cache unavailable, reading from database", zap.Error(err))
		}
		if hit {
			return cfg, nil
		}
		// 版本号必须在查库前取得
		version, cacheable = v, err == nil
	}

	settings, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := AssembleOfficeConfig(settings)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, version, cfg); err != nil {
			logger.Logger.Warn("Failed to cache office config", zap.Error(err))
		}
	}
	return cfg, nil
}

// List 返回原始配置项
func (s *OfficeConfigService) List(ctx context.Context) ([]model.OfficeSetting, error) {
	return s.store.List(ctx)
}

// Set 校验并写入单个配置项，成功后失效缓存
func (s *OfficeConfigService) Set(ctx context.Context, updatedBy, name string, value json.RawMessage) (*model.OfficeSetting, error) {
	if !isKnownSetting(name) {
		return nil, errors.SettingUnknown
	}
	if err := validateSetting(name, value); err != nil {
		return nil, errors.SettingInvalid.WithMessage(fmt.Sprintf("Invalid %s: %v", name, err))
	}

	setting := &model.OfficeSetting{
		Name:      name,
		Value:     datatypes.JSON(value),
		UpdatedBy: updatedBy,
	}
	if err := s.store.Upsert(ctx, setting); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			// 缓存会按 TTL 过期，这里只告警
			logger.Logger.Warn("Failed to invalidate office config cache", zap.String("setting", name), zap.Error(err))
		}
	}

	logger.Logger.Info("Office setting updated",
		zap.String("setting", name),
		zap.String("updated_by", updatedBy),
	)
	return setting, nil
}

// AssembleOfficeConfig 由配置行组装 OfficeConfig
// office_location 与 allowed_radius_meters 必须存在，否则视为服务未配置
func AssembleOfficeConfig(settings []model.OfficeSetting) (*model.OfficeConfig, error) {
	cfg := &model.OfficeConfig{
		WorkingHours: model.WorkingHours{Start: DefaultWorkStart, End: DefaultWorkEnd},
	}

	seen := make(map[string]bool, len(settings))
	for _, st := range settings {
		var target interface{}
		switch st.Name {
		case model.SettingOfficeLocation:
			target = &cfg.Location
		case model.SettingAllowedRadiusMeters:
			target = &cfg.AllowedRadiusMeters
		case model.SettingWifiAllowlist:
			target = &cfg.WifiAllowlist
		case model.SettingWorkingHours:
			target = &cfg.WorkingHours
		default:
			continue
		}
		if err := validateSetting(st.Name, json.RawMessage(st.Value)); err != nil {
			return nil, fmt.Errorf("office setting %s is corrupt: %w", st.Name, err)
		}
		if err := json.Unmarshal(st.Value, target); err != nil {
			return nil, fmt.Errorf("office setting %s is corrupt: %w", st.Name, err)
		}
		seen[st.Name] = true
	}

	for _, required := range []string{model.SettingOfficeLocation, model.SettingAllowedRadiusMeters} {
		if !seen[required] {
			return nil, fmt.Errorf("office setting %s is not configured", required)
		}
	}
	return cfg, nil
}

func isKnownSetting(name string) bool {
	for _, n := range model.SettingNames {
		if n == name {
			return true
		}
	}
	return false
}

func validateSetting(name string, raw json.RawMessage) error {
	switch name {
	case model.SettingOfficeLocation:
		var p model.GeoPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return fmt.Errorf("coordinates out of range")
		}
	case model.SettingAllowedRadiusMeters:
		var r float64
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if r <= 0 {
			return fmt.Errorf("radius must be positive")
		}
	case model.SettingWifiAllowlist:
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		for _, ssid := range list {
			if strings.TrimSpace(ssid) == "" {
				return fmt.Errorf("empty ssid")
			}
		}
	case model.SettingWorkingHours:
		var wh model.WorkingHours
		if err := json.Unmarshal(raw, &wh); err != nil {
			return err
		}
		start, err := admission.ParseClock(wh.Start)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		end, err := admission.ParseClock(wh.End)
		if err != nil {
			return fmt.Errorf("end: %w", err)
		}
		if end <= start {
			return fmt.Errorf("end must be after start")
		}
	}
	return nil
}
