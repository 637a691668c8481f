package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"AttendGate/internal/model"
)

// OfficeSettingRepository 办公室配置表
type OfficeSettingRepository struct {
	db *gorm.DB
}

func NewOfficeSettingRepository(db *gorm.DB) *OfficeSettingRepository {
	return &OfficeSettingRepository{db: db}
}

func (r *OfficeSettingRepository) List(ctx context.Context) ([]model.OfficeSetting, error) {
	var settings []model.OfficeSetting
	if err := r.db.WithContext(ctx).Order("name").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to list office settings: %w", err)
	}
	return settings, nil
}

func (r *OfficeSettingRepository) Get(ctx context.Context, name string) (*model.OfficeSetting, error) {
	var setting model.OfficeSetting
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query office setting: %w", err)
	}
	return &setting, nil
}

// Upsert 写入配置项，已存在时覆盖
func (r *OfficeSettingRepository) Upsert(ctx context.Context, setting *model.OfficeSetting) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(setting).Error
	if err != nil {
		return fmt.Errorf("failed to upsert office setting: %w", err)
	}
	return nil
}
