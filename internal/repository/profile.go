package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"AttendGate/internal/model"
)

// ProfileRepository 人脸模板存储
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetProfile 查询用户的录入模板，不存在时返回 ErrProfileNotFound
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*model.EnrolledProfile, error) {
	var profile model.EnrolledProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query face profile: %w", err)
	}
	return &profile, nil
}

// UpsertProfile 首次录入时创建，重新录入时整体覆盖向量
func (r *ProfileRepository) UpsertProfile(ctx context.Context, profile *model.EnrolledProfile) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embeddings", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to upsert face profile: %w", err)
	}
	return nil
}
