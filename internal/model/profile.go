package model

import (
	"time"

	"gorm.io/datatypes"
)

// EmbeddingDim 人脸特征向量维度
const EmbeddingDim = 128

// EnrolledProfile 用户录入的人脸模板，每个用户一条，重新录入时整体覆盖
type EnrolledProfile struct {
	CreatedAt  time.Time                       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time                       `gorm:"autoUpdateTime" json:"updated_at"`
	UserID     string                          `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Embeddings datatypes.JSONType[[][]float64] `gorm:"not null" json:"-"`
}

// TableName 指定表名
func (EnrolledProfile) TableName() string {
	return "enrolled_profiles"
}

// Vectors 返回录入的全部姿态向量
func (p *EnrolledProfile) Vectors() [][]float64 {
	return p.Embeddings.Data()
}
