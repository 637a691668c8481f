package dto

import "time"

// EnrollRequest 人脸录入请求，embedding 与 embeddings 二选一
type EnrollRequest struct {
	Embedding  []float64   `json:"embedding,omitempty"`
	Embeddings [][]float64 `json:"embeddings,omitempty"`
	Average    bool        `json:"average,omitempty"`
}

// ProfileSummary 录入概况，不返回向量
type ProfileSummary struct {
	UpdatedAt time.Time `json:"updated_at"`
	UserID    string    `json:"user_id"`
	PoseCount int       `json:"pose_count"`
}
