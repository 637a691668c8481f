package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"AttendGate/internal/face"
	"AttendGate/internal/model"
	"AttendGate/internal/model/dto"
	"AttendGate/internal/repository"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/logger"
)

// MaxEnrollPoses 单次录入最多的姿态数
const MaxEnrollPoses = 10

// ProfileWriter 人脸模板读写
type ProfileWriter interface {
	GetProfile(ctx context.Context, userID string) (*model.EnrolledProfile, error)
	UpsertProfile(ctx context.Context, profile *model.EnrolledProfile) error
}

// EnrollmentService 人脸录入，模板的唯一写入方
type EnrollmentService struct {
	profiles ProfileWriter
}

func NewEnrollmentService(profiles ProfileWriter) *EnrollmentService {
	return &EnrollmentService{profiles: profiles}
}

// Enroll 覆盖用户的录入模板，average 为 true 时多姿态合并为一个向量
func (s *EnrollmentService) Enroll(ctx context.Context, userID string, req dto.EnrollRequest) (*dto.ProfileSummary, error) {
	vectors := req.Embeddings
	if len(req.Embedding) > 0 {
		vectors = append([][]float64{req.Embedding}, vectors...)
	}
	if len(vectors) == 0 {
		return nil, errors.InvalidEmbedding.WithMessage("embedding or embeddings is required")
	}
	if len(vectors) > MaxEnrollPoses {
		return nil, errors.InvalidEmbedding.WithMessage(fmt.Sprintf("At most %d poses per enrollment", MaxEnrollPoses))
	}
	for i, v := range vectors {
		if len(v) != model.EmbeddingDim {
			return nil, errors.InvalidEmbedding.WithMessage(
				fmt.Sprintf("Embedding %d has %d dimensions, expected %d", i, len(v), model.EmbeddingDim))
		}
	}

	if req.Average && len(vectors) > 1 {
		avg, err := face.AverageEmbeddings(vectors)
		if err != nil {
			return nil, fmt.Errorf("failed to average embeddings: %w", err)
		}
		vectors = [][]float64{avg}
	}

	profile := &model.EnrolledProfile{
		UserID:     userID,
		Embeddings: datatypes.NewJSONType(vectors),
	}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	logger.Logger.Info("Face profile enrolled",
		zap.String("user_id", userID),
		zap.Int("poses", len(vectors)),
		zap.Bool("averaged", req.Average),
	)

	return s.Profile(ctx, userID)
}

// Profile 返回录入概况，不暴露向量
func (s *EnrollmentService) Profile(ctx context.Context, userID string) (*dto.ProfileSummary, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if stderrors.Is(err, repository.ErrProfileNotFound) {
		return nil, errors.NoFaceProfile
	}
	if err != nil {
		return nil, err
	}
	return &dto.ProfileSummary{
		UserID:    profile.UserID,
		PoseCount: len(profile.Vectors()),
		UpdatedAt: profile.UpdatedAt,
	}, nil
}
