package service

import (
	"context"
	stderrors "errors"
	"strconv"

	"AttendGate/internal/model"
	"AttendGate/internal/model/dto"
	"AttendGate/internal/repository"
	"AttendGate/pkg/errors"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// AttendanceReader 考勤记录只读查询
type AttendanceReader interface {
	FindOpen(ctx context.Context, userID string) (*model.AttendanceRecord, error)
	ListHistory(ctx context.Context, userID string, beforeID int64, limit int) ([]model.AttendanceRecord, error)
}

// AttendanceQueryService 用户查看自己的考勤记录
type AttendanceQueryService struct {
	records AttendanceReader
}

func NewAttendanceQueryService(records AttendanceReader) *AttendanceQueryService {
	return &AttendanceQueryService{records: records}
}

// Open 当前未签退记录，没有时返回 nil
func (s *AttendanceQueryService) Open(ctx context.Context, userID string) (*dto.AttendanceRecordData, error) {
	rec, err := s.records.FindOpen(ctx, userID)
	if stderrors.Is(err, repository.ErrNoOpenRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data := toRecordData(rec)
	return &data, nil
}

// History 按记录 ID 倒序游标分页
func (s *AttendanceQueryService) History(ctx context.Context, userID string, q dto.AttendanceHistoryQuery) (*dto.AttendanceHistoryResponse, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var before int64
	if q.Cursor != "" {
		id, err := strconv.ParseInt(q.Cursor, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.InvalidRequest.WithMessage("Invalid cursor")
		}
		before = id
	}

	// 多取一条判断是否还有下一页
	records, err := s.records.ListHistory(ctx, userID, before, limit+1)
	if err != nil {
		return nil, err
	}

	resp := &dto.AttendanceHistoryResponse{Items: make([]dto.AttendanceRecordData, 0, limit)}
	for i := range records {
		if i == limit {
			resp.NextCursor = strconv.FormatInt(records[i-1].ID, 10)
			break
		}
		resp.Items = append(resp.Items, toRecordData(&records[i]))
	}
	return resp, nil
}

func toRecordData(rec *model.AttendanceRecord) dto.AttendanceRecordData {
	return dto.AttendanceRecordData{
		ID:                 strconv.FormatInt(rec.ID, 10),
		CheckInTime:        rec.CheckInTime,
		CheckOutTime:       rec.CheckOutTime,
		ClientTime:         rec.ClientTime,
		Status:             string(rec.Status),
		VerificationMethod: rec.VerificationMethod,
		TotalMinutes:       rec.TotalMinutes,
	}
}
