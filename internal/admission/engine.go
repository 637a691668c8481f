package admission

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"AttendGate/internal/face"
	"AttendGate/internal/model"
	"AttendGate/internal/repository"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/logger"
	"AttendGate/pkg/metrics"
)

// Deps 引擎依赖，Notifier / Locker / Clock 可为空
type Deps struct {
	Profiles ProfileStore
	Records  RecordStore
	Office   OfficeConfigSource
	Notifier Notifier
	Locker   Locker
	Clock    Clock
	IDs      IDGenerator
}

// Options 引擎参数
type Options struct {
	Location       *time.Location
	Threshold      float64
	FullDayMinutes int
	NotifyTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		Location:       time.Local,
		Threshold:      face.DefaultMatchThreshold,
		FullDayMinutes: model.FullDayMinutes,
		NotifyTimeout:  2 * time.Second,
	}
}

// Engine 服务端权威准入判定
type Engine struct {
	profiles ProfileStore
	records  RecordStore
	office   OfficeConfigSource
	notifier Notifier
	locker   Locker
	clock    Clock
	ids      IDGenerator
	validate *validator.Validate
	opts     Options
}

func NewEngine(deps Deps, opts Options) *Engine {
	def := DefaultOptions()
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.FullDayMinutes <= 0 {
		opts.FullDayMinutes = def.FullDayMinutes
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = def.NotifyTimeout
	}

	e := &Engine{
		profiles: deps.Profiles,
		records:  deps.Records,
		office:   deps.Office,
		notifier: deps.Notifier,
		locker:   deps.Locker,
		clock:    deps.Clock,
		ids:      deps.IDs,
		validate: validator.New(),
		opts:     opts,
	}
	if e.notifier == nil {
		e.notifier = noopNotifier{}
	}
	if e.locker == nil {
		e.locker = NewKeyedMutex()
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	return e
}

// Admit 依次校验身份、请求、人脸、地理围栏、网络、打卡方向，全部通过后落库
func (e *Engine) Admit(ctx context.Context, callerID string, attempt model.AttendanceAttempt) (Outcome, error) {
	start := time.Now()

	outcome, ev, err := e.admit(ctx, callerID, attempt)

	decision, reason := string(outcome.Decision), outcome.Reason.Code
	if err != nil {
		decision, reason = "ERROR", errors.InternalError.Code
	}
	metrics.RecordAdmission(ctx, string(attempt.Direction), decision, reason, time.Since(start).Seconds())

	if err != nil {
		logger.Logger.Error("Admission failed",
			zap.String("user_id", attempt.UserID),
			zap.String("direction", string(attempt.Direction)),
			zap.Error(err),
		)
		return Outcome{}, err
	}

	if !outcome.IsAdmitted() {
		logger.Logger.Info("Attendance rejected",
			zap.String("user_id", attempt.UserID),
			zap.String("direction", string(attempt.Direction)),
			zap.String("reason", outcome.Reason.Code),
		)
		return outcome, nil
	}

	logger.Logger.Info("Attendance admitted",
		zap.String("user_id", attempt.UserID),
		zap.String("direction", string(attempt.Direction)),
		zap.String("attendance_id", outcome.Admission.AttendanceID),
		zap.String("status", string(outcome.Admission.Status)),
	)

	// 提交后通知，失败不回滚
	e.notify(ctx, ev)

	return outcome, nil
}

func (e *Engine) admit(ctx context.Context, callerID string, attempt model.AttendanceAttempt) (Outcome, Event, error) {
	if callerID == "" || callerID != attempt.UserID {
		return Reject(errors.Unauthorized), Event{}, nil
	}

	if err := e.validate.Struct(attempt); err != nil {
		return Reject(errors.InvalidRequest.WithMessage(validationMessage(err))), Event{}, nil
	}

	rejection, err := e.checkFace(ctx, attempt)
	if err != nil {
		return Outcome{}, Event{}, err
	}
	if rejection != nil {
		return Reject(*rejection), Event{}, nil
	}

	office, err := e.office.Current(ctx)
	if err != nil {
		return Outcome{}, Event{}, fmt.Errorf("failed to load office config: %w", err)
	}

	if d := Haversine(attempt.Location, office.Location); d > office.AllowedRadiusMeters {
		msg := fmt.Sprintf("Location is %.1fm from the office, allowed radius is %.1fm", d, office.AllowedRadiusMeters)
		return Reject(errors.LocationInvalid.WithMessage(msg)), Event{}, nil
	}

	if len(office.WifiAllowlist) > 0 && !office.AllowsSSID(attempt.Network.SSID) {
		return Reject(errors.WifiInvalid), Event{}, nil
	}

	unlock, err := e.locker.Lock(ctx, "admission:"+attempt.UserID)
	if err != nil {
		return Outcome{}, Event{}, fmt.Errorf("failed to acquire admission lock: %w", err)
	}
	defer unlock()

	switch attempt.Direction {
	case model.DirectionCheckIn:
		return e.checkIn(ctx, attempt, office)
	default:
		return e.checkOut(ctx, attempt)
	}
}

// checkFace 返回非空 Definition 表示拒绝原因
func (e *Engine) checkFace(ctx context.Context, attempt model.AttendanceAttempt) (*errors.Definition, error) {
	profile, err := e.profiles.GetProfile(ctx, attempt.UserID)
	if stderrors.Is(err, repository.ErrProfileNotFound) {
		return &errors.NoFaceProfile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load face profile: %w", err)
	}

	vectors := profile.Vectors()
	if len(vectors) == 0 {
		return &errors.NoFaceProfile, nil
	}

	match, err := face.CompareAgainstAll(attempt.Embedding, vectors, e.opts.Threshold)
	if err != nil {
		// 请求维度已校验，这里出错说明存量模板损坏
		return nil, fmt.Errorf("enrolled profile for %s is corrupt: %w", attempt.UserID, err)
	}
	if !match.IsMatch {
		logger.Logger.Debug("Face mismatch",
			zap.String("user_id", attempt.UserID),
			zap.Float64("distance", match.Distance),
			zap.Float64("similarity", match.Similarity),
		)
		return &errors.FaceMismatch, nil
	}
	return nil, nil
}

func (e *Engine) checkIn(ctx context.Context, attempt model.AttendanceAttempt, office *model.OfficeConfig) (Outcome, Event, error) {
	_, err := e.records.FindOpen(ctx, attempt.UserID)
	if err == nil {
		return Reject(errors.AlreadyCheckedIn), Event{}, nil
	}
	if !stderrors.Is(err, repository.ErrNoOpenRecord) {
		return Outcome{}, Event{}, fmt.Errorf("failed to query open record: %w", err)
	}

	now := e.clock.Now().In(e.opts.Location)
	status, err := checkInStatus(now, office.WorkingHours.Start)
	if err != nil {
		return Outcome{}, Event{}, err
	}

	id, err := e.ids.NextID()
	if err != nil {
		return Outcome{}, Event{}, fmt.Errorf("failed to generate attendance id: %w", err)
	}

	rec := &model.AttendanceRecord{
		ID:                 id,
		UserID:             attempt.UserID,
		CheckInTime:        now,
		LocationSnapshot:   newJSON(attempt.Location),
		NetworkSnapshot:    newJSON(attempt.Network),
		Status:             status,
		VerificationMethod: verificationMethod(office),
		ClientTime:         attempt.ClientTimestamp,
	}

	err = e.records.CreateCheckIn(ctx, rec)
	if stderrors.Is(err, repository.ErrOpenRecordExists) {
		return Reject(errors.AlreadyCheckedIn), Event{}, nil
	}
	if err != nil {
		return Outcome{}, Event{}, err
	}

	return e.admitted(model.EventTypeCheckIn, rec, now)
}

func (e *Engine) checkOut(ctx context.Context, attempt model.AttendanceAttempt) (Outcome, Event, error) {
	open, err := e.records.FindOpen(ctx, attempt.UserID)
	if stderrors.Is(err, repository.ErrNoOpenRecord) {
		return Reject(errors.NoActiveCheckin), Event{}, nil
	}
	if err != nil {
		return Outcome{}, Event{}, fmt.Errorf("failed to query open record: %w", err)
	}

	now := e.clock.Now().In(e.opts.Location)
	if now.Before(open.CheckInTime) {
		now = open.CheckInTime
	}

	minutes := int(now.Sub(open.CheckInTime) / time.Minute)
	status := open.Status
	// 只按时长判断早退，不比较下班时间
	if minutes < e.opts.FullDayMinutes && open.Status != model.AttendanceStatusLate {
		status = model.AttendanceStatusEarlyOut
	}

	open.CheckOutTime = &now
	open.TotalMinutes = minutes
	open.Status = status

	err = e.records.CompleteCheckOut(ctx, open)
	if stderrors.Is(err, repository.ErrNoOpenRecord) {
		return Reject(errors.NoActiveCheckin), Event{}, nil
	}
	if err != nil {
		return Outcome{}, Event{}, err
	}

	return e.admitted(model.EventTypeCheckOut, open, now)
}

func (e *Engine) admitted(eventType string, rec *model.AttendanceRecord, at time.Time) (Outcome, Event, error) {
	id := strconv.FormatInt(rec.ID, 10)
	outcome := Admit(Admission{AttendanceID: id, Status: rec.Status, Time: at})
	ev := Event{
		Type:         eventType,
		UserID:       rec.UserID,
		AttendanceID: id,
		Status:       rec.Status,
		OccurredAt:   at,
	}
	return outcome, ev, nil
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.NotifyTimeout)
	defer cancel()

	if err := e.notifier.Notify(nctx, ev); err != nil {
		metrics.RecordNotifyFailure(ctx, ev.Type)
		logger.Logger.Warn("Failed to notify attendance event",
			zap.String("user_id", ev.UserID),
			zap.String("attendance_id", ev.AttendanceID),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
	}
}
