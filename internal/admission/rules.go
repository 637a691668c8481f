package admission

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"

	"AttendGate/internal/model"
)

// checkInStatus 服务端时间晚于上班时间记为迟到
func checkInStatus(now time.Time, start string) (model.AttendanceStatus, error) {
	startOffset, err := ParseClock(start)
	if err != nil {
		return "", fmt.Errorf("invalid working_hours.start %q: %w", start, err)
	}

	if clockOf(now) > startOffset {
		return model.AttendanceStatusLate, nil
	}
	return model.AttendanceStatusPresent, nil
}

// clockOf 墙上时钟读数，夏令时切换当天也按钟面比较
func clockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// ParseClock 解析 "15:04" 或 "15:04:05"，返回距零点的时长
func ParseClock(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("expected HH:MM or HH:MM:SS")
}

func verificationMethod(office *model.OfficeConfig) string {
	if len(office.WifiAllowlist) > 0 {
		return "face+geofence+wifi"
	}
	return "face+geofence"
}

func newJSON[T any](v T) datatypes.JSONType[T] {
	return datatypes.NewJSONType(v)
}

// validationMessage 把校验错误整理成一行
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return "Invalid request"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "Invalid request: " + strings.Join(parts, ", ")
}
