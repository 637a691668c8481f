package errors

import "errors"

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// WithMessage 复制一个带自定义提示的 Definition，错误码不变。
func (d Definition) WithMessage(message string) Definition {
	return Definition{Code: d.Code, Message: message}
}

// Is 按错误码比较，使 errors.Is 能匹配带自定义提示的副本。
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// 考勤准入拒绝原因，确定性结果，不会自动重试。
var (
	LocationInvalid  = Definition{Code: "LOCATION_INVALID", Message: "Location is outside the office geofence"}
	FaceMismatch     = Definition{Code: "FACE_MISMATCH", Message: "Face does not match the enrolled profile"}
	WifiInvalid      = Definition{Code: "WIFI_INVALID", Message: "Network is not in the office allowlist"}
	NoFaceProfile    = Definition{Code: "NO_FACE_PROFILE", Message: "No enrolled face profile"}
	AlreadyCheckedIn = Definition{Code: "ALREADY_CHECKED_IN", Message: "Already checked in"}
	NoActiveCheckin  = Definition{Code: "NO_ACTIVE_CHECKIN", Message: "No active check-in"}
	Unauthorized     = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidRequest   = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
)

// 录入与配置相关错误。
var (
	InvalidEmbedding = Definition{Code: "INVALID_EMBEDDING", Message: "Embedding must have 128 dimensions"}
	SettingUnknown   = Definition{Code: "SETTING_UNKNOWN", Message: "Unknown office setting"}
	SettingInvalid   = Definition{Code: "SETTING_INVALID", Message: "Invalid office setting value"}
	Forbidden        = Definition{Code: "FORBIDDEN", Message: "Forbidden"}
	TooManyRequests  = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError    = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
)

// 基础设施错误（非业务拒绝）。
var (
	ErrTokenGeneratorNotInitialized = errors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = errors.New("unexpected signing method")
	ErrInvalidToken                 = errors.New("invalid token")
	ErrInvalidTokenClaims           = errors.New("invalid token claims")
	ErrUserIDNotFound               = errors.New("user id not found in token")
)

// SkipMessageError 表示消息已处理过，消费者应直接确认。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	LocationInvalid.Code:  LocationInvalid,
	FaceMismatch.Code:     FaceMismatch,
	WifiInvalid.Code:      WifiInvalid,
	NoFaceProfile.Code:    NoFaceProfile,
	AlreadyCheckedIn.Code: AlreadyCheckedIn,
	NoActiveCheckin.Code:  NoActiveCheckin,
	Unauthorized.Code:     Unauthorized,
	InvalidRequest.Code:   InvalidRequest,
	InvalidEmbedding.Code: InvalidEmbedding,
	SettingUnknown.Code:   SettingUnknown,
	SettingInvalid.Code:   SettingInvalid,
	Forbidden.Code:        Forbidden,
	TooManyRequests.Code:  TooManyRequests,
	InternalError.Code:    InternalError,
}

// Get 根据错误码返回 Definition，若不存在则返回带该错误码的兜底 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// IsRejection 判断错误码是否属于准入拒绝集合
func IsRejection(code string) bool {
	switch code {
	case LocationInvalid.Code, FaceMismatch.Code, WifiInvalid.Code, NoFaceProfile.Code,
		AlreadyCheckedIn.Code, NoActiveCheckin.Code, Unauthorized.Code, InvalidRequest.Code:
		return true
	default:
		return false
	}
}
