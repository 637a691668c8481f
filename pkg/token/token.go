package token

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"AttendGate/pkg/errors"
)

const (
	IdentityKey = "uid"
	RoleKey     = "role"

	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// Settings 签发参数
type Settings struct {
	Secret        string
	ExpireMinutes int
	RefreshDays   int
}

var (
	// 这个实例会被 middleware 和 token 包共同使用
	sharedGenerator *jwt.HertzJWTMiddleware
	settings        Settings
)

func Init(s Settings) error {
	if s.Secret == "" {
		return fmt.Errorf("jwt secret is empty")
	}

	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(s.Secret),
		Timeout:     time.Duration(s.ExpireMinutes) * time.Minute,
		MaxRefresh:  time.Duration(s.RefreshDays) * 24 * time.Hour,
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	settings = s
	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// GenerateAccessToken 签发 access token，ttl 为 0 时使用配置的过期时间
func GenerateAccessToken(userID, role string, ttl time.Duration) (string, time.Time, error) {
	if sharedGenerator == nil {
		return "", time.Time{}, errors.ErrTokenGeneratorNotInitialized
	}
	if role == "" {
		role = RoleEmployee
	}
	if ttl <= 0 {
		ttl = time.Duration(settings.ExpireMinutes) * time.Minute
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwtv5.MapClaims{
		IdentityKey: userID,
		RoleKey:     role,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
		"orig_iat":  now.Unix(),
	}

	tokenObj := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tokenObj.SignedString([]byte(settings.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	return signed, expiresAt, nil
}

// ParseAccessToken 校验 token 并返回用户 ID 与角色
func ParseAccessToken(tokenString string) (userID, role string, err error) {
	tok, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(t *jwtv5.Token) (interface{}, error) {
		if t.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return []byte(settings.Secret), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !tok.Valid {
		return "", "", errors.ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", "", errors.ErrInvalidTokenClaims
	}

	uid, ok := ClaimString(claims, IdentityKey)
	if !ok {
		return "", "", errors.ErrUserIDNotFound
	}
	role, _ = ClaimString(claims, RoleKey)

	return uid, role, nil
}

// ClaimString 读取字符串 claim，兼容数字形式的 uid
func ClaimString(claims map[string]interface{}, key string) (string, bool) {
	switch v := claims[key].(type) {
	case string:
		return v, v != ""
	case float64:
		return fmt.Sprintf("%.0f", v), true
	default:
		return "", false
	}
}
