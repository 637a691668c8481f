package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	goredis "github.com/redis/go-redis/v9"

	"AttendGate/pkg/errors"
	"AttendGate/pkg/response"
	"AttendGate/pkg/token"
)

func newEngine() *route.Engine {
	return route.NewEngine(config.NewOptions(nil))
}

func decode(t *testing.T, body []byte) response.Envelope {
	t.Helper()
	var env response.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", body, err)
	}
	return env
}

func setupAuth(t *testing.T) {
	t.Helper()
	if err := token.Init(token.Settings{Secret: "test-secret", ExpireMinutes: 30, RefreshDays: 1}); err != nil {
		t.Fatal(err)
	}
	if err := Init(); err != nil {
		t.Fatal(err)
	}
}

func bearer(t *testing.T, userID, role string) ut.Header {
	t.Helper()
	tok, _, err := token.GenerateAccessToken(userID, role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return ut.Header{Key: "Authorization", Value: "Bearer " + tok}
}

func TestAuthMiddleware(t *testing.T) {
	setupAuth(t)

	h := newEngine()
	h.GET("/me", AuthMiddleware(), func(ctx context.Context, c *app.RequestContext) {
		uid, _ := GetUserID(ctx, c)
		role, _ := GetRole(ctx, c)
		c.JSON(http.StatusOK, map[string]string{"uid": uid, "role": role})
	})
	h.GET("/admin", AuthMiddleware(), RequireRole(token.RoleAdmin), func(ctx context.Context, c *app.RequestContext) {
		c.Status(http.StatusNoContent)
	})

	w := ut.PerformRequest(h, http.MethodGet, "/me", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if env := decode(t, w.Body.Bytes()); env.Error != errors.Unauthorized.Code {
		t.Fatalf("expected UNAUTHORIZED envelope, got %+v", env)
	}

	w = ut.PerformRequest(h, http.MethodGet, "/me", nil, ut.Header{Key: "Authorization", Value: "Bearer garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}

	w = ut.PerformRequest(h, http.MethodGet, "/me", nil, bearer(t, "u-1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d %s", w.Code, w.Body.String())
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["uid"] != "u-1" || got["role"] != token.RoleEmployee {
		t.Fatalf("unexpected identity %v", got)
	}

	w = ut.PerformRequest(h, http.MethodGet, "/admin", nil, bearer(t, "u-1", token.RoleEmployee))
	if w.Code != http.StatusForbidden {
		t.Fatalf("employee on admin route: expected 403, got %d", w.Code)
	}
	if env := decode(t, w.Body.Bytes()); env.Error != errors.Forbidden.Code {
		t.Fatalf("expected FORBIDDEN, got %+v", env)
	}

	w = ut.PerformRequest(h, http.MethodGet, "/admin", nil, bearer(t, "boss", token.RoleAdmin))
	if w.Code != http.StatusNoContent {
		t.Fatalf("admin route: expected 204, got %d", w.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := newEngine()
	h.POST("/v1/attendance", RateLimitMiddleware(client, AttendanceRateLimitConfig(2, time.Minute)), func(ctx context.Context, c *app.RequestContext) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := ut.PerformRequest(h, http.MethodPost, "/v1/attendance", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := ut.PerformRequest(h, http.MethodPost, "/v1/attendance", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if env := decode(t, w.Body.Bytes()); env.Error != errors.TooManyRequests.Code {
		t.Fatalf("expected TOO_MANY_REQUESTS, got %+v", env)
	}
	if got := string(w.Header().Peek("X-RateLimit-Remaining")); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	h := newEngine()
	h.POST("/v1/attendance", RateLimitMiddleware(client, AttendanceRateLimitConfig(1, time.Minute)), func(ctx context.Context, c *app.RequestContext) {
		c.Status(http.StatusOK)
	})

	w := ut.PerformRequest(h, http.MethodPost, "/v1/attendance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("redis outage must not block requests, got %d", w.Code)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := newEngine()
	h.Use(RecoverMiddleware(true))
	h.GET("/boom", func(ctx context.Context, c *app.RequestContext) {
		panic("boom")
	})

	w := ut.PerformRequest(h, http.MethodGet, "/boom", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	env := decode(t, w.Body.Bytes())
	if env.Error != errors.InternalError.Code || env.Details != nil {
		t.Fatalf("production response must hide details, got %+v", env)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newEngine()
	h.Use(CORSMiddleware())
	h.POST("/v1/attendance", func(ctx context.Context, c *app.RequestContext) {
		c.Status(http.StatusOK)
	})

	w := ut.PerformRequest(h, http.MethodOptions, "/v1/attendance", nil, ut.Header{Key: "Origin", Value: "https://app.example.com"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if got := string(w.Header().Peek("Access-Control-Allow-Origin")); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestIsSeverePanic(t *testing.T) {
	if !isSeverePanic("fatal error: concurrent map writes") {
		t.Fatal("expected severe")
	}
	if isSeverePanic("boom") || isSeverePanic(nil) {
		t.Fatal("expected not severe")
	}
}
