package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fathima-sithara/classroom-chat/internal/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type stubValidator map[string]*auth.Claims

func (s stubValidator) Validate(token string) (*auth.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func authApp(v TokenValidator) *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireAuth(v), func(c *fiber.Ctx) error {
		ident, ok := Identity(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(ident.UserID.Hex() + "|" + ident.Tenant())
	})
	return app
}

func TestRequireAuth(t *testing.T) {
	uid := primitive.NewObjectID()
	app := authApp(stubValidator{
		"good":   {Subject: uid.Hex(), Role: "parent"},
		"weird":  {Subject: "not-an-object-id", Role: "parent"},
		"tenant": {Subject: uid.Hex(), Role: "teacher", TenantID: "school-9"},
	})

	cases := []struct {
		header string
		status int
		body   string
	}{
		{"", http.StatusUnauthorized, ""},
		{"Token good", http.StatusUnauthorized, ""},
		{"Bearer nope", http.StatusUnauthorized, ""},
		{"Bearer weird", http.StatusUnauthorized, ""},
		{"Bearer good", http.StatusOK, uid.Hex() + "|legacy"},
		{"Bearer tenant", http.StatusOK, uid.Hex() + "|school-9"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.header)
		if tc.body != "" {
			b, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.body, string(b))
		}
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(60, 2, zap.NewNop())
	app := fiber.New()
	app.Use(l.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	rl := NewRedisRateLimiter(rdb, "chat:send", 1, time.Minute, zap.NewNop())

	uid := primitive.NewObjectID()
	app := fiber.New()
	app.Post("/send", RequireAuth(stubValidator{"good": {Subject: uid.Hex(), Role: "parent"}}), rl.PerUser(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("Authorization", "Bearer good")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}
}

func TestRedisRateLimiterWindowAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	rl := NewRedisRateLimiter(rdb, "chat:send", 2, time.Minute, zap.NewNop())

	uid := primitive.NewObjectID()
	key := "chat:send:" + uid.Hex()
	app := fiber.New()
	app.Post("/send", RequireAuth(stubValidator{"good": {Subject: uid.Hex(), Role: "parent"}}), rl.PerUser(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("Authorization", "Bearer good")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	mr.FastForward(time.Minute)
	assert.Equal(t, http.StatusCreated, send())

	// a counter stranded without an expiry gets one on the next hit
	mr.Del(key)
	require.NoError(t, mr.Set(key, "10"))
	assert.Equal(t, time.Duration(0), mr.TTL(key))
	assert.Equal(t, http.StatusTooManyRequests, send())
	assert.Greater(t, mr.TTL(key), time.Duration(0))
	mr.FastForward(time.Minute)
	assert.Equal(t, http.StatusCreated, send())
}
