package handlers

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/zar/internal/middleware"
	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/testutil"
	"github.com/example/zar/internal/utils"
)

type authTestEnv struct {
	app    *fiber.App
	db     *gorm.DB
	tokens *utils.TokenService
	clock  *utils.FakeClock
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()

	env := &authTestEnv{
		db:    testutil.NewDB(t),
		clock: utils.NewFakeClock(time.Date(2025, 12, 2, 9, 0, 0, 0, time.UTC)),
	}
	env.tokens = utils.NewTokenService("handler-secret", time.Hour, env.clock)

	hash, err := utils.HashPassword("correct-horse")
	require.NoError(t, err)
	require.NoError(t, env.db.Create(&models.Admin{Username: "owner", PasswordHash: hash}).Error)

	h := NewAuthHandler(env.db, env.tokens)
	env.app = newTestApp()
	env.app.Post("/auth/login", h.Login)
	env.app.Get("/auth/me", middleware.AuthMiddleware(env.tokens), h.Me)
	return env
}

func (e *authTestEnv) login(t *testing.T, username, password string) (int, envelope) {
	t.Helper()
	return request(t, e.app, fiber.MethodPost, "/auth/login",
		map[string]string{"username": username, "password": password}, "")
}

func TestAuthHandler_Login(t *testing.T) {
	env := newAuthTestEnv(t)

	status, body := env.login(t, "owner", "correct-horse")
	require.Equal(t, fiber.StatusOK, status, body.Error)

	var got struct {
		Token string       `json:"token"`
		Admin models.Admin `json:"admin"`
	}
	decodeData(t, body, &got)
	assert.Equal(t, "owner", got.Admin.Username)
	assert.NotContains(t, string(body.Data), "password")

	claims, err := env.tokens.Verify(got.Token)
	require.NoError(t, err)
	id, _ := claims.Int64Claim("id")
	assert.EqualValues(t, got.Admin.ID, id)
	username, _ := claims.StringClaim("username")
	assert.Equal(t, "owner", username)
	exp, _ := claims.Int64Claim("exp")
	assert.Equal(t, env.clock.Now().Add(time.Hour).Unix(), exp)
}

func TestAuthHandler_LoginFailures(t *testing.T) {
	env := newAuthTestEnv(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantErr    string
	}{
		{"wrong password", map[string]string{"username": "owner", "password": "battery-staple"}, fiber.StatusUnauthorized, "invalid credentials"},
		{"unknown user", map[string]string{"username": "ghost", "password": "correct-horse"}, fiber.StatusUnauthorized, "invalid credentials"},
		{"missing password", map[string]string{"username": "owner"}, fiber.StatusBadRequest, "username and password are required"},
		{"blank username", map[string]string{"username": "  ", "password": "correct-horse"}, fiber.StatusBadRequest, "username and password are required"},
		{"malformed body", "{", fiber.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := request(t, env.app, fiber.MethodPost, "/auth/login", tt.body, "")
			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantErr, body.Error)
		})
	}
}

func TestAuthHandler_Me(t *testing.T) {
	env := newAuthTestEnv(t)

	_, body := env.login(t, "owner", "correct-horse")
	var got struct {
		Token string `json:"token"`
	}
	decodeData(t, body, &got)

	status, body := request(t, env.app, fiber.MethodGet, "/auth/me", nil, got.Token)
	require.Equal(t, fiber.StatusOK, status, body.Error)
	var admin models.Admin
	decodeData(t, body, &admin)
	assert.Equal(t, "owner", admin.Username)

	status, _ = request(t, env.app, fiber.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	env.clock.Advance(time.Hour)
	status, _ = request(t, env.app, fiber.MethodGet, "/auth/me", nil, got.Token)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAuthHandler_MeForRemovedAdmin(t *testing.T) {
	env := newAuthTestEnv(t)

	token, err := env.tokens.Issue(utils.Claims{"id": 999, "username": "former"})
	require.NoError(t, err)

	status, body := request(t, env.app, fiber.MethodGet, "/auth/me", nil, token)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "admin no longer exists", body.Error)
}
