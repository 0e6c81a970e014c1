package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	authsvc "ecofusion-backend/internal/application/auth"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const alice = "0x00000000000000000000000000000000000A11cE"

type fakeUserFinder struct {
	user *domain.User
	err  error
}

func (f *fakeUserFinder) FindByEmailAndPassword(ctx context.Context, email, password string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user != nil && f.user.Email == email && password == "password123" {
		return f.user, nil
	}
	if f.user != nil && f.user.Email == email {
		return nil, authsvc.ErrIncorrectPassword
	}
	return nil, authsvc.ErrInvalidEmail
}

func setupAuthHandlers(t *testing.T, finder authsvc.UserFinder) (*Handlers, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Handlers{UserFinder: finder, Rdb: rdb, Config: middleware.SessionConfig{}}, rdb
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *httptestResponse {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest("POST", path, rdr)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	out := &httptestResponse{Code: resp.StatusCode, Cookies: resp.Header.Values("Set-Cookie")}
	require.NoError(t, json.Unmarshal(b, &out.Body))
	return out
}

type httptestResponse struct {
	Code    int
	Cookies []string
	Body    map[string]interface{}
}

func testUser() *domain.User {
	return &domain.User{UserID: uuid.New(), Email: "test@example.com", Fullname: "Test User", Role: "user", WalletAccount: alice}
}

func TestLogin_BadInput(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{user: testUser()})
	app := fiber.New()
	app.Post("/login", h.Login)

	assert.Equal(t, fiber.StatusBadRequest, postJSON(t, app, "/login", nil).Code)
	assert.Equal(t, fiber.StatusBadRequest, postJSON(t, app, "/login", map[string]string{"email": "a@b.com"}).Code)
	assert.Equal(t, fiber.StatusUnauthorized, postJSON(t, app, "/login", map[string]string{"email": "nobody@example.com", "password": "x"}).Code)
	assert.Equal(t, fiber.StatusUnauthorized, postJSON(t, app, "/login", map[string]string{"email": "test@example.com", "password": "wrong"}).Code)
}

func TestLogin_Success(t *testing.T) {
	u := testUser()
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{user: u})
	app := fiber.New()
	app.Post("/login", h.Login)

	res := postJSON(t, app, "/login", map[string]string{"email": "test@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusOK, res.Code)
	assert.Equal(t, "Login successful", res.Body["message"])
	user := res.Body["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, alice, user["wallet_account"])
	require.NotEmpty(t, res.Cookies)
	assert.Contains(t, res.Cookies[0], "ecofusion.sid=")

	members, err := rdb.SMembers(context.Background(), userSessionsPrefix+u.UserID.String()).Result()
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestLogin_NilUserFinder(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	app := fiber.New()
	app.Post("/login", h.Login)
	assert.Equal(t, fiber.StatusInternalServerError, postJSON(t, app, "/login", map[string]string{"email": "a@b.com", "password": "p"}).Code)
}

func TestRegister(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.User{}))
	svc := &authsvc.Service{DB: db}

	h, _ := setupAuthHandlers(t, svc)
	h.Registrar = svc
	app := fiber.New()
	app.Post("/register", h.Register)

	body := map[string]string{
		"email":          "New.User@Example.com",
		"password":       "Passw0rd!",
		"fullname":       "new user",
		"wallet_account": alice,
	}
	res := postJSON(t, app, "/register", body)
	require.Equal(t, fiber.StatusCreated, res.Code)
	user := res.Body["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "new.user@example.com", user["email"])
	assert.Equal(t, "New User", user["fullname"])
	assert.Equal(t, "user", user["role"])
	assert.NotEmpty(t, res.Cookies)

	res = postJSON(t, app, "/register", body)
	assert.Equal(t, fiber.StatusBadRequest, res.Code)

	body["email"] = "other@example.com"
	body["wallet_account"] = "not-an-address"
	res = postJSON(t, app, "/register", body)
	assert.Equal(t, fiber.StatusBadRequest, res.Code)
}

func TestMe(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Get("/me", h.Me)
	app.Get("/me-session", func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":        "550e8400-e29b-41d4-a716-446655440000",
			"fullname":       "Test",
			"email":          "test@example.com",
			"role":           "user",
			"wallet_account": alice,
		})
		return h.Me(c)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me-session", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	user := out["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, alice, user["wallet_account"])
}

func TestLogout_NoSession(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Delete("/logout", h.Logout)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Values("Set-Cookie"))
}
