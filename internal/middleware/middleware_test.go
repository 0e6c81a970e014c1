package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"ecofusion-backend/internal/constants"
	"ecofusion-backend/internal/pkg/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb
}

func storeSession(t *testing.T, rdb *redis.Client, user map[string]interface{}) string {
	t.Helper()
	sid := uuid.NewString()
	b, err := json.Marshal(map[string]interface{}{"user": user})
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), SessionRedisPrefix+sid, b, 0).Err())
	return sid
}

func TestSession_AccountFromContext(t *testing.T) {
	rdb := newRedis(t)
	userID := uuid.New()
	sid := storeSession(t, rdb, map[string]interface{}{
		"user_id":        userID.String(),
		"role":           constants.Admin,
		"wallet_account": "0x00000000000000000000000000000000000A11cE",
	})

	app := fiber.New()
	app.Use(Session(rdb))
	app.Get("/who", RequireAuth(), func(c *fiber.Ctx) error {
		acct, ok := AccountFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"user_id": acct.UserID, "address": acct.Address, "admin": acct.IsAdmin()})
	})

	req := httptest.NewRequest("GET", "/who", nil)
	req.Header.Set("Cookie", SessionCookieName+"=s:"+sid+".sig")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	b, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, userID.String(), out["user_id"])
	assert.Equal(t, true, out["admin"])

	resp, err = app.Test(httptest.NewRequest("GET", "/who", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireWallet(t *testing.T) {
	rdb := newRedis(t)
	sid := storeSession(t, rdb, map[string]interface{}{"user_id": uuid.NewString(), "role": constants.User})

	app := fiber.New()
	app.Use(Session(rdb))
	app.Post("/sign", RequireAuth(), RequireWallet(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest("POST", "/sign", nil)
	req.Header.Set("Cookie", SessionCookieName+"=s:"+sid)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAuthorizePermission(t *testing.T) {
	rdb := newRedis(t)
	userSid := storeSession(t, rdb, map[string]interface{}{"user_id": uuid.NewString(), "role": constants.User})
	adminSid := storeSession(t, rdb, map[string]interface{}{"user_id": uuid.NewString(), "role": constants.Admin})

	app := fiber.New()
	app.Use(Session(rdb))
	app.Post("/verdict", AuthorizePermission(constants.ReviewAction), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/misconfigured", AuthorizePermission("nope"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	call := func(path, sid string) int {
		req := httptest.NewRequest("POST", path, nil)
		if sid != "" {
			req.Header.Set("Cookie", SessionCookieName+"=s:"+sid)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}
	assert.Equal(t, fiber.StatusUnauthorized, call("/verdict", ""))
	assert.Equal(t, fiber.StatusForbidden, call("/verdict", userSid))
	assert.Equal(t, fiber.StatusOK, call("/verdict", adminSid))
	assert.Equal(t, fiber.StatusInternalServerError, call("/misconfigured", adminSid))
}

func TestErrorHandler_LogsServerErrors(t *testing.T) {
	rdb := newRedis(t)
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(rdb)})
	app.Use(Tracing())
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })
	app.Get("/missing", func(c *fiber.Ctx) error { return apperr.NotFound("test", "nothing here") })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/fiber", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(traceIDHeader))

	entries, err := rdb.LRange(context.Background(), KeyErrorLog, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], "/boom")
}

func TestHealthMarker_CountsRequests(t *testing.T) {
	rdb := newRedis(t)
	app := fiber.New()
	app.Use(HealthMarker(rdb))
	app.Get("/api/x", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/health/json", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, p := range []string{"/api/x", "/api/x", "/health/json"} {
		_, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
	}
	total, err := rdb.Get(context.Background(), KeyReqTotal).Int()
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
