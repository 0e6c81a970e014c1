package admin

import (
	"context"
	"net/http/httptest"
	"testing"

	"ecofusion-backend/internal/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReconcile(t *testing.T) {
	var err error
	h := &Handlers{Reconcile: func(ctx context.Context) (int, error) { return 3, err }}
	app := fiber.New()
	app.Post("/reconcile", h.RunReconcile)

	resp, e := app.Test(httptest.NewRequest("POST", "/reconcile", nil))
	require.NoError(t, e)
	assert.Equal(t, 200, resp.StatusCode)

	err = apperr.New(apperr.KindNetworkTimeout, "ledger.scan", "relay timed out")
	resp, e = app.Test(httptest.NewRequest("POST", "/reconcile", nil))
	require.NoError(t, e)
	assert.Equal(t, 504, resp.StatusCode)
}
