package signatures

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"ecofusion-backend/internal/infrastructure/wallet"
	"ecofusion-backend/internal/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x00000000000000000000000000000000000A11cE"
	bob   = "0x0000000000000000000000000000000000000B0b"
)

type fakeInbox struct {
	requests  map[string]wallet.Request
	responses map[string]wallet.Response
}

func (f *fakeInbox) Pending(ctx context.Context, account string) ([]wallet.Request, error) {
	var out []wallet.Request
	for _, r := range f.requests {
		if strings.EqualFold(r.Account, account) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeInbox) Get(ctx context.Context, id string) (*wallet.Request, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, apperr.NotFound("wallet.get", "signing request not found or expired")
	}
	return &r, nil
}

func (f *fakeInbox) Respond(ctx context.Context, account, id string, resp wallet.Response) error {
	r, ok := f.requests[id]
	if !ok {
		return apperr.NotFound("wallet.respond", "signing request not found or expired")
	}
	if !strings.EqualFold(r.Account, account) {
		return apperr.Forbidden("wallet.respond", "signing request belongs to another account")
	}
	f.responses[id] = resp
	delete(f.requests, id)
	return nil
}

func appFor(inbox Inbox, wallet string) *fiber.App {
	h := &Handlers{Inbox: inbox}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":        uuid.New().String(),
			"role":           "user",
			"wallet_account": wallet,
		})
		return c.Next()
	})
	app.Get("/signatures/pending", h.Pending)
	app.Get("/signatures/:id", h.Get)
	app.Post("/signatures/:id/sign", h.Sign)
	app.Post("/signatures/:id/reject", h.Reject)
	return app
}

func send(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	return resp.StatusCode, out
}

func newInbox() *fakeInbox {
	return &fakeInbox{
		requests: map[string]wallet.Request{
			"r1": {ID: "r1", Account: alice, Method: "approveAction"},
			"r2": {ID: "r2", Account: alice, Method: "listTokens"},
		},
		responses: map[string]wallet.Response{},
	}
}

func TestPendingAndGet_ScopedToAccount(t *testing.T) {
	inbox := newInbox()

	code, out := send(t, appFor(inbox, alice), "GET", "/signatures/pending", "")
	assert.Equal(t, 200, code)
	assert.EqualValues(t, 2, out["metadata"].(map[string]interface{})["count"])

	code, _ = send(t, appFor(inbox, alice), "GET", "/signatures/r1", "")
	assert.Equal(t, 200, code)
	code, _ = send(t, appFor(inbox, bob), "GET", "/signatures/r1", "")
	assert.Equal(t, 404, code)
	code, _ = send(t, appFor(inbox, alice), "GET", "/signatures/nope", "")
	assert.Equal(t, 404, code)
}

func TestSignAndReject(t *testing.T) {
	inbox := newInbox()
	app := appFor(inbox, alice)

	code, _ := send(t, app, "POST", "/signatures/r1/sign", `{}`)
	assert.Equal(t, 400, code)

	code, _ = send(t, app, "POST", "/signatures/r1/sign", `{"signature":"0xabcd"}`)
	assert.Equal(t, 200, code)
	assert.True(t, inbox.responses["r1"].Approved)

	code, _ = send(t, appFor(inbox, bob), "POST", "/signatures/r2/reject", `{"reason":"not mine"}`)
	assert.Equal(t, 403, code)

	code, out := send(t, app, "POST", "/signatures/r2/reject", `{"reason":"changed my mind"}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, false, out["data"].(map[string]interface{})["approved"])
	assert.Equal(t, "changed my mind", inbox.responses["r2"].Reason)
}
