package listings

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	listsvc "ecofusion-backend/internal/application/listings"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alice = "0x00000000000000000000000000000000000A11cE"

type fakeService struct {
	listings  map[uuid.UUID]*domain.Listing
	created   []listsvc.CreateListingInput
	createErr error
	cancelErr error
}

func newFakeService() *fakeService {
	return &fakeService{listings: map[uuid.UUID]*domain.Listing{}}
}

func (f *fakeService) CreateListing(ctx context.Context, acct domain.Account, in listsvc.CreateListingInput) (*domain.Listing, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	l := &domain.Listing{
		ListingID:       uuid.New(),
		Seller:          strings.ToLower(acct.Address),
		Tokens:          in.Tokens,
		TokensRemaining: in.Tokens,
		PricePerToken:   in.PricePerToken,
		ExpiresAt:       in.ExpiresAt,
		Status:          domain.ListingListed,
	}
	f.listings[l.ListingID] = l
	return l, nil
}

func (f *fakeService) CancelListing(ctx context.Context, acct domain.Account, id uuid.UUID) (*domain.Listing, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	l, ok := f.listings[id]
	if !ok {
		return nil, apperr.NotFound("listings.cancel", "listing not found")
	}
	l.Status = domain.ListingCancelled
	return l, nil
}

func (f *fakeService) GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return nil, apperr.NotFound("listings.get", "listing not found")
	}
	return l, nil
}

func (f *fakeService) ListActiveListings(ctx context.Context) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range f.listings {
		if l.Status == domain.ListingListed {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeService) ListSellerListings(ctx context.Context, seller string) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range f.listings {
		if strings.EqualFold(l.Seller, seller) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeService) Events(ctx context.Context, id uuid.UUID) ([]domain.ListingEvent, error) {
	return []domain.ListingEvent{{ListingID: id, EventType: domain.ListingEventListed}}, nil
}

func newApp(svc Service) *fiber.App {
	h := &Handlers{Service: svc}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":        "550e8400-e29b-41d4-a716-446655440000",
			"role":           "user",
			"wallet_account": alice,
		})
		return c.Next()
	})
	app.Post("/listings/create-listing", h.CreateListing)
	app.Get("/listings/active", h.Active)
	app.Get("/listings/mine", h.Mine)
	app.Get("/listings/:id", h.Get)
	app.Post("/listings/:id/cancel", h.Cancel)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	return resp.StatusCode, out
}

func TestCreateListing(t *testing.T) {
	svc := newFakeService()
	app := newApp(svc)
	expires := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)

	code, out := do(t, app, http.MethodPost, "/listings/create-listing", map[string]interface{}{
		"tokens":          "500",
		"price_per_token": 2.5,
		"expires_at":      expires,
	})
	assert.Equal(t, fiber.StatusCreated, code)
	require.Len(t, svc.created, 1)
	assert.True(t, svc.created[0].Tokens.Equal(fixedpoint.MustParse("500")))
	assert.True(t, svc.created[0].PricePerToken.Equal(fixedpoint.MustParse("2.5")))
	assert.Nil(t, svc.created[0].TotalPrice)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, strings.ToLower(alice), data["seller"])

	code, out = do(t, app, http.MethodPost, "/listings/create-listing", map[string]interface{}{"tokens": "1"})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "Missing required field: price_per_token", out["error"].(map[string]interface{})["message"])
	assert.Len(t, svc.created, 1)
}

func TestCreateListing_LedgerFailureMapsStatus(t *testing.T) {
	svc := newFakeService()
	svc.createErr = apperr.New(apperr.KindUserRejected, "listings.create", "wallet declined")
	app := newApp(svc)

	code, out := do(t, app, http.MethodPost, "/listings/create-listing", map[string]interface{}{
		"tokens":          "1",
		"price_per_token": "1",
		"expires_at":      time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	assert.Equal(t, fiber.StatusFailedDependency, code)
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "safe", details["retry"])
	assert.Equal(t, "not_applied", details["outcome"])
}

func TestQueriesAndCancel(t *testing.T) {
	svc := newFakeService()
	id := uuid.New()
	svc.listings[id] = &domain.Listing{ListingID: id, Seller: strings.ToLower(alice), Status: domain.ListingListed}
	app := newApp(svc)

	code, out := do(t, app, http.MethodGet, "/listings/active", nil)
	assert.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 1, out["metadata"].(map[string]interface{})["count"])

	code, out = do(t, app, http.MethodGet, "/listings/mine", nil)
	assert.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 1, out["metadata"].(map[string]interface{})["count"])

	code, out = do(t, app, http.MethodGet, "/listings/"+id.String(), nil)
	assert.Equal(t, fiber.StatusOK, code)
	data := out["data"].(map[string]interface{})
	assert.Len(t, data["events"], 1)

	code, _ = do(t, app, http.MethodGet, "/listings/not-a-uuid", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
	code, _ = do(t, app, http.MethodGet, "/listings/"+uuid.NewString(), nil)
	assert.Equal(t, fiber.StatusNotFound, code)

	code, out = do(t, app, http.MethodPost, "/listings/"+id.String()+"/cancel", nil)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "cancelled", out["data"].(map[string]interface{})["status"])

	svc.cancelErr = apperr.Forbidden("listings.cancel", "only the seller can cancel")
	code, _ = do(t, app, http.MethodPost, "/listings/"+id.String()+"/cancel", nil)
	assert.Equal(t, fiber.StatusForbidden, code)
}
