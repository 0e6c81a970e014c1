package auth

import (
	"context"
	"testing"

	"ecofusion-backend/internal/constants"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const wallet = "0x00000000000000000000000000000000000a11ce"

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.User{}))
	return &Service{DB: db}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, RegisterInput{Email: " Ada@Example.com ", Password: "s3cret!pass", Fullname: "ada   lovelace", WalletAccount: wallet})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada Lovelace", u.Fullname)
	assert.Equal(t, constants.User, u.Role)
	assert.Equal(t, "0x00000000000000000000000000000000000A11cE", u.WalletAccount)
	assert.NotEqual(t, "s3cret!pass", u.PasswordHash)

	_, err = s.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "s3cret!pass", Fullname: "Ada", WalletAccount: wallet})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	got, err := s.FindByEmailAndPassword(ctx, "ada@example.com", "s3cret!pass")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)

	_, err = s.FindByEmailAndPassword(ctx, "ada@example.com", "wrong")
	assert.Equal(t, ErrIncorrectPassword, err)
	_, err = s.FindByEmailAndPassword(ctx, "nobody@example.com", "x")
	assert.Equal(t, ErrInvalidEmail, err)
	_, err = s.FindByEmailAndPassword(ctx, "", "")
	assert.Equal(t, ErrEmailPasswordRequired, err)

	promoted, err := s.SetRole(ctx, "ada@example.com", constants.Admin)
	require.NoError(t, err)
	assert.Equal(t, constants.Admin, promoted.Role)
	_, err = s.SetRole(ctx, "nobody@example.com", constants.Admin)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRegister_Validation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	cases := map[string]RegisterInput{
		"email":    {Email: "nope", Password: "s3cret!pass", Fullname: "Ada", WalletAccount: wallet},
		"password": {Email: "a@b.co", Password: "short", Fullname: "Ada", WalletAccount: wallet},
		"fullname": {Email: "a@b.co", Password: "s3cret!pass", Fullname: "Ada 2", WalletAccount: wallet},
		"wallet":   {Email: "a@b.co", Password: "s3cret!pass", Fullname: "Ada", WalletAccount: "0x1234"},
		"zero":     {Email: "a@b.co", Password: "s3cret!pass", Fullname: "Ada", WalletAccount: "0x0000000000000000000000000000000000000000"},
	}
	for name, in := range cases {
		_, err := s.Register(ctx, in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), name)
	}
}

func TestVerifyUser(t *testing.T) {
	_, err := VerifyUser(nil)
	assert.Equal(t, ErrNotAuthenticated, err)
	_, err = VerifyUser(map[string]interface{}{"fullname": "Ada"})
	assert.Equal(t, ErrNotAuthenticated, err)

	u, err := VerifyUser(map[string]interface{}{
		"user_id":        "550e8400-e29b-41d4-a716-446655440000",
		"email":          "ada@example.com",
		"role":           "admin",
		"wallet_account": wallet,
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)
	assert.Equal(t, wallet, u.WalletAccount)
}
