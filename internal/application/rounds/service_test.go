package rounds

import (
	"context"
	"testing"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.VerraRound{}))
	return &Service{DB: db, Logger: zerolog.Nop()}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRounds_Lifecycle(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	r1, err := s.CreateRound(ctx, CreateRoundInput{TargetAmount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, 1, r1.RoundNumber)
	r2, err := s.CreateRound(ctx, CreateRoundInput{TargetAmount: dec("50")})
	require.NoError(t, err)
	assert.Equal(t, 2, r2.RoundNumber)

	_, err = s.RecordProgress(ctx, 1, dec("10"))
	assert.Equal(t, apperr.KindInvariantViolation, apperr.KindOf(err), "upcoming rounds take no progress")

	_, err = s.ActivateRound(ctx, 1)
	require.NoError(t, err)
	_, err = s.ActivateRound(ctx, 2)
	assert.Equal(t, apperr.KindInvariantViolation, apperr.KindOf(err), "only one active round")

	_, err = s.CertifyRound(ctx, 1)
	assert.Equal(t, apperr.KindInvariantViolation, apperr.KindOf(err), "below target")

	_, err = s.RecordProgress(ctx, 1, dec("60.5"))
	require.NoError(t, err)
	require.NoError(t, s.Accrue(ctx, dec("40")))

	got, err := s.GetRound(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.AchievedAmount.Equal(dec("100.5")), got.AchievedAmount.String())

	certified, err := s.CertifyRound(ctx, 1)
	require.NoError(t, err)
	assert.True(t, certified.IsCertified)
	_, err = s.CertifyRound(ctx, 1)
	assert.Equal(t, apperr.KindInvariantViolation, apperr.KindOf(err), "certify happens once")

	done, err := s.CompleteRound(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundCompleted, done.Status)
	assert.NotNil(t, done.EndDate)

	_, err = s.ActivateRound(ctx, 2)
	require.NoError(t, err)

	all, err := s.ListRounds(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].RoundNumber)
}

func TestRounds_Validation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.CreateRound(ctx, CreateRoundInput{TargetAmount: dec("0")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = s.RecordProgress(ctx, 1, dec("-1"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = s.GetRound(ctx, 9)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.NoError(t, s.Accrue(ctx, dec("5")), "no active round is not an error")
}
