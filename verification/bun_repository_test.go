package verification

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestRepository_SetVerifiedCreatesAndFlips(t *testing.T) {
	ctx := context.Background()
	db := newTestVerificationDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	missing, err := repo.GetVerification(ctx, userID)
	require.NoError(t, err)
	require.Nil(t, missing)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetVerified(ctx, userID, types.OTPPurposePhoneVerification, now))

	rec, err := repo.GetVerification(ctx, userID)
	require.NoError(t, err)
	require.True(t, rec.PhoneVerified)
	require.False(t, rec.EmailVerified)

	require.NoError(t, repo.SetVerified(ctx, userID, types.OTPPurposeEmailVerification, now.Add(time.Minute)))

	rec, err = repo.GetVerification(ctx, userID)
	require.NoError(t, err)
	require.True(t, rec.PhoneVerified, "earlier flags survive later verifications")
	require.True(t, rec.EmailVerified)

	count, err := db.NewSelect().Model((*Record)(nil)).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count, "one record per account")
}

func TestRepository_SetVerifiedIgnoresOtherPurposes(t *testing.T) {
	ctx := context.Background()
	db := newTestVerificationDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, repo.SetVerified(ctx, userID, types.OTPPurposeLogin, time.Now()))

	rec, err := repo.GetVerification(ctx, userID)
	require.NoError(t, err)
	require.Nil(t, rec, "login codes never create verification records")
}

func newTestVerificationDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})

	content, err := os.ReadFile("../data/sql/migrations/000001_device_auth.sql")
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(content), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}
