package usertokens

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestRepository_LastPairWins(t *testing.T) {
	ctx := context.Background()
	db := newTestUserTokenDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	_, err = repo.SavePair(ctx, types.TokenPair{
		SubjectID:    userID,
		Value:        "user-value-1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	})
	require.NoError(t, err)

	second, err := repo.SavePair(ctx, types.TokenPair{
		SubjectID:    userID,
		Value:        "user-value-2",
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
	})
	require.NoError(t, err)
	require.Equal(t, types.SubjectUser, second.Subject)

	current, err := repo.GetPairBySubject(ctx, types.SubjectUser, userID)
	require.NoError(t, err)
	require.Equal(t, "user-value-2", current.Value)
	require.Equal(t, userID, current.SubjectID)

	exists, err := repo.ValueExists(ctx, "user-value-1")
	require.NoError(t, err)
	require.False(t, exists, "the superseded value must be gone")
}

func TestRepository_GetPairByValue(t *testing.T) {
	ctx := context.Background()
	db := newTestUserTokenDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	_, err = repo.SavePair(ctx, types.TokenPair{SubjectID: userID, Value: "user-value"})
	require.NoError(t, err)

	pair, err := repo.GetPairByValue(ctx, "user-value")
	require.NoError(t, err)
	require.Equal(t, userID, pair.SubjectID)

	missing, err := repo.GetPairByValue(ctx, "unknown-value")
	require.NoError(t, err)
	require.Nil(t, missing)

	blank, err := repo.GetPairByValue(ctx, "  ")
	require.NoError(t, err)
	require.Nil(t, blank)
}

func TestRepository_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestUserTokenDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	_, err = repo.SavePair(ctx, types.TokenPair{SubjectID: userID, Value: "user-value"})
	require.NoError(t, err)

	require.NoError(t, repo.DeletePairBySubject(ctx, types.SubjectUser, userID))
	require.NoError(t, repo.DeletePairBySubject(ctx, types.SubjectUser, userID))

	current, err := repo.GetPairBySubject(ctx, types.SubjectUser, userID)
	require.NoError(t, err)
	require.Nil(t, current)
}

func newTestUserTokenDB(t *testing.T) *bun.DB {
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
