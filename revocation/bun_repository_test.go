package revocation

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestRepository_BlacklistAndLookup(t *testing.T) {
	ctx := context.Background()
	db := newTestLedgerDB(t)

	ledger, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	require.NoError(t, ledger.Blacklist(ctx, "revoked-token"))

	revoked, err := ledger.IsBlacklisted(ctx, "revoked-token")
	require.NoError(t, err)
	require.True(t, revoked)

	clean, err := ledger.IsBlacklisted(ctx, "live-token")
	require.NoError(t, err)
	require.False(t, clean)
}

func TestRepository_BlacklistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestLedgerDB(t)

	ledger, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	require.NoError(t, ledger.Blacklist(ctx, "revoked-token"))
	require.NoError(t, ledger.Blacklist(ctx, "revoked-token"), "re-blacklisting must be a no-op")

	count, err := db.NewSelect().Model((*Record)(nil)).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRepository_BlacklistRejectsEmptyToken(t *testing.T) {
	db := newTestLedgerDB(t)

	ledger, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	require.Error(t, ledger.Blacklist(context.Background(), "  "))

	revoked, err := ledger.IsBlacklisted(context.Background(), "")
	require.NoError(t, err)
	require.False(t, revoked, "blank lookups never read as revoked")
}

func newTestLedgerDB(t *testing.T) *bun.DB {
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
