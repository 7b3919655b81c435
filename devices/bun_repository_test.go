package devices

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

func TestRepository_CreateAndGetDevice(t *testing.T) {
	ctx := context.Background()
	db := newTestDeviceDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	created, err := repo.CreateDevice(ctx, types.Device{
		UserID:        userID,
		Name:          "Primary Phone",
		Type:          types.DeviceTypeMobile,
		ClientVersion: "2.1.0",
		OSVersion:     "17.4",
		UserAgent:     "client/2.1.0",
		TrustScore:    types.TrustScoreMax,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	fetched, err := repo.GetDevice(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)
	require.Equal(t, types.DeviceTypeMobile, fetched.Type)
	require.Equal(t, types.TrustScoreMax, fetched.TrustScore)

	missing, err := repo.GetDevice(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepository_ListAndCountByUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDeviceDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	for i, name := range []string{"Phone", "Laptop"} {
		_, err := repo.CreateDevice(ctx, types.Device{
			UserID:    userID,
			Name:      name,
			CreatedAt: time.Date(2024, 3, 1, 12, i, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 1, 12, i, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	_, err = repo.CreateDevice(ctx, types.Device{UserID: uuid.New(), Name: "Other"})
	require.NoError(t, err)

	list, err := repo.ListDevicesByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Phone", list[0].Name, "oldest first")

	count, err := repo.CountDevicesByUser(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestRepository_RotateDevicePair(t *testing.T) {
	ctx := context.Background()
	db := newTestDeviceDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)
	pairs, err := NewPairRepository(PairRepositoryConfig{DB: db})
	require.NoError(t, err)

	device, err := repo.CreateDevice(ctx, types.Device{UserID: uuid.New(), TrustScore: 10})
	require.NoError(t, err)

	device.TrustScore = types.TrustScoreMax
	device.RenewalCount = 1
	rotated, err := repo.RotateDevicePair(ctx, *device, types.TokenPair{
		Subject:          types.SubjectDevice,
		SubjectID:        device.ID,
		Value:            "rotated-value",
		AccessToken:      "access-1",
		RefreshToken:     "refresh-1",
		AccessExpiresAt:  time.Now().Add(time.Minute),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "rotated-value", rotated.Value)

	updated, err := repo.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	require.Equal(t, types.TrustScoreMax, updated.TrustScore)
	require.Equal(t, 1, updated.RenewalCount)

	stored, err := pairs.GetPairBySubject(ctx, types.SubjectDevice, device.ID)
	require.NoError(t, err)
	require.Equal(t, "rotated-value", stored.Value)
}

func TestRepository_RotateDevicePairUnknownDeviceRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDeviceDB(t)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)
	pairs, err := NewPairRepository(PairRepositoryConfig{DB: db})
	require.NoError(t, err)

	ghost := types.Device{ID: uuid.New(), TrustScore: types.TrustScoreMax}
	_, err = repo.RotateDevicePair(ctx, ghost, types.TokenPair{
		SubjectID: ghost.ID,
		Value:     "orphan-value",
	})
	require.Error(t, err)

	stored, err := pairs.GetPairBySubject(ctx, types.SubjectDevice, ghost.ID)
	require.NoError(t, err)
	require.Nil(t, stored, "the pair write must roll back with the device update")
}

func TestPairRepository_LastPairWins(t *testing.T) {
	ctx := context.Background()
	db := newTestDeviceDB(t)

	pairs, err := NewPairRepository(PairRepositoryConfig{DB: db})
	require.NoError(t, err)

	deviceID := uuid.New()
	first, err := pairs.SavePair(ctx, types.TokenPair{
		SubjectID:    deviceID,
		Value:        "value-1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	})
	require.NoError(t, err)

	_, err = pairs.SavePair(ctx, types.TokenPair{
		SubjectID:    deviceID,
		Value:        "value-2",
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
	})
	require.NoError(t, err)

	current, err := pairs.GetPairBySubject(ctx, types.SubjectDevice, deviceID)
	require.NoError(t, err)
	require.Equal(t, "value-2", current.Value)

	gone, err := pairs.GetPairByValue(ctx, first.Value)
	require.NoError(t, err)
	require.Nil(t, gone, "the superseded value must not resolve")

	exists, err := pairs.ValueExists(ctx, "value-2")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = pairs.ValueExists(ctx, "value-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestPairRepository_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDeviceDB(t)

	pairs, err := NewPairRepository(PairRepositoryConfig{DB: db})
	require.NoError(t, err)

	deviceID := uuid.New()
	_, err = pairs.SavePair(ctx, types.TokenPair{SubjectID: deviceID, Value: "value-1"})
	require.NoError(t, err)

	require.NoError(t, pairs.DeletePairBySubject(ctx, types.SubjectDevice, deviceID))
	require.NoError(t, pairs.DeletePairBySubject(ctx, types.SubjectDevice, deviceID))

	current, err := pairs.GetPairBySubject(ctx, types.SubjectDevice, deviceID)
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestHistoryRepository_SessionsAndIPs(t *testing.T) {
	ctx := context.Background()
	db := newTestDeviceDB(t)

	history, err := NewHistoryRepository(HistoryRepositoryConfig{DB: db})
	require.NoError(t, err)

	deviceID := uuid.New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, ip := range []string{"203.0.113.10", "203.0.113.11"} {
		_, err := history.AppendLogin(ctx, types.LoginHistoryEntry{
			DeviceID: deviceID,
			IP:       ip,
			LoginAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	ips, err := history.ListIPsByDevice(ctx, deviceID)
	require.NoError(t, err)
	require.Equal(t, []string{"203.0.113.10", "203.0.113.11"}, ips)

	require.NoError(t, history.CloseActiveSession(ctx, deviceID, base.Add(time.Hour)))

	page, total, err := history.ListHistoryByDevice(ctx, deviceID, types.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, page, 2)
	require.Equal(t, "203.0.113.11", page[0].IP, "newest first")
	for _, entry := range page {
		require.NotNil(t, entry.LogoutAt)
		require.False(t, entry.Active())
	}
}

func newTestDeviceDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})
	applyDeviceDDL(t, db)
	return db
}

func applyDeviceDDL(t *testing.T, db *bun.DB) {
	t.Helper()
	content, err := os.ReadFile("../data/sql/migrations/000001_device_auth.sql")
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(content), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}
