package fingerprint

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	ips map[uuid.UUID][]string
}

func (f *fakeHistory) AppendLogin(_ context.Context, entry types.LoginHistoryEntry) (*types.LoginHistoryEntry, error) {
	return &entry, nil
}

func (f *fakeHistory) CloseActiveSession(context.Context, uuid.UUID, time.Time) error {
	return nil
}

func (f *fakeHistory) ListIPsByDevice(_ context.Context, deviceID uuid.UUID) ([]string, error) {
	return f.ips[deviceID], nil
}

func (f *fakeHistory) ListHistoryByDevice(context.Context, uuid.UUID, types.Pagination) ([]types.LoginHistoryEntry, int, error) {
	return nil, 0, nil
}

func TestMatcher_RequiresHistory(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, types.ErrMissingLoginHistoryRepository)
}

func TestMatcher_ScoreExactMatch(t *testing.T) {
	deviceID := uuid.New()
	history := &fakeHistory{ips: map[uuid.UUID][]string{
		deviceID: {"203.0.113.10", "203.0.113.10"},
	}}
	matcher, err := New(Config{History: history})
	require.NoError(t, err)

	device := types.Device{
		ID:            deviceID,
		Type:          types.DeviceTypeMobile,
		ClientVersion: "2.1.0",
		OSVersion:     "17.4",
		UserAgent:     "client/2.1.0",
	}
	incoming := types.DeviceMetadata{
		IP:            "203.0.113.10",
		DeviceType:    types.DeviceTypeMobile,
		ClientVersion: "2.1.0",
		OSVersion:     "17.4",
		UserAgent:     "client/2.1.0",
	}

	match, scored, err := matcher.Score(context.Background(), incoming, device)
	require.NoError(t, err)
	require.True(t, scored)
	require.InDelta(t, 1.0, match.IPScore, 0.001)
	require.InDelta(t, 1.0, match.MetadataScore, 0.001)
	require.InDelta(t, 1.0, match.Combined, 0.001)
}

func TestMatcher_ScoreSkipsDeviceWithoutHistory(t *testing.T) {
	history := &fakeHistory{ips: map[uuid.UUID][]string{}}
	matcher, err := New(Config{History: history})
	require.NoError(t, err)

	match, scored, err := matcher.Score(context.Background(), types.DeviceMetadata{IP: "203.0.113.10"}, types.Device{ID: uuid.New()})
	require.NoError(t, err)
	require.False(t, scored)
	require.Nil(t, match)
}

func TestMatcher_MostSimilarPicksBestCandidate(t *testing.T) {
	closeID := uuid.New()
	farID := uuid.New()
	emptyID := uuid.New()
	history := &fakeHistory{ips: map[uuid.UUID][]string{
		closeID: {"203.0.113.10"},
		farID:   {"198.51.100.7"},
	}}
	matcher, err := New(Config{History: history})
	require.NoError(t, err)

	shared := types.Device{
		Type:          types.DeviceTypeMobile,
		ClientVersion: "2.1.0",
		OSVersion:     "17.4",
		UserAgent:     "client/2.1.0",
	}
	closeDevice, farDevice, emptyDevice := shared, shared, shared
	closeDevice.ID = closeID
	farDevice.ID = farID
	emptyDevice.ID = emptyID

	incoming := types.DeviceMetadata{
		IP:            "203.0.113.11",
		DeviceType:    types.DeviceTypeMobile,
		ClientVersion: "2.1.0",
		OSVersion:     "17.4",
		UserAgent:     "client/2.1.0",
	}

	match, err := matcher.MostSimilar(context.Background(), incoming, []types.Device{farDevice, emptyDevice, closeDevice})
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, closeID, match.Device.ID)
}

func TestMatcher_MostSimilarHonorsGates(t *testing.T) {
	deviceID := uuid.New()
	history := &fakeHistory{ips: map[uuid.UUID][]string{
		deviceID: {"203.0.113.10"},
	}}
	matcher, err := New(Config{History: history, MetadataGate: 0.9})
	require.NoError(t, err)

	device := types.Device{
		ID:            deviceID,
		Type:          types.DeviceTypePC,
		ClientVersion: "1.0.0",
		OSVersion:     "10",
		UserAgent:     "legacy-agent",
	}
	incoming := types.DeviceMetadata{
		IP:            "203.0.113.10",
		DeviceType:    types.DeviceTypeMobile,
		ClientVersion: "2.1.0",
		OSVersion:     "17.4",
		UserAgent:     "client/2.1.0",
	}

	match, err := matcher.MostSimilar(context.Background(), incoming, []types.Device{device})
	require.NoError(t, err)
	require.Nil(t, match, "candidate below the metadata gate must not match")
}

func TestScoreIPHistory_EmptyHistory(t *testing.T) {
	require.Zero(t, scoreIPHistory("203.0.113.10", nil, 2))
}

func TestScoreMetadata_EmptyFieldsCarryNoSignal(t *testing.T) {
	score := scoreMetadata(types.DeviceMetadata{}, types.Device{})
	require.Zero(t, score)
}

func TestUserAgentRatio(t *testing.T) {
	require.InDelta(t, 1.0, userAgentRatio("client/2.1.0", "client/2.1.0"), 0.001)
	require.Zero(t, userAgentRatio("", ""))
	require.Zero(t, userAgentRatio("abc", "xyz"))
}
