package issuer

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/codec"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/goliatone/go-device-auth/trust"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type pairKey struct {
	subject   types.SubjectKind
	subjectID uuid.UUID
}

type fakePairStore struct {
	pairs         map[pairKey]types.TokenPair
	alwaysTaken   bool
	conflictsLeft int
	saveErr       error
}

func newFakePairStore() *fakePairStore {
	return &fakePairStore{pairs: make(map[pairKey]types.TokenPair)}
}

func (f *fakePairStore) SavePair(_ context.Context, pair types.TokenPair) (*types.TokenPair, error) {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return nil, goerrors.New("token pair value already exists", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if pair.ID == uuid.Nil {
		pair.ID = uuid.New()
	}
	f.pairs[pairKey{pair.Subject, pair.SubjectID}] = pair
	out := pair
	return &out, nil
}

func (f *fakePairStore) GetPairBySubject(_ context.Context, subject types.SubjectKind, subjectID uuid.UUID) (*types.TokenPair, error) {
	pair, ok := f.pairs[pairKey{subject, subjectID}]
	if !ok {
		return nil, nil
	}
	out := pair
	return &out, nil
}

func (f *fakePairStore) GetPairByValue(_ context.Context, value string) (*types.TokenPair, error) {
	for _, pair := range f.pairs {
		if pair.Value == value {
			out := pair
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakePairStore) ValueExists(_ context.Context, value string) (bool, error) {
	if f.alwaysTaken {
		return true, nil
	}
	for _, pair := range f.pairs {
		if pair.Value == value {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePairStore) DeletePairBySubject(_ context.Context, subject types.SubjectKind, subjectID uuid.UUID) error {
	delete(f.pairs, pairKey{subject, subjectID})
	return nil
}

func (f *fakePairStore) RotateDevicePair(ctx context.Context, device types.Device, pair types.TokenPair) (*types.TokenPair, error) {
	return f.SavePair(ctx, pair)
}

type fakeLedger struct {
	revoked map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{revoked: make(map[string]bool)}
}

func (f *fakeLedger) Blacklist(_ context.Context, accessToken string) error {
	f.revoked[accessToken] = true
	return nil
}

func (f *fakeLedger) IsBlacklisted(_ context.Context, accessToken string) (bool, error) {
	return f.revoked[accessToken], nil
}

func newTestCodec(t *testing.T) *codec.Codec {
	t.Helper()
	c, err := codec.New(codec.Config{
		Secret:     []byte("test-secret"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	return c
}

func newTestIssuer(t *testing.T, pairs *fakePairStore, ledger *fakeLedger) *Issuer {
	t.Helper()
	iss, err := New(Config{
		Subject: types.SubjectDevice,
		Codec:   newTestCodec(t),
		Pairs:   pairs,
		Ledger:  ledger,
	})
	require.NoError(t, err)
	return iss
}

func TestIssuer_IssueReplacesAndBlacklists(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()
	iss := newTestIssuer(t, pairs, ledger)

	deviceID := uuid.New()
	first, err := iss.Issue(ctx, deviceID)
	require.NoError(t, err)
	require.Equal(t, types.SubjectDevice, first.Subject)
	require.Equal(t, deviceID, first.SubjectID)
	require.NotEmpty(t, first.Value)

	second, err := iss.Issue(ctx, deviceID)
	require.NoError(t, err)
	require.NotEqual(t, first.Value, second.Value)
	require.True(t, ledger.revoked[first.AccessToken], "superseded access token must be blacklisted")

	stored, err := pairs.GetPairBySubject(ctx, types.SubjectDevice, deviceID)
	require.NoError(t, err)
	require.Equal(t, second.Value, stored.Value, "only the latest pair survives")
}

func TestIssuer_RenewRotatesPair(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()
	iss := newTestIssuer(t, pairs, ledger)

	deviceID := uuid.New()
	first, err := iss.Issue(ctx, deviceID)
	require.NoError(t, err)

	renewed, err := iss.Renew(ctx, first.RefreshToken, false)
	require.NoError(t, err)
	require.Equal(t, deviceID, renewed.SubjectID)
	require.NotEqual(t, first.Value, renewed.Value)
	require.NotNil(t, renewed.LastRefreshExpiry)
	require.Equal(t, first.RefreshExpiresAt, *renewed.LastRefreshExpiry)
	require.True(t, ledger.revoked[first.AccessToken])

	_, err = iss.Renew(ctx, first.RefreshToken, false)
	require.Error(t, err, "superseded refresh token must not rotate again")
}

func TestIssuer_RenewExpiredRefresh(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()

	past, err := codec.New(codec.Config{
		Secret:     []byte("test-secret"),
		RefreshTTL: time.Hour,
		Clock:      fixedClock{t: time.Now().Add(-2 * time.Hour)},
	})
	require.NoError(t, err)
	signed, err := past.SignPair(types.SubjectDevice, uuid.New(), "stale-value")
	require.NoError(t, err)

	iss := newTestIssuer(t, pairs, ledger)
	_, err = iss.Renew(ctx, signed.RefreshToken, false)
	require.Error(t, err)
	require.True(t, IsRefreshExpired(err))
}

func TestIssuer_RenewExpiredOptInReissues(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()

	past, err := codec.New(codec.Config{
		Secret:     []byte("test-secret"),
		RefreshTTL: time.Hour,
		Clock:      fixedClock{t: time.Now().Add(-2 * time.Hour)},
	})
	require.NoError(t, err)
	deviceID := uuid.New()
	signed, err := past.SignPair(types.SubjectDevice, deviceID, "stale-value")
	require.NoError(t, err)
	_, err = pairs.SavePair(ctx, types.TokenPair{
		Subject:      types.SubjectDevice,
		SubjectID:    deviceID,
		Value:        "stale-value",
		AccessToken:  signed.AccessToken,
		RefreshToken: signed.RefreshToken,
	})
	require.NoError(t, err)

	iss := newTestIssuer(t, pairs, ledger)
	fresh, err := iss.Renew(ctx, signed.RefreshToken, true)
	require.NoError(t, err, "an expired but authentic refresh token reissues when opted in")
	require.Equal(t, deviceID, fresh.SubjectID)
	require.NotEqual(t, "stale-value", fresh.Value)
	require.Nil(t, fresh.LastRefreshExpiry, "a reissue starts without a grace anchor")
	require.True(t, ledger.revoked[signed.AccessToken], "the stale access token is blacklisted")

	_, err = iss.Renew(ctx, signed.RefreshToken, true)
	require.Error(t, err, "the superseded expired token must not reissue twice")
}

func TestIssuer_RenewExpiredOptInRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()

	past, err := codec.New(codec.Config{
		Secret:     []byte("test-secret"),
		RefreshTTL: time.Hour,
		Clock:      fixedClock{t: time.Now().Add(-2 * time.Hour)},
	})
	require.NoError(t, err)
	signed, err := past.SignPair(types.SubjectDevice, uuid.New(), "never-stored")
	require.NoError(t, err)

	iss := newTestIssuer(t, pairs, ledger)
	_, err = iss.Renew(ctx, signed.RefreshToken, true)
	require.Error(t, err, "an expired token with no stored pair cannot reopen a session")
}

func TestIssuer_VerifyAccess(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()
	iss := newTestIssuer(t, pairs, ledger)

	deviceID := uuid.New()
	pair, err := iss.Issue(ctx, deviceID)
	require.NoError(t, err)

	claims, err := iss.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, deviceID, claims.SubjectID)
	require.Equal(t, pair.Value, claims.Value)

	ledger.revoked[pair.AccessToken] = true
	_, err = iss.VerifyAccess(ctx, pair.AccessToken)
	require.Error(t, err)
	require.True(t, IsRevoked(err))
}

func TestIssuer_VerifyAccessRejectsSuperseded(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()
	iss := newTestIssuer(t, pairs, ledger)

	deviceID := uuid.New()
	first, err := iss.Issue(ctx, deviceID)
	require.NoError(t, err)
	_, err = iss.Renew(ctx, first.RefreshToken, false)
	require.NoError(t, err)

	_, err = iss.VerifyAccess(ctx, first.AccessToken)
	require.Error(t, err)
}

func TestIssuer_VerifyAccessBlacklistsExpired(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()

	past, err := codec.New(codec.Config{
		Secret:    []byte("test-secret"),
		AccessTTL: time.Minute,
		Clock:     fixedClock{t: time.Now().Add(-time.Hour)},
	})
	require.NoError(t, err)
	signed, err := past.SignPair(types.SubjectDevice, uuid.New(), "expired-value")
	require.NoError(t, err)

	iss := newTestIssuer(t, pairs, ledger)
	_, err = iss.VerifyAccess(ctx, signed.AccessToken)
	require.Error(t, err)
	require.True(t, codec.IsExpired(err))
	require.True(t, ledger.revoked[signed.AccessToken], "expired token must land on the ledger")
}

func TestIssuer_RevokeDeletesPair(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()
	iss := newTestIssuer(t, pairs, ledger)

	deviceID := uuid.New()
	pair, err := iss.Issue(ctx, deviceID)
	require.NoError(t, err)

	require.NoError(t, iss.Revoke(ctx, pair.RefreshToken))
	require.True(t, ledger.revoked[pair.AccessToken])

	stored, err := pairs.GetPairBySubject(ctx, types.SubjectDevice, deviceID)
	require.NoError(t, err)
	require.Nil(t, stored)

	err = iss.Revoke(ctx, pair.RefreshToken)
	require.Error(t, err, "revoking an already deleted pair surfaces an auth error")
}

func TestIssuer_MintRetryExhaustion(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	pairs.alwaysTaken = true
	ledger := newFakeLedger()

	iss, err := New(Config{
		Codec:      newTestCodec(t),
		Pairs:      pairs,
		Ledger:     ledger,
		RetryLimit: 3,
	})
	require.NoError(t, err)

	_, err = iss.Issue(ctx, uuid.New())
	require.Error(t, err)
	require.True(t, hasTextCode(err, textCodeRetryExhausted))
}

func TestIssuer_IssueRetriesOnInsertConflict(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	pairs.conflictsLeft = 2
	ledger := newFakeLedger()
	iss := newTestIssuer(t, pairs, ledger)

	pair, err := iss.Issue(ctx, uuid.New())
	require.NoError(t, err, "a unique-constraint conflict on insert is retried with a fresh value")
	require.Zero(t, pairs.conflictsLeft)
	require.NotEmpty(t, pair.Value)
}

func TestIssuer_IssueExhaustsOnPersistentConflict(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	pairs.conflictsLeft = 10
	ledger := newFakeLedger()

	iss, err := New(Config{
		Codec:      newTestCodec(t),
		Pairs:      pairs,
		Ledger:     ledger,
		RetryLimit: 3,
	})
	require.NoError(t, err)

	_, err = iss.Issue(ctx, uuid.New())
	require.Error(t, err)
	require.True(t, hasTextCode(err, textCodeRetryExhausted))
}

func TestIssuer_IssueWrapsNonConflictSaveError(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	pairs.saveErr = errors.New("disk full")
	ledger := newFakeLedger()
	iss := newTestIssuer(t, pairs, ledger)

	_, err := iss.Issue(ctx, uuid.New())
	require.Error(t, err)
	require.True(t, hasTextCode(err, textCodePersistenceFailure), "only conflicts are retried")
}

func TestIssuer_RenewForDevice(t *testing.T) {
	ctx := context.Background()
	pairs := newFakePairStore()
	ledger := newFakeLedger()
	scorer := trust.New(trust.Config{})

	iss, err := New(Config{
		Subject: types.SubjectDevice,
		Codec:   newTestCodec(t),
		Pairs:   pairs,
		Ledger:  ledger,
		Rotator: pairs,
		Scorer:  scorer,
	})
	require.NoError(t, err)

	device := types.Device{ID: uuid.New(), TrustScore: 10}
	first, err := iss.Issue(ctx, device.ID)
	require.NoError(t, err)

	result, err := iss.RenewForDevice(ctx, device)
	require.NoError(t, err)
	require.True(t, result.InWindow)
	require.Equal(t, types.TrustScoreMax, result.Device.TrustScore)
	require.Equal(t, 1, result.Device.RenewalCount)
	require.NotEqual(t, first.Value, result.Pair.Value)
	require.True(t, ledger.revoked[first.AccessToken])
}

func TestIssuer_RenewForDeviceRequiresRotator(t *testing.T) {
	pairs := newFakePairStore()
	iss := newTestIssuer(t, pairs, newFakeLedger())

	_, err := iss.RenewForDevice(context.Background(), types.Device{ID: uuid.New()})
	require.ErrorIs(t, err, types.ErrServiceNotReady)
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }
