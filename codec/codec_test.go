package codec

import (
	"testing"
	"time"

	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func TestCodec_RequiresSecret(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, types.ErrMissingSigningSecret)
}

func TestCodec_SignPairRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := New(Config{
		Secret:     []byte("test-secret"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Clock:      fixedClock{t: now},
	})
	require.NoError(t, err)

	deviceID := uuid.New()
	pair, err := c.SignPair(types.SubjectDevice, deviceID, "pair-value")
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Equal(t, now.Add(time.Minute), pair.AccessExpiresAt)
	require.Equal(t, now.Add(time.Hour), pair.RefreshExpiresAt)

	claims, err := c.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, types.SubjectDevice, claims.Subject)
	require.Equal(t, deviceID, claims.SubjectID)
	require.Equal(t, "pair-value", claims.Value)

	refreshClaims, err := c.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "pair-value", refreshClaims.Value, "both halves share the pair value")
}

func TestCodec_UserSubjectClaims(t *testing.T) {
	c, err := New(Config{Secret: []byte("test-secret")})
	require.NoError(t, err)

	userID := uuid.New()
	pair, err := c.SignPair(types.SubjectUser, userID, "user-pair")
	require.NoError(t, err)

	claims, err := c.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, types.SubjectUser, claims.Subject)
	require.Equal(t, userID, claims.SubjectID)
}

func TestCodec_ExpiredVersusInvalid(t *testing.T) {
	past := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, err := New(Config{
		Secret:    []byte("test-secret"),
		AccessTTL: time.Minute,
		Clock:     fixedClock{t: past},
	})
	require.NoError(t, err)

	pair, err := signer.SignPair(types.SubjectDevice, uuid.New(), "pair-value")
	require.NoError(t, err)

	verifier, err := New(Config{Secret: []byte("test-secret")})
	require.NoError(t, err)

	_, err = verifier.Verify(pair.AccessToken)
	require.Error(t, err)
	require.True(t, IsExpired(err))
	require.False(t, IsInvalid(err))

	_, err = verifier.Verify("not-a-token")
	require.Error(t, err)
	require.True(t, IsInvalid(err))
	require.False(t, IsExpired(err))

	otherKey, err := New(Config{Secret: []byte("different-secret")})
	require.NoError(t, err)
	fresh, err := otherKey.SignPair(types.SubjectDevice, uuid.New(), "pair-value")
	require.NoError(t, err)
	_, err = verifier.Verify(fresh.AccessToken)
	require.True(t, IsInvalid(err), "wrong signature must not read as expired")
}

func TestCodec_DecodeIgnoresExpiry(t *testing.T) {
	past := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, err := New(Config{
		Secret:    []byte("test-secret"),
		AccessTTL: time.Minute,
		Clock:     fixedClock{t: past},
	})
	require.NoError(t, err)

	deviceID := uuid.New()
	pair, err := signer.SignPair(types.SubjectDevice, deviceID, "pair-value")
	require.NoError(t, err)

	verifier, err := New(Config{Secret: []byte("test-secret")})
	require.NoError(t, err)

	claims, err := verifier.Decode(pair.AccessToken, true)
	require.NoError(t, err)
	require.Equal(t, deviceID, claims.SubjectID)
	require.Equal(t, "pair-value", claims.Value)

	_, err = verifier.Decode(pair.AccessToken, false)
	require.True(t, IsExpired(err))
}
