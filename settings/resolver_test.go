package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolver_Defaults(t *testing.T) {
	resolved, err := NewResolver(ResolverConfig{}).Resolve()
	require.NoError(t, err)

	require.Equal(t, 15*time.Minute, resolved.AccessTTL)
	require.Equal(t, 336*time.Hour, resolved.RefreshTTL)
	require.Equal(t, 20, resolved.RetryLimit)
	require.Equal(t, 48*time.Hour, resolved.GraceWindow)
	require.Equal(t, 30, resolved.TrustThreshold)
	require.Equal(t, 0, resolved.StrangerScore)
	require.InDelta(t, 0.7, resolved.IPGate, 0.001)
	require.InDelta(t, 0.7, resolved.MetadataGate, 0.001)
	require.Equal(t, 2, resolved.ClusterCount)
	require.Equal(t, 6, resolved.OTPDigits)
	require.Equal(t, 10*time.Minute, resolved.OTPLifetime)
}

func TestResolver_HostOverridesDefaults(t *testing.T) {
	resolved, err := NewResolver(ResolverConfig{
		Host: map[string]any{
			KeyAccessTTL:      "5m",
			KeyTrustThreshold: 50,
		},
	}).Resolve()
	require.NoError(t, err)

	require.Equal(t, 5*time.Minute, resolved.AccessTTL)
	require.Equal(t, 50, resolved.TrustThreshold)
	require.Equal(t, 336*time.Hour, resolved.RefreshTTL, "untouched keys keep their defaults")
}

func TestResolver_TenantOverridesHost(t *testing.T) {
	resolved, err := NewResolver(ResolverConfig{
		Host: map[string]any{
			KeyOTPLifetime: "5m",
			KeyOTPDigits:   8,
		},
		Tenant: map[string]any{
			KeyOTPLifetime: "2m",
		},
	}).Resolve()
	require.NoError(t, err)

	require.Equal(t, 2*time.Minute, resolved.OTPLifetime, "tenant overrides win over host overrides")
	require.Equal(t, 8, resolved.OTPDigits, "host overrides still apply where the tenant is silent")
}

func TestResolver_DurationCoercion(t *testing.T) {
	resolved, err := NewResolver(ResolverConfig{
		Host: map[string]any{
			KeyAccessTTL:   time.Minute,
			KeyRefreshTTL:  3600,
			KeyOTPLifetime: 90.0,
		},
	}).Resolve()
	require.NoError(t, err)

	require.Equal(t, time.Minute, resolved.AccessTTL)
	require.Equal(t, time.Hour, resolved.RefreshTTL, "bare integers read as seconds")
	require.Equal(t, 90*time.Second, resolved.OTPLifetime)

	_, err = NewResolver(ResolverConfig{
		Host: map[string]any{KeyAccessTTL: "soon"},
	}).Resolve()
	require.Error(t, err, "unparseable durations surface instead of defaulting")
}
