package settings

import (
	"fmt"
	"time"

	opts "github.com/goliatone/go-options"
)

// Tunable keys understood by the resolver.
const (
	KeyAccessTTL      = "tokens.access_ttl"
	KeyRefreshTTL     = "tokens.refresh_ttl"
	KeyRetryLimit     = "tokens.retry_limit"
	KeyGraceWindow    = "trust.grace_window"
	KeyTrustThreshold = "trust.threshold"
	KeyStrangerScore  = "trust.stranger_score"
	KeyIPGate         = "match.ip_gate"
	KeyMetadataGate   = "match.metadata_gate"
	KeyClusterCount   = "match.cluster_count"
	KeyOTPDigits      = "otp.digits"
	KeyOTPLifetime    = "otp.lifetime"
)

// Settings is the resolved set of engine tunables.
type Settings struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	RetryLimit     int
	GraceWindow    time.Duration
	TrustThreshold int
	StrangerScore  int
	IPGate         float64
	MetadataGate   float64
	ClusterCount   int
	OTPDigits      int
	OTPLifetime    time.Duration
}

// Defaults returns the engine's baseline tunables as a layer payload.
func Defaults() map[string]any {
	return map[string]any{
		KeyAccessTTL:      "15m",
		KeyRefreshTTL:     "336h",
		KeyRetryLimit:     20,
		KeyGraceWindow:    "48h",
		KeyTrustThreshold: 30,
		KeyStrangerScore:  0,
		KeyIPGate:         0.7,
		KeyMetadataGate:   0.7,
		KeyClusterCount:   2,
		KeyOTPDigits:      6,
		KeyOTPLifetime:    "10m",
	}
}

// ResolverConfig layers tunable overrides on top of the defaults. Host
// overrides come from the embedding application's configuration; tenant
// overrides from per-tenant storage.
type ResolverConfig struct {
	Host   map[string]any
	Tenant map[string]any
}

// Resolver merges tunable layers via go-options.
type Resolver struct {
	host   map[string]any
	tenant map[string]any
}

// NewResolver constructs a settings resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{host: cfg.Host, tenant: cfg.Tenant}
}

// Resolve merges defaults, host and tenant layers and decodes the result.
func (r *Resolver) Resolve() (Settings, error) {
	layers := []opts.Layer[map[string]any]{
		newLayer("system", opts.ScopePrioritySystem, "System Defaults", Defaults()),
	}
	if len(r.host) > 0 {
		layers = append(layers, newLayer("host", opts.ScopePriorityTenant, "Host Overrides", r.host))
	}
	if len(r.tenant) > 0 {
		layers = append(layers, newLayer("tenant", opts.ScopePriorityOrg, "Tenant Overrides", r.tenant))
	}

	stack, err := opts.NewStack(layers...)
	if err != nil {
		return Settings{}, err
	}
	merged, err := stack.Merge()
	if err != nil {
		return Settings{}, err
	}
	return decode(merged.Value)
}

func newLayer(name string, priority int, label string, payload map[string]any) opts.Layer[map[string]any] {
	scope := opts.NewScope(name, priority, opts.WithScopeLabel(label))
	return opts.NewLayer(scope, payload, opts.WithSnapshotID[map[string]any](scope.Name))
}

func decode(values map[string]any) (Settings, error) {
	out := Settings{}
	var err error
	if out.AccessTTL, err = durationValue(values, KeyAccessTTL); err != nil {
		return Settings{}, err
	}
	if out.RefreshTTL, err = durationValue(values, KeyRefreshTTL); err != nil {
		return Settings{}, err
	}
	if out.GraceWindow, err = durationValue(values, KeyGraceWindow); err != nil {
		return Settings{}, err
	}
	if out.OTPLifetime, err = durationValue(values, KeyOTPLifetime); err != nil {
		return Settings{}, err
	}
	if out.RetryLimit, err = intValue(values, KeyRetryLimit); err != nil {
		return Settings{}, err
	}
	if out.TrustThreshold, err = intValue(values, KeyTrustThreshold); err != nil {
		return Settings{}, err
	}
	if out.StrangerScore, err = intValue(values, KeyStrangerScore); err != nil {
		return Settings{}, err
	}
	if out.ClusterCount, err = intValue(values, KeyClusterCount); err != nil {
		return Settings{}, err
	}
	if out.OTPDigits, err = intValue(values, KeyOTPDigits); err != nil {
		return Settings{}, err
	}
	if out.IPGate, err = floatValue(values, KeyIPGate); err != nil {
		return Settings{}, err
	}
	if out.MetadataGate, err = floatValue(values, KeyMetadataGate); err != nil {
		return Settings{}, err
	}
	return out, nil
}

func durationValue(values map[string]any, key string) (time.Duration, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("settings: %s: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("settings: %s: unsupported duration type %T", key, raw)
	}
}

func intValue(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("settings: %s: unsupported int type %T", key, raw)
	}
}

func floatValue(values map[string]any, key string) (float64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("settings: %s: unsupported float type %T", key, raw)
	}
}
