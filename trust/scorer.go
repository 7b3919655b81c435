package trust

import (
	"time"

	"github.com/goliatone/go-device-auth/pkg/types"
)

// DefaultGraceWindow bounds how long after a refresh token expires a device
// can still rotate without losing its renewal streak.
const DefaultGraceWindow = 48 * time.Hour

// Config tunes the scorer. Zero values fall back to the defaults.
type Config struct {
	// GraceWindow is the post-expiry window within which a rotation counts
	// as continuous use.
	GraceWindow time.Duration
	// Threshold is the minimum score treated as trusted.
	Threshold int
	// InitialStrangerScore is assigned to devices registered after a forced
	// OTP challenge on an unrecognized client.
	InitialStrangerScore int
	Clock                types.Clock
}

func normalizeConfig(cfg Config) Config {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = types.DefaultTrustThreshold
	}
	if cfg.InitialStrangerScore < 0 {
		cfg.InitialStrangerScore = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	return cfg
}

// Scorer owns the renewal-streak trust policy. A device that rotates its
// pair within the grace window after the previous refresh expiry keeps its
// streak and is promoted to full trust; a late rotation resets the streak
// and leaves the score untouched.
type Scorer struct {
	graceWindow          time.Duration
	threshold            int
	initialStrangerScore int
	clock                types.Clock
}

// New builds a Scorer with defaults applied.
func New(cfg Config) *Scorer {
	cfg = normalizeConfig(cfg)
	return &Scorer{
		graceWindow:          cfg.GraceWindow,
		threshold:            cfg.Threshold,
		initialStrangerScore: cfg.InitialStrangerScore,
		clock:                cfg.Clock,
	}
}

// Threshold exposes the configured trust threshold.
func (s *Scorer) Threshold() int { return s.threshold }

// InitialStrangerScore exposes the score for post-challenge registrations.
func (s *Scorer) InitialStrangerScore() int { return s.initialStrangerScore }

// InWindow reports whether a rotation happening now is within the grace
// window relative to the superseded refresh token's expiry. A nil expiry
// (first pair, no prior rotation) is treated as in-window.
func (s *Scorer) InWindow(lastRefreshExpiry *time.Time) bool {
	if lastRefreshExpiry == nil {
		return true
	}
	now := s.clock.Now()
	if now.Before(*lastRefreshExpiry) {
		return true
	}
	return now.Sub(*lastRefreshExpiry) <= s.graceWindow
}

// Apply mutates the device's renewal counter and score for one rotation.
// It returns whether the rotation was in-window.
func (s *Scorer) Apply(device *types.Device, lastRefreshExpiry *time.Time) bool {
	if s.InWindow(lastRefreshExpiry) {
		device.RenewalCount++
		device.TrustScore = types.TrustScoreMax
		return true
	}
	device.RenewalCount = 0
	return false
}

// Trusted reports whether the device clears the scorer's threshold.
func (s *Scorer) Trusted(device types.Device) bool {
	return device.Trusted(s.threshold)
}
