package fingerprint

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/pkg/types"
)

// Default gates and clustering arity for the matcher.
const (
	DefaultIPGate       = 0.7
	DefaultMetadataGate = 0.7
	DefaultClusterCount = 2
)

// Config wires the matcher's collaborators and gates.
type Config struct {
	History types.LoginHistoryRepository
	// IPGate is the minimum IP-history similarity a candidate must reach.
	IPGate float64
	// MetadataGate is the minimum metadata similarity a candidate must reach.
	MetadataGate float64
	// ClusterCount is the k used when clustering a device's IP history.
	ClusterCount int
	Logger       types.Logger
}

func normalizeConfig(cfg Config) Config {
	if cfg.IPGate <= 0 {
		cfg.IPGate = DefaultIPGate
	}
	if cfg.MetadataGate <= 0 {
		cfg.MetadataGate = DefaultMetadataGate
	}
	if cfg.ClusterCount <= 0 {
		cfg.ClusterCount = DefaultClusterCount
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	return cfg
}

// Match is one scored candidate that cleared both gates.
type Match struct {
	Device        types.Device
	IPScore       float64
	MetadataScore float64
	Combined      float64
}

// Matcher scores a login attempt's classification against a user's known
// devices and picks the most similar one.
type Matcher struct {
	history      types.LoginHistoryRepository
	ipGate       float64
	metadataGate float64
	clusterCount int
	logger       types.Logger
}

// New builds a Matcher, failing when no login-history source was supplied.
func New(cfg Config) (*Matcher, error) {
	if cfg.History == nil {
		return nil, types.ErrMissingLoginHistoryRepository
	}
	cfg = normalizeConfig(cfg)
	return &Matcher{
		history:      cfg.History,
		ipGate:       cfg.IPGate,
		metadataGate: cfg.MetadataGate,
		clusterCount: cfg.ClusterCount,
		logger:       cfg.Logger,
	}, nil
}

// Score evaluates a single candidate device against the incoming
// classification. The boolean is false when the device has no IP history.
func (m *Matcher) Score(ctx context.Context, incoming types.DeviceMetadata, device types.Device) (*Match, bool, error) {
	ips, err := m.history.ListIPsByDevice(ctx, device.ID)
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "device ip history lookup failed").
			WithCode(goerrors.CodeInternal)
	}
	if len(ips) == 0 {
		return nil, false, nil
	}

	ipScore := scoreIPHistory(incoming.IP, ips, m.clusterCount)
	metaScore := scoreMetadata(incoming, device)
	return &Match{
		Device:        device,
		IPScore:       ipScore,
		MetadataScore: metaScore,
		Combined:      (ipScore + metaScore) / 2,
	}, true, nil
}

// MostSimilar returns the highest-combined candidate that clears both the
// IP gate and the metadata gate, or nil when none does. Devices with no
// recorded IP history are skipped.
func (m *Matcher) MostSimilar(ctx context.Context, incoming types.DeviceMetadata, devices []types.Device) (*Match, error) {
	var best *Match
	for _, device := range devices {
		match, scored, err := m.Score(ctx, incoming, device)
		if err != nil {
			return nil, err
		}
		if !scored {
			continue
		}
		m.logger.Debug("fingerprint candidate scored",
			"device_id", device.ID.String(),
			"ip_score", match.IPScore,
			"metadata_score", match.MetadataScore,
		)
		if match.IPScore < m.ipGate || match.MetadataScore < m.metadataGate {
			continue
		}
		if best == nil || match.Combined > best.Combined {
			best = match
		}
	}
	return best, nil
}
