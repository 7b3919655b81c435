package service

import (
	"context"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-device-auth/codec"
	"github.com/goliatone/go-device-auth/command"
	"github.com/goliatone/go-device-auth/fingerprint"
	"github.com/goliatone/go-device-auth/issuer"
	"github.com/goliatone/go-device-auth/otp"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/goliatone/go-device-auth/query"
	"github.com/goliatone/go-device-auth/settings"
	"github.com/goliatone/go-device-auth/trust"
)

// Service is the entry point for go-device-auth. It wires repositories,
// tunables, hooks and command/query facades supplied by the host
// application.
type Service struct {
	cfg        Config
	commands   Commands
	queries    Queries
	codec      *codec.Codec
	scorer     *trust.Scorer
	matcher    *fingerprint.Matcher
	otpManager *otp.Manager
	deviceAuth *issuer.Issuer
	userAuth   *issuer.Issuer
	initErr    error
}

// Commands exposes the service command handlers.
type Commands struct {
	DeviceLogin    *command.DeviceLoginCommand
	MatchLogin     *command.MatchLoginCommand
	DeviceRegister *command.DeviceRegisterCommand
	TokenRenew     *command.TokenRenewCommand
	TokenRevoke    *command.TokenRevokeCommand
	OTPGenerate    *command.OTPGenerateCommand
	OTPValidate    *command.OTPValidateCommand
}

// Queries exposes read-model helpers.
type Queries struct {
	DeviceInventory *query.DeviceInventoryQuery
	LoginHistory    *query.LoginHistoryQuery
	TrustStatus     *query.TrustStatusQuery
	AuditTrail      *query.AuditTrailQuery
}

// Runner is the slice of the background task runner the service hands to
// login and delivery paths.
type Runner interface {
	Submit(name string, fn func(context.Context) error) bool
}

// Config captures all required dependencies so callers can provide their
// own instances (bun.DB-backed repositories, cached wrappers, hooks, etc.).
type Config struct {
	// Secret signs both halves of every token pair.
	Secret []byte
	// Settings carries the resolved tunables. Zero values fall back to the
	// package defaults.
	Settings settings.Settings

	Devices      types.DeviceRepository
	Rotator      types.DevicePairRotator
	DevicePairs  types.TokenPairRepository
	UserPairs    types.TokenPairRepository
	Ledger       types.RevocationLedger
	History      types.LoginHistoryRepository
	OTPStore     types.OTPRepository
	Verification types.VerificationRepository
	Accounts     types.AccountRepository
	Audit        types.AuditSink
	AuditReader  types.AuditRepository

	Delivery types.DeliverySink
	Links    types.VerifyLinkManager
	Geo      types.GeoResolver
	Gate     featuregate.FeatureGate
	Runner   Runner

	Hooks       types.Hooks
	Clock       types.Clock
	IDGenerator types.IDGenerator
	Logger      types.Logger
}

// New constructs a Service from the supplied configuration. Construction
// never fails; a partially configured service reports through Ready and
// HealthCheck instead, matching how hosts boot before all stores exist.
func New(cfg Config) *Service {
	norm := normalizeConfig(cfg)
	s := &Service{cfg: norm}

	s.scorer = trust.New(trust.Config{
		GraceWindow:          norm.Settings.GraceWindow,
		Threshold:            norm.Settings.TrustThreshold,
		InitialStrangerScore: norm.Settings.StrangerScore,
		Clock:                norm.Clock,
	})

	tokenCodec, err := codec.New(codec.Config{
		Secret:     norm.Secret,
		AccessTTL:  norm.Settings.AccessTTL,
		RefreshTTL: norm.Settings.RefreshTTL,
		Clock:      norm.Clock,
	})
	if err != nil {
		s.initErr = err
	}
	s.codec = tokenCodec

	if norm.History != nil {
		matcher, matchErr := fingerprint.New(fingerprint.Config{
			History:      norm.History,
			IPGate:       norm.Settings.IPGate,
			MetadataGate: norm.Settings.MetadataGate,
			ClusterCount: norm.Settings.ClusterCount,
			Logger:       norm.Logger,
		})
		if matchErr != nil {
			s.initErr = matchErr
		}
		s.matcher = matcher
	}

	if norm.OTPStore != nil {
		manager, otpErr := otp.NewManager(otp.ManagerConfig{
			Store:        norm.OTPStore,
			Verification: norm.Verification,
			Digits:       norm.Settings.OTPDigits,
			Lifetime:     norm.Settings.OTPLifetime,
			Clock:        norm.Clock,
			IDGen:        norm.IDGenerator,
			Logger:       norm.Logger,
		})
		if otpErr != nil {
			s.initErr = otpErr
		}
		s.otpManager = manager
	}

	s.deviceAuth = s.buildIssuer(types.SubjectDevice, norm.DevicePairs)
	s.userAuth = s.buildIssuer(types.SubjectUser, norm.UserPairs)

	s.commands = s.buildCommands()
	s.queries = s.buildQueries()
	return s
}

func normalizeConfig(cfg Config) Config {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = types.UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	return cfg
}

func (s *Service) buildIssuer(subject types.SubjectKind, pairs types.TokenPairRepository) *issuer.Issuer {
	if s.codec == nil || pairs == nil || s.cfg.Ledger == nil {
		return nil
	}
	cfg := issuer.Config{
		Subject:    subject,
		Codec:      s.codec,
		Pairs:      pairs,
		Ledger:     s.cfg.Ledger,
		RetryLimit: s.cfg.Settings.RetryLimit,
		Clock:      s.cfg.Clock,
		Logger:     s.cfg.Logger,
	}
	if subject == types.SubjectDevice {
		cfg.Rotator = s.cfg.Rotator
		cfg.Scorer = s.scorer
	}
	built, err := issuer.New(cfg)
	if err != nil {
		s.initErr = err
		return nil
	}
	return built
}

// Commands returns the command facade.
func (s *Service) Commands() Commands {
	return s.commands
}

// Queries returns the query facade.
func (s *Service) Queries() Queries {
	return s.queries
}

// Codec exposes the token codec so transports can decode credentials for
// middleware purposes without going through a command.
func (s *Service) Codec() *codec.Codec {
	if s == nil {
		return nil
	}
	return s.codec
}

// DeviceIssuer exposes the device-subject issuer.
func (s *Service) DeviceIssuer() *issuer.Issuer {
	if s == nil {
		return nil
	}
	return s.deviceAuth
}

// UserIssuer exposes the user-subject issuer.
func (s *Service) UserIssuer() *issuer.Issuer {
	if s == nil {
		return nil
	}
	return s.userAuth
}

// AuditSink returns the configured sink so transports can emit audit
// records for auxiliary workflows (e.g. CRUD controllers).
func (s *Service) AuditSink() types.AuditSink {
	if s == nil {
		return nil
	}
	return s.cfg.Audit
}

// Ready reports whether the service has the required dependencies wired in.
func (s *Service) Ready() bool {
	return s != nil &&
		s.initErr == nil &&
		s.codec != nil &&
		s.cfg.Devices != nil &&
		s.cfg.Ledger != nil &&
		s.deviceAuth != nil &&
		s.userAuth != nil &&
		s.matcher != nil &&
		s.otpManager != nil
}

// HealthCheck surfaces the first missing dependency so upstream transports
// (REST/gRPC/jobs) can report a precise boot failure.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s == nil {
		return types.ErrServiceNotReady
	}
	if s.initErr != nil {
		return s.initErr
	}
	if s.codec == nil {
		return types.ErrMissingSigningSecret
	}
	if s.cfg.Devices == nil {
		return types.ErrMissingDeviceRepository
	}
	if s.cfg.DevicePairs == nil || s.cfg.UserPairs == nil {
		return types.ErrMissingPairStore
	}
	if s.cfg.Ledger == nil {
		return types.ErrMissingRevocationLedger
	}
	if s.cfg.History == nil {
		return types.ErrMissingLoginHistoryRepository
	}
	if s.cfg.OTPStore == nil {
		return types.ErrMissingOTPRepository
	}
	if s.cfg.Accounts == nil {
		return types.ErrMissingAccountRepository
	}
	if !s.Ready() {
		return types.ErrServiceNotReady
	}
	return nil
}

func (s *Service) buildCommands() Commands {
	threshold := s.scorer.Threshold()
	return Commands{
		DeviceLogin: command.NewDeviceLoginCommand(command.DeviceLoginCommandConfig{
			Devices:        s.cfg.Devices,
			DeviceIssuer:   s.deviceAuth,
			UserIssuer:     s.userAuth,
			History:        s.cfg.History,
			Geo:            s.cfg.Geo,
			Runner:         s.cfg.Runner,
			TrustThreshold: threshold,
			Clock:          s.cfg.Clock,
			Audit:          s.cfg.Audit,
			Hooks:          s.cfg.Hooks,
			Logger:         s.cfg.Logger,
		}),
		MatchLogin: command.NewMatchLoginCommand(command.MatchLoginCommandConfig{
			Devices:        s.cfg.Devices,
			Matcher:        s.matcher,
			DeviceIssuer:   s.deviceAuth,
			UserIssuer:     s.userAuth,
			History:        s.cfg.History,
			Geo:            s.cfg.Geo,
			Runner:         s.cfg.Runner,
			Gate:           s.cfg.Gate,
			TrustThreshold: threshold,
			Clock:          s.cfg.Clock,
			Audit:          s.cfg.Audit,
			Hooks:          s.cfg.Hooks,
			Logger:         s.cfg.Logger,
		}),
		DeviceRegister: command.NewDeviceRegisterCommand(command.DeviceRegisterCommandConfig{
			Devices:      s.cfg.Devices,
			DeviceIssuer: s.deviceAuth,
			Scorer:       s.scorer,
			History:      s.cfg.History,
			Geo:          s.cfg.Geo,
			Runner:       s.cfg.Runner,
			Clock:        s.cfg.Clock,
			Audit:        s.cfg.Audit,
			Hooks:        s.cfg.Hooks,
			Logger:       s.cfg.Logger,
		}),
		TokenRenew: command.NewTokenRenewCommand(command.TokenRenewCommandConfig{
			DeviceIssuer: s.deviceAuth,
			UserIssuer:   s.userAuth,
			Clock:        s.cfg.Clock,
			Audit:        s.cfg.Audit,
			Hooks:        s.cfg.Hooks,
			Logger:       s.cfg.Logger,
		}),
		TokenRevoke: command.NewTokenRevokeCommand(command.TokenRevokeCommandConfig{
			Codec:        s.codec,
			DeviceIssuer: s.deviceAuth,
			UserIssuer:   s.userAuth,
			History:      s.cfg.History,
			Clock:        s.cfg.Clock,
			Audit:        s.cfg.Audit,
			Hooks:        s.cfg.Hooks,
			Logger:       s.cfg.Logger,
		}),
		OTPGenerate: command.NewOTPGenerateCommand(command.OTPGenerateCommandConfig{
			Manager:  s.otpManager,
			Accounts: s.cfg.Accounts,
			Delivery: s.cfg.Delivery,
			Links:    s.cfg.Links,
			Runner:   s.cfg.Runner,
			Clock:    s.cfg.Clock,
			Audit:    s.cfg.Audit,
			Hooks:    s.cfg.Hooks,
			Logger:   s.cfg.Logger,
		}),
		OTPValidate: command.NewOTPValidateCommand(command.OTPValidateCommandConfig{
			Manager: s.otpManager,
			Clock:   s.cfg.Clock,
			Audit:   s.cfg.Audit,
			Hooks:   s.cfg.Hooks,
			Logger:  s.cfg.Logger,
		}),
	}
}

func (s *Service) buildQueries() Queries {
	return Queries{
		DeviceInventory: query.NewDeviceInventoryQuery(s.cfg.Devices, s.cfg.Logger),
		LoginHistory:    query.NewLoginHistoryQuery(s.cfg.History, s.cfg.Logger),
		TrustStatus:     query.NewTrustStatusQuery(s.cfg.Devices, s.cfg.DevicePairs, s.scorer, s.cfg.Logger),
		AuditTrail:      query.NewAuditTrailQuery(s.cfg.AuditReader, s.cfg.Logger),
	}
}
