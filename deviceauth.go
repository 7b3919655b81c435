package deviceauth

import "github.com/goliatone/go-device-auth/service"

// Re-export the service package entry point so consumers can do
// `deviceauth.New(...)` without importing internal wiring helpers.
type (
	Service  = service.Service
	Config   = service.Config
	Commands = service.Commands
	Queries  = service.Queries
	Runner   = service.Runner
)

// New constructs the go-device-auth runtime using the provided configuration.
func New(cfg Config) *Service {
	return service.New(cfg)
}
