package migrations

import (
	deviceauth "github.com/goliatone/go-device-auth"
)

func init() {
	Register(deviceauth.GetMigrationsFS())
}
