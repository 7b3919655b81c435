package command

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/pkg/types"
)

const (
	textCodeNoCandidateDevice  = "NO_CANDIDATE_DEVICE"
	textCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	textCodeDestinationMissing = "DELIVERY_DESTINATION_MISSING"
)

var (
	// ErrUserIDRequired occurs when a command omits the user.
	ErrUserIDRequired = types.ErrUserIDRequired
	// ErrDeviceIDRequired occurs when a command omits the device.
	ErrDeviceIDRequired = types.ErrDeviceIDRequired
	// ErrAccessTokenRequired occurs when a login omits the device credential.
	ErrAccessTokenRequired = errors.New("go-device-auth: access token required")
	// ErrRefreshTokenRequired occurs when a renewal omits the refresh token.
	ErrRefreshTokenRequired = errors.New("go-device-auth: refresh token required")
	// ErrTokenRequired occurs when a revocation omits the token.
	ErrTokenRequired = errors.New("go-device-auth: token required")
	// ErrOTPPurposeRequired occurs when an OTP command omits the purpose.
	ErrOTPPurposeRequired = errors.New("go-device-auth: otp purpose required")
	// ErrOTPCodeRequired occurs when a validation omits the code.
	ErrOTPCodeRequired = errors.New("go-device-auth: otp code required")
	// ErrMetadataRequired occurs when a match is requested without request metadata.
	ErrMetadataRequired = errors.New("go-device-auth: device metadata required")
)

func errNoCandidateDevice() error {
	return goerrors.New("no known device matches this client", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(textCodeNoCandidateDevice)
}

func errNoAccount() error {
	return goerrors.New("account not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(textCodeAccountNotFound)
}

func errNoDestination(channel types.DeliveryChannel) error {
	return goerrors.New("account has no destination for channel", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(textCodeDestinationMissing).
		WithMetadata(map[string]any{"channel": string(channel)})
}

// IsNoCandidateDevice reports whether the error carries the no-candidate
// text code.
func IsNoCandidateDevice(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == textCodeNoCandidateDevice
}
