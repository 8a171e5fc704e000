package domain

import "errors"

// SubjectID is the unique subject issued by the identity provider for a credential.
// We model it as an opaque identifier: its format is controlled by the IdP.
type SubjectID string

// Identifier is the user-chosen handle ("username") that must be unique across profiles.
type Identifier string

// DeviceID identifies one installation of the storefront shell.
type DeviceID string

// ErrInvalidDeviceID indicates a device id outside 1-128 visible ASCII characters.
var ErrInvalidDeviceID = errors.New("invalid device id")

// ParseDeviceID validates a device id sent by the mobile shell.
func ParseDeviceID(s string) (DeviceID, error) {
	if len(s) == 0 || len(s) > 128 {
		return "", ErrInvalidDeviceID
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return "", ErrInvalidDeviceID
		}
	}
	return DeviceID(s), nil
}
