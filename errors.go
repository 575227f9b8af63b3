package pushbridge

import "errors"

var (
	// ErrAlreadyLaunched is returned by a second call to Bridge.OnLaunch.
	ErrAlreadyLaunched = errors.New("bridge already launched")

	// ErrAuthorizationDenied marks an authorization outcome where the user
	// refused, or the prompt timed out. It never aborts the bridge.
	ErrAuthorizationDenied = errors.New("notification authorization denied")

	// ErrRegistrationFailed wraps every device registration failure.
	ErrRegistrationFailed = errors.New("remote notification registration failed")
)
