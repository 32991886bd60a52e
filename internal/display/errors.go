package display

import "errors"

var (
	// ErrInvalidArgument reports malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSecurity reports a caller lacking the permission or grant an
	// operation needs.
	ErrSecurity = errors.New("security violation")
	// ErrAlreadyRegistered is returned when a caller registers a second
	// listener, or reuses a virtual display token.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrNotRegistered is returned for operations that need a registered
	// listener.
	ErrNotRegistered = errors.New("caller has not registered a listener")
	// ErrNotCreated reports that a freshly created device did not yield a
	// logical display.
	ErrNotCreated = errors.New("display was not created")
	// ErrAdapterUnavailable is returned when the adapter backing an
	// operation has not been registered.
	ErrAdapterUnavailable = errors.New("display adapter unavailable")
	// ErrDefaultDisplayTimeout is returned when no default display appeared
	// within the boot timeout.
	ErrDefaultDisplayTimeout = errors.New("timeout waiting for default display to be initialized")
)
