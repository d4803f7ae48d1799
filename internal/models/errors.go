package models

import "errors"

// Error taxonomy shared by the store, the lifecycle manager, and the API
// layer. Handlers map these to HTTP status codes; everything else wraps them
// with fmt.Errorf("...: %w", err) and context.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyResolved      = errors.New("alert already resolved")
	ErrAlreadyTerminal      = errors.New("alert in terminal state")
	ErrInvalidReading       = errors.New("invalid reading")
	ErrConfigurationInvalid = errors.New("invalid configuration")
	ErrChannelExhausted     = errors.New("notification attempts exhausted")
)
