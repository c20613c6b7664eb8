package addon

import "fmt"

// ConfigError reports an unusable addon configuration, detected before any
// network call. Surfaced to the caller as a validation message, never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "addon config: " + e.Reason
}

// ValidationError reports well-formed but semantically invalid request
// parameters (empty external id, season or episode below 1). Like ConfigError
// it is raised before dispatch and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// ProtocolError reports an addon that responded outside the protocol contract:
// a bad status, a non-JSON content type, a missing required field, or a
// transport failure. It carries the addon's identity so callers can attribute
// the failure without string-matching messages. StatusCode is zero when the
// failure happened below the HTTP layer.
type ProtocolError struct {
	AddonName  string
	AddonURL   string
	Op         string
	StatusCode int
	Reason     string
	// Transient marks failures below the HTTP layer (dial, reset, timeout)
	// that a single retry may get past. Shape failures are never transient:
	// an addon that answered wrong will answer wrong again.
	Transient bool
}

func (e *ProtocolError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("addon %s: %s returned status %d: %s", e.AddonName, e.Op, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("addon %s: %s: %s", e.AddonName, e.Op, e.Reason)
}

// TimeoutError is a ProtocolError raised by bounded-wait expiry, kept distinct
// so callers can tell a slow addon from a broken one.
type TimeoutError struct {
	ProtocolError
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("addon %s: %s timed out: %s", e.AddonName, e.Op, e.Reason)
}

// Unwrap lets errors.As match a *TimeoutError as a *ProtocolError.
func (e *TimeoutError) Unwrap() error {
	return &e.ProtocolError
}
