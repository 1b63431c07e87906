package dispatch

import "fmt"

// ValidationError rejects a request before any collaborator call is made:
// empty task text, unsupported file type, expired continuation token.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConfigurationError reports a broken deployment: the mandatory Supervisor
// handler missing from the store, or a handler's model key unresolved.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// RoutingError is returned when the Supervisor's reply names no known
// handler. Raw preserves the reply verbatim for diagnostics; it is never
// interpreted beyond exact-match lookup.
type RoutingError struct {
	Raw string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("supervisor selected an unknown handler: %q", e.Raw)
}

// NoSuitableHandlerError is returned when the Supervisor explicitly declines
// to route (the literal "NONE" reply).
type NoSuitableHandlerError struct{}

func (e *NoSuitableHandlerError) Error() string {
	return "no suitable handler found for this task"
}

// ExecutionError wraps a collaborator failure: model executor errors,
// extraction service errors, or an extraction requested without a file.
type ExecutionError struct {
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Cause }
