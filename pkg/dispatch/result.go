package dispatch

import "errors"

// Status is the outcome class of a dispatch.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusNoHandler Status = "no_suitable_handler"
)

// Result is the normalized outcome of a dispatch. The outer pipeline
// boundary guarantees a well-formed Result on every input; collaborator
// failures become StatusError results, never faults.
type Result struct {
	Status  Status `json:"status"`
	Handler string `json:"handler,omitempty"`
	Output  string `json:"output,omitempty"`

	// NeedsConfirmation asks the caller to re-submit with the continuation
	// Token plus an explicit confirm decision before the pending document is
	// acted on. While it is set, the document is retained, not discarded.
	NeedsConfirmation bool   `json:"needs_confirmation,omitempty"`
	Token             string `json:"token,omitempty"`

	Message string `json:"message,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// resultFromError maps the error taxonomy onto the Result contract.
func resultFromError(err error) Result {
	var noHandler *NoSuitableHandlerError
	if errors.As(err, &noHandler) {
		return Result{Status: StatusNoHandler, Message: "No suitable handler found for this task."}
	}
	var routing *RoutingError
	if errors.As(err, &routing) {
		return Result{Status: StatusError, Message: "Supervisor selected an unknown handler.", Raw: routing.Raw}
	}
	return Result{Status: StatusError, Message: err.Error()}
}
