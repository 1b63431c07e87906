// Package registry defines handler records, the store they live in, and the
// loader that turns raw store rows into a validated handler set.
package registry

import "fmt"

// SupervisorName is the distinguished routing handler. It must exist in the
// store; it selects other handlers and never executes a task itself.
const SupervisorName = "Supervisor"

// Kind is the closed set of handler kinds. Dispatch switches exhaustively on
// it so a new kind cannot silently fall through.
type Kind int

const (
	// KindConversational is a model-backed responder: instruction as system
	// context, task text as the user message.
	KindConversational Kind = iota
	// KindExtractionService proxies a structured document-extraction call.
	KindExtractionService
)

func (k Kind) String() string {
	switch k {
	case KindConversational:
		return "conversational"
	case KindExtractionService:
		return "extraction_service"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a stored kind string to a Kind. The empty string defaults
// to conversational, matching rows written before the kind column existed.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "conversational", "llm":
		return KindConversational, nil
	case "extraction_service", "service":
		return KindExtractionService, nil
	}
	return 0, fmt.Errorf("unknown handler kind %q", s)
}

// HandlerRecord is one row of the handler store. Records are created and
// updated by an operator; the dispatch pipeline only ever reads them.
type HandlerRecord struct {
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
	ModelKey    string `json:"model_key"`
	Kind        Kind   `json:"kind"`
}

// ValidName reports whether a handler name is a plain identifier:
// letters, digits and underscores, not starting with a digit.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
