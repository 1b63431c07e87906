package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/thomas-sabu/taskrouter/pkg/document"
	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

// supervisorReplyNone is the Supervisor's literal way of declining to route.
const supervisorReplyNone = "NONE"

// selectHandler asks the Supervisor to pick a handler for the task. The
// reply is trusted only as far as an exact-match lookup in the handler set:
// no fuzzy matching, no partial matching. This is the single point where
// model output crosses into control flow.
func (p *Pipeline) selectHandler(
	ctx context.Context,
	set *registry.Set,
	task string,
	hasFile bool,
	docType document.Intent,
) (registry.HandlerRecord, error) {
	catalog := buildCatalog(set, hasFile)
	prompt := composeRoutingPrompt(task, hasFile, docType, catalog)

	supervisor := set.Supervisor()
	reply, err := p.complete(ctx, supervisor.ModelKey, supervisor.Instruction, prompt)
	if err != nil {
		return registry.HandlerRecord{}, err
	}

	selected := strings.TrimSpace(reply)
	slog.Info("supervisor selection", "selected", selected, "has_file", hasFile)

	if selected == supervisorReplyNone {
		return registry.HandlerRecord{}, &NoSuitableHandlerError{}
	}
	rec, ok := set.Get(selected)
	if !ok || selected == registry.SupervisorName {
		// The Supervisor routing itself is as wrong as naming a stranger.
		return registry.HandlerRecord{}, &RoutingError{Raw: selected}
	}
	return rec, nil
}

func composeRoutingPrompt(task string, hasFile bool, docType document.Intent, catalog string) string {
	fileFlag := "NO"
	if hasFile {
		fileFlag = "YES"
	}
	docLine := "none"
	if docType != "" {
		docLine = string(docType)
	}
	return fmt.Sprintf(`USER TASK:
%s

FILE_UPLOADED:
%s

DOCUMENT_TYPE:
%s

AVAILABLE HANDLERS:
%s`, task, fileFlag, docLine, catalog)
}
