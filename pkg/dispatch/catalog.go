package dispatch

import (
	"fmt"
	"strings"

	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

// buildCatalog renders the handler listing shown to the Supervisor, one
// "- name: instruction" line per eligible handler in store insertion order.
// The Supervisor never appears in its own catalog, and extraction-service
// handlers are hidden when the request carries no file: a handler must never
// be offered for a modality it cannot serve. Instructions are collapsed to a
// single line because the catalog travels inside a single routing prompt.
func buildCatalog(set *registry.Set, hasFile bool) string {
	var lines []string
	for _, rec := range set.Ordered() {
		if rec.Name == registry.SupervisorName {
			continue
		}
		if rec.Kind == registry.KindExtractionService && !hasFile {
			continue
		}
		role := strings.TrimSpace(strings.ReplaceAll(rec.Instruction, "\n", " "))
		lines = append(lines, fmt.Sprintf("- %s: %s", rec.Name, role))
	}
	return strings.Join(lines, "\n")
}
