package document

import (
	"fmt"
	"strings"
)

// AnalysisResult is the extraction service's reply for one document: a flat
// field map plus ordered line items (repeated structures such as invoice
// line entries).
type AnalysisResult struct {
	Fields map[string]string
	Items  []map[string]string
}

// nullMarkers are field values the service emits when it found nothing
// usable. They are dropped rather than shown to the user.
var nullMarkers = map[string]bool{
	"":     true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"null": true,
}

// Flatten renders an AnalysisResult as "field: value" lines, one per line.
// Top-level fields come first in the schema's whitelist order; line items
// follow, each field keyed Item_<n>_<Field> with n starting at 1. Fields
// outside the schema whitelist, and fields whose value is empty or a null
// marker, are skipped. Embedded newlines in values are removed so every
// field stays on a single line.
func Flatten(result *AnalysisResult, schema Schema) string {
	spec, ok := schemaFields[schema]
	if !ok {
		return ""
	}

	var lines []string
	for _, field := range spec.fields {
		value, ok := result.Fields[field]
		if !ok || isNull(value) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", field, cleanValue(value)))
	}

	for idx, item := range result.Items {
		for _, field := range spec.items {
			value, ok := item[field]
			if !ok || isNull(value) {
				continue
			}
			lines = append(lines, fmt.Sprintf("Item_%d_%s: %s", idx+1, field, cleanValue(value)))
		}
	}

	return strings.Join(lines, "\n")
}

func isNull(value string) bool {
	return nullMarkers[strings.ToLower(strings.TrimSpace(value))]
}

func cleanValue(value string) string {
	return strings.TrimSpace(strings.ReplaceAll(value, "\n", ""))
}
