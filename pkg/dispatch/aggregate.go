package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

// aggregate runs the single-file pipeline once per uploaded file with the
// same task text and merges the outputs under per-file headers, in upload
// order. Files are independent: a failure on one becomes that file's own
// error section and the rest proceed. The combined result needs confirmation
// if any constituent does; each such section names its continuation token so
// the caller can answer per file.
func (p *Pipeline) aggregate(
	ctx context.Context,
	set *registry.Set,
	task string,
	files []File,
	docType string,
) (Result, error) {
	agg := Result{Status: StatusSuccess}
	sections := make([]string, 0, len(files))

	for _, file := range files {
		res, err := p.dispatchFile(ctx, set, task, file, docType, false)
		var body string
		switch {
		case err != nil:
			body = "error: " + resultFromError(err).Message
		case res.NeedsConfirmation:
			agg.NeedsConfirmation = true
			body = res.Output + "\nconfirmation_token: " + res.Token
		default:
			body = res.Output
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", file.Filename, body))
	}

	agg.Output = strings.Join(sections, "\n\n")
	return agg, nil
}
