package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thomas-sabu/taskrouter/pkg/config"
)

// ErrSupervisorMissing is returned when the store holds no Supervisor
// handler. The pipeline cannot route without one.
var ErrSupervisorMissing = errors.New("mandatory Supervisor handler missing from store")

// Set is the validated view of the handler store for one dispatch. It keeps
// the store's insertion order for catalog rendering and a name index for
// exact-match lookup of the Supervisor's reply.
type Set struct {
	order  []string
	byName map[string]HandlerRecord
}

// Get returns the record for an exact handler name.
func (s *Set) Get(name string) (HandlerRecord, bool) {
	rec, ok := s.byName[name]
	return rec, ok
}

// Ordered returns the records in store insertion order.
func (s *Set) Ordered() []HandlerRecord {
	out := make([]HandlerRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Supervisor returns the distinguished routing handler.
func (s *Set) Supervisor() HandlerRecord {
	return s.byName[SupervisorName]
}

// Len reports the number of valid handlers, Supervisor included.
func (s *Set) Len() int { return len(s.order) }

// Load reads the store and filters invalid rows: names that are not plain
// identifiers, and model keys absent from the registry. It is called on every
// dispatch so the pipeline always reflects the latest store state.
func Load(ctx context.Context, store Store, cfg *config.Config) (*Set, error) {
	rows, err := store.ListHandlers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list handlers: %w", err)
	}

	set := &Set{byName: make(map[string]HandlerRecord, len(rows))}
	for _, rec := range rows {
		if !ValidName(rec.Name) {
			slog.Warn("skipping handler with invalid name", "name", rec.Name)
			continue
		}
		if _, ok := cfg.Resolve(rec.ModelKey); !ok {
			slog.Warn("skipping handler with unresolved model key",
				"handler", rec.Name, "model_key", rec.ModelKey)
			continue
		}
		if _, dup := set.byName[rec.Name]; !dup {
			set.order = append(set.order, rec.Name)
		}
		set.byName[rec.Name] = rec
	}

	if _, ok := set.byName[SupervisorName]; !ok {
		return nil, ErrSupervisorMissing
	}
	return set, nil
}
