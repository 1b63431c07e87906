package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/thomas-sabu/taskrouter/pkg/config"
	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

func testConfig() *config.Config {
	return &config.Config{
		Models: map[string]config.ModelConfig{
			"gpt-4.1-mini": {ModelID: "azure:gpt-4.1-mini"},
		},
		DefaultModel: "gpt-4.1-mini",
	}
}

func seed(t *testing.T, store registry.Store, recs ...registry.HandlerRecord) {
	t.Helper()
	for _, rec := range recs {
		if err := store.PutHandler(context.Background(), rec); err != nil {
			t.Fatalf("PutHandler(%q): %v", rec.Name, err)
		}
	}
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Supervisor", true},
		{"report_writer2", true},
		{"_private", true},
		{"2fast", false},
		{"has space", false},
		{"dash-ed", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := registry.ValidName(tt.name); got != tt.want {
			t.Errorf("ValidName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	if k, err := registry.ParseKind(""); err != nil || k != registry.KindConversational {
		t.Errorf("empty kind: got %v, %v; want conversational default", k, err)
	}
	if k, err := registry.ParseKind("service"); err != nil || k != registry.KindExtractionService {
		t.Errorf("legacy 'service': got %v, %v", k, err)
	}
	if _, err := registry.ParseKind("quantum"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestMemoryStoreKeepsInsertionOrder(t *testing.T) {
	store := registry.NewMemoryStore()
	seed(t, store,
		registry.HandlerRecord{Name: "Zeta", Instruction: "z", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "Alpha", Instruction: "a", ModelKey: "gpt-4.1-mini"},
	)
	rows, err := store.ListHandlers(context.Background())
	if err != nil {
		t.Fatalf("ListHandlers: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "Zeta" || rows[1].Name != "Alpha" {
		t.Errorf("order = %v, want [Zeta Alpha]", rows)
	}
}

func TestMemoryStoreNormalizesNames(t *testing.T) {
	store := registry.NewMemoryStore()
	seed(t, store, registry.HandlerRecord{Name: " Report Writer ", Instruction: "w", ModelKey: "gpt-4.1-mini"})
	rows, _ := store.ListHandlers(context.Background())
	if rows[0].Name != "ReportWriter" {
		t.Errorf("name = %q, want ReportWriter", rows[0].Name)
	}
}

func TestLoadFiltersInvalidRows(t *testing.T) {
	store := registry.NewMemoryStore()
	seed(t, store,
		registry.HandlerRecord{Name: "Supervisor", Instruction: "route", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "Writer", Instruction: "write", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "Ghost", Instruction: "x", ModelKey: "no-such-model"},
	)
	set, err := registry.Load(context.Background(), store, testConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("len = %d, want 2 (Ghost's model key is unresolved)", set.Len())
	}
	if _, ok := set.Get("Ghost"); ok {
		t.Error("Ghost should have been filtered")
	}
	if _, ok := set.Get("Writer"); !ok {
		t.Error("Writer missing")
	}
}

type badNameStore struct{}

func (badNameStore) ListHandlers(context.Context) ([]registry.HandlerRecord, error) {
	return []registry.HandlerRecord{
		{Name: "Supervisor", Instruction: "route", ModelKey: "gpt-4.1-mini"},
		{Name: "9lives", Instruction: "cat", ModelKey: "gpt-4.1-mini"},
		{Name: "has space", Instruction: "bad", ModelKey: "gpt-4.1-mini"},
	}, nil
}

func (badNameStore) PutHandler(context.Context, registry.HandlerRecord) error { return nil }

func TestLoadSkipsNonIdentifierNames(t *testing.T) {
	set, err := registry.Load(context.Background(), badNameStore{}, testConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Len() != 1 {
		t.Errorf("len = %d, want 1 (only Supervisor survives)", set.Len())
	}
}

func TestLoadRequiresSupervisor(t *testing.T) {
	store := registry.NewMemoryStore()
	seed(t, store, registry.HandlerRecord{Name: "Writer", Instruction: "w", ModelKey: "gpt-4.1-mini"})
	_, err := registry.Load(context.Background(), store, testConfig())
	if !errors.Is(err, registry.ErrSupervisorMissing) {
		t.Fatalf("err = %v, want ErrSupervisorMissing", err)
	}
}
